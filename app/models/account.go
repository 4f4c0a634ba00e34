package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	AccountStatusActive   = "active"
	AccountStatusDisabled = "disabled"
)

// Account is the ledger row for one end user. The ID is issued by the
// external auth backend, we never generate it ourselves.
type Account struct {
	ID                     string     `gorm:"primaryKey;type:varchar(64)" json:"id" validate:"required,min=1,max=64"`
	CreditBalance          int64      `gorm:"not null;default:0" json:"credit_balance"`
	IsEntitled             bool       `gorm:"not null;default:false" json:"is_entitled"`
	PlanTier               string     `gorm:"type:varchar(32);not null;default:'none'" json:"plan_tier" validate:"oneof=none standard plus premium"`
	TeamMaxMembers         int        `gorm:"not null;default:0" json:"team_max_members"`
	TeamSubscriptionActive bool       `gorm:"not null;default:false" json:"team_subscription_active"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active'" json:"status" validate:"oneof=active disabled"`
	APIKeyHash             string     `gorm:"type:varchar(64);uniqueIndex;default:null" json:"-"`
	LastSeenAt             *time.Time `gorm:"type:timestamp;default:null" json:"last_seen_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Account) Validate() error {
	v := validator.New()

	return v.Struct(a)
}

// IsActive reports whether the account may submit generation requests.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// HashAPIKey returns the hex SHA-256 digest used to look up accounts by key.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey creates a new random API key and returns the plaintext key.
// Only the hash is stored on the account.
func (a *Account) GenerateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	key := "dires_" + hex.EncodeToString(b)
	a.APIKeyHash = HashAPIKey(key)
	return key, nil
}
