package models

import "time"

const (
	TeamRoleOwner  = "owner"
	TeamRoleMember = "member"
)

// Team groups accounts under an owning account. Credits purchased by a
// member are redirected to the owner's ledger.
type Team struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OwnerID    string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"owner_id"`
	Name       string    `gorm:"type:varchar(150);not null;default:''" json:"name"`
	MaxMembers int       `gorm:"not null;default:0" json:"max_members"`
	IsActive   bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TeamMember links an account to a team. One active membership per account.
type TeamMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TeamID    uint      `gorm:"not null;index" json:"team_id"`
	AccountID string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"account_id"`
	Role      string    `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IsOwner reports whether the member is the owning account of its team.
func (m *TeamMember) IsOwner() bool {
	return m.Role == TeamRoleOwner
}
