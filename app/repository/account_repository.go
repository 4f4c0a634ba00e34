package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/sonerady/dires-server-sub002/app/models"
	"gorm.io/gorm"
)

// ErrInsufficientFunds is returned by TryDebit when the conditional update
// matches no row because the balance is below the requested amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrAccountNotFound is returned when a ledger operation targets an unknown
// account. Accounts are never auto-provisioned by ledger writes.
var ErrAccountNotFound = errors.New("account not found")

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create creates a new account row
func (r *accountRepository) Create(account *models.Account) error {
	return r.db.Create(account).Error
}

// GetByID retrieves an account by its external id
func (r *accountRepository) GetByID(id string) (*models.Account, error) {
	var account models.Account
	err := r.db.Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByAPIKeyHash resolves an API key hash to its account.
func (r *accountRepository) GetByAPIKeyHash(hash string) (*models.Account, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var account models.Account
	err := r.db.Where("api_key_hash = ?", trimmed).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetBalance reads the current credit balance without side effects.
func (r *accountRepository) GetBalance(id string) (int64, error) {
	var balance int64
	err := r.db.Model(&models.Account{}).
		Where("id = ?", id).
		Select("credit_balance").
		Take(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrAccountNotFound
	}
	return balance, err
}

// TryDebit decrements the balance in a single conditional UPDATE. A
// concurrent debit can never push the balance negative: the WHERE clause
// only matches while the balance covers the amount.
func (r *accountRepository) TryDebit(id string, amount int64) error {
	return r.TryDebitTx(r.db, id, amount)
}

// TryDebitTx is TryDebit inside a caller-owned transaction.
func (r *accountRepository) TryDebitTx(tx *gorm.DB, id string, amount int64) error {
	if amount < 0 {
		return errors.New("debit amount must be non-negative")
	}
	result := tx.Model(&models.Account{}).
		Where("id = ? AND credit_balance >= ?", id, amount).
		Update("credit_balance", gorm.Expr("credit_balance - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish a missing account from a balance miss.
		var count int64
		if err := tx.Model(&models.Account{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrAccountNotFound
		}
		return ErrInsufficientFunds
	}
	return nil
}

// Credit adds to the balance in a single additive UPDATE.
func (r *accountRepository) Credit(id string, amount int64) error {
	return r.CreditTx(r.db, id, amount)
}

// CreditTx is Credit inside a caller-owned transaction.
func (r *accountRepository) CreditTx(tx *gorm.DB, id string, amount int64) error {
	if amount < 0 {
		return errors.New("credit amount must be non-negative")
	}
	result := tx.Model(&models.Account{}).
		Where("id = ?", id).
		Update("credit_balance", gorm.Expr("credit_balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateEntitlement writes the entitlement snapshot derived from billing events.
func (r *accountRepository) UpdateEntitlement(id string, isEntitled bool, planTier string, teamMaxMembers int, teamActive bool) error {
	result := r.db.Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_entitled":              isEntitled,
			"plan_tier":                planTier,
			"team_max_members":         teamMaxMembers,
			"team_subscription_active": teamActive,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Save persists non-balance account fields.
func (r *accountRepository) Save(account *models.Account) error {
	return r.db.Save(account).Error
}

// TouchLastSeen records API activity for the account.
func (r *accountRepository) TouchLastSeen(id string) error {
	now := time.Now()
	return r.db.Model(&models.Account{}).Where("id = ?", id).Update("last_seen_at", &now).Error
}

// Count returns the total number of accounts
func (r *accountRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Account{}).Count(&count).Error
	return count, err
}
