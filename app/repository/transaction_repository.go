package repository

import (
	"time"

	"github.com/sonerady/dires-server-sub002/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// transactionRepository implements the TransactionRepository interface
type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

// CreateIfNotExists inserts the record unless the transaction id is already
// present. The unique index on transaction_id is the durable idempotency
// guarantee; RowsAffected tells us whether this call won the insert.
func (r *transactionRepository) CreateIfNotExists(rec *models.CreditTransaction) (bool, error) {
	return r.CreateIfNotExistsTx(r.db, rec)
}

// CreateIfNotExistsTx is CreateIfNotExists inside a caller-owned transaction.
func (r *transactionRepository) CreateIfNotExistsTx(tx *gorm.DB, rec *models.CreditTransaction) (bool, error) {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now()
	}
	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(rec)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetByTransactionID retrieves a settled record by its idempotency key.
func (r *transactionRepository) GetByTransactionID(transactionID string) (*models.CreditTransaction, error) {
	var rec models.CreditTransaction
	err := r.db.Where("transaction_id = ?", transactionID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ExistsRecent reports whether an identical (account, product, event type)
// record was written within the window.
func (r *transactionRepository) ExistsRecent(accountID, productOrJobID, eventType string, window time.Duration) (bool, error) {
	cutoff := time.Now().Add(-window)
	var count int64
	err := r.db.Model(&models.CreditTransaction{}).
		Where("account_id = ? AND product_or_job_id = ? AND event_type = ? AND created_at >= ?",
			accountID, productOrJobID, eventType, cutoff).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByAccount returns the account's settlement history, newest first.
func (r *transactionRepository) ListByAccount(accountID string, offset, limit int) ([]models.CreditTransaction, error) {
	var recs []models.CreditTransaction
	err := r.db.Where("account_id = ?", accountID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// SumDeltasByAccount sums all signed deltas for conservation audits.
func (r *transactionRepository) SumDeltasByAccount(accountID string) (int64, error) {
	var sum int64
	err := r.db.Model(&models.CreditTransaction{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(SUM(credits_delta), 0)").
		Take(&sum).Error
	return sum, err
}
