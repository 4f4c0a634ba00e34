package models

import "time"

// Ledger-affecting event types. Every balance mutation is justified by
// exactly one CreditTransaction row carrying one of these.
const (
	EventTypeGenerationDebit  = "generation_debit"
	EventTypeGenerationRefund = "generation_refund"
	EventTypePurchase         = "purchase"
	EventTypeRenewal          = "renewal"
	EventTypeCancellation     = "cancellation"
	EventTypeExpiration       = "expiration"
	EventTypeSoftCancel       = "soft_cancel"
	EventTypeTest             = "test"
)

// CreditTransaction is the append-only settlement log. TransactionID is the
// sole durable idempotency key: provider supplied for webhooks, synthesized
// client-side for direct purchases, derived from the request id for
// generation settlements.
type CreditTransaction struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TransactionID  string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_credit_transactions_txid" json:"transaction_id"`
	AccountID      string    `gorm:"type:varchar(64);not null;index:idx_credit_transactions_account_type,priority:1" json:"account_id"`
	ProductOrJobID string    `gorm:"type:varchar(191);not null;default:'';index" json:"product_or_job_id"`
	CreditsDelta   int64     `gorm:"not null" json:"credits_delta"`
	EventType      string    `gorm:"type:varchar(32);not null;index:idx_credit_transactions_account_type,priority:2" json:"event_type"`
	OccurredAt     time.Time `gorm:"not null;index" json:"occurred_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
