package models

import "time"

// Generation job lifecycle. Terminal statuses are final, no transition out.
const (
	GenerationStatusSubmitted = "submitted"
	GenerationStatusPolling   = "polling"
	GenerationStatusSucceeded = "succeeded"
	GenerationStatusFailed    = "failed"
	GenerationStatusCanceled  = "canceled"
	GenerationStatusTimedOut  = "timed_out"
)

// Failure classes set when a job lands in a failed status.
const (
	FailureClassNone      = "none"
	FailureClassRetryable = "retryable"
	FailureClassSkip      = "skip"
	FailureClassFatal     = "fatal"
)

// GenerationJob is the audit row for one credit-gated settlement attempt.
// The ledger does not depend on it; it exists so failed settlements can be
// reviewed after the fact.
type GenerationJob struct {
	ID            string     `gorm:"primaryKey;type:varchar(128)" json:"id"`
	AccountID     string     `gorm:"type:varchar(64);not null;index" json:"account_id"`
	ProductID     string     `gorm:"type:varchar(191);not null" json:"product_id"`
	ProviderJobID string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_job_id"`
	Status        string     `gorm:"type:varchar(20);not null;default:'submitted';index" json:"status"`
	FailureClass  string     `gorm:"type:varchar(20);not null;default:'none'" json:"failure_class"`
	PollAttempts  int        `gorm:"not null;default:0" json:"poll_attempts"`
	CostCredits   int64      `gorm:"not null;default:0" json:"cost_credits"`
	Refunded      bool       `gorm:"not null;default:false" json:"refunded"`
	OutputURL     string     `gorm:"type:text" json:"output_url,omitempty"`
	ArchivedURL   string     `gorm:"type:text" json:"archived_url,omitempty"`
	ErrorMsg      string     `gorm:"type:text" json:"error_msg,omitempty"`
	CompletedAt   *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the job reached a final status.
func (j *GenerationJob) IsTerminal() bool {
	switch j.Status {
	case GenerationStatusSucceeded, GenerationStatusFailed, GenerationStatusCanceled, GenerationStatusTimedOut:
		return true
	default:
		return false
	}
}
