package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/sonerady/dires-server-sub002/app/models"
	"github.com/sonerady/dires-server-sub002/app/repository"
	"github.com/sonerady/dires-server-sub002/internal/pkg/generation"
	"github.com/sonerady/dires-server-sub002/internal/pkg/inflight"
	"github.com/sonerady/dires-server-sub002/internal/pkg/jobqueue"
	"github.com/sonerady/dires-server-sub002/internal/pkg/ledger"
	"gorm.io/gorm"
)

var (
	// ErrContentRejected surfaces a content-policy rejection. The debit is
	// refunded and the request must not be retried as-is.
	ErrContentRejected = errors.New("generation rejected by content policy")

	// ErrProviderFailure surfaces a terminal provider failure after all
	// retries were exhausted. The debit has been refunded.
	ErrProviderFailure = errors.New("generation provider failure")

	// ErrSettlementPending is returned when a replayed request finds its
	// original still in flight.
	ErrSettlementPending = errors.New("settlement still in progress")
)

// Enqueuer is the slice of the job queue the engine needs.
type Enqueuer interface {
	EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// Request describes one credit-gated generation.
type Request struct {
	AccountID string
	ProductID string
	// RequestID is the client's idempotency key. A retried request with the
	// same id replays the stored outcome instead of debiting again.
	RequestID string
	Cost      int64
	// NonRefundable keeps the debit even when the job fails.
	NonRefundable bool
	Spec          generation.JobSpec
}

// Result is a settled generation.
type Result struct {
	Job      *models.GenerationJob
	Replayed bool
}

// Engine runs the full settle cycle: guard, debit, drive the external job,
// then commit or refund against the ledger.
type Engine struct {
	ledger *ledger.Service
	guard  *inflight.Guard
	poller *generation.Poller
	jobs   repository.GenerationJobRepository
	queue  Enqueuer
}

// NewEngine creates a settlement engine. queue may be nil when output
// archival is disabled.
func NewEngine(ledgerSvc *ledger.Service, guard *inflight.Guard, poller *generation.Poller, jobs repository.GenerationJobRepository, queue Enqueuer) *Engine {
	return &Engine{
		ledger: ledgerSvc,
		guard:  guard,
		poller: poller,
		jobs:   jobs,
		queue:  queue,
	}
}

// Settle drives one credit-gated generation to its ledger-final state.
// Every error path leaves the ledger consistent: either no debit happened,
// the debit stands with a successful result, or the debit was refunded.
func (e *Engine) Settle(ctx context.Context, req Request) (*Result, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	if err := e.guard.Acquire(ctx, req.AccountID, req.ProductID); err != nil {
		return nil, err
	}
	defer e.guard.Release(context.Background(), req.AccountID, req.ProductID)

	// The derived transaction id is scoped to the account, so one client's
	// request ids can never collide with or replay another account's.
	txID := "gen:" + req.AccountID + ":" + req.RequestID

	job := &models.GenerationJob{
		ID:           txID,
		AccountID:    req.AccountID,
		ProductID:    req.ProductID,
		Status:       models.GenerationStatusSubmitted,
		FailureClass: models.FailureClassNone,
		CostCredits:  req.Cost,
	}
	// Debit and audit row commit together: a failed job insert rolls the
	// debit back, so no transaction id is ever burned without a job row.
	err := e.ledger.DebitForJobWithAudit(ctx, req.AccountID, req.Cost, txID, req.ProductID, func(tx *gorm.DB) error {
		return e.jobs.CreateTx(tx, job)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return e.replay(req, txID)
		}
		return nil, err
	}

	outcome := e.poller.Run(ctx, req.Spec)
	now := time.Now()
	job.ProviderJobID = outcome.ProviderJobID
	job.Status = outcome.Status
	job.FailureClass = string(outcome.Class)
	job.PollAttempts = outcome.PollAttempts
	job.OutputURL = outcome.OutputURL
	job.ErrorMsg = outcome.ErrorMsg
	job.CompletedAt = &now

	if outcome.Succeeded() {
		if err := e.jobs.Update(job); err != nil {
			log.Errorf("[Settlement] failed to persist succeeded job %s: %v", job.ID, err)
		}
		e.enqueueArchive(job)
		return &Result{Job: job}, nil
	}

	// Terminal failure: the settlement is closed here. A late provider-side
	// success for this job id is ignored, the refund already happened.
	e.refund(job, req, txID)
	if err := e.jobs.Update(job); err != nil {
		log.Errorf("[Settlement] failed to persist failed job %s: %v", job.ID, err)
	}

	if outcome.Class == generation.ClassSkip {
		return &Result{Job: job}, ErrContentRejected
	}
	return &Result{Job: job}, fmt.Errorf("%w: %s", ErrProviderFailure, outcome.ErrorMsg)
}

// replay resolves a request whose transaction id is already settled.
func (e *Engine) replay(req Request, txID string) (*Result, error) {
	job, err := e.jobs.GetByID(txID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Debit and audit row commit together, so a missing row means
			// the original transaction has not finished committing yet.
			return nil, ErrSettlementPending
		}
		return nil, err
	}
	if job.AccountID != req.AccountID {
		return nil, fmt.Errorf("settled job %s belongs to another account", txID)
	}
	if !job.IsTerminal() {
		return nil, ErrSettlementPending
	}

	log.Infof("[Settlement] replaying settled request %s (status=%s)", req.RequestID, job.Status)
	result := &Result{Job: job, Replayed: true}
	switch {
	case job.Status == models.GenerationStatusSucceeded:
		return result, nil
	case job.FailureClass == models.FailureClassSkip:
		return result, ErrContentRejected
	default:
		return result, fmt.Errorf("%w: %s", ErrProviderFailure, job.ErrorMsg)
	}
}

// refund returns the debit unless the request was marked non-refundable.
// The refund record id derives from the debit id, so re-running this path
// can never double-credit.
func (e *Engine) refund(job *models.GenerationJob, req Request, txID string) {
	if req.NonRefundable {
		return
	}
	applied, err := e.ledger.RefundJob(context.Background(), req.AccountID, req.Cost, txID, req.ProductID)
	if err != nil {
		log.Errorf("[Settlement] refund for job %s failed: %v", job.ID, err)
		return
	}
	if applied {
		log.Infof("[Settlement] refunded %d credits for job %s", req.Cost, job.ID)
	}
	job.Refunded = true
}

// enqueueArchive schedules the output copy into durable storage.
func (e *Engine) enqueueArchive(job *models.GenerationJob) {
	if e.queue == nil || job.OutputURL == "" {
		return
	}
	payload := jobqueue.OutputArchiveJobPayload{
		GenerationJobID: job.ID,
		AccountID:       job.AccountID,
		OutputURL:       job.OutputURL,
	}
	if _, err := e.queue.EnqueueJob(jobqueue.JobTypeOutputArchive, payload.ToMap()); err != nil {
		log.Errorf("[Settlement] failed to enqueue archive for job %s: %v", job.ID, err)
	}
}
