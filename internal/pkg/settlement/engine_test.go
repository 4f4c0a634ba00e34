package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sonerady/dires-server-sub002/app/models"
	"github.com/sonerady/dires-server-sub002/app/repository"
	"github.com/sonerady/dires-server-sub002/internal/pkg/generation"
	"github.com/sonerady/dires-server-sub002/internal/pkg/inflight"
	"github.com/sonerady/dires-server-sub002/internal/pkg/jobqueue"
	"github.com/sonerady/dires-server-sub002/internal/pkg/ledger"
)

// fakeProvider replays a fixed sequence of terminal states, one per
// submission.
type fakeProvider struct {
	outcomes []generation.JobState
	submits  int
}

func (p *fakeProvider) Submit(ctx context.Context, spec generation.JobSpec) (string, error) {
	p.submits++
	return fmt.Sprintf("prov-%d", p.submits), nil
}

func (p *fakeProvider) Get(ctx context.Context, jobID string) (generation.JobState, error) {
	idx := p.submits - 1
	if idx >= len(p.outcomes) {
		idx = len(p.outcomes) - 1
	}
	return p.outcomes[idx], nil
}

type fakeEnqueuer struct {
	jobs []map[string]interface{}
}

func (f *fakeEnqueuer) EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error) {
	f.jobs = append(f.jobs, payload)
	return &jobqueue.Job{}, nil
}

type engineFixture struct {
	engine   *Engine
	db       *gorm.DB
	ledger   *ledger.Service
	guard    *inflight.Guard
	provider *fakeProvider
	queue    *fakeEnqueuer
}

func setupEngine(t *testing.T, balance int64, outcomes ...generation.JobState) *engineFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Account{}, &models.CreditTransaction{}, &models.GenerationJob{}))
	require.NoError(t, db.Create(&models.Account{ID: "acct-1", CreditBalance: balance, Status: models.AccountStatusActive}).Error)

	ledgerSvc := ledger.NewServiceFromDB(db)
	guard := inflight.NewGuard(inflight.NewMemoryStore(), time.Second)
	provider := &fakeProvider{outcomes: outcomes}
	poller := generation.NewPoller(provider, generation.Config{
		PollInterval: time.Millisecond,
		MaxAttempts:  3,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	})
	queue := &fakeEnqueuer{}
	engine := NewEngine(ledgerSvc, guard, poller, repository.NewGenerationJobRepository(db), queue)

	return &engineFixture{engine: engine, db: db, ledger: ledgerSvc, guard: guard, provider: provider, queue: queue}
}

func (f *engineFixture) balance(t *testing.T) int64 {
	return f.balanceOf(t, "acct-1")
}

func (f *engineFixture) balanceOf(t *testing.T, accountID string) int64 {
	t.Helper()
	var account models.Account
	require.NoError(t, f.db.Where("id = ?", accountID).First(&account).Error)
	return account.CreditBalance
}

func baseRequest() Request {
	return Request{
		AccountID: "acct-1",
		ProductID: "dires_gen_image",
		RequestID: "req-1",
		Cost:      20,
		Spec:      generation.JobSpec{Model: "test"},
	}
}

func TestSettleSuccessCommitsDebit(t *testing.T) {
	f := setupEngine(t, 100, generation.JobState{
		Status:    generation.ProviderStatusSucceeded,
		OutputURL: "https://cdn.example.com/out.png",
	})

	result, err := f.engine.Settle(context.Background(), baseRequest())
	require.NoError(t, err)
	require.False(t, result.Replayed)
	require.Equal(t, models.GenerationStatusSucceeded, result.Job.Status)
	require.Equal(t, "https://cdn.example.com/out.png", result.Job.OutputURL)

	require.EqualValues(t, 80, f.balance(t))
	require.Len(t, f.queue.jobs, 1, "success should enqueue one archive job")
}

func TestSettleRetryableFailuresThenSuccessDebitsOnce(t *testing.T) {
	f := setupEngine(t, 100,
		generation.JobState{Status: generation.ProviderStatusFailed, ErrorMsg: "Service is temporarily unavailable"},
		generation.JobState{Status: generation.ProviderStatusFailed, ErrorMsg: "Service is temporarily unavailable"},
		generation.JobState{Status: generation.ProviderStatusSucceeded, OutputURL: "https://cdn.example.com/out.png"},
	)

	result, err := f.engine.Settle(context.Background(), baseRequest())
	require.NoError(t, err)
	require.Equal(t, models.GenerationStatusSucceeded, result.Job.Status)
	require.EqualValues(t, 80, f.balance(t))

	var count int64
	require.NoError(t, f.db.Model(&models.CreditTransaction{}).Where("account_id = ?", "acct-1").Count(&count).Error)
	require.EqualValues(t, 1, count, "resubmissions must not write extra ledger records")
}

func TestSettleContentRejectionRefunds(t *testing.T) {
	f := setupEngine(t, 100, generation.JobState{
		Status:   generation.ProviderStatusFailed,
		ErrorMsg: "flagged by safety checker",
	})

	result, err := f.engine.Settle(context.Background(), baseRequest())
	require.True(t, errors.Is(err, ErrContentRejected))
	require.Equal(t, models.GenerationStatusFailed, result.Job.Status)
	require.Equal(t, models.FailureClassSkip, result.Job.FailureClass)
	require.True(t, result.Job.Refunded)

	require.EqualValues(t, 100, f.balance(t), "debit must be returned after content rejection")

	var refunds int64
	require.NoError(t, f.db.Model(&models.CreditTransaction{}).
		Where("event_type = ?", models.EventTypeGenerationRefund).Count(&refunds).Error)
	require.EqualValues(t, 1, refunds)
}

func TestSettleTimeoutRefundsAndSurfacesProviderFailure(t *testing.T) {
	f := setupEngine(t, 100, generation.JobState{Status: generation.ProviderStatusProcessing})

	result, err := f.engine.Settle(context.Background(), baseRequest())
	require.True(t, errors.Is(err, ErrProviderFailure))
	require.Equal(t, models.GenerationStatusTimedOut, result.Job.Status)
	require.EqualValues(t, 100, f.balance(t))
	require.Empty(t, f.queue.jobs)
}

func TestSettleReplaysSettledRequest(t *testing.T) {
	f := setupEngine(t, 100, generation.JobState{
		Status:    generation.ProviderStatusSucceeded,
		OutputURL: "https://cdn.example.com/out.png",
	})

	first, err := f.engine.Settle(context.Background(), baseRequest())
	require.NoError(t, err)

	second, err := f.engine.Settle(context.Background(), baseRequest())
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.Job.ID, second.Job.ID)

	require.EqualValues(t, 80, f.balance(t), "replay must not debit again")
	require.Equal(t, 1, f.provider.submits, "replay must not resubmit the job")
}

func TestSettleScopesRequestIDsPerAccount(t *testing.T) {
	f := setupEngine(t, 100, generation.JobState{
		Status:    generation.ProviderStatusSucceeded,
		OutputURL: "https://cdn.example.com/out.png",
	})
	require.NoError(t, f.db.Create(&models.Account{ID: "acct-2", CreditBalance: 50, Status: models.AccountStatusActive}).Error)

	first, err := f.engine.Settle(context.Background(), baseRequest())
	require.NoError(t, err)

	// A second account reusing the same request id must get its own
	// settlement, never the first account's job or output.
	req := baseRequest()
	req.AccountID = "acct-2"
	second, err := f.engine.Settle(context.Background(), req)
	require.NoError(t, err)
	require.False(t, second.Replayed)
	require.NotEqual(t, first.Job.ID, second.Job.ID)
	require.Equal(t, "acct-2", second.Job.AccountID)

	require.EqualValues(t, 80, f.balance(t))
	require.EqualValues(t, 30, f.balanceOf(t, "acct-2"), "the second account pays for its own job")
	require.Equal(t, 2, f.provider.submits)
}

func TestSettleDebitRollsBackWhenAuditRowInsertFails(t *testing.T) {
	f := setupEngine(t, 100, generation.JobState{
		Status:    generation.ProviderStatusSucceeded,
		OutputURL: "https://cdn.example.com/out.png",
	})

	// Occupy the audit row's primary key so the insert inside the
	// settlement transaction fails.
	require.NoError(t, f.db.Create(&models.GenerationJob{
		ID:        "gen:acct-1:req-1",
		AccountID: "acct-1",
		ProductID: "dires_gen_image",
		Status:    models.GenerationStatusSubmitted,
	}).Error)

	_, err := f.engine.Settle(context.Background(), baseRequest())
	require.Error(t, err)

	// The whole transaction rolled back: no debit, and the transaction id
	// was not burned.
	require.EqualValues(t, 100, f.balance(t))
	var records int64
	require.NoError(t, f.db.Model(&models.CreditTransaction{}).Where("account_id = ?", "acct-1").Count(&records).Error)
	require.EqualValues(t, 0, records)
}

func TestSettleReplaysTerminalFailure(t *testing.T) {
	f := setupEngine(t, 100, generation.JobState{
		Status:   generation.ProviderStatusFailed,
		ErrorMsg: "invalid model parameters",
	})

	_, err := f.engine.Settle(context.Background(), baseRequest())
	require.True(t, errors.Is(err, ErrProviderFailure))

	result, err := f.engine.Settle(context.Background(), baseRequest())
	require.True(t, errors.Is(err, ErrProviderFailure))
	require.True(t, result.Replayed)

	require.EqualValues(t, 100, f.balance(t))
}

func TestSettleInsufficientCredit(t *testing.T) {
	f := setupEngine(t, 10, generation.JobState{
		Status:    generation.ProviderStatusSucceeded,
		OutputURL: "https://cdn.example.com/out.png",
	})

	_, err := f.engine.Settle(context.Background(), baseRequest())
	require.True(t, errors.Is(err, ledger.ErrInsufficientCredit))
	require.EqualValues(t, 10, f.balance(t))
	require.Equal(t, 0, f.provider.submits, "no job may be submitted without a debit")
}

func TestSettleRejectsInFlightDuplicate(t *testing.T) {
	f := setupEngine(t, 100, generation.JobState{
		Status:    generation.ProviderStatusSucceeded,
		OutputURL: "https://cdn.example.com/out.png",
	})

	// Hold the guard marker the way a concurrent request would.
	require.NoError(t, f.guard.Acquire(context.Background(), "acct-1", "dires_gen_image"))

	_, err := f.engine.Settle(context.Background(), baseRequest())
	require.True(t, errors.Is(err, inflight.ErrDuplicateRequest))
	require.EqualValues(t, 100, f.balance(t), "guarded requests must not debit")
}

func TestSettleNonRefundableKeepsDebit(t *testing.T) {
	f := setupEngine(t, 100, generation.JobState{
		Status:   generation.ProviderStatusFailed,
		ErrorMsg: "invalid model parameters",
	})

	req := baseRequest()
	req.NonRefundable = true
	result, err := f.engine.Settle(context.Background(), req)
	require.True(t, errors.Is(err, ErrProviderFailure))
	require.False(t, result.Job.Refunded)
	require.EqualValues(t, 80, f.balance(t))
}
