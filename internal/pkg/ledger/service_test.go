package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sonerady/dires-server-sub002/app/models"
	"github.com/sonerady/dires-server-sub002/app/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Account{}, &models.CreditTransaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, balance int64) (*Service, *gorm.DB) {
	t.Helper()
	db := setupLedgerTestDB(t)
	if err := db.Create(&models.Account{ID: "acct-1", CreditBalance: balance, Status: models.AccountStatusActive}).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return NewServiceFromDB(db), db
}

func TestDebitForJobHappyPath(t *testing.T) {
	svc, _ := newTestService(t, 100)
	ctx := context.Background()

	if err := svc.DebitForJob(ctx, "acct-1", 20, "gen:req-1", "dires_gen_image"); err != nil {
		t.Fatalf("debit failed: %v", err)
	}

	balance, err := svc.GetBalance(ctx, "acct-1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 80 {
		t.Fatalf("expected balance 80, got %d", balance)
	}
}

func TestDebitForJobIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, 100)
	ctx := context.Background()

	if err := svc.DebitForJob(ctx, "acct-1", 20, "gen:req-1", "dires_gen_image"); err != nil {
		t.Fatalf("first debit failed: %v", err)
	}
	err := svc.DebitForJob(ctx, "acct-1", 20, "gen:req-1", "dires_gen_image")
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}

	balance, _ := svc.GetBalance(ctx, "acct-1")
	if balance != 80 {
		t.Fatalf("duplicate debit must not move the balance, got %d", balance)
	}
}

func TestDebitForJobWithAuditRollsBackOnAuditFailure(t *testing.T) {
	svc, _ := newTestService(t, 100)
	ctx := context.Background()
	auditErr := errors.New("audit write failed")

	err := svc.DebitForJobWithAudit(ctx, "acct-1", 20, "gen:req-1", "dires_gen_image", func(tx *gorm.DB) error {
		return auditErr
	})
	if !errors.Is(err, auditErr) {
		t.Fatalf("expected the audit error, got %v", err)
	}

	balance, _ := svc.GetBalance(ctx, "acct-1")
	if balance != 100 {
		t.Fatalf("failed audit must roll the debit back, got balance %d", balance)
	}

	// The transaction id is not burned: a clean retry succeeds.
	if err := svc.DebitForJob(ctx, "acct-1", 20, "gen:req-1", "dires_gen_image"); err != nil {
		t.Fatalf("retry after rollback failed: %v", err)
	}
	balance, _ = svc.GetBalance(ctx, "acct-1")
	if balance != 80 {
		t.Fatalf("expected balance 80 after retry, got %d", balance)
	}
}

func TestDebitForJobInsufficientCredit(t *testing.T) {
	svc, db := newTestService(t, 10)
	ctx := context.Background()

	err := svc.DebitForJob(ctx, "acct-1", 20, "gen:req-1", "dires_gen_image")
	if !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}

	balance, _ := svc.GetBalance(ctx, "acct-1")
	if balance != 10 {
		t.Fatalf("failed debit must not move the balance, got %d", balance)
	}

	// The rolled-back record must not block a later retry with more funds.
	var count int64
	db.Model(&models.CreditTransaction{}).Where("transaction_id = ?", "gen:req-1").Count(&count)
	if count != 0 {
		t.Fatalf("expected rejected debit to leave no record, found %d", count)
	}
}

func TestDebitForJobUnknownAccount(t *testing.T) {
	svc, _ := newTestService(t, 100)

	err := svc.DebitForJob(context.Background(), "ghost", 20, "gen:req-1", "dires_gen_image")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestCreditWithRecordAppliesOnce(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	rec := func() *models.CreditTransaction {
		return &models.CreditTransaction{
			TransactionID:  "txn-1",
			ProductOrJobID: "dires_credits_500",
			EventType:      models.EventTypePurchase,
			OccurredAt:     time.Now(),
		}
	}

	applied, err := svc.CreditWithRecord(ctx, "acct-1", 500, rec())
	if err != nil || !applied {
		t.Fatalf("first credit: applied=%v err=%v", applied, err)
	}
	applied, err = svc.CreditWithRecord(ctx, "acct-1", 500, rec())
	if err != nil {
		t.Fatalf("second credit errored: %v", err)
	}
	if applied {
		t.Fatalf("duplicate credit must not apply")
	}

	balance, _ := svc.GetBalance(ctx, "acct-1")
	if balance != 500 {
		t.Fatalf("expected balance 500, got %d", balance)
	}
}

func TestRefundJobExactlyOnce(t *testing.T) {
	svc, _ := newTestService(t, 100)
	ctx := context.Background()

	if err := svc.DebitForJob(ctx, "acct-1", 30, "gen:req-1", "dires_gen_video"); err != nil {
		t.Fatalf("debit failed: %v", err)
	}

	applied, err := svc.RefundJob(ctx, "acct-1", 30, "gen:req-1", "dires_gen_video")
	if err != nil || !applied {
		t.Fatalf("first refund: applied=%v err=%v", applied, err)
	}
	applied, err = svc.RefundJob(ctx, "acct-1", 30, "gen:req-1", "dires_gen_video")
	if err != nil {
		t.Fatalf("second refund errored: %v", err)
	}
	if applied {
		t.Fatalf("refund must apply at most once")
	}

	balance, _ := svc.GetBalance(ctx, "acct-1")
	if balance != 100 {
		t.Fatalf("expected balance restored to 100, got %d", balance)
	}
}

func TestAuditBalanceDetectsNoDriftAfterSettlements(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	if _, err := svc.CreditWithRecord(ctx, "acct-1", 200, &models.CreditTransaction{
		TransactionID: "txn-grant",
		EventType:     models.EventTypePurchase,
		OccurredAt:    time.Now(),
	}); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if err := svc.DebitForJob(ctx, "acct-1", 50, "gen:req-1", "dires_gen_video"); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if _, err := svc.RefundJob(ctx, "acct-1", 50, "gen:req-1", "dires_gen_video"); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	drift, err := svc.AuditBalance(ctx, "acct-1")
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if drift != 0 {
		t.Fatalf("expected zero drift, got %d", drift)
	}
}

func TestRecordTransactionZeroEffect(t *testing.T) {
	svc, _ := newTestService(t, 40)
	ctx := context.Background()

	created, err := svc.RecordTransaction(ctx, &models.CreditTransaction{
		TransactionID: "txn-soft",
		AccountID:     "acct-1",
		EventType:     models.EventTypeSoftCancel,
		OccurredAt:    time.Now(),
	})
	if err != nil || !created {
		t.Fatalf("record: created=%v err=%v", created, err)
	}

	balance, _ := svc.GetBalance(ctx, "acct-1")
	if balance != 40 {
		t.Fatalf("zero-effect record must not move the balance, got %d", balance)
	}
}

func TestRepositoryTryDebitRequiresFunds(t *testing.T) {
	_, db := newTestService(t, 5)
	accounts := repository.NewAccountRepository(db)

	if err := accounts.TryDebit("acct-1", 10); !errors.Is(err, repository.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := accounts.TryDebit("acct-1", 5); err != nil {
		t.Fatalf("exact-balance debit failed: %v", err)
	}
}
