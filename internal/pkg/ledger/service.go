package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sonerady/dires-server-sub002/app/models"
	"github.com/sonerady/dires-server-sub002/app/repository"
	"gorm.io/gorm"
)

var (
	// ErrInsufficientCredit is returned when the balance cannot cover a debit.
	// No job is submitted and no ledger row is written.
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrDuplicateTransaction signals that the transaction id has already been
	// settled. Callers must treat this as success-no-op, not as a failure.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrAccountNotFound is returned for ledger writes against unknown
	// accounts. The ledger never auto-provisions rows.
	ErrAccountNotFound = repository.ErrAccountNotFound

	// ErrLedgerRace marks a state that the atomic primitives make unreachable.
	// Seeing it in logs means a latent bug, not an operational condition.
	ErrLedgerRace = errors.New("ledger race detected")
)

// Service is the authoritative credit ledger. Every balance mutation is
// paired with exactly one CreditTransaction row inside one DB transaction,
// keyed by the caller's transaction id.
type Service struct {
	db           *gorm.DB
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
}

// NewService creates a ledger service from injected repositories.
func NewService(db *gorm.DB, accounts repository.AccountRepository, transactions repository.TransactionRepository) *Service {
	return &Service{db: db, accounts: accounts, transactions: transactions}
}

// NewServiceFromDB creates a ledger service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	repos := repository.NewRepositories(db)
	return NewService(db, repos.Account, repos.Transaction)
}

// GetBalance reads the current balance. No side effects.
func (s *Service) GetBalance(ctx context.Context, accountID string) (int64, error) {
	_ = ctx
	return s.accounts.GetBalance(accountID)
}

// DebitForJob reserves credits for a generation job. The transaction record
// insert and the conditional debit share one DB transaction: winning the
// record insert is what authorizes the debit, so a retried request with the
// same transaction id gets ErrDuplicateTransaction and no second debit.
func (s *Service) DebitForJob(ctx context.Context, accountID string, amount int64, transactionID, productOrJobID string) error {
	return s.DebitForJobWithAudit(ctx, accountID, amount, transactionID, productOrJobID, nil)
}

// DebitForJobWithAudit is DebitForJob plus a caller-supplied write that
// commits in the same DB transaction. When the audit write fails the record
// and the debit roll back with it, so the transaction id stays usable for a
// later attempt.
func (s *Service) DebitForJobWithAudit(ctx context.Context, accountID string, amount int64, transactionID, productOrJobID string, audit func(tx *gorm.DB) error) error {
	_ = ctx
	if transactionID == "" {
		return errors.New("transaction id is required")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		created, err := s.transactions.CreateIfNotExistsTx(tx, &models.CreditTransaction{
			TransactionID:  transactionID,
			AccountID:      accountID,
			ProductOrJobID: productOrJobID,
			CreditsDelta:   -amount,
			EventType:      models.EventTypeGenerationDebit,
			OccurredAt:     time.Now(),
		})
		if err != nil {
			return err
		}
		if !created {
			return ErrDuplicateTransaction
		}

		if err := s.accounts.TryDebitTx(tx, accountID, amount); err != nil {
			if errors.Is(err, repository.ErrInsufficientFunds) {
				return ErrInsufficientCredit
			}
			return err
		}
		if audit != nil {
			return audit(tx)
		}
		return nil
	})
}

// CreditWithRecord grants credits exactly once per transaction id. When the
// record already exists the grant is skipped and applied=false is returned;
// the caller acknowledges the event as settled either way.
func (s *Service) CreditWithRecord(ctx context.Context, accountID string, amount int64, rec *models.CreditTransaction) (bool, error) {
	_ = ctx
	if rec == nil || rec.TransactionID == "" {
		return false, errors.New("transaction record with id is required")
	}
	rec.AccountID = accountID
	rec.CreditsDelta = amount

	applied := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		created, err := s.transactions.CreateIfNotExistsTx(tx, rec)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		if amount != 0 {
			if err := s.accounts.CreditTx(tx, accountID, amount); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	return applied, err
}

// RefundJob returns a job's debit to the account. The refund record's id is
// derived from the debit's transaction id, so the refund applies at most
// once no matter how often the failure path re-runs.
func (s *Service) RefundJob(ctx context.Context, accountID string, amount int64, debitTransactionID, productOrJobID string) (bool, error) {
	applied, err := s.CreditWithRecord(ctx, accountID, amount, &models.CreditTransaction{
		TransactionID:  debitTransactionID + ":refund",
		ProductOrJobID: productOrJobID,
		EventType:      models.EventTypeGenerationRefund,
		OccurredAt:     time.Now(),
	})
	if err != nil {
		return false, err
	}
	if !applied {
		log.Infof("[Ledger] refund for %s already applied, skipping", debitTransactionID)
	}
	return applied, nil
}

// RecordTransaction appends a zero-effect record (soft cancels, test events).
func (s *Service) RecordTransaction(ctx context.Context, rec *models.CreditTransaction) (bool, error) {
	_ = ctx
	if rec == nil || rec.TransactionID == "" {
		return false, errors.New("transaction record with id is required")
	}
	return s.transactions.CreateIfNotExists(rec)
}

// AuditBalance compares the stored balance against the sum of the account's
// transaction deltas. A mismatch indicates drift and is logged as ErrLedgerRace.
func (s *Service) AuditBalance(ctx context.Context, accountID string) (int64, error) {
	balance, err := s.GetBalance(ctx, accountID)
	if err != nil {
		return 0, err
	}
	sum, err := s.transactions.SumDeltasByAccount(accountID)
	if err != nil {
		return 0, err
	}
	drift := balance - sum
	if drift != 0 {
		log.Errorf("[Ledger] balance drift for account %s: balance=%d deltas=%d: %v", accountID, balance, sum, ErrLedgerRace)
	}
	return drift, nil
}
