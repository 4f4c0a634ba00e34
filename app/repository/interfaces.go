package repository

import (
	"time"

	"github.com/sonerady/dires-server-sub002/app/models"
	"gorm.io/gorm"
)

// AccountRepository defines the interface for account/ledger database operations.
// TryDebit and Credit are the only balance mutators; both are single atomic
// conditional statements, never a read-modify-write round trip.
type AccountRepository interface {
	Create(account *models.Account) error
	GetByID(id string) (*models.Account, error)
	GetByAPIKeyHash(hash string) (*models.Account, error)
	GetBalance(id string) (int64, error)
	TryDebit(id string, amount int64) error
	TryDebitTx(tx *gorm.DB, id string, amount int64) error
	Credit(id string, amount int64) error
	CreditTx(tx *gorm.DB, id string, amount int64) error
	UpdateEntitlement(id string, isEntitled bool, planTier string, teamMaxMembers int, teamActive bool) error
	Save(account *models.Account) error
	TouchLastSeen(id string) error
	Count() (int64, error)
}

// TransactionRepository defines the interface for the append-only settlement log.
type TransactionRepository interface {
	// CreateIfNotExists inserts the record unless its transaction id already
	// exists. Returns created=false for duplicates; duplicates are not errors.
	CreateIfNotExists(rec *models.CreditTransaction) (bool, error)
	CreateIfNotExistsTx(tx *gorm.DB, rec *models.CreditTransaction) (bool, error)
	GetByTransactionID(transactionID string) (*models.CreditTransaction, error)
	// ExistsRecent reports whether an identical (account, product, event type)
	// record was written within the window. Secondary dedup heuristic for
	// events that carry no transaction id.
	ExistsRecent(accountID, productOrJobID, eventType string, window time.Duration) (bool, error)
	ListByAccount(accountID string, offset, limit int) ([]models.CreditTransaction, error)
	SumDeltasByAccount(accountID string) (int64, error)
}

// TeamRepository defines the interface for team ownership lookups.
type TeamRepository interface {
	Create(team *models.Team) error
	GetByID(id uint) (*models.Team, error)
	GetByOwnerID(ownerID string) (*models.Team, error)
	GetMembershipByAccountID(accountID string) (*models.TeamMember, *models.Team, error)
	AddMember(member *models.TeamMember) error
	RemoveMember(teamID uint, accountID string) error
	UpdateCapacity(teamID uint, maxMembers int, isActive bool) error
	CountMembers(teamID uint) (int64, error)
}

// GenerationJobRepository defines the interface for generation audit rows.
type GenerationJobRepository interface {
	Create(job *models.GenerationJob) error
	CreateTx(tx *gorm.DB, job *models.GenerationJob) error
	Update(job *models.GenerationJob) error
	GetByID(id string) (*models.GenerationJob, error)
	ListByAccount(accountID string, offset, limit int) ([]models.GenerationJob, error)
	CountByStatus(status string) (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Account       AccountRepository
	Transaction   TransactionRepository
	Team          TeamRepository
	GenerationJob GenerationJobRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account:       NewAccountRepository(db),
		Transaction:   NewTransactionRepository(db),
		Team:          NewTeamRepository(db),
		GenerationJob: NewGenerationJobRepository(db),
	}
}
