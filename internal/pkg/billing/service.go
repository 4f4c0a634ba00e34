package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/sonerady/dires-server-sub002/app/models"
	"github.com/sonerady/dires-server-sub002/app/repository"
	"github.com/sonerady/dires-server-sub002/internal/pkg/entitlements"
	"github.com/sonerady/dires-server-sub002/internal/pkg/ledger"
	"gorm.io/gorm"
)

// ErrUnknownAccount marks a webhook whose app_user_id has no local account.
// Unknown accounts are rejected, never auto-provisioned.
var ErrUnknownAccount = errors.New("unknown account id")

// DedupWindow is the secondary suppression window for events without a
// transaction id.
const DedupWindow = 5 * time.Minute

// Service reconciles billing platform webhooks against the ledger and
// account entitlements.
type Service struct {
	ledger       *ledger.Service
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	teams        repository.TeamRepository
}

// NewService creates a billing service from injected dependencies.
func NewService(ledgerSvc *ledger.Service, accounts repository.AccountRepository, transactions repository.TransactionRepository, teams repository.TeamRepository) *Service {
	return &Service{
		ledger:       ledgerSvc,
		accounts:     accounts,
		transactions: transactions,
		teams:        teams,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(
		ledger.NewServiceFromDB(db),
		repository.NewAccountRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewTeamRepository(db),
	)
}

// ProcessEvent applies one webhook event. Duplicates and ignorable events
// return a nil error so the handler acknowledges them; the billing platform
// only retries on non-2xx responses.
func (s *Service) ProcessEvent(ctx context.Context, ev WebhookEvent) (Outcome, error) {
	ev.Type = strings.ToUpper(strings.TrimSpace(ev.Type))
	if !ev.IsGranting() && !ev.IsRevoking() && ev.Type != EventTypeTest {
		log.Warnf("[Billing] ignoring webhook with unknown event type %q", ev.Type)
		return OutcomeIgnored, nil
	}

	account, err := s.resolveAccount(ev)
	if err != nil {
		if errors.Is(err, ErrUnknownAccount) && ev.Type == EventTypeTest && ev.IsSandbox() {
			log.Infof("[Billing] acknowledging sandbox TEST event for unknown account %s", ev.AppUserID)
			return OutcomeIgnored, nil
		}
		return "", err
	}

	if ev.Type == EventTypeTest {
		return s.recordZeroEvent(ctx, account, ev, models.EventTypeTest)
	}

	product, err := LookupProduct(ev.ProductID)
	if err != nil {
		log.Warnf("[Billing] rejecting event %s for account %s: unknown product %q", ev.Type, account.ID, ev.ProductID)
		return "", fmt.Errorf("%w: %q", ErrUnknownProduct, ev.ProductID)
	}

	if ev.IsRevoking() {
		return s.processRevocation(ctx, account, ev, product)
	}
	return s.processGrant(ctx, account, ev, product)
}

// resolveAccount loads the target account, redirecting non-owner team
// members to the team owner. Subscription state is owned by the payer.
func (s *Service) resolveAccount(ev WebhookEvent) (*models.Account, error) {
	id := strings.TrimSpace(ev.AppUserID)
	if id == "" {
		return nil, ErrUnknownAccount
	}

	account, err := s.accounts.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAccount, id)
		}
		return nil, err
	}

	member, team, err := s.teams.GetMembershipByAccountID(account.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return account, nil
		}
		return nil, err
	}
	if member.IsOwner() || team.OwnerID == account.ID {
		return account, nil
	}

	log.Infof("[Billing] redirecting event for team member %s to owner %s", account.ID, team.OwnerID)
	owner, err := s.accounts.GetByID(team.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("resolve team owner %s: %w", team.OwnerID, err)
	}
	return owner, nil
}

// processGrant credits the account exactly once and raises its entitlement.
func (s *Service) processGrant(ctx context.Context, account *models.Account, ev WebhookEvent, product Product) (Outcome, error) {
	eventType := models.EventTypePurchase
	if ev.Type == EventTypeRenewal {
		eventType = models.EventTypeRenewal
	}
	if dup, err := s.isDuplicate(account.ID, ev, product.ID, eventType); err != nil {
		return "", err
	} else if dup {
		log.Infof("[Billing] suppressing duplicate %s for account %s (product %s)", ev.Type, account.ID, product.ID)
		return OutcomeDuplicate, nil
	}

	rec := &models.CreditTransaction{
		TransactionID:  s.transactionID(ev),
		AccountID:      account.ID,
		ProductOrJobID: product.ID,
		CreditsDelta:   product.Credits,
		EventType:      eventType,
		OccurredAt:     eventTime(ev),
	}

	applied, err := s.ledger.CreditWithRecord(ctx, account.ID, product.Credits, rec)
	if err != nil {
		return "", err
	}
	if !applied {
		return OutcomeDuplicate, nil
	}

	if err := s.applyEntitlement(account, product); err != nil {
		return "", err
	}

	log.Infof("[Billing] granted %d credits to account %s (%s, product %s)", product.Credits, account.ID, ev.Type, product.ID)
	return OutcomeApplied, nil
}

// processRevocation downgrades the entitlement, or records a soft cancel
// when the paid period still runs.
func (s *Service) processRevocation(ctx context.Context, account *models.Account, ev WebhookEvent, product Product) (Outcome, error) {
	// A cancellation with a future expiration keeps the entitlement until
	// the period ends; the eventual EXPIRATION event performs the downgrade.
	if ev.ExpirationAtMs != nil && time.UnixMilli(*ev.ExpirationAtMs).After(time.Now()) {
		if dup, err := s.isDuplicate(account.ID, ev, product.ID, models.EventTypeSoftCancel); err != nil {
			return "", err
		} else if dup {
			return OutcomeDuplicate, nil
		}
		log.Infof("[Billing] soft cancel for account %s, entitled until %s", account.ID, time.UnixMilli(*ev.ExpirationAtMs).Format(time.RFC3339))
		outcome, err := s.recordZeroEvent(ctx, account, ev, models.EventTypeSoftCancel)
		if err != nil {
			return "", err
		}
		if outcome == OutcomeApplied {
			outcome = OutcomeSoftCancel
		}
		return outcome, nil
	}

	eventType := models.EventTypeCancellation
	if ev.Type == EventTypeExpiration {
		eventType = models.EventTypeExpiration
	}
	if dup, err := s.isDuplicate(account.ID, ev, product.ID, eventType); err != nil {
		return "", err
	} else if dup {
		return OutcomeDuplicate, nil
	}
	outcome, err := s.recordZeroEvent(ctx, account, ev, eventType)
	if err != nil {
		return "", err
	}
	if outcome == OutcomeDuplicate {
		return outcome, nil
	}

	if err := s.accounts.UpdateEntitlement(account.ID, false, string(entitlements.TierNone), 0, false); err != nil {
		return "", err
	}
	if err := s.syncTeamCapacity(account.ID, 0, false); err != nil {
		return "", err
	}

	log.Infof("[Billing] downgraded account %s (%s, product %s)", account.ID, ev.Type, product.ID)
	return OutcomeApplied, nil
}

// applyEntitlement raises the account's entitlement after a grant. Credit
// packs entitle without changing the plan tier; subscriptions set the tier
// and the team capacity that comes with it.
func (s *Service) applyEntitlement(account *models.Account, product Product) error {
	if !product.IsSubscription() {
		tier := entitlements.Normalize(account.PlanTier)
		return s.accounts.UpdateEntitlement(account.ID, true, string(tier), account.TeamMaxMembers, account.TeamSubscriptionActive)
	}

	tier := product.Tier
	maxMembers := entitlements.TeamMaxMembers(tier)
	teamActive := entitlements.TeamEnabled(tier)
	if err := s.accounts.UpdateEntitlement(account.ID, entitlements.Entitled(tier), string(tier), maxMembers, teamActive); err != nil {
		return err
	}
	return s.syncTeamCapacity(account.ID, maxMembers, teamActive)
}

// syncTeamCapacity mirrors the owner's entitlement onto an existing team
// row. Accounts without a team are left alone.
func (s *Service) syncTeamCapacity(ownerID string, maxMembers int, active bool) error {
	team, err := s.teams.GetByOwnerID(ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.teams.UpdateCapacity(team.ID, maxMembers, active)
}

// recordZeroEvent appends a zero-delta audit record with the usual
// idempotency guarantees.
func (s *Service) recordZeroEvent(ctx context.Context, account *models.Account, ev WebhookEvent, eventType string) (Outcome, error) {
	rec := &models.CreditTransaction{
		TransactionID:  s.transactionID(ev),
		AccountID:      account.ID,
		ProductOrJobID: strings.TrimSpace(ev.ProductID),
		CreditsDelta:   0,
		EventType:      eventType,
		OccurredAt:     eventTime(ev),
	}
	created, err := s.ledger.RecordTransaction(ctx, rec)
	if err != nil {
		return "", err
	}
	if !created {
		return OutcomeDuplicate, nil
	}
	if eventType == models.EventTypeTest {
		return OutcomeIgnored, nil
	}
	return OutcomeApplied, nil
}

// isDuplicate applies the secondary dedup heuristic for events without a
// transaction id. Events with a transaction id rely on the unique index.
func (s *Service) isDuplicate(accountID string, ev WebhookEvent, productID, storedEventType string) (bool, error) {
	if strings.TrimSpace(ev.TransactionID) != "" {
		return false, nil
	}
	return s.transactions.ExistsRecent(accountID, productID, storedEventType, DedupWindow)
}

// transactionID returns the platform transaction id, or a synthetic one for
// events that arrive without it.
func (s *Service) transactionID(ev WebhookEvent) string {
	if id := strings.TrimSpace(ev.TransactionID); id != "" {
		return id
	}
	return "evt:" + uuid.New().String()
}

func eventTime(ev WebhookEvent) time.Time {
	if ev.EventTimestampMs > 0 {
		return time.UnixMilli(ev.EventTimestampMs)
	}
	return time.Now()
}
