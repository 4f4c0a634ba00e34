package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sonerady/dires-server-sub002/app/repository"
	"github.com/sonerady/dires-server-sub002/internal/pkg/accountcontext"
	"github.com/sonerady/dires-server-sub002/internal/pkg/billing"
)

// HandleGetCredits returns the balance and entitlement snapshot for the
// authenticated account.
func HandleGetCredits(c *fiber.Ctx) error {
	accountCtx := accountcontext.GetAccountContext(c)
	if !accountCtx.IsAuthenticated {
		return errorJSON(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	account, err := repository.GetGlobalFactory().GetAccountRepository().GetByID(accountCtx.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "not_found", "Account not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load account")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"account_id":               account.ID,
		"credit_balance":           account.CreditBalance,
		"is_entitled":              account.IsEntitled,
		"plan_tier":                account.PlanTier,
		"team_max_members":         account.TeamMaxMembers,
		"team_subscription_active": account.TeamSubscriptionActive,
	})
}

// HandleListTransactions returns the settlement log for the account, newest
// first.
func HandleListTransactions(c *fiber.Ctx) error {
	accountCtx := accountcontext.GetAccountContext(c)
	if !accountCtx.IsAuthenticated {
		return errorJSON(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	records, err := repository.GetGlobalFactory().GetTransactionRepository().ListByAccount(accountCtx.AccountID, offset, limit)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load transactions")
	}

	items := make([]fiber.Map, 0, len(records))
	for _, rec := range records {
		items = append(items, fiber.Map{
			"transaction_id":    rec.TransactionID,
			"product_or_job_id": rec.ProductOrJobID,
			"credits_delta":     rec.CreditsDelta,
			"event_type":        rec.EventType,
			"occurred_at":       rec.OccurredAt.UTC().Format(time.RFC3339),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"transactions": items,
		"offset":       offset,
		"limit":        limit,
	})
}

type purchaseRequest struct {
	ProductID string `json:"product_id"`
	// TransactionID lets a client retry a purchase without double-granting.
	// Omitted ids get a fresh uuid, which disables the retry protection.
	TransactionID string `json:"transaction_id"`
}

// HandleCreatePurchase applies a direct credit purchase. It runs through the
// same reconciliation path as the billing webhook, so the idempotency
// contract is identical.
func HandleCreatePurchase(c *fiber.Ctx) error {
	accountCtx := accountcontext.GetAccountContext(c)
	if !accountCtx.IsAuthenticated {
		return errorJSON(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}
	if billingService == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "service_unavailable", "Billing service not ready")
	}

	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if req.ProductID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "product_id is required")
	}
	if req.TransactionID == "" {
		req.TransactionID = uuid.New().String()
	}

	outcome, err := billingService.ProcessEvent(c.UserContext(), billing.WebhookEvent{
		Type:             billing.EventTypeInitialPurchase,
		AppUserID:        accountCtx.AccountID,
		ProductID:        req.ProductID,
		TransactionID:    req.TransactionID,
		EventTimestampMs: time.Now().UnixMilli(),
	})
	if err != nil {
		if errors.Is(err, billing.ErrUnknownProduct) {
			return errorJSON(c, fiber.StatusBadRequest, "unknown_product", "Unknown product id")
		}
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Purchase failed")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":         string(outcome),
		"transaction_id": req.TransactionID,
	})
}
