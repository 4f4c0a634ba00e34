package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sonerady/dires-server-sub002/app/repository"
	"github.com/sonerady/dires-server-sub002/internal/pkg/accountcontext"
	"github.com/sonerady/dires-server-sub002/internal/pkg/generation"
	"github.com/sonerady/dires-server-sub002/internal/pkg/inflight"
	"github.com/sonerady/dires-server-sub002/internal/pkg/ledger"
	"github.com/sonerady/dires-server-sub002/internal/pkg/settlement"
)

var generationEngine *settlement.Engine

// SetGenerationEngine wires the settlement engine used by the generation
// endpoints. Called once during startup.
func SetGenerationEngine(e *settlement.Engine) {
	generationEngine = e
}

type createGenerationRequest struct {
	ProductID string                 `json:"product_id"`
	RequestID string                 `json:"request_id"`
	Model     string                 `json:"model"`
	Input     map[string]interface{} `json:"input"`
}

// HandleCreateGeneration runs one credit-gated generation to settlement.
func HandleCreateGeneration(c *fiber.Ctx) error {
	accountCtx := accountcontext.GetAccountContext(c)
	if !accountCtx.IsAuthenticated {
		return errorJSON(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}
	if generationEngine == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "service_unavailable", "Generation service not ready")
	}

	var req createGenerationRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if req.ProductID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "product_id is required")
	}

	result, err := generationEngine.Settle(c.UserContext(), settlement.Request{
		AccountID: accountCtx.AccountID,
		ProductID: req.ProductID,
		RequestID: req.RequestID,
		Cost:      generation.CostFor(req.ProductID),
		Spec: generation.JobSpec{
			Model: req.Model,
			Input: req.Input,
		},
	})

	switch {
	case err == nil:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
			"result": fiber.Map{
				"job_id":     result.Job.ID,
				"output_url": result.Job.OutputURL,
				"replayed":   result.Replayed,
			},
		})
	case errors.Is(err, inflight.ErrDuplicateRequest):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"status":  "retry_after",
			"message": "An identical request is already in flight",
		})
	case errors.Is(err, ledger.ErrInsufficientCredit):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"status":  "insufficient_credit",
			"message": "Not enough credits for this generation",
		})
	case errors.Is(err, settlement.ErrContentRejected):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"status":  "content_rejected",
			"message": "The generation was rejected by the provider's content policy",
			"job_id":  resultJobID(result),
		})
	case errors.Is(err, settlement.ErrSettlementPending):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"status":  "pending",
			"message": "A request with this id is still being settled",
		})
	case errors.Is(err, settlement.ErrProviderFailure):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"status":  "provider_failure",
			"message": "The generation provider failed; credits were refunded",
			"job_id":  resultJobID(result),
		})
	default:
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Generation failed")
	}
}

// HandleGetGeneration returns the audit row for one generation job.
func HandleGetGeneration(c *fiber.Ctx) error {
	accountCtx := accountcontext.GetAccountContext(c)
	if !accountCtx.IsAuthenticated {
		return errorJSON(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	jobID := c.Params("id")
	job, err := repository.GetGlobalFactory().GetGenerationJobRepository().GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "not_found", "Generation job not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load generation job")
	}
	if job.AccountID != accountCtx.AccountID {
		return errorJSON(c, fiber.StatusNotFound, "not_found", "Generation job not found")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":            job.ID,
		"product_id":    job.ProductID,
		"status":        job.Status,
		"failure_class": job.FailureClass,
		"poll_attempts": job.PollAttempts,
		"cost_credits":  job.CostCredits,
		"refunded":      job.Refunded,
		"output_url":    job.OutputURL,
		"archived_url":  job.ArchivedURL,
		"error":         job.ErrorMsg,
		"completed_at":  formatTimePtr(job.CompletedAt),
	})
}

func resultJobID(result *settlement.Result) string {
	if result == nil || result.Job == nil {
		return ""
	}
	return result.Job.ID
}
