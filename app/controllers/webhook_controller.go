package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/sonerady/dires-server-sub002/internal/pkg/billing"
	"github.com/sonerady/dires-server-sub002/internal/pkg/env"
)

var billingService *billing.Service

// SetBillingService wires the billing service used by the webhook and
// purchase endpoints. Called once during startup.
func SetBillingService(s *billing.Service) {
	billingService = s
}

// HandleBillingWebhook receives billing platform events. Duplicates and
// ignorable events are acknowledged with 2xx so the platform does not
// redeliver them.
func HandleBillingWebhook(c *fiber.Ctx) error {
	secret := env.GetEnv("BILLING_WEBHOOK_SECRET", "")
	if secret == "" {
		log.Error("[Webhook] BILLING_WEBHOOK_SECRET is not configured")
		return errorJSON(c, fiber.StatusServiceUnavailable, "service_unavailable", "Webhook not configured")
	}
	if !billing.VerifyWebhookAuth(c.Get("Authorization"), secret) {
		return errorJSON(c, fiber.StatusUnauthorized, "unauthorized", "Invalid webhook authorization")
	}
	if billingService == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "service_unavailable", "Billing service not ready")
	}

	var ev billing.WebhookEvent
	if err := c.BodyParser(&ev); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid webhook payload")
	}

	outcome, err := billingService.ProcessEvent(c.UserContext(), ev)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrUnknownProduct):
			return errorJSON(c, fiber.StatusBadRequest, "unknown_product", "Unknown product id")
		case errors.Is(err, billing.ErrUnknownAccount):
			return errorJSON(c, fiber.StatusNotFound, "unknown_account", "Unknown account id")
		default:
			log.Errorf("[Webhook] failed to process %s event: %v", ev.Type, err)
			return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to process event")
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": string(outcome)})
}
