package billing

// Billing platform webhook event types.
const (
	EventTypeInitialPurchase     = "INITIAL_PURCHASE"
	EventTypeNonRenewingPurchase = "NON_RENEWING_PURCHASE"
	EventTypeRenewal             = "RENEWAL"
	EventTypeCancellation        = "CANCELLATION"
	EventTypeExpiration          = "EXPIRATION"
	EventTypeTest                = "TEST"
)

// Environment values reported by the billing platform.
const (
	EnvironmentProduction = "PRODUCTION"
	EnvironmentSandbox    = "SANDBOX"
)

// WebhookEvent is the inbound billing platform payload.
type WebhookEvent struct {
	Type             string  `json:"type"`
	AppUserID        string  `json:"app_user_id"`
	ProductID        string  `json:"product_id"`
	TransactionID    string  `json:"transaction_id"`
	EventTimestampMs int64   `json:"event_timestamp_ms"`
	ExpirationAtMs   *int64  `json:"expiration_at_ms,omitempty"`
	Price            float64 `json:"price,omitempty"`
	Currency         string  `json:"currency,omitempty"`
	Environment      string  `json:"environment,omitempty"`
}

// IsGranting reports whether the event adds credits to the ledger.
func (e WebhookEvent) IsGranting() bool {
	switch e.Type {
	case EventTypeInitialPurchase, EventTypeNonRenewingPurchase, EventTypeRenewal:
		return true
	}
	return false
}

// IsRevoking reports whether the event ends an entitlement.
func (e WebhookEvent) IsRevoking() bool {
	return e.Type == EventTypeCancellation || e.Type == EventTypeExpiration
}

// IsSandbox reports whether the event came from the sandbox environment.
func (e WebhookEvent) IsSandbox() bool {
	return e.Environment == EnvironmentSandbox
}

// Outcome describes how ProcessEvent handled an event. Every value maps to
// a 2xx acknowledgment; only rejections bubble up as errors.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeSoftCancel Outcome = "soft_cancel"
	OutcomeIgnored    Outcome = "ignored"
)
