package accountcontext

import "github.com/gofiber/fiber/v2"

// AccountContext represents the authenticated account for a request
type AccountContext struct {
	AccountID       string `json:"account_id"`
	IsAuthenticated bool   `json:"is_authenticated"`
	IsEntitled      bool   `json:"is_entitled"`
	PlanTier        string `json:"plan_tier"`
	CreditBalance   int64  `json:"credit_balance"`
}

// GetAccountContext retrieves the account context from fiber context
// Returns a default anonymous context if none is set
func GetAccountContext(c *fiber.Ctx) AccountContext {
	if ctx := c.Locals(KeyAccountContext); ctx != nil {
		return ctx.(AccountContext)
	}
	return AccountContext{IsAuthenticated: false}
}

// IsAuthenticated checks if the request carries a resolved account
func IsAuthenticated(c *fiber.Ctx) bool {
	return GetAccountContext(c).IsAuthenticated
}

// GetAccountID returns the current account's ID, or empty string if anonymous
func GetAccountID(c *fiber.Ctx) string {
	return GetAccountContext(c).AccountID
}
