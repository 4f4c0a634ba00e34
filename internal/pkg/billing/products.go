package billing

import (
	"errors"
	"strings"

	"github.com/sonerady/dires-server-sub002/internal/pkg/entitlements"
)

// ErrUnknownProduct marks a product id the catalog does not carry. Unknown
// products are rejected and logged for manual review, never defaulted.
var ErrUnknownProduct = errors.New("unknown product id")

// ProductKind separates one-time credit packs from recurring subscriptions.
type ProductKind string

const (
	ProductKindPack         ProductKind = "pack"
	ProductKindSubscription ProductKind = "subscription"
)

// Product maps a store product id to its ledger and entitlement effect.
type Product struct {
	ID      string
	Kind    ProductKind
	Credits int64
	Tier    entitlements.Tier
}

// IsSubscription reports whether the product carries a plan tier.
func (p Product) IsSubscription() bool {
	return p.Kind == ProductKindSubscription
}

// catalog holds every sellable product id. Credit amounts for annual plans
// are granted up front, renewals re-grant the same amount.
var catalog = map[string]Product{
	"dires_standard_weekly": {Kind: ProductKindSubscription, Credits: 300, Tier: entitlements.TierStandard},
	"dires_standard_annual": {Kind: ProductKindSubscription, Credits: 15600, Tier: entitlements.TierStandard},
	"dires_plus_weekly":     {Kind: ProductKindSubscription, Credits: 800, Tier: entitlements.TierPlus},
	"dires_plus_annual":     {Kind: ProductKindSubscription, Credits: 41600, Tier: entitlements.TierPlus},
	"dires_premium_weekly":  {Kind: ProductKindSubscription, Credits: 2000, Tier: entitlements.TierPremium},
	"dires_premium_annual":  {Kind: ProductKindSubscription, Credits: 104000, Tier: entitlements.TierPremium},

	"dires_credits_100":  {Kind: ProductKindPack, Credits: 100, Tier: entitlements.TierNone},
	"dires_credits_500":  {Kind: ProductKindPack, Credits: 500, Tier: entitlements.TierNone},
	"dires_credits_1000": {Kind: ProductKindPack, Credits: 1000, Tier: entitlements.TierNone},
	"dires_credits_5000": {Kind: ProductKindPack, Credits: 5000, Tier: entitlements.TierNone},
}

// LookupProduct resolves a store product id to its catalog entry.
func LookupProduct(productID string) (Product, error) {
	id := strings.ToLower(strings.TrimSpace(productID))
	p, ok := catalog[id]
	if !ok {
		return Product{}, ErrUnknownProduct
	}
	p.ID = id
	return p, nil
}
