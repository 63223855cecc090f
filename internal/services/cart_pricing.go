package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/currency"

	domain "github.com/hanko-field/carts/internal/domain"
)

const defaultFallbackCurrency = "USD"

// TotalsRequest customises a single pricing call. A nil Context prices the cart in its own scope and a
// nil Promotions falls back to the cart's saved promotion kinds.
type TotalsRequest struct {
	Context    *PricingContext
	Promotions *PromotionOverride
}

// CartPricingOrchestrator sequences base pricing and promotion application.
type CartPricingOrchestrator struct {
	pricing          PricingStrategy
	promotions       PromotionStrategy
	fallbackCurrency string
}

// NewCartPricingOrchestrator wires the strategies, substituting defaults for nil ones.
func NewCartPricingOrchestrator(pricing PricingStrategy, promotions PromotionStrategy, fallbackCurrency string) *CartPricingOrchestrator {
	fallback := strings.ToUpper(strings.TrimSpace(fallbackCurrency))
	if fallback == "" {
		fallback = defaultFallbackCurrency
	}
	if pricing == nil {
		pricing = LineItemPricing{Currency: fallback}
	}
	if promotions == nil {
		promotions = NoopPromotions{}
	}
	return &CartPricingOrchestrator{pricing: pricing, promotions: promotions, fallbackCurrency: fallback}
}

// Totals prices the cart and applies the effective promotions.
func (p *CartPricingOrchestrator) Totals(ctx context.Context, cart Cart, req TotalsRequest) (CartTotals, error) {
	pricing := PricingContextFor(cart, req.Context)

	totals, err := p.pricing.ComputeTotals(ctx, cart, pricing)
	if err != nil {
		return CartTotals{}, fmt.Errorf("cart pricing: compute totals for cart %s: %w", cart.ID, err)
	}

	kinds := ResolvePromotionKinds(cart, req.Promotions)
	if len(kinds) == 0 {
		return totals, nil
	}
	totals, err = p.promotions.ApplyPromotions(ctx, kinds, totals)
	if err != nil {
		return CartTotals{}, fmt.Errorf("cart pricing: apply promotions to cart %s: %w", cart.ID, err)
	}
	return totals, nil
}

// AggregateGroupTotals sums per-store totals into one checkout total. Stores must agree on a currency
// code once trimmed and upper-cased; codes outside ISO 4217 are accepted as long as they match. An
// empty input yields a zero total in the fallback currency.
func (p *CartPricingOrchestrator) AggregateGroupTotals(stores map[string]CartTotals) (CheckoutTotals, error) {
	out := CheckoutTotals{
		Stores: make(map[string]CartTotals, len(stores)),
		Total:  CartTotals{Currency: p.fallbackCurrency},
	}
	if len(stores) == 0 {
		return out, nil
	}

	var expected string
	for i, storeID := range slices.Sorted(maps.Keys(stores)) {
		totals := stores[storeID]
		code := normalizeCurrencyCode(totals.Currency)
		if i == 0 {
			expected = code
		} else if code != expected {
			return CheckoutTotals{}, fmt.Errorf("%w: store %s uses %q, expected %q", ErrCartCurrencyMismatch, storeID, code, expected)
		}
		out.Stores[storeID] = totals
		out.Total.Subtotal += totals.Subtotal
		out.Total.Discount += totals.Discount
		out.Total.Fees += totals.Fees
		out.Total.Tax += totals.Tax
		out.Total.GrandTotal += totals.GrandTotal
		for _, kind := range totals.AppliedPromotions {
			if !slices.Contains(out.Total.AppliedPromotions, kind) {
				out.Total.AppliedPromotions = append(out.Total.AppliedPromotions, kind)
			}
		}
	}
	out.Total.Currency = expected
	return out, nil
}

// normalizeCurrencyCode trims and upper-cases code, using the ISO 4217 spelling when it parses.
func normalizeCurrencyCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if unit, err := currency.ParseISO(code); err == nil {
		return unit.String()
	}
	return code
}

// PricingContextFor returns the explicit context or one derived from the cart scope.
func PricingContextFor(cart Cart, explicit *PricingContext) PricingContext {
	if explicit != nil {
		return *explicit
	}
	return domain.PricingContextForCart(cart)
}

// ResolvePromotionKinds applies promotion precedence: explicit override, then saved kinds, then none.
func ResolvePromotionKinds(cart Cart, override *PromotionOverride) []PromotionKind {
	if override != nil {
		return slices.Clone(override.Kinds)
	}
	if len(cart.SavedPromotionKinds) > 0 {
		return slices.Clone(cart.SavedPromotionKinds)
	}
	return nil
}
