package services

import (
	"context"
	"strings"
)

// LineItemPricing prices a cart as the sum of its line totals with no fees or tax.
type LineItemPricing struct {
	Currency string
}

// ComputeTotals implements PricingStrategy.
func (p LineItemPricing) ComputeTotals(_ context.Context, cart Cart, pricing PricingContext) (CartTotals, error) {
	currency := strings.ToUpper(strings.TrimSpace(pricing.Currency))
	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	}
	if currency == "" {
		currency = defaultFallbackCurrency
	}
	var subtotal int64
	for _, item := range cart.Items {
		subtotal += item.ComputeTotal()
	}
	return CartTotals{
		Currency:   currency,
		Subtotal:   subtotal,
		GrandTotal: subtotal,
	}, nil
}

// NoopPromotions returns totals unchanged while recording the kinds it was asked to apply.
type NoopPromotions struct{}

// ApplyPromotions implements PromotionStrategy.
func (NoopPromotions) ApplyPromotions(_ context.Context, kinds []PromotionKind, totals CartTotals) (CartTotals, error) {
	totals.AppliedPromotions = append([]PromotionKind(nil), kinds...)
	return totals, nil
}

// AllowAllValidation accepts every cart and item change.
type AllowAllValidation struct{}

// Validate implements ValidationStrategy.
func (AllowAllValidation) Validate(context.Context, Cart) (ValidationResult, error) {
	return Valid(), nil
}

// ValidateItemChange implements ValidationStrategy.
func (AllowAllValidation) ValidateItemChange(context.Context, Cart, CartItem) (ValidationResult, error) {
	return Valid(), nil
}

// NoConflicts never reports catalog conflicts.
type NoConflicts struct{}

// DetectConflicts implements CatalogConflictDetector.
func (NoConflicts) DetectConflicts(context.Context, Cart) ([]CatalogConflict, error) {
	return nil, nil
}

// NoopAnalytics discards analytics calls.
type NoopAnalytics struct{}

func (NoopAnalytics) CartCreated(context.Context, Cart) {}
func (NoopAnalytics) CartUpdated(context.Context, Cart) {}
func (NoopAnalytics) CartDeleted(context.Context, string) {}
func (NoopAnalytics) ActiveCartChanged(context.Context, CartScope, *string) {}
func (NoopAnalytics) ItemAdded(context.Context, Cart, CartItem) {}
func (NoopAnalytics) ItemUpdated(context.Context, Cart, CartItem) {}
func (NoopAnalytics) ItemRemoved(context.Context, Cart, CartItem) {}

var (
	_ PricingStrategy         = LineItemPricing{}
	_ PromotionStrategy       = NoopPromotions{}
	_ ValidationStrategy      = AllowAllValidation{}
	_ CatalogConflictDetector = NoConflicts{}
	_ AnalyticsSink           = NoopAnalytics{}
)
