package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/carts/internal/domain"
)

type stubPricingStrategy struct {
	computeFunc func(ctx context.Context, cart Cart, pricing PricingContext) (CartTotals, error)
}

func (s *stubPricingStrategy) ComputeTotals(ctx context.Context, cart Cart, pricing PricingContext) (CartTotals, error) {
	if s.computeFunc == nil {
		return CartTotals{}, errors.New("compute not configured")
	}
	return s.computeFunc(ctx, cart, pricing)
}

type stubPromotionStrategy struct {
	calls     int
	applyFunc func(ctx context.Context, kinds []PromotionKind, totals CartTotals) (CartTotals, error)
}

func (s *stubPromotionStrategy) ApplyPromotions(ctx context.Context, kinds []PromotionKind, totals CartTotals) (CartTotals, error) {
	s.calls++
	if s.applyFunc == nil {
		return totals, nil
	}
	return s.applyFunc(ctx, kinds, totals)
}

func TestCartPricingTotalsUsesSavedPromotions(t *testing.T) {
	cart := Cart{
		ID:                  "c1",
		StoreID:             "s1",
		ProfileID:           ptrTo("u1"),
		Items:               []CartItem{{ID: "i1", ProductID: "p1", Quantity: 2, UnitPrice: 500}},
		SavedPromotionKinds: []PromotionKind{"spring"},
	}
	pricing := &stubPricingStrategy{
		computeFunc: func(_ context.Context, got Cart, pctx PricingContext) (CartTotals, error) {
			if pctx.StoreID != "s1" {
				t.Fatalf("expected derived store id s1, got %q", pctx.StoreID)
			}
			if id, ok := pctx.Profile.ID(); !ok || id != "u1" {
				t.Fatalf("expected derived profile u1, got %v", pctx.Profile)
			}
			if !pctx.Session.IsSessionless() {
				t.Fatalf("expected sessionless context")
			}
			return CartTotals{Currency: "JPY", Subtotal: 1000, GrandTotal: 1000}, nil
		},
	}
	promotions := &stubPromotionStrategy{
		applyFunc: func(_ context.Context, kinds []PromotionKind, totals CartTotals) (CartTotals, error) {
			if len(kinds) != 1 || kinds[0] != "spring" {
				t.Fatalf("expected saved promotion kinds, got %v", kinds)
			}
			totals.Discount = 100
			totals.GrandTotal -= 100
			totals.AppliedPromotions = kinds
			return totals, nil
		},
	}

	orchestrator := NewCartPricingOrchestrator(pricing, promotions, "")
	totals, err := orchestrator.Totals(context.Background(), cart, TotalsRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(900), totals.GrandTotal)
	require.Equal(t, []PromotionKind{"spring"}, totals.AppliedPromotions)
}

func TestCartPricingTotalsOverrideWins(t *testing.T) {
	cart := Cart{ID: "c1", StoreID: "s1", SavedPromotionKinds: []PromotionKind{"saved"}}
	pricing := &stubPricingStrategy{
		computeFunc: func(_ context.Context, _ Cart, pctx PricingContext) (CartTotals, error) {
			if pctx.Currency != "EUR" {
				t.Fatalf("expected explicit context, got %+v", pctx)
			}
			return CartTotals{Currency: "EUR"}, nil
		},
	}
	var applied []PromotionKind
	promotions := &stubPromotionStrategy{
		applyFunc: func(_ context.Context, kinds []PromotionKind, totals CartTotals) (CartTotals, error) {
			applied = kinds
			return totals, nil
		},
	}

	orchestrator := NewCartPricingOrchestrator(pricing, promotions, "")
	_, err := orchestrator.Totals(context.Background(), cart, TotalsRequest{
		Context:    &PricingContext{StoreID: "s1", Currency: "EUR"},
		Promotions: &PromotionOverride{Kinds: []PromotionKind{"override"}},
	})
	require.NoError(t, err)
	require.Equal(t, []PromotionKind{"override"}, applied)
}

func TestCartPricingTotalsSkipsPromotionsWhenNoneResolved(t *testing.T) {
	cart := Cart{ID: "c1", StoreID: "s1", SavedPromotionKinds: []PromotionKind{"saved"}}
	pricing := &stubPricingStrategy{
		computeFunc: func(context.Context, Cart, PricingContext) (CartTotals, error) {
			return CartTotals{Currency: "USD"}, nil
		},
	}
	promotions := &stubPromotionStrategy{}

	orchestrator := NewCartPricingOrchestrator(pricing, promotions, "")
	_, err := orchestrator.Totals(context.Background(), cart, TotalsRequest{Promotions: &PromotionOverride{}})
	require.NoError(t, err)
	require.Zero(t, promotions.calls)

	_, err = orchestrator.Totals(context.Background(), Cart{ID: "c2"}, TotalsRequest{})
	require.NoError(t, err)
	require.Zero(t, promotions.calls)
}

func TestCartPricingTotalsPropagatesStrategyErrors(t *testing.T) {
	boom := errors.New("pricing offline")
	pricing := &stubPricingStrategy{
		computeFunc: func(context.Context, Cart, PricingContext) (CartTotals, error) {
			return CartTotals{}, boom
		},
	}
	orchestrator := NewCartPricingOrchestrator(pricing, nil, "")
	_, err := orchestrator.Totals(context.Background(), Cart{ID: "c1"}, TotalsRequest{})
	require.ErrorIs(t, err, boom)
}

func TestAggregateGroupTotals(t *testing.T) {
	orchestrator := NewCartPricingOrchestrator(nil, nil, "")

	got, err := orchestrator.AggregateGroupTotals(map[string]CartTotals{
		"s2": {Currency: "jpy", Subtotal: 300, Fees: 10, Tax: 30, GrandTotal: 340, AppliedPromotions: []PromotionKind{"b"}},
		"s1": {Currency: "JPY", Subtotal: 100, Discount: 5, GrandTotal: 95, AppliedPromotions: []PromotionKind{"a", "b"}},
	})
	require.NoError(t, err)
	require.Equal(t, "JPY", got.Total.Currency)
	require.Equal(t, int64(400), got.Total.Subtotal)
	require.Equal(t, int64(5), got.Total.Discount)
	require.Equal(t, int64(10), got.Total.Fees)
	require.Equal(t, int64(30), got.Total.Tax)
	require.Equal(t, int64(435), got.Total.GrandTotal)
	require.Equal(t, []PromotionKind{"a", "b"}, got.Total.AppliedPromotions)
	require.Len(t, got.Stores, 2)
}

func TestAggregateGroupTotalsCurrencyMismatch(t *testing.T) {
	orchestrator := NewCartPricingOrchestrator(nil, nil, "")
	_, err := orchestrator.AggregateGroupTotals(map[string]CartTotals{
		"s1": {Currency: "JPY", GrandTotal: 100},
		"s2": {Currency: "USD", GrandTotal: 100},
	})
	require.ErrorIs(t, err, ErrCartCurrencyMismatch)
	require.ErrorIs(t, err, ErrCartValidationFailed)
}

func TestAggregateGroupTotalsAcceptsMatchingNonISOCurrency(t *testing.T) {
	orchestrator := NewCartPricingOrchestrator(nil, nil, "")

	got, err := orchestrator.AggregateGroupTotals(map[string]CartTotals{
		"a": {Currency: "PTS", GrandTotal: 10},
		"b": {Currency: " pts ", GrandTotal: 5},
	})
	require.NoError(t, err)
	require.Equal(t, "PTS", got.Total.Currency)
	require.Equal(t, int64(15), got.Total.GrandTotal)

	got, err = orchestrator.AggregateGroupTotals(map[string]CartTotals{"a": {Currency: "", GrandTotal: 7}})
	require.NoError(t, err)
	require.Equal(t, "", got.Total.Currency)
	require.Equal(t, int64(7), got.Total.GrandTotal)

	got, err = orchestrator.AggregateGroupTotals(map[string]CartTotals{
		"a": {Currency: "usd"},
		"b": {Currency: "USD "},
	})
	require.NoError(t, err)
	require.Equal(t, "USD", got.Total.Currency)
}

func TestAggregateGroupTotalsNonISOCurrencyMismatch(t *testing.T) {
	orchestrator := NewCartPricingOrchestrator(nil, nil, "")
	_, err := orchestrator.AggregateGroupTotals(map[string]CartTotals{
		"a": {Currency: "PTS"},
		"b": {Currency: "USD"},
	})
	require.ErrorIs(t, err, ErrCartCurrencyMismatch)
}

func TestAggregateGroupTotalsEmptyUsesFallbackCurrency(t *testing.T) {
	got, err := NewCartPricingOrchestrator(nil, nil, "").AggregateGroupTotals(nil)
	require.NoError(t, err)
	require.Equal(t, domain.CartTotals{Currency: "USD"}, got.Total)
	require.Empty(t, got.Stores)

	got, err = NewCartPricingOrchestrator(nil, nil, "eur").AggregateGroupTotals(map[string]CartTotals{})
	require.NoError(t, err)
	require.Equal(t, "EUR", got.Total.Currency)
}

func TestLineItemPricingSumsLines(t *testing.T) {
	cart := Cart{Items: []CartItem{
		{ID: "i1", ProductID: "p1", Quantity: 2, UnitPrice: 500, Modifiers: []domain.CartItemModifier{{ID: "m", PriceDelta: 50}}},
		{ID: "i2", ProductID: "p2", Quantity: 1, UnitPrice: 200},
	}}
	totals, err := LineItemPricing{Currency: "jpy"}.ComputeTotals(context.Background(), cart, PricingContext{})
	require.NoError(t, err)
	require.Equal(t, "JPY", totals.Currency)
	require.Equal(t, int64(1300), totals.Subtotal)
	require.Equal(t, int64(1300), totals.GrandTotal)
}
