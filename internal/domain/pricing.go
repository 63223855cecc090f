package domain

// PricingContext carries the inputs a pricing strategy needs beyond the cart itself.
type PricingContext struct {
	StoreID  string
	Profile  ProfileRef
	Session  SessionRef
	Currency string
	Metadata map[string]string
}

// PricingContextForCart builds the plain context derived from a cart's own scope.
func PricingContextForCart(cart Cart) PricingContext {
	scope := cart.Scope()
	return PricingContext{
		StoreID: scope.StoreID,
		Profile: scope.Profile,
		Session: scope.Session,
	}
}

// PromotionOverride replaces a cart's saved promotions for a single pricing call.
// An override with no kinds prices the cart without promotions.
type PromotionOverride struct {
	Kinds []PromotionKind
}

// CartTotals summarises the monetary totals of one cart in minor units.
type CartTotals struct {
	Currency          string
	Subtotal          int64
	Discount          int64
	Fees              int64
	Tax               int64
	GrandTotal        int64
	AppliedPromotions []PromotionKind
}

// CheckoutTotals aggregates the totals of a multi-store checkout.
type CheckoutTotals struct {
	Stores map[string]CartTotals
	Total  CartTotals
}
