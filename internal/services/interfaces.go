package services

import (
	"context"

	domain "github.com/hanko-field/carts/internal/domain"
	"github.com/hanko-field/carts/internal/platform/events"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart              = domain.Cart
	CartItem          = domain.CartItem
	CartStatus        = domain.CartStatus
	CartScope         = domain.CartScope
	CartQuery         = domain.CartQuery
	CartEvent         = domain.CartEvent
	CartTotals        = domain.CartTotals
	CheckoutTotals    = domain.CheckoutTotals
	CatalogConflict   = domain.CatalogConflict
	CleanupPolicy     = domain.CleanupPolicy
	CartCleanupResult = domain.CartCleanupResult
	PricingContext    = domain.PricingContext
	PromotionKind     = domain.PromotionKind
	PromotionOverride = domain.PromotionOverride
	SessionGroup      = domain.SessionGroup
)

// CartEventSubscription is the per-subscriber ordered stream of cart events.
type CartEventSubscription = events.Subscription[domain.CartEvent]

// PricingStrategy computes the base totals of a cart before promotions.
type PricingStrategy interface {
	ComputeTotals(ctx context.Context, cart Cart, pricing PricingContext) (CartTotals, error)
}

// PromotionStrategy applies resolved promotion kinds to base totals.
type PromotionStrategy interface {
	ApplyPromotions(ctx context.Context, kinds []PromotionKind, totals CartTotals) (CartTotals, error)
}

// ValidationResult reports the verdict of a validation strategy. Reason is set when invalid.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// Valid returns the passing validation result.
func Valid() ValidationResult { return ValidationResult{Valid: true} }

// Invalid returns a failing validation result carrying the reason.
func Invalid(reason string) ValidationResult { return ValidationResult{Reason: reason} }

// ValidationStrategy checks carts and proposed item changes against business rules.
type ValidationStrategy interface {
	Validate(ctx context.Context, cart Cart) (ValidationResult, error)
	// ValidateItemChange receives the proposed line; a zero quantity proposes removal.
	ValidateItemChange(ctx context.Context, cart Cart, proposed CartItem) (ValidationResult, error)
}

// CatalogConflictDetector compares cart lines with the live catalog.
type CatalogConflictDetector interface {
	DetectConflicts(ctx context.Context, cart Cart) ([]CatalogConflict, error)
}

// ConflictResolution is the decision of a ConflictResolver. Exactly one of Cart or Err is set.
type ConflictResolution struct {
	Cart *Cart
	Err  error
}

// AcceptModifiedCart resolves conflicts by persisting the supplied cart instead of the proposal.
func AcceptModifiedCart(cart Cart) ConflictResolution {
	return ConflictResolution{Cart: &cart}
}

// RejectWithError resolves conflicts by failing the mutation with err.
func RejectWithError(err error) ConflictResolution {
	return ConflictResolution{Err: err}
}

// ConflictResolver decides how detected catalog conflicts affect a mutation.
type ConflictResolver interface {
	ResolveConflict(ctx context.Context, cart Cart, conflicts []CatalogConflict) (ConflictResolution, error)
}

// AnalyticsSink observes cart activity. Implementations must not fail the caller.
type AnalyticsSink interface {
	CartCreated(ctx context.Context, cart Cart)
	CartUpdated(ctx context.Context, cart Cart)
	CartDeleted(ctx context.Context, cartID string)
	ActiveCartChanged(ctx context.Context, scope CartScope, cartID *string)
	ItemAdded(ctx context.Context, cart Cart, item CartItem)
	ItemUpdated(ctx context.Context, cart Cart, item CartItem)
	ItemRemoved(ctx context.Context, cart Cart, item CartItem)
}

// CartService exposes the cart orchestration use cases.
type CartService interface {
	CreateCart(ctx context.Context, cmd CreateCartCommand) (Cart, error)
	GetCart(ctx context.Context, cartID string) (Cart, error)
	QueryCarts(ctx context.Context, query CartQuery, limit *int) ([]Cart, error)
	GetActiveCart(ctx context.Context, scope CartScope) (*Cart, error)
	SetActiveCart(ctx context.Context, cmd CreateCartCommand) (Cart, error)
	DeleteCart(ctx context.Context, cartID string) error

	AddItem(ctx context.Context, cartID string, item CartItem) (CartMutationResult, error)
	UpdateItem(ctx context.Context, cartID string, item CartItem) (CartMutationResult, error)
	RemoveItem(ctx context.Context, cartID, itemID string) (CartMutationResult, error)

	UpdateStatus(ctx context.Context, cartID string, status CartStatus) (Cart, error)
	Reorder(ctx context.Context, sourceCartID string) (Cart, error)
	MigrateGuestActiveCart(ctx context.Context, cmd MigrateGuestCartCommand) (Cart, error)

	CleanupCarts(ctx context.Context, scope CartScope, policy CleanupPolicy) (CartCleanupResult, error)
	CleanupCartGroup(ctx context.Context, group SessionGroup, policy CleanupPolicy) (CartCleanupResult, error)

	GetTotals(ctx context.Context, cartID string, req TotalsRequest) (CartTotals, error)
	GetTotalsForActiveCartGroup(ctx context.Context, req GroupTotalsRequest) (CheckoutTotals, error)
	ValidateBeforeCheckoutForActiveCartGroup(ctx context.Context, req GroupValidationRequest) ([]Cart, error)

	Subscribe() *CartEventSubscription
}
