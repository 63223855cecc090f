package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/hanko-field/carts/internal/domain"
	"github.com/hanko-field/carts/internal/platform/events"
	"github.com/hanko-field/carts/internal/repositories"
)

const instrumentationName = "github.com/hanko-field/carts/internal/services"

// CartOrchestratorDeps wires the storage port and strategies used by the orchestrator.
type CartOrchestratorDeps struct {
	Repository      repositories.CartRepository
	Pricing         PricingStrategy
	Promotions      PromotionStrategy
	Validation      ValidationStrategy
	Conflicts       CatalogConflictDetector
	Resolver        ConflictResolver
	Analytics       AnalyticsSink
	Events          *events.Broadcaster[domain.CartEvent]
	Clock           func() time.Time
	IDGenerator     func() string
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	Tracer          trace.Tracer
	Meter           metric.Meter
}

// CreateCartCommand describes a new cart. The scope is derived from StoreID, ProfileID and SessionID.
type CreateCartCommand struct {
	StoreID             string
	ProfileID           *string
	SessionID           *string
	DisplayName         *string
	StoreName           *string
	StoreImageRef       *string
	Metadata            map[string]string
	Rules               *domain.CartRules
	SavedPromotionKinds []PromotionKind
}

// Scope returns the uniqueness scope the command targets.
func (c CreateCartCommand) Scope() CartScope {
	return domain.NewCartScope(c.StoreID, c.ProfileID, c.SessionID)
}

// MigrateGuestCartCommand moves the guest's active cart of a store and session into a profile.
type MigrateGuestCartCommand struct {
	StoreID   string
	Session   domain.SessionRef
	ProfileID string
	Strategy  GuestMigrationStrategy
}

// GroupTotalsRequest prices the active carts of a session group. PricingContexts overrides the
// context per store id.
type GroupTotalsRequest struct {
	Group           SessionGroup
	IncludeEmpty    bool
	PricingContexts map[string]PricingContext
	Promotions      *PromotionOverride
}

// GroupValidationRequest validates the active carts of a session group before checkout.
type GroupValidationRequest struct {
	Group        SessionGroup
	IncludeEmpty bool
}

// CartMutationResult carries the saved cart and any catalog conflicts detected for it.
type CartMutationResult struct {
	Cart              Cart
	Conflicts         []CatalogConflict
	ConflictsResolved bool
}

// CartOrchestrator serialises every cart use case behind one mutex so read-then-write checks of
// scope uniqueness never interleave.
type CartOrchestrator struct {
	mu sync.Mutex

	repo       repositories.CartRepository
	discovery  *CartDiscovery
	pricing    *CartPricingOrchestrator
	validation ValidationStrategy
	conflicts  CatalogConflictDetector
	resolver   ConflictResolver
	analytics  AnalyticsSink
	events     *events.Broadcaster[domain.CartEvent]

	newID  func() string
	now    func() time.Time
	logger func(context.Context, string, map[string]any)

	tracer         trace.Tracer
	ops            metric.Int64Counter
	opsEnabled     bool
	latency        metric.Float64Histogram
	latencyEnabled bool
}

// NewCartOrchestrator constructs the orchestrator, substituting no-op strategies for nil ones.
func NewCartOrchestrator(deps CartOrchestratorDeps) (*CartOrchestrator, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	validation := deps.Validation
	if validation == nil {
		validation = AllowAllValidation{}
	}
	conflicts := deps.Conflicts
	if conflicts == nil {
		conflicts = NoConflicts{}
	}
	analytics := deps.Analytics
	if analytics == nil {
		analytics = NoopAnalytics{}
	}
	broadcaster := deps.Events
	if broadcaster == nil {
		broadcaster = events.NewBroadcaster[domain.CartEvent]()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}

	ops, opsErr := meter.Int64Counter(
		"carts.operations",
		metric.WithDescription("Cart orchestrator operations by outcome"),
	)
	if opsErr != nil {
		logger(context.Background(), "cart.metrics_unavailable", map[string]any{"metric": "carts.operations", "error": opsErr.Error()})
	}
	latency, latencyErr := meter.Float64Histogram(
		"carts.operation.latency",
		metric.WithDescription("Latency of cart orchestrator operations"),
		metric.WithUnit("ms"),
	)
	if latencyErr != nil {
		logger(context.Background(), "cart.metrics_unavailable", map[string]any{"metric": "carts.operation.latency", "error": latencyErr.Error()})
	}

	return &CartOrchestrator{
		repo:           deps.Repository,
		discovery:      NewCartDiscovery(deps.Repository),
		pricing:        NewCartPricingOrchestrator(deps.Pricing, deps.Promotions, deps.DefaultCurrency),
		validation:     validation,
		conflicts:      conflicts,
		resolver:       deps.Resolver,
		analytics:      analytics,
		events:         broadcaster,
		newID:          idGen,
		now:            func() time.Time { return deps.Clock().UTC() },
		logger:         logger,
		tracer:         tracer,
		ops:            ops,
		opsEnabled:     opsErr == nil,
		latency:        latency,
		latencyEnabled: latencyErr == nil,
	}, nil
}

// Subscribe registers a new event subscriber. Events emitted before the call are not replayed.
func (o *CartOrchestrator) Subscribe() *CartEventSubscription {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events.Subscribe()
}

// Close stops event delivery. Subscribers drain what was already emitted.
func (o *CartOrchestrator) Close() {
	o.events.Close()
}

// CreateCart creates the active cart of a scope, failing when one already exists.
func (o *CartOrchestrator) CreateCart(ctx context.Context, cmd CreateCartCommand) (cart Cart, err error) {
	ctx, done := o.begin(ctx, "create_cart")
	defer done(&err)

	scope, err := validateCreateCommand(cmd)
	if err != nil {
		return Cart{}, err
	}
	active, err := o.activeCartIn(ctx, scope)
	if err != nil {
		return Cart{}, err
	}
	if active != nil {
		return Cart{}, fmt.Errorf("%w: scope %s already has active cart %s", ErrCartConflict, scope.Key(), active.ID)
	}
	return o.createCart(ctx, cmd, scope)
}

// GetCart loads a cart by id.
func (o *CartOrchestrator) GetCart(ctx context.Context, cartID string) (cart Cart, err error) {
	ctx, done := o.begin(ctx, "get_cart")
	defer done(&err)

	return o.loadCart(ctx, cartID)
}

// QueryCarts runs an arbitrary cart query.
func (o *CartOrchestrator) QueryCarts(ctx context.Context, query CartQuery, limit *int) (carts []Cart, err error) {
	ctx, done := o.begin(ctx, "query_carts")
	defer done(&err)

	if limit != nil && *limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrCartInvalidInput)
	}
	return o.discovery.FindCarts(ctx, query, limit)
}

// GetActiveCart returns the active cart of a scope, or nil when the scope has none.
func (o *CartOrchestrator) GetActiveCart(ctx context.Context, scope CartScope) (cart *Cart, err error) {
	ctx, done := o.begin(ctx, "get_active_cart")
	defer done(&err)

	if strings.TrimSpace(scope.StoreID) == "" {
		return nil, fmt.Errorf("%w: store id is required", ErrCartInvalidInput)
	}
	return o.activeCartIn(ctx, scope)
}

// SetActiveCart returns the scope's active cart, creating it when absent. Repeated calls return the
// same cart and emit events only for the call that created it.
func (o *CartOrchestrator) SetActiveCart(ctx context.Context, cmd CreateCartCommand) (cart Cart, err error) {
	ctx, done := o.begin(ctx, "set_active_cart")
	defer done(&err)

	scope, err := validateCreateCommand(cmd)
	if err != nil {
		return Cart{}, err
	}
	active, err := o.activeCartIn(ctx, scope)
	if err != nil {
		return Cart{}, err
	}
	if active != nil {
		return *active, nil
	}
	return o.createCart(ctx, cmd, scope)
}

// DeleteCart removes a cart. Deleting the active cart also clears the scope's active tracking.
func (o *CartOrchestrator) DeleteCart(ctx context.Context, cartID string) (err error) {
	ctx, done := o.begin(ctx, "delete_cart")
	defer done(&err)

	cart, err := o.loadCart(ctx, cartID)
	if err != nil {
		return err
	}
	if err := o.deleteCart(ctx, cart); err != nil {
		return err
	}
	if cart.IsActive() {
		o.emitActiveChanged(ctx, cart.Scope(), nil)
	}
	return nil
}

// AddItem adds a line to an active cart, merging quantities into an existing identical line.
func (o *CartOrchestrator) AddItem(ctx context.Context, cartID string, item CartItem) (result CartMutationResult, err error) {
	ctx, done := o.begin(ctx, "add_item")
	defer done(&err)

	cart, err := o.loadActiveCart(ctx, cartID)
	if err != nil {
		return CartMutationResult{}, err
	}
	if strings.TrimSpace(item.ProductID) == "" {
		return CartMutationResult{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if item.Quantity <= 0 {
		return CartMutationResult{}, fmt.Errorf("%w: quantity must be positive", ErrCartValidationFailed)
	}

	next := cart.Clone()
	var proposed CartItem
	merged := slices.IndexFunc(cart.Items, item.SameLine)
	if merged >= 0 {
		proposed = cart.Items[merged]
		proposed.Quantity += item.Quantity
		proposed.TotalPrice = proposed.ComputeTotal()
	} else {
		proposed = domain.CloneCartItems([]CartItem{item})[0]
		proposed.ID = strings.TrimSpace(proposed.ID)
		if proposed.ID == "" {
			proposed.ID = o.newID()
		} else if cart.IndexOfItem(proposed.ID) >= 0 {
			return CartMutationResult{}, fmt.Errorf("%w: item %s already exists", ErrCartConflict, proposed.ID)
		}
		proposed.TotalPrice = proposed.ComputeTotal()
	}

	if err := o.validateItemChange(ctx, cart, proposed); err != nil {
		return CartMutationResult{}, err
	}
	if merged >= 0 {
		next.Items[merged] = proposed
	} else {
		next.Items = append(next.Items, proposed)
	}
	return o.commitItemChange(ctx, next, proposed, o.analytics.ItemAdded)
}

// UpdateItem replaces a line of an active cart, keeping its id.
func (o *CartOrchestrator) UpdateItem(ctx context.Context, cartID string, item CartItem) (result CartMutationResult, err error) {
	ctx, done := o.begin(ctx, "update_item")
	defer done(&err)

	cart, err := o.loadActiveCart(ctx, cartID)
	if err != nil {
		return CartMutationResult{}, err
	}
	idx := cart.IndexOfItem(strings.TrimSpace(item.ID))
	if idx < 0 {
		return CartMutationResult{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, item.ID)
	}
	if item.Quantity <= 0 {
		return CartMutationResult{}, fmt.Errorf("%w: quantity must be positive", ErrCartValidationFailed)
	}

	proposed := domain.CloneCartItems([]CartItem{item})[0]
	proposed.ID = cart.Items[idx].ID
	if strings.TrimSpace(proposed.ProductID) == "" {
		proposed.ProductID = cart.Items[idx].ProductID
	}
	proposed.TotalPrice = proposed.ComputeTotal()

	if err := o.validateItemChange(ctx, cart, proposed); err != nil {
		return CartMutationResult{}, err
	}
	next := cart.Clone()
	next.Items[idx] = proposed
	return o.commitItemChange(ctx, next, proposed, o.analytics.ItemUpdated)
}

// RemoveItem deletes a line from an active cart.
func (o *CartOrchestrator) RemoveItem(ctx context.Context, cartID, itemID string) (result CartMutationResult, err error) {
	ctx, done := o.begin(ctx, "remove_item")
	defer done(&err)

	cart, err := o.loadActiveCart(ctx, cartID)
	if err != nil {
		return CartMutationResult{}, err
	}
	idx := cart.IndexOfItem(strings.TrimSpace(itemID))
	if idx < 0 {
		return CartMutationResult{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}

	removed := cart.Items[idx]
	proposed := removed
	proposed.Quantity = 0
	proposed.TotalPrice = 0
	if err := o.validateItemChange(ctx, cart, proposed); err != nil {
		return CartMutationResult{}, err
	}
	next := cart.Clone()
	next.Items = slices.Delete(next.Items, idx, idx+1)
	return o.commitItemChange(ctx, next, removed, o.analytics.ItemRemoved)
}

// UpdateStatus moves a cart through the status state machine. Checking out runs full validation first.
func (o *CartOrchestrator) UpdateStatus(ctx context.Context, cartID string, status CartStatus) (cart Cart, err error) {
	ctx, done := o.begin(ctx, "update_status")
	defer done(&err)

	cart, err = o.loadCart(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	if err := EvaluateCartStatusTransition(cart, status); err != nil {
		return Cart{}, err
	}
	if cart.Status == status {
		return cart, nil
	}
	if RequiresFullValidation(cart.Status, status) {
		if err := o.validateCart(ctx, cart); err != nil {
			return Cart{}, err
		}
	}

	from := cart.Status
	next := cart.Clone()
	next.Status = status
	next.UpdatedAt = o.now()
	if err := o.saveCart(ctx, next); err != nil {
		return Cart{}, err
	}
	o.emitUpdated(ctx, next)
	if ShouldClearActiveTracking(from, status) {
		o.emitActiveChanged(ctx, next.Scope(), nil)
	}
	o.logger(ctx, "cart.status_changed", map[string]any{
		"cartID": next.ID,
		"from":   string(from),
		"to":     string(status),
	})
	return next, nil
}

// Reorder expires the active cart of the source's scope, if any, and creates a new active cart holding
// copies of the source's lines.
func (o *CartOrchestrator) Reorder(ctx context.Context, sourceCartID string) (cart Cart, err error) {
	ctx, done := o.begin(ctx, "reorder")
	defer done(&err)

	source, err := o.loadCart(ctx, sourceCartID)
	if err != nil {
		return Cart{}, err
	}
	scope := source.Scope()
	active, err := o.activeCartIn(ctx, scope)
	if err != nil {
		return Cart{}, err
	}
	if active != nil {
		expired := active.Clone()
		expired.Status = domain.CartStatusExpired
		expired.UpdatedAt = o.now()
		if err := o.saveCart(ctx, expired); err != nil {
			return Cart{}, err
		}
		o.emitUpdated(ctx, expired)
		o.emitActiveChanged(ctx, scope, nil)
	}

	reordered := o.cloneIntoScope(source, scope)
	if err := o.saveCart(ctx, reordered); err != nil {
		return Cart{}, err
	}
	o.emitCreated(ctx, reordered)
	o.emitActiveChanged(ctx, scope, &reordered.ID)
	o.logger(ctx, "cart.reordered", map[string]any{
		"sourceCartID": source.ID,
		"cartID":       reordered.ID,
	})
	return reordered, nil
}

// MigrateGuestActiveCart hands the guest's active cart of a store to a profile.
func (o *CartOrchestrator) MigrateGuestActiveCart(ctx context.Context, cmd MigrateGuestCartCommand) (cart Cart, err error) {
	ctx, done := o.begin(ctx, "migrate_guest_cart")
	defer done(&err)

	storeID := strings.TrimSpace(cmd.StoreID)
	profileID := strings.TrimSpace(cmd.ProfileID)
	if storeID == "" || profileID == "" {
		return Cart{}, fmt.Errorf("%w: store id and profile id are required", ErrCartInvalidInput)
	}
	strategy := cmd.Strategy
	if strategy == "" {
		strategy = GuestMigrationMove
	}
	if strategy != GuestMigrationMove && strategy != GuestMigrationCopyAndDelete {
		return Cart{}, fmt.Errorf("%w: unknown migration strategy %q", ErrCartInvalidInput, strategy)
	}

	guestScope := CartScope{StoreID: storeID, Profile: domain.Guest(), Session: cmd.Session}
	targetScope := CartScope{StoreID: storeID, Profile: domain.Profile(profileID), Session: cmd.Session}

	guestActive, err := o.activeCartIn(ctx, guestScope)
	if err != nil {
		return Cart{}, err
	}
	guest, err := RequireGuestActiveCart(guestActive, storeID)
	if err != nil {
		return Cart{}, err
	}
	target, err := o.activeCartIn(ctx, targetScope)
	if err != nil {
		return Cart{}, err
	}
	if err := ValidateTargetScopeIsEmpty(target, storeID, profileID); err != nil {
		return Cart{}, err
	}

	var migrated Cart
	switch strategy {
	case GuestMigrationCopyAndDelete:
		migrated = o.cloneIntoScope(guest, targetScope)
		if err := o.saveCart(ctx, migrated); err != nil {
			return Cart{}, err
		}
		o.emitCreated(ctx, migrated)
		if err := o.deleteCart(ctx, guest); err != nil {
			return Cart{}, err
		}
	default:
		migrated = MakeMovedCart(guest, profileID, o.now())
		if err := o.saveCart(ctx, migrated); err != nil {
			return Cart{}, err
		}
		o.emitUpdated(ctx, migrated)
	}
	o.emitActiveChanged(ctx, guestScope, nil)
	o.emitActiveChanged(ctx, targetScope, &migrated.ID)
	o.logger(ctx, "cart.guest_migrated", map[string]any{
		"guestCartID": guest.ID,
		"cartID":      migrated.ID,
		"profileID":   profileID,
		"strategy":    string(strategy),
	})
	return migrated, nil
}

// CleanupCarts deletes the archived carts of one scope selected by the policy.
func (o *CartOrchestrator) CleanupCarts(ctx context.Context, scope CartScope, policy CleanupPolicy) (result CartCleanupResult, err error) {
	ctx, done := o.begin(ctx, "cleanup_carts")
	defer done(&err)

	carts, err := o.discovery.FindScopeCarts(ctx, scope)
	if err != nil {
		return CartCleanupResult{}, err
	}
	return o.cleanup(ctx, carts, policy, domain.RetentionWholeInput)
}

// CleanupCartGroup deletes the archived carts of a session group, capping retention per store.
func (o *CartOrchestrator) CleanupCartGroup(ctx context.Context, group SessionGroup, policy CleanupPolicy) (result CartCleanupResult, err error) {
	ctx, done := o.begin(ctx, "cleanup_cart_group")
	defer done(&err)

	if strings.TrimSpace(group.SessionID) == "" {
		return CartCleanupResult{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	carts, err := o.discovery.FindGroupCarts(ctx, group)
	if err != nil {
		return CartCleanupResult{}, err
	}
	return o.cleanup(ctx, carts, policy, domain.RetentionPerStore)
}

// GetTotals prices a single cart.
func (o *CartOrchestrator) GetTotals(ctx context.Context, cartID string, req TotalsRequest) (totals CartTotals, err error) {
	ctx, done := o.begin(ctx, "get_totals")
	defer done(&err)

	cart, err := o.loadCart(ctx, cartID)
	if err != nil {
		return CartTotals{}, err
	}
	return o.pricing.Totals(ctx, cart, req)
}

// GetTotalsForActiveCartGroup prices every eligible active cart of a session group and sums them.
func (o *CartOrchestrator) GetTotalsForActiveCartGroup(ctx context.Context, req GroupTotalsRequest) (totals CheckoutTotals, err error) {
	ctx, done := o.begin(ctx, "get_group_totals")
	defer done(&err)

	carts, err := o.eligibleGroupCarts(ctx, req.Group, req.IncludeEmpty)
	if err != nil {
		return CheckoutTotals{}, err
	}
	perStore := make(map[string]CartTotals, len(carts))
	for _, cart := range carts {
		totalsReq := TotalsRequest{Promotions: req.Promotions}
		if pricing, ok := req.PricingContexts[cart.StoreID]; ok {
			totalsReq.Context = &pricing
		}
		storeTotals, err := o.pricing.Totals(ctx, cart, totalsReq)
		if err != nil {
			return CheckoutTotals{}, err
		}
		perStore[cart.StoreID] = storeTotals
	}
	return o.pricing.AggregateGroupTotals(perStore)
}

// ValidateBeforeCheckoutForActiveCartGroup validates every eligible active cart of a session group,
// failing on the first invalid store. It returns the validated carts ordered by store id.
func (o *CartOrchestrator) ValidateBeforeCheckoutForActiveCartGroup(ctx context.Context, req GroupValidationRequest) (carts []Cart, err error) {
	ctx, done := o.begin(ctx, "validate_group")
	defer done(&err)

	carts, err = o.eligibleGroupCarts(ctx, req.Group, req.IncludeEmpty)
	if err != nil {
		return nil, err
	}
	for _, cart := range carts {
		if err := o.validateCart(ctx, cart); err != nil {
			return nil, fmt.Errorf("store %s: %w", cart.StoreID, err)
		}
	}
	return carts, nil
}

func (o *CartOrchestrator) begin(ctx context.Context, operation string) (context.Context, func(*error)) {
	o.mu.Lock()
	started := time.Now()
	ctx, span := o.tracer.Start(ctx, "carts."+operation)
	return ctx, func(errp *error) {
		defer o.mu.Unlock()

		outcome := "ok"
		if errp != nil && *errp != nil {
			outcome = "error"
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
		}
		span.End()

		attrs := metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		)
		if o.opsEnabled {
			o.ops.Add(ctx, 1, attrs)
		}
		if o.latencyEnabled {
			o.latency.Record(ctx, float64(time.Since(started))/float64(time.Millisecond), attrs)
		}
	}
}

func validateCreateCommand(cmd CreateCartCommand) (CartScope, error) {
	if strings.TrimSpace(cmd.StoreID) == "" {
		return CartScope{}, fmt.Errorf("%w: store id is required", ErrCartInvalidInput)
	}
	if cmd.ProfileID != nil && strings.TrimSpace(*cmd.ProfileID) == "" {
		return CartScope{}, fmt.Errorf("%w: profile id must not be blank", ErrCartInvalidInput)
	}
	if cmd.SessionID != nil && strings.TrimSpace(*cmd.SessionID) == "" {
		return CartScope{}, fmt.Errorf("%w: session id must not be blank", ErrCartInvalidInput)
	}
	return cmd.Scope(), nil
}

func (o *CartOrchestrator) createCart(ctx context.Context, cmd CreateCartCommand, scope CartScope) (Cart, error) {
	now := o.now()
	cart := Cart{
		ID:                  o.newID(),
		StoreID:             scope.StoreID,
		ProfileID:           scope.Profile.Ptr(),
		SessionID:           scope.Session.Ptr(),
		Items:               []CartItem{},
		Status:              domain.CartStatusActive,
		CreatedAt:           now,
		UpdatedAt:           now,
		Metadata:            maps.Clone(cmd.Metadata),
		DisplayName:         cmd.DisplayName,
		StoreName:           cmd.StoreName,
		StoreImageRef:       cmd.StoreImageRef,
		Rules:               cmd.Rules,
		SavedPromotionKinds: slices.Clone(cmd.SavedPromotionKinds),
	}
	cart = cart.Clone()
	if err := o.saveCart(ctx, cart); err != nil {
		return Cart{}, err
	}
	o.emitCreated(ctx, cart)
	o.emitActiveChanged(ctx, scope, &cart.ID)
	o.logger(ctx, "cart.created", map[string]any{
		"cartID": cart.ID,
		"scope":  scope.Key(),
	})
	return cart, nil
}

// cloneIntoScope copies a cart into a fresh active cart of the scope with regenerated item ids.
func (o *CartOrchestrator) cloneIntoScope(source Cart, scope CartScope) Cart {
	now := o.now()
	dup := source.Clone()
	dup.ID = o.newID()
	dup.StoreID = scope.StoreID
	dup.ProfileID = scope.Profile.Ptr()
	dup.SessionID = scope.Session.Ptr()
	dup.Status = domain.CartStatusActive
	dup.CreatedAt = now
	dup.UpdatedAt = now
	if dup.Items == nil {
		dup.Items = []CartItem{}
	}
	for i := range dup.Items {
		dup.Items[i].ID = o.newID()
		dup.Items[i].TotalPrice = dup.Items[i].ComputeTotal()
	}
	return dup
}

func (o *CartOrchestrator) loadCart(ctx context.Context, cartID string) (Cart, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return Cart{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	cart, err := o.repo.LoadCart(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: cart %s", ErrCartNotFound, id)
		}
		return Cart{}, fmt.Errorf("cart orchestrator: load cart %s: %w", id, err)
	}
	if cart == nil {
		return Cart{}, fmt.Errorf("%w: cart %s", ErrCartNotFound, id)
	}
	return *cart, nil
}

func (o *CartOrchestrator) loadActiveCart(ctx context.Context, cartID string) (Cart, error) {
	cart, err := o.loadCart(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	if !cart.IsActive() {
		return Cart{}, fmt.Errorf("%w: cart %s is %s", ErrCartNotActive, cart.ID, cart.Status)
	}
	return cart, nil
}

// activeCartIn returns the single active cart of a scope. Finding several is reported as a conflict.
func (o *CartOrchestrator) activeCartIn(ctx context.Context, scope CartScope) (*Cart, error) {
	carts, err := o.discovery.FindActiveCarts(ctx, scope)
	if err != nil {
		return nil, err
	}
	switch len(carts) {
	case 0:
		return nil, nil
	case 1:
		return &carts[0], nil
	default:
		return nil, fmt.Errorf("%w: scope %s has %d active carts", ErrCartConflict, scope.Key(), len(carts))
	}
}

func (o *CartOrchestrator) eligibleGroupCarts(ctx context.Context, group SessionGroup, includeEmpty bool) ([]Cart, error) {
	if strings.TrimSpace(group.SessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	carts, err := o.discovery.FindActiveCartsInGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	if dupes := DuplicateStoreIDs(carts); len(dupes) > 0 {
		o.logger(ctx, "cart.group_duplicate_active", map[string]any{
			"sessionID": group.SessionID,
			"storeIDs":  dupes,
		})
		return nil, fmt.Errorf("%w: session %s has several active carts in stores %s",
			ErrCartConflict, group.SessionID, strings.Join(dupes, ","))
	}
	eligible := EligibleCarts(carts, includeEmpty)
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].StoreID < eligible[j].StoreID })
	return eligible, nil
}

func (o *CartOrchestrator) validateItemChange(ctx context.Context, cart Cart, proposed CartItem) error {
	verdict, err := o.validation.ValidateItemChange(ctx, cart, proposed)
	if err != nil {
		return fmt.Errorf("cart orchestrator: validate item change: %w", err)
	}
	if !verdict.Valid {
		return fmt.Errorf("%w: %s", ErrCartValidationFailed, verdict.Reason)
	}
	return nil
}

func (o *CartOrchestrator) validateCart(ctx context.Context, cart Cart) error {
	verdict, err := o.validation.Validate(ctx, cart)
	if err != nil {
		return fmt.Errorf("cart orchestrator: validate cart %s: %w", cart.ID, err)
	}
	if !verdict.Valid {
		return fmt.Errorf("%w: cart %s: %s", ErrCartValidationFailed, cart.ID, verdict.Reason)
	}
	return nil
}

// commitItemChange runs catalog conflict handling on the proposed cart, then persists it.
func (o *CartOrchestrator) commitItemChange(ctx context.Context, next Cart, item CartItem, track func(context.Context, Cart, CartItem)) (CartMutationResult, error) {
	next.UpdatedAt = o.now()

	conflicts, err := o.conflicts.DetectConflicts(ctx, next)
	if err != nil {
		return CartMutationResult{}, fmt.Errorf("cart orchestrator: detect conflicts: %w", err)
	}
	result := CartMutationResult{Conflicts: conflicts}

	if len(conflicts) > 0 && o.resolver != nil {
		resolution, err := o.resolver.ResolveConflict(ctx, next, conflicts)
		if err != nil {
			return CartMutationResult{}, fmt.Errorf("cart orchestrator: resolve conflicts: %w", err)
		}
		switch {
		case resolution.Err != nil:
			o.logger(ctx, "cart.conflicts_rejected", map[string]any{
				"cartID":    next.ID,
				"conflicts": len(conflicts),
			})
			return CartMutationResult{}, resolution.Err
		case resolution.Cart != nil:
			if resolution.Cart.ID != next.ID {
				return CartMutationResult{}, fmt.Errorf("%w: resolver replaced cart %s with %s", ErrCartConflict, next.ID, resolution.Cart.ID)
			}
			// Resolvers may edit lines only.
			if got, want := resolution.Cart.Scope().Key(), next.Scope().Key(); got != want {
				return CartMutationResult{}, fmt.Errorf("%w: resolver moved cart %s from %s to %s", ErrCartConflict, next.ID, want, got)
			}
			if resolution.Cart.Status != next.Status {
				return CartMutationResult{}, fmt.Errorf("%w: resolver changed status of cart %s to %s", ErrCartConflict, next.ID, resolution.Cart.Status)
			}
			next = resolution.Cart.Clone()
			next.UpdatedAt = o.now()
			result.ConflictsResolved = true
		}
	}

	if err := o.saveCart(ctx, next); err != nil {
		return CartMutationResult{}, err
	}
	result.Cart = next
	o.emitUpdated(ctx, next)
	track(ctx, next, item)
	if len(conflicts) > 0 {
		o.logger(ctx, "cart.conflicts_detected", map[string]any{
			"cartID":    next.ID,
			"conflicts": len(conflicts),
			"resolved":  result.ConflictsResolved,
		})
	}
	return result, nil
}

func (o *CartOrchestrator) cleanup(ctx context.Context, carts []Cart, policy CleanupPolicy, scope domain.RetentionScope) (CartCleanupResult, error) {
	byID := make(map[string]Cart, len(carts))
	for _, cart := range carts {
		byID[cart.ID] = cart
	}
	ids := sortedIDs(ComputeCartsToDelete(carts, policy, o.now(), scope))

	result := CartCleanupResult{DeletedCartIDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		if err := o.deleteCart(ctx, byID[id]); err != nil {
			return result, err
		}
		result.DeletedCartIDs = append(result.DeletedCartIDs, id)
	}
	if len(ids) > 0 {
		o.logger(ctx, "cart.cleanup_completed", map[string]any{
			"deleted":   len(ids),
			"retention": string(scope),
		})
	}
	return result, nil
}

func (o *CartOrchestrator) saveCart(ctx context.Context, cart Cart) error {
	if err := o.repo.SaveCart(ctx, cart); err != nil {
		return fmt.Errorf("cart orchestrator: save cart %s: %w", cart.ID, err)
	}
	return nil
}

func (o *CartOrchestrator) deleteCart(ctx context.Context, cart Cart) error {
	if err := o.repo.DeleteCart(ctx, cart.ID); err != nil {
		return fmt.Errorf("cart orchestrator: delete cart %s: %w", cart.ID, err)
	}
	o.emitDeleted(ctx, cart.ID, cart.Scope())
	return nil
}

func (o *CartOrchestrator) emitCreated(ctx context.Context, cart Cart) {
	snapshot := cart.Clone()
	o.events.Publish(CartEvent{
		Kind:       domain.CartEventCreated,
		CartID:     cart.ID,
		Cart:       &snapshot,
		Scope:      cart.Scope(),
		OccurredAt: o.now(),
	})
	o.analytics.CartCreated(ctx, cart)
}

func (o *CartOrchestrator) emitUpdated(ctx context.Context, cart Cart) {
	snapshot := cart.Clone()
	o.events.Publish(CartEvent{
		Kind:       domain.CartEventUpdated,
		CartID:     cart.ID,
		Cart:       &snapshot,
		Scope:      cart.Scope(),
		OccurredAt: o.now(),
	})
	o.analytics.CartUpdated(ctx, cart)
}

func (o *CartOrchestrator) emitDeleted(ctx context.Context, cartID string, scope CartScope) {
	o.events.Publish(CartEvent{
		Kind:       domain.CartEventDeleted,
		CartID:     cartID,
		Scope:      scope,
		OccurredAt: o.now(),
	})
	o.analytics.CartDeleted(ctx, cartID)
}

func (o *CartOrchestrator) emitActiveChanged(ctx context.Context, scope CartScope, cartID *string) {
	event := CartEvent{
		Kind:       domain.CartEventActiveChanged,
		Scope:      scope,
		OccurredAt: o.now(),
	}
	if cartID != nil {
		id := *cartID
		event.CartID = id
		event.ActiveCartID = &id
	}
	o.events.Publish(event)
	o.analytics.ActiveCartChanged(ctx, scope, event.ActiveCartID)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

var _ CartService = (*CartOrchestrator)(nil)
