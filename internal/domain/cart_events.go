package domain

import "time"

// CartEventKind names a domain event emitted by the cart orchestrator.
type CartEventKind string

const (
	CartEventCreated       CartEventKind = "cart.created"
	CartEventUpdated       CartEventKind = "cart.updated"
	CartEventDeleted       CartEventKind = "cart.deleted"
	CartEventActiveChanged CartEventKind = "cart.active_changed"
)

// CartEvent describes a committed change. Cart is set for created/updated events; ActiveCartID is
// only meaningful for active_changed events, where nil means the scope has no active cart.
type CartEvent struct {
	Kind         CartEventKind
	CartID       string
	Cart         *Cart
	Scope        CartScope
	ActiveCartID *string
	OccurredAt   time.Time
}

// CatalogConflictKind classifies a mismatch between a cart and the live catalog.
type CatalogConflictKind string

const (
	CatalogConflictPriceChanged      CatalogConflictKind = "price_changed"
	CatalogConflictUnavailable       CatalogConflictKind = "unavailable"
	CatalogConflictInsufficientStock CatalogConflictKind = "insufficient_stock"
)

// CatalogConflict reports one line that no longer matches the catalog.
type CatalogConflict struct {
	ItemID    string
	ProductID string
	Kind      CatalogConflictKind
	Message   string
}
