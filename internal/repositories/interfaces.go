package repositories

import (
	"context"

	domain "github.com/hanko-field/carts/internal/domain"
)

// Registry exposes the storage ports and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository is the storage port consumed by the cart orchestrator.
type CartRepository interface {
	// LoadCart returns nil without error when no cart has the id.
	LoadCart(ctx context.Context, cartID string) (*domain.Cart, error)
	// SaveCart upserts the cart by id.
	SaveCart(ctx context.Context, cart domain.Cart) error
	// DeleteCart removes the cart; deleting a missing id is not an error.
	DeleteCart(ctx context.Context, cartID string) error
	// FetchCarts returns matching carts ordered by query.Sort, truncated to limit when set.
	FetchCarts(ctx context.Context, query domain.CartQuery, limit *int) ([]domain.Cart, error)
	// FetchAllCarts returns a snapshot of every cart for migration tooling.
	FetchAllCarts(ctx context.Context, limit *int) ([]domain.Cart, error)
}
