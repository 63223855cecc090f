package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	domain "github.com/hanko-field/carts/internal/domain"
	"github.com/hanko-field/carts/internal/repositories"
)

// CartRepository provides an in-memory storage port useful for testing and local development.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewCartRepository constructs an empty memory-backed cart repository.
func NewCartRepository(seed ...domain.Cart) *CartRepository {
	repo := &CartRepository{carts: make(map[string]domain.Cart, len(seed))}
	for _, cart := range seed {
		repo.carts[cart.ID] = cart.Clone()
	}
	return repo
}

// LoadCart implements repositories.CartRepository.
func (r *CartRepository) LoadCart(_ context.Context, cartID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[strings.TrimSpace(cartID)]
	if !ok {
		return nil, nil
	}
	dup := cart.Clone()
	return &dup, nil
}

// SaveCart implements repositories.CartRepository.
func (r *CartRepository) SaveCart(_ context.Context, cart domain.Cart) error {
	id := strings.TrimSpace(cart.ID)
	if id == "" {
		return errors.New("memory cart repository: cart id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts[id] = cart.Clone()
	return nil
}

// DeleteCart implements repositories.CartRepository.
func (r *CartRepository) DeleteCart(_ context.Context, cartID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, strings.TrimSpace(cartID))
	return nil
}

// FetchCarts implements repositories.CartRepository.
func (r *CartRepository) FetchCarts(_ context.Context, query domain.CartQuery, limit *int) ([]domain.Cart, error) {
	r.mu.RLock()
	out := make([]domain.Cart, 0, len(r.carts))
	for _, cart := range r.carts {
		if query.Matches(cart) {
			out = append(out, cart.Clone())
		}
	}
	r.mu.RUnlock()

	domain.SortCarts(out, query.Sort)
	return truncate(out, limit), nil
}

// FetchAllCarts implements repositories.CartRepository.
func (r *CartRepository) FetchAllCarts(_ context.Context, limit *int) ([]domain.Cart, error) {
	r.mu.RLock()
	out := make([]domain.Cart, 0, len(r.carts))
	for _, cart := range r.carts {
		out = append(out, cart.Clone())
	}
	r.mu.RUnlock()

	domain.SortCarts(out, domain.CartSortCreatedAsc)
	return truncate(out, limit), nil
}

// Len returns the number of stored carts.
func (r *CartRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.carts)
}

func truncate(carts []domain.Cart, limit *int) []domain.Cart {
	if limit == nil || *limit < 0 || len(carts) <= *limit {
		return carts
	}
	return carts[:*limit]
}

// Registry serves the memory repositories through repositories.Registry.
type Registry struct {
	carts *CartRepository
}

// NewRegistry wraps the supplied cart repository, creating an empty one when nil.
func NewRegistry(carts *CartRepository) *Registry {
	if carts == nil {
		carts = NewCartRepository()
	}
	return &Registry{carts: carts}
}

// Carts implements repositories.Registry.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Close implements repositories.Registry.
func (r *Registry) Close(context.Context) error { return nil }

var (
	_ repositories.CartRepository = (*CartRepository)(nil)
	_ repositories.Registry       = (*Registry)(nil)
)
