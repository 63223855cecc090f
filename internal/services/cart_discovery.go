package services

import (
	"context"
	"fmt"

	domain "github.com/hanko-field/carts/internal/domain"
	"github.com/hanko-field/carts/internal/repositories"
)

// ScopeQuery matches every cart of the exact scope, newest first.
func ScopeQuery(scope CartScope, statuses ...CartStatus) CartQuery {
	storeID := scope.StoreID
	return CartQuery{
		StoreID:  &storeID,
		Profile:  domain.ProfileFilterFor(scope.Profile),
		Session:  domain.SessionFilterFor(scope.Session),
		Statuses: statuses,
		Sort:     domain.CartSortCreatedDesc,
	}
}

// ActiveScopeQuery matches the active carts of the exact scope.
func ActiveScopeQuery(scope CartScope) CartQuery {
	return ScopeQuery(scope, domain.CartStatusActive)
}

// GroupQuery matches the carts of a session group across every store.
func GroupQuery(group SessionGroup, statuses ...CartStatus) CartQuery {
	return CartQuery{
		Profile:  domain.ProfileFilterFor(group.Profile),
		Session:  domain.ForSession(group.SessionID),
		Statuses: statuses,
		Sort:     domain.CartSortCreatedDesc,
	}
}

// ActiveGroupQuery matches the active carts of a session group.
func ActiveGroupQuery(group SessionGroup) CartQuery {
	return GroupQuery(group, domain.CartStatusActive)
}

// ArchivedQuery matches every archived cart regardless of scope, oldest update first.
func ArchivedQuery() CartQuery {
	return CartQuery{
		Profile:  domain.AnyProfile(),
		Session:  domain.AnySession(),
		Statuses: domain.ArchivedCartStatuses(),
		Sort:     domain.CartSortUpdatedAsc,
	}
}

// CartDiscovery runs cart queries against the storage port.
type CartDiscovery struct {
	repo repositories.CartRepository
}

// NewCartDiscovery binds discovery to a repository.
func NewCartDiscovery(repo repositories.CartRepository) *CartDiscovery {
	return &CartDiscovery{repo: repo}
}

// FindCarts executes an arbitrary query.
func (d *CartDiscovery) FindCarts(ctx context.Context, query CartQuery, limit *int) ([]Cart, error) {
	carts, err := d.repo.FetchCarts(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("cart discovery: fetch carts: %w", err)
	}
	return carts, nil
}

// FindActiveCarts lists the active carts of a scope. More than one result means the scope is corrupt.
func (d *CartDiscovery) FindActiveCarts(ctx context.Context, scope CartScope) ([]Cart, error) {
	return d.FindCarts(ctx, ActiveScopeQuery(scope), nil)
}

// FindActiveCartsInGroup lists the active carts of a session group across stores.
func (d *CartDiscovery) FindActiveCartsInGroup(ctx context.Context, group SessionGroup) ([]Cart, error) {
	return d.FindCarts(ctx, ActiveGroupQuery(group), nil)
}

// FindGroupCarts lists every cart of a session group across stores.
func (d *CartDiscovery) FindGroupCarts(ctx context.Context, group SessionGroup) ([]Cart, error) {
	return d.FindCarts(ctx, GroupQuery(group), nil)
}

// FindScopeCarts lists every cart of a scope.
func (d *CartDiscovery) FindScopeCarts(ctx context.Context, scope CartScope) ([]Cart, error) {
	return d.FindCarts(ctx, ScopeQuery(scope), nil)
}
