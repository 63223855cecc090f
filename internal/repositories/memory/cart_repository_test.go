package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/carts/internal/domain"
)

func strPtr(v string) *string { return &v }

func TestCartRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewCartRepository()
	created := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	stock := 4
	cart := domain.Cart{
		ID:        "cart-1",
		StoreID:   "store-1",
		ProfileID: strPtr("user-1"),
		SessionID: strPtr("sess-1"),
		Status:    domain.CartStatusActive,
		Items: []domain.CartItem{{
			ID:             "line-1",
			ProductID:      "prod-1",
			Quantity:       2,
			UnitPrice:      100,
			TotalPrice:     220,
			Modifiers:      []domain.CartItemModifier{{ID: "gift", Name: "Gift wrap", PriceDelta: 10}},
			AvailableStock: &stock,
		}},
		CreatedAt:           created,
		UpdatedAt:           created.Add(time.Minute),
		Metadata:            map[string]string{"channel": "app"},
		SavedPromotionKinds: []domain.PromotionKind{"spring"},
	}

	require.NoError(t, repo.SaveCart(ctx, cart))
	loaded, err := repo.LoadCart(ctx, "cart-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, cart, *loaded)

	loaded.Items[0].Quantity = 99
	again, err := repo.LoadCart(ctx, "cart-1")
	require.NoError(t, err)
	require.Equal(t, 2, again.Items[0].Quantity)
}

func TestCartRepositoryLoadMissingAndDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewCartRepository(domain.Cart{ID: "cart-1", StoreID: "s"})

	missing, err := repo.LoadCart(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, repo.DeleteCart(ctx, "cart-1"))
	require.NoError(t, repo.DeleteCart(ctx, "cart-1"))
	require.Zero(t, repo.Len())
}

func TestCartRepositoryFetchCartsFilters(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	repo := NewCartRepository(
		domain.Cart{ID: "guest", StoreID: "s1", Status: domain.CartStatusActive, CreatedAt: base},
		domain.Cart{ID: "guest-sess", StoreID: "s1", SessionID: strPtr("x"), Status: domain.CartStatusActive, CreatedAt: base.Add(time.Hour)},
		domain.Cart{ID: "profile", StoreID: "s1", ProfileID: strPtr("u"), Status: domain.CartStatusExpired, CreatedAt: base.Add(2 * time.Hour)},
		domain.Cart{ID: "other-store", StoreID: "s2", Status: domain.CartStatusActive, CreatedAt: base.Add(3 * time.Hour)},
	)
	store := "s1"
	ids := func(carts []domain.Cart) []string {
		out := make([]string, 0, len(carts))
		for _, c := range carts {
			out = append(out, c.ID)
		}
		return out
	}

	carts, err := repo.FetchCarts(ctx, domain.CartQuery{StoreID: &store, Profile: domain.GuestOnly(), Session: domain.SessionlessOnly()}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"guest"}, ids(carts))

	carts, err = repo.FetchCarts(ctx, domain.CartQuery{StoreID: &store, Profile: domain.GuestOnly(), Session: domain.AnySession()}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"guest-sess", "guest"}, ids(carts))

	carts, err = repo.FetchCarts(ctx, domain.CartQuery{Profile: domain.AnyProfile(), Session: domain.AnySession(), Statuses: []domain.CartStatus{domain.CartStatusActive}, Sort: domain.CartSortCreatedAsc}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"guest", "guest-sess", "other-store"}, ids(carts))

	limit := 1
	carts, err = repo.FetchCarts(ctx, domain.CartQuery{Profile: domain.ForProfile("u")}, &limit)
	require.NoError(t, err)
	require.Equal(t, []string{"profile"}, ids(carts))

	all, err := repo.FetchAllCarts(ctx, &limit)
	require.NoError(t, err)
	require.Equal(t, []string{"guest"}, ids(all))
}
