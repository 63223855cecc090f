//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/carts/internal/domain"
	"github.com/hanko-field/carts/internal/platform/db"
)

func TestCartRepositoryIntegration(t *testing.T) {
	dsn := os.Getenv("CARTS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CARTS_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE carts`)
	require.NoError(t, err)

	repo, err := NewCartRepository(pool)
	require.NoError(t, err)

	profile := "user-1"
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	guest := domain.Cart{ID: "guest", StoreID: "s1", Status: domain.CartStatusActive, CreatedAt: base, UpdatedAt: base,
		Items: []domain.CartItem{{ID: "i", ProductID: "p", Quantity: 1, UnitPrice: 100, TotalPrice: 100}}}
	owned := domain.Cart{ID: "owned", StoreID: "s1", ProfileID: &profile, Status: domain.CartStatusExpired, CreatedAt: base.Add(time.Hour), UpdatedAt: base}
	require.NoError(t, repo.SaveCart(ctx, guest))
	require.NoError(t, repo.SaveCart(ctx, owned))

	loaded, err := repo.LoadCart(ctx, "guest")
	require.NoError(t, err)
	require.Equal(t, guest, *loaded)

	guest.Status = domain.CartStatusCheckedOut
	require.NoError(t, repo.SaveCart(ctx, guest))
	loaded, err = repo.LoadCart(ctx, "guest")
	require.NoError(t, err)
	require.Equal(t, domain.CartStatusCheckedOut, loaded.Status)

	store := "s1"
	carts, err := repo.FetchCarts(ctx, domain.CartQuery{StoreID: &store, Profile: domain.GuestOnly()}, nil)
	require.NoError(t, err)
	require.Len(t, carts, 1)
	require.Equal(t, "guest", carts[0].ID)

	limit := 1
	all, err := repo.FetchAllCarts(ctx, &limit)
	require.NoError(t, err)
	require.Equal(t, "guest", all[0].ID)

	require.NoError(t, repo.DeleteCart(ctx, "owned"))
	require.NoError(t, repo.DeleteCart(ctx, "owned"))
	missing, err := repo.LoadCart(ctx, "owned")
	require.NoError(t, err)
	require.Nil(t, missing)
}
