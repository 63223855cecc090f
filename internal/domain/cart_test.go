package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanTransitionCartStatusSelf(t *testing.T) {
	for _, status := range CartStatuses() {
		require.True(t, CanTransitionCartStatus(status, status), status)
	}
}

func TestCanTransitionCartStatusArchivedIsTerminal(t *testing.T) {
	for _, from := range ArchivedCartStatuses() {
		for _, to := range CartStatuses() {
			if from == to {
				continue
			}
			require.False(t, CanTransitionCartStatus(from, to), "%s -> %s", from, to)
		}
	}
	for _, to := range ArchivedCartStatuses() {
		require.True(t, CanTransitionCartStatus(CartStatusActive, to), to)
	}
}

func TestCartScopeFromNullableIDs(t *testing.T) {
	profile := "u1"
	scope := NewCartScope(" s1 ", &profile, nil)
	require.Equal(t, "s1", scope.StoreID)
	require.False(t, scope.Profile.IsGuest())
	require.True(t, scope.Session.IsSessionless())
	require.Equal(t, "s1|profile:u1|sessionless", scope.Key())

	_, ok := scope.Group()
	require.False(t, ok)

	session := "sess"
	group, ok := NewCartScope("s1", nil, &session).Group()
	require.True(t, ok)
	require.True(t, group.Profile.IsGuest())
	require.Equal(t, "s2|guest|session:sess", group.Scope("s2").Key())
}

func TestProfileAndSessionFiltersAreThreeWay(t *testing.T) {
	id := "x"
	require.True(t, AnyProfile().Matches(nil))
	require.True(t, AnyProfile().Matches(&id))
	require.True(t, GuestOnly().Matches(nil))
	require.False(t, GuestOnly().Matches(&id))
	require.True(t, ForProfile("x").Matches(&id))
	require.False(t, ForProfile("x").Matches(nil))

	require.True(t, AnySession().Matches(nil))
	require.True(t, SessionlessOnly().Matches(nil))
	require.False(t, SessionlessOnly().Matches(&id))
	require.True(t, ForSession("x").Matches(&id))
	require.False(t, ForSession("y").Matches(&id))
}

func TestSortCartsBreaksTiesByID(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	carts := []Cart{
		{ID: "b", CreatedAt: at, UpdatedAt: at.Add(time.Hour)},
		{ID: "a", CreatedAt: at, UpdatedAt: at},
		{ID: "c", CreatedAt: at.Add(time.Minute), UpdatedAt: at},
	}

	SortCarts(carts, "")
	require.Equal(t, []string{"c", "a", "b"}, []string{carts[0].ID, carts[1].ID, carts[2].ID})

	SortCarts(carts, CartSortUpdatedDesc)
	require.Equal(t, []string{"b", "a", "c"}, []string{carts[0].ID, carts[1].ID, carts[2].ID})
}

func TestCartItemComputeTotalAndSameLine(t *testing.T) {
	item := CartItem{ProductID: "p", Quantity: 3, UnitPrice: 100, Modifiers: []CartItemModifier{{ID: "m", PriceDelta: 20}}}
	require.Equal(t, int64(360), item.ComputeTotal())

	same := CartItem{ProductID: "p", Modifiers: []CartItemModifier{{ID: "m", PriceDelta: 20}}}
	require.True(t, item.SameLine(same))
	require.False(t, item.SameLine(CartItem{ProductID: "p"}))
}

func TestCartCloneIsDeep(t *testing.T) {
	name := "Tokyo"
	cart := Cart{
		ID:        "c",
		StoreName: &name,
		Items:     []CartItem{{ID: "i", Modifiers: []CartItemModifier{{ID: "m"}}}},
		Metadata:  map[string]string{"k": "v"},
	}
	dup := cart.Clone()
	dup.Items[0].Modifiers[0].ID = "changed"
	dup.Metadata["k"] = "changed"
	*dup.StoreName = "Osaka"

	require.Equal(t, "m", cart.Items[0].Modifiers[0].ID)
	require.Equal(t, "v", cart.Metadata["k"])
	require.Equal(t, "Tokyo", name)
}
