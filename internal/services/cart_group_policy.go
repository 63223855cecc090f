package services

import (
	"sort"
)

// EligibleCarts keeps the active carts that take part in a group checkout. Empty carts are dropped
// unless includeEmpty is set.
func EligibleCarts(carts []Cart, includeEmpty bool) []Cart {
	out := make([]Cart, 0, len(carts))
	for _, cart := range carts {
		if !cart.IsActive() {
			continue
		}
		if !includeEmpty && len(cart.Items) == 0 {
			continue
		}
		out = append(out, cart)
	}
	return out
}

// DuplicateStoreIDs returns, sorted, the store ids holding more than one active cart.
func DuplicateStoreIDs(carts []Cart) []string {
	counts := make(map[string]int, len(carts))
	for _, cart := range carts {
		if cart.IsActive() {
			counts[cart.StoreID]++
		}
	}
	var dupes []string
	for storeID, n := range counts {
		if n > 1 {
			dupes = append(dupes, storeID)
		}
	}
	sort.Strings(dupes)
	return dupes
}
