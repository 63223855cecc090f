package services

import (
	"sort"
	"time"

	domain "github.com/hanko-field/carts/internal/domain"
)

const cleanupDay = 24 * time.Hour

// ComputeCartsToDelete selects the archived carts the policy removes. Active carts are never selected.
// Age rules compare UpdatedAt against now; the archived cap then ranks the survivors newest first,
// across the whole input or per store depending on scope.
func ComputeCartsToDelete(carts []Cart, policy CleanupPolicy, now time.Time, scope domain.RetentionScope) map[string]struct{} {
	doomed := make(map[string]struct{})
	if len(carts) == 0 || policy.IsEmpty() {
		return doomed
	}

	survivors := make([]Cart, 0, len(carts))
	for _, cart := range carts {
		if !cart.Status.IsArchived() {
			continue
		}
		if olderThan(cart, policy.AgeRule(cart.Status), now) {
			doomed[cart.ID] = struct{}{}
			continue
		}
		survivors = append(survivors, cart)
	}

	if policy.MaxArchivedCartsPerScope == nil {
		return doomed
	}
	limit := max(*policy.MaxArchivedCartsPerScope, 0)

	buckets := make(map[string][]Cart)
	for _, cart := range survivors {
		key := ""
		if scope == domain.RetentionPerStore {
			key = cart.StoreID
		}
		buckets[key] = append(buckets[key], cart)
	}
	for _, bucket := range buckets {
		if len(bucket) <= limit {
			continue
		}
		sort.Slice(bucket, func(i, j int) bool {
			if !bucket[i].UpdatedAt.Equal(bucket[j].UpdatedAt) {
				return bucket[i].UpdatedAt.After(bucket[j].UpdatedAt)
			}
			return bucket[i].ID < bucket[j].ID
		})
		for _, cart := range bucket[limit:] {
			doomed[cart.ID] = struct{}{}
		}
	}
	return doomed
}

func olderThan(cart Cart, days *int, now time.Time) bool {
	if days == nil {
		return false
	}
	cutoff := now.Add(-time.Duration(max(*days, 0)) * cleanupDay)
	return cart.UpdatedAt.Before(cutoff)
}

// sortedIDs flattens an id set into ascending order.
func sortedIDs(ids map[string]struct{}) []string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
