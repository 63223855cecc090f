package services

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/carts/internal/domain"
)

// GuestMigrationStrategy selects how a guest cart becomes a profile cart.
type GuestMigrationStrategy string

const (
	// GuestMigrationMove re-scopes the guest cart in place, keeping its id.
	GuestMigrationMove GuestMigrationStrategy = "move"
	// GuestMigrationCopyAndDelete clones the guest cart into a new profile cart and deletes the original.
	GuestMigrationCopyAndDelete GuestMigrationStrategy = "copy_and_delete"
)

// RequireGuestActiveCart returns the cart when it is an active guest cart of the store.
func RequireGuestActiveCart(cart *Cart, storeID string) (Cart, error) {
	if cart == nil || !cart.IsActive() || !cart.IsGuest() || cart.StoreID != storeID {
		return Cart{}, fmt.Errorf("%w: no active guest cart in store %s", ErrCartConflict, storeID)
	}
	return *cart, nil
}

// ValidateTargetScopeIsEmpty fails when the profile already holds an active cart in the target scope.
func ValidateTargetScopeIsEmpty(active *Cart, storeID, profileID string) error {
	if active == nil || !active.IsActive() {
		return nil
	}
	return fmt.Errorf("%w: profile %s already has active cart %s in store %s",
		ErrCartConflict, profileID, active.ID, storeID)
}

// MakeMovedCart re-scopes a cart to the profile, keeping its id and items.
func MakeMovedCart(from Cart, profileID string, now time.Time) Cart {
	moved := from.Clone()
	id := strings.TrimSpace(profileID)
	moved.ProfileID = &id
	moved.Status = domain.CartStatusActive
	moved.UpdatedAt = now
	return moved
}
