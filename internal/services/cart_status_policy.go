package services

import (
	"fmt"

	domain "github.com/hanko-field/carts/internal/domain"
)

// EvaluateCartStatusTransition checks the business preconditions of moving cart to the target status.
func EvaluateCartStatusTransition(cart Cart, to CartStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrCartInvalidInput, to)
	}
	if !domain.CanTransitionCartStatus(cart.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrCartInvalidTransition, cart.Status, to)
	}
	if to == domain.CartStatusCheckedOut && cart.IsGuest() {
		return fmt.Errorf("%w: cart %s", ErrCartGuestCheckout, cart.ID)
	}
	return nil
}

// ShouldClearActiveTracking reports whether the transition vacates the scope's active slot.
func ShouldClearActiveTracking(from, to CartStatus) bool {
	return from == domain.CartStatusActive && to.IsArchived()
}

// RequiresFullValidation reports whether the transition must pass cart validation before it is saved.
func RequiresFullValidation(from, to CartStatus) bool {
	return from == domain.CartStatusActive && to == domain.CartStatusCheckedOut
}
