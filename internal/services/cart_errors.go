package services

import (
	"errors"
	"fmt"
)

var (
	// ErrCartNotFound indicates the requested cart does not exist.
	ErrCartNotFound = errors.New("cart orchestrator: not found")
	// ErrCartConflict indicates the request would violate scope uniqueness or group consistency.
	ErrCartConflict = errors.New("cart orchestrator: conflict")
	// ErrCartValidationFailed indicates a cart or item business rule rejected the change.
	ErrCartValidationFailed = errors.New("cart orchestrator: validation failed")
	// ErrCartInvalidInput indicates the caller supplied malformed input.
	ErrCartInvalidInput = errors.New("cart orchestrator: invalid input")

	// ErrCartItemNotFound indicates the cart has no line with the requested id.
	ErrCartItemNotFound = fmt.Errorf("%w: item", ErrCartNotFound)
	// ErrCartNotActive indicates a mutation targeted an archived cart.
	ErrCartNotActive = fmt.Errorf("%w: cart is not active", ErrCartConflict)
	// ErrCartInvalidTransition indicates the status state machine rejected the change.
	ErrCartInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrCartConflict)
	// ErrCartGuestCheckout indicates a guest cart attempted to check out.
	ErrCartGuestCheckout = fmt.Errorf("%w: guest carts cannot check out", ErrCartValidationFailed)
	// ErrCartCurrencyMismatch indicates group totals mixed currencies.
	ErrCartCurrencyMismatch = fmt.Errorf("%w: currency mismatch", ErrCartValidationFailed)
)

var (
	errCartRepositoryRequired = errors.New("cart orchestrator: repository is required")
	errCartClockRequired      = errors.New("cart orchestrator: clock is required")
)
