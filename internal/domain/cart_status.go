package domain

import "slices"

var cartStatusTransitions = map[CartStatus][]CartStatus{
	CartStatusActive: {CartStatusCheckedOut, CartStatusCancelled, CartStatusExpired},
}

// CartStatuses lists every known status in declaration order.
func CartStatuses() []CartStatus {
	return []CartStatus{CartStatusActive, CartStatusCheckedOut, CartStatusCancelled, CartStatusExpired}
}

// ArchivedCartStatuses lists the terminal statuses.
func ArchivedCartStatuses() []CartStatus {
	return []CartStatus{CartStatusCheckedOut, CartStatusCancelled, CartStatusExpired}
}

// Valid reports whether the status is one of the known values.
func (s CartStatus) Valid() bool {
	return slices.Contains(CartStatuses(), s)
}

// IsArchived reports whether the status is terminal.
func (s CartStatus) IsArchived() bool {
	return s.Valid() && s != CartStatusActive
}

// CanTransitionCartStatus reports whether a cart may move from one status to another.
// Self transitions are always allowed; archived statuses are terminal.
func CanTransitionCartStatus(from, to CartStatus) bool {
	if from == to {
		return true
	}
	next, ok := cartStatusTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(next, to)
}
