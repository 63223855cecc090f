package domain

import (
	"slices"
	"sort"
	"strings"
)

// ProfileFilterKind discriminates the three profile filter modes.
type ProfileFilterKind int

const (
	ProfileFilterAny ProfileFilterKind = iota
	ProfileFilterGuestOnly
	ProfileFilterProfile
)

// ProfileFilter restricts a query by cart owner.
type ProfileFilter struct {
	Kind ProfileFilterKind
	ID   string
}

// AnyProfile matches carts of every owner.
func AnyProfile() ProfileFilter { return ProfileFilter{Kind: ProfileFilterAny} }

// GuestOnly matches carts without a profile.
func GuestOnly() ProfileFilter { return ProfileFilter{Kind: ProfileFilterGuestOnly} }

// ForProfile matches carts owned by the given profile.
func ForProfile(id string) ProfileFilter {
	return ProfileFilter{Kind: ProfileFilterProfile, ID: strings.TrimSpace(id)}
}

// ProfileFilterFor returns the filter that matches exactly the given reference.
func ProfileFilterFor(ref ProfileRef) ProfileFilter {
	if id, ok := ref.ID(); ok {
		return ForProfile(id)
	}
	return GuestOnly()
}

// Matches reports whether the nullable profile id satisfies the filter.
func (f ProfileFilter) Matches(profileID *string) bool {
	switch f.Kind {
	case ProfileFilterGuestOnly:
		return profileID == nil
	case ProfileFilterProfile:
		return profileID != nil && *profileID == f.ID
	default:
		return true
	}
}

// SessionFilterKind discriminates the three session filter modes.
type SessionFilterKind int

const (
	SessionFilterAny SessionFilterKind = iota
	SessionFilterSessionless
	SessionFilterSession
)

// SessionFilter restricts a query by checkout session.
type SessionFilter struct {
	Kind SessionFilterKind
	ID   string
}

// AnySession matches carts with or without a session.
func AnySession() SessionFilter { return SessionFilter{Kind: SessionFilterAny} }

// SessionlessOnly matches carts that belong to no session.
func SessionlessOnly() SessionFilter { return SessionFilter{Kind: SessionFilterSessionless} }

// ForSession matches carts of the given session.
func ForSession(id string) SessionFilter {
	return SessionFilter{Kind: SessionFilterSession, ID: strings.TrimSpace(id)}
}

// SessionFilterFor returns the filter that matches exactly the given reference.
func SessionFilterFor(ref SessionRef) SessionFilter {
	if id, ok := ref.ID(); ok {
		return ForSession(id)
	}
	return SessionlessOnly()
}

// Matches reports whether the nullable session id satisfies the filter.
func (f SessionFilter) Matches(sessionID *string) bool {
	switch f.Kind {
	case SessionFilterSessionless:
		return sessionID == nil
	case SessionFilterSession:
		return sessionID != nil && *sessionID == f.ID
	default:
		return true
	}
}

// CartSortOrder selects the ordering of query results.
type CartSortOrder string

const (
	CartSortCreatedAsc  CartSortOrder = "created_asc"
	CartSortCreatedDesc CartSortOrder = "created_desc"
	CartSortUpdatedAsc  CartSortOrder = "updated_asc"
	CartSortUpdatedDesc CartSortOrder = "updated_desc"
)

// ByUpdatedAt reports whether the order ranks by update time.
func (o CartSortOrder) ByUpdatedAt() bool {
	return o == CartSortUpdatedAsc || o == CartSortUpdatedDesc
}

// Descending reports whether the order is newest first.
func (o CartSortOrder) Descending() bool {
	return o == CartSortCreatedDesc || o == CartSortUpdatedDesc
}

// CartQuery describes a filtered, ordered cart lookup. A nil StoreID matches every store and an
// empty Statuses list applies no status filter.
type CartQuery struct {
	StoreID  *string
	Profile  ProfileFilter
	Session  SessionFilter
	Statuses []CartStatus
	Sort     CartSortOrder
}

// Matches reports whether the cart satisfies every filter of the query.
func (q CartQuery) Matches(cart Cart) bool {
	if q.StoreID != nil && cart.StoreID != *q.StoreID {
		return false
	}
	if !q.Profile.Matches(cart.ProfileID) {
		return false
	}
	if !q.Session.Matches(cart.SessionID) {
		return false
	}
	if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, cart.Status) {
		return false
	}
	return true
}

// SortCarts orders carts in place; ties fall back to the cart id so results are stable.
func SortCarts(carts []Cart, order CartSortOrder) {
	if order == "" {
		order = CartSortCreatedDesc
	}
	sort.SliceStable(carts, func(i, j int) bool {
		a, b := carts[i].CreatedAt, carts[j].CreatedAt
		if order.ByUpdatedAt() {
			a, b = carts[i].UpdatedAt, carts[j].UpdatedAt
		}
		if !a.Equal(b) {
			if order.Descending() {
				return a.After(b)
			}
			return a.Before(b)
		}
		return carts[i].ID < carts[j].ID
	})
}
