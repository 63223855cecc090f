package domain

import "strings"

// ProfileRef identifies the owner of a cart. The zero value is a guest.
type ProfileRef struct {
	id string
}

// Guest returns the anonymous profile reference.
func Guest() ProfileRef { return ProfileRef{} }

// Profile returns a reference to an authenticated profile.
func Profile(id string) ProfileRef { return ProfileRef{id: strings.TrimSpace(id)} }

// IsGuest reports whether the reference is anonymous.
func (p ProfileRef) IsGuest() bool { return p.id == "" }

// ID returns the profile id and whether one is set.
func (p ProfileRef) ID() (string, bool) { return p.id, p.id != "" }

// Ptr returns the profile id as the nullable form stored on carts.
func (p ProfileRef) Ptr() *string {
	if p.id == "" {
		return nil
	}
	id := p.id
	return &id
}

func (p ProfileRef) String() string {
	if p.id == "" {
		return "guest"
	}
	return "profile:" + p.id
}

// SessionRef identifies the checkout session of a cart. The zero value is sessionless.
type SessionRef struct {
	id string
}

// Sessionless returns the reference for carts outside any session group.
func Sessionless() SessionRef { return SessionRef{} }

// Session returns a reference to a checkout session.
func Session(id string) SessionRef { return SessionRef{id: strings.TrimSpace(id)} }

// IsSessionless reports whether no session is referenced.
func (s SessionRef) IsSessionless() bool { return s.id == "" }

// ID returns the session id and whether one is set.
func (s SessionRef) ID() (string, bool) { return s.id, s.id != "" }

// Ptr returns the session id as the nullable form stored on carts.
func (s SessionRef) Ptr() *string {
	if s.id == "" {
		return nil
	}
	id := s.id
	return &id
}

func (s SessionRef) String() string {
	if s.id == "" {
		return "sessionless"
	}
	return "session:" + s.id
}

// CartScope bounds the uniqueness of active carts: at most one per scope.
type CartScope struct {
	StoreID string
	Profile ProfileRef
	Session SessionRef
}

// NewCartScope builds a scope from the nullable identifiers used on carts.
func NewCartScope(storeID string, profileID, sessionID *string) CartScope {
	scope := CartScope{StoreID: strings.TrimSpace(storeID)}
	if profileID != nil {
		scope.Profile = Profile(*profileID)
	}
	if sessionID != nil {
		scope.Session = Session(*sessionID)
	}
	return scope
}

// Key returns a stable identifier suitable for grouping carts by scope.
func (s CartScope) Key() string {
	return s.StoreID + "|" + s.Profile.String() + "|" + s.Session.String()
}

// Group returns the session group the scope belongs to, if any.
func (s CartScope) Group() (SessionGroup, bool) {
	id, ok := s.Session.ID()
	if !ok {
		return SessionGroup{}, false
	}
	return SessionGroup{Profile: s.Profile, SessionID: id}, true
}

// SessionGroup spans the active carts of one checkout session across stores.
type SessionGroup struct {
	Profile   ProfileRef
	SessionID string
}

// Scope returns the scope of the group's cart in the given store.
func (g SessionGroup) Scope(storeID string) CartScope {
	return CartScope{StoreID: storeID, Profile: g.Profile, Session: Session(g.SessionID)}
}
