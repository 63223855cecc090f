package domain

import (
	"slices"
	"time"
)

// CartStatus enumerates the lifecycle states of a cart.
type CartStatus string

const (
	// CartStatusActive marks the single mutable cart of a scope.
	CartStatusActive CartStatus = "active"
	// CartStatusCheckedOut marks a cart that completed checkout.
	CartStatusCheckedOut CartStatus = "checked_out"
	// CartStatusCancelled marks a cart abandoned by the shopper.
	CartStatusCancelled CartStatus = "cancelled"
	// CartStatusExpired marks a cart replaced or timed out by the system.
	CartStatusExpired CartStatus = "expired"
)

// PromotionKind identifies a promotion understood by the promotion strategy.
type PromotionKind string

// Cart aggregates the line items and scope of one shopping cart.
type Cart struct {
	ID                  string
	StoreID             string
	ProfileID           *string
	SessionID           *string
	Items               []CartItem
	Status              CartStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Metadata            map[string]string
	DisplayName         *string
	StoreName           *string
	StoreImageRef       *string
	Rules               *CartRules
	SavedPromotionKinds []PromotionKind
}

// CartRules overrides validation limits for a single cart.
type CartRules struct {
	MinSubtotal  *int64
	MaxItemCount *int
}

// CartItem stores one product line within a cart.
type CartItem struct {
	ID             string
	ProductID      string
	Quantity       int
	UnitPrice      int64
	TotalPrice     int64
	Modifiers      []CartItemModifier
	ImageRef       *string
	AvailableStock *int
}

// CartItemModifier adjusts the unit price of a line (size, engraving, gift wrap).
type CartItemModifier struct {
	ID         string
	Name       string
	PriceDelta int64
}

// IsActive reports whether the cart may still be mutated.
func (c Cart) IsActive() bool {
	return c.Status == CartStatusActive
}

// IsGuest reports whether the cart belongs to an anonymous shopper.
func (c Cart) IsGuest() bool {
	return c.ProfileID == nil
}

// Scope returns the uniqueness scope of the cart.
func (c Cart) Scope() CartScope {
	scope := CartScope{StoreID: c.StoreID, Profile: Guest(), Session: Sessionless()}
	if c.ProfileID != nil {
		scope.Profile = Profile(*c.ProfileID)
	}
	if c.SessionID != nil {
		scope.Session = Session(*c.SessionID)
	}
	return scope
}

// ItemCount sums the quantities of every line.
func (c Cart) ItemCount() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// IndexOfItem returns the position of the item with the given id, or -1.
func (c Cart) IndexOfItem(itemID string) int {
	for i, item := range c.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

// ComputeTotal returns the line total including modifier deltas.
func (i CartItem) ComputeTotal() int64 {
	unit := i.UnitPrice
	for _, mod := range i.Modifiers {
		unit += mod.PriceDelta
	}
	if i.Quantity <= 0 {
		return 0
	}
	return unit * int64(i.Quantity)
}

// SameLine reports whether two items describe the same product configuration.
func (i CartItem) SameLine(other CartItem) bool {
	if i.ProductID != other.ProductID {
		return false
	}
	return slices.Equal(i.Modifiers, other.Modifiers)
}

// Clone returns a deep copy of the cart.
func (c Cart) Clone() Cart {
	dup := c
	dup.ProfileID = cloneString(c.ProfileID)
	dup.SessionID = cloneString(c.SessionID)
	dup.DisplayName = cloneString(c.DisplayName)
	dup.StoreName = cloneString(c.StoreName)
	dup.StoreImageRef = cloneString(c.StoreImageRef)
	dup.Items = CloneCartItems(c.Items)
	if c.Metadata != nil {
		dup.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			dup.Metadata[k] = v
		}
	}
	if c.Rules != nil {
		rules := CartRules{}
		if c.Rules.MinSubtotal != nil {
			v := *c.Rules.MinSubtotal
			rules.MinSubtotal = &v
		}
		if c.Rules.MaxItemCount != nil {
			v := *c.Rules.MaxItemCount
			rules.MaxItemCount = &v
		}
		dup.Rules = &rules
	}
	if c.SavedPromotionKinds != nil {
		dup.SavedPromotionKinds = slices.Clone(c.SavedPromotionKinds)
	}
	return dup
}

// CloneCartItems deep copies a slice of items, preserving their identities.
func CloneCartItems(items []CartItem) []CartItem {
	if items == nil {
		return nil
	}
	dup := make([]CartItem, len(items))
	for i, item := range items {
		dup[i] = item
		dup[i].ImageRef = cloneString(item.ImageRef)
		if item.AvailableStock != nil {
			v := *item.AvailableStock
			dup[i].AvailableStock = &v
		}
		if item.Modifiers != nil {
			dup[i].Modifiers = slices.Clone(item.Modifiers)
		}
	}
	return dup
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	dup := *value
	return &dup
}
