package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/carts/internal/domain"
	pfirestore "github.com/hanko-field/carts/internal/platform/firestore"
	"github.com/hanko-field/carts/internal/repositories"
)

const (
	cartCollection = "carts"
)

// CartRepository persists carts as one Firestore document each, keyed by cart id. Guest and
// sessionless carts store explicit nulls so the three-way filters can query them.
type CartRepository struct {
	carts *pfirestore.Collection[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		carts: pfirestore.NewCollection[cartDocument](provider, cartCollection, nil, nil),
	}, nil
}

// LoadCart implements repositories.CartRepository.
func (r *CartRepository) LoadCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return nil, nil
	}
	doc, err := r.carts.Get(ctx, id)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil, nil
		}
		return nil, err
	}
	cart := doc.toDomain()
	return &cart, nil
}

// SaveCart implements repositories.CartRepository.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) error {
	id := strings.TrimSpace(cart.ID)
	if id == "" {
		return errors.New("cart repository: cart id is required")
	}
	return r.carts.Set(ctx, id, newCartDocument(cart))
}

// DeleteCart implements repositories.CartRepository.
func (r *CartRepository) DeleteCart(ctx context.Context, cartID string) error {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return nil
	}
	return r.carts.Delete(ctx, id)
}

// FetchCarts implements repositories.CartRepository.
func (r *CartRepository) FetchCarts(ctx context.Context, query domain.CartQuery, limit *int) ([]domain.Cart, error) {
	docs, err := r.carts.Query(ctx, func(q firestore.Query) firestore.Query {
		return applyLimit(orderBy(filter(q, query), query.Sort), limit)
	})
	if err != nil {
		return nil, err
	}
	return toDomainCarts(docs), nil
}

// FetchAllCarts implements repositories.CartRepository.
func (r *CartRepository) FetchAllCarts(ctx context.Context, limit *int) ([]domain.Cart, error) {
	docs, err := r.carts.Query(ctx, func(q firestore.Query) firestore.Query {
		return applyLimit(orderBy(q, domain.CartSortCreatedAsc), limit)
	})
	if err != nil {
		return nil, err
	}
	return toDomainCarts(docs), nil
}

func filter(q firestore.Query, query domain.CartQuery) firestore.Query {
	if query.StoreID != nil {
		q = q.Where("storeId", "==", *query.StoreID)
	}
	switch query.Profile.Kind {
	case domain.ProfileFilterGuestOnly:
		q = q.Where("profileId", "==", nil)
	case domain.ProfileFilterProfile:
		q = q.Where("profileId", "==", query.Profile.ID)
	}
	switch query.Session.Kind {
	case domain.SessionFilterSessionless:
		q = q.Where("sessionId", "==", nil)
	case domain.SessionFilterSession:
		q = q.Where("sessionId", "==", query.Session.ID)
	}
	if len(query.Statuses) == 1 {
		q = q.Where("status", "==", string(query.Statuses[0]))
	} else if len(query.Statuses) > 1 {
		statuses := make([]string, 0, len(query.Statuses))
		for _, status := range query.Statuses {
			statuses = append(statuses, string(status))
		}
		q = q.Where("status", "in", statuses)
	}
	return q
}

func orderBy(q firestore.Query, order domain.CartSortOrder) firestore.Query {
	if order == "" {
		order = domain.CartSortCreatedDesc
	}
	field := "createdAt"
	if order.ByUpdatedAt() {
		field = "updatedAt"
	}
	direction := firestore.Asc
	if order.Descending() {
		direction = firestore.Desc
	}
	// Ties fall back to the document id ascending, matching domain.SortCarts.
	return q.OrderBy(field, direction).OrderBy(firestore.DocumentID, firestore.Asc)
}

func applyLimit(q firestore.Query, limit *int) firestore.Query {
	if limit == nil || *limit < 0 {
		return q
	}
	return q.Limit(*limit)
}

func toDomainCarts(docs []cartDocument) []domain.Cart {
	out := make([]domain.Cart, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toDomain())
	}
	return out
}

type cartDocument struct {
	ID                  string             `firestore:"id"`
	StoreID             string             `firestore:"storeId"`
	ProfileID           *string            `firestore:"profileId"`
	SessionID           *string            `firestore:"sessionId"`
	Status              string             `firestore:"status"`
	Items               []cartItemDocument `firestore:"items"`
	ItemsCount          int                `firestore:"itemsCount"`
	Metadata            map[string]string  `firestore:"metadata,omitempty"`
	DisplayName         *string            `firestore:"displayName,omitempty"`
	StoreName           *string            `firestore:"storeName,omitempty"`
	StoreImageRef       *string            `firestore:"storeImageRef,omitempty"`
	Rules               *cartRulesDocument `firestore:"rules,omitempty"`
	SavedPromotionKinds []string           `firestore:"savedPromotionKinds,omitempty"`
	CreatedAt           time.Time          `firestore:"createdAt"`
	UpdatedAt           time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID             string                 `firestore:"id"`
	ProductID      string                 `firestore:"productId"`
	Quantity       int                    `firestore:"quantity"`
	UnitPrice      int64                  `firestore:"unitPrice"`
	TotalPrice     int64                  `firestore:"totalPrice"`
	Modifiers      []cartModifierDocument `firestore:"modifiers,omitempty"`
	ImageRef       *string                `firestore:"imageRef,omitempty"`
	AvailableStock *int                   `firestore:"availableStock,omitempty"`
}

type cartModifierDocument struct {
	ID         string `firestore:"id"`
	Name       string `firestore:"name"`
	PriceDelta int64  `firestore:"priceDelta"`
}

type cartRulesDocument struct {
	MinSubtotal  *int64 `firestore:"minSubtotal,omitempty"`
	MaxItemCount *int   `firestore:"maxItemCount,omitempty"`
}

func newCartDocument(cart domain.Cart) cartDocument {
	cart = cart.Clone()
	doc := cartDocument{
		ID:            cart.ID,
		StoreID:       cart.StoreID,
		ProfileID:     cart.ProfileID,
		SessionID:     cart.SessionID,
		Status:        string(cart.Status),
		Items:         make([]cartItemDocument, 0, len(cart.Items)),
		ItemsCount:    cart.ItemCount(),
		Metadata:      cart.Metadata,
		DisplayName:   cart.DisplayName,
		StoreName:     cart.StoreName,
		StoreImageRef: cart.StoreImageRef,
		CreatedAt:     cart.CreatedAt.UTC(),
		UpdatedAt:     cart.UpdatedAt.UTC(),
	}
	for _, item := range cart.Items {
		itemDoc := cartItemDocument{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			TotalPrice:     item.TotalPrice,
			ImageRef:       item.ImageRef,
			AvailableStock: item.AvailableStock,
		}
		for _, mod := range item.Modifiers {
			itemDoc.Modifiers = append(itemDoc.Modifiers, cartModifierDocument(mod))
		}
		doc.Items = append(doc.Items, itemDoc)
	}
	if cart.Rules != nil {
		doc.Rules = &cartRulesDocument{MinSubtotal: cart.Rules.MinSubtotal, MaxItemCount: cart.Rules.MaxItemCount}
	}
	for _, kind := range cart.SavedPromotionKinds {
		doc.SavedPromotionKinds = append(doc.SavedPromotionKinds, string(kind))
	}
	return doc
}

func (d cartDocument) toDomain() domain.Cart {
	cart := domain.Cart{
		ID:            d.ID,
		StoreID:       d.StoreID,
		ProfileID:     d.ProfileID,
		SessionID:     d.SessionID,
		Status:        domain.CartStatus(d.Status),
		Metadata:      d.Metadata,
		DisplayName:   d.DisplayName,
		StoreName:     d.StoreName,
		StoreImageRef: d.StoreImageRef,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
	cart.Items = make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		domainItem := domain.CartItem{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			TotalPrice:     item.TotalPrice,
			ImageRef:       item.ImageRef,
			AvailableStock: item.AvailableStock,
		}
		for _, mod := range item.Modifiers {
			domainItem.Modifiers = append(domainItem.Modifiers, domain.CartItemModifier(mod))
		}
		cart.Items = append(cart.Items, domainItem)
	}
	if d.Rules != nil {
		cart.Rules = &domain.CartRules{MinSubtotal: d.Rules.MinSubtotal, MaxItemCount: d.Rules.MaxItemCount}
	}
	for _, kind := range d.SavedPromotionKinds {
		cart.SavedPromotionKinds = append(cart.SavedPromotionKinds, domain.PromotionKind(kind))
	}
	return cart
}

// Registry serves the Firestore repositories through repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider
	carts    *CartRepository
}

// NewRegistry builds the Firestore-backed registry over a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{provider: provider, carts: carts}, nil
}

// Carts implements repositories.Registry.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Close implements repositories.Registry.
func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

var (
	_ repositories.CartRepository = (*CartRepository)(nil)
	_ repositories.Registry       = (*Registry)(nil)
)
