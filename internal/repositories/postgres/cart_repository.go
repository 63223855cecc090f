package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/hanko-field/carts/internal/domain"
	"github.com/hanko-field/carts/internal/repositories"
)

const cartColumns = `id, store_id, profile_id, session_id, status, items, metadata, display_name, store_name,
store_image_ref, rules, saved_promotion_kinds, created_at, updated_at`

// CartRepository stores one row per cart; line items, metadata and rules live in jsonb columns.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository constructs a Postgres-backed cart repository.
func NewCartRepository(pool *pgxpool.Pool) (*CartRepository, error) {
	if pool == nil {
		return nil, errors.New("cart repository requires postgres pool")
	}
	return &CartRepository{pool: pool}, nil
}

// LoadCart implements repositories.CartRepository.
func (r *CartRepository) LoadCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, strings.TrimSpace(cartID))
	cart, err := scanCart(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("carts.load", err)
	}
	return &cart, nil
}

// SaveCart implements repositories.CartRepository.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) error {
	id := strings.TrimSpace(cart.ID)
	if id == "" {
		return errors.New("cart repository: cart id is required")
	}
	row := newCartRow(cart)
	const q = `
INSERT INTO carts (` + cartColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
    store_id = EXCLUDED.store_id,
    profile_id = EXCLUDED.profile_id,
    session_id = EXCLUDED.session_id,
    status = EXCLUDED.status,
    items = EXCLUDED.items,
    metadata = EXCLUDED.metadata,
    display_name = EXCLUDED.display_name,
    store_name = EXCLUDED.store_name,
    store_image_ref = EXCLUDED.store_image_ref,
    rules = EXCLUDED.rules,
    saved_promotion_kinds = EXCLUDED.saved_promotion_kinds,
    created_at = EXCLUDED.created_at,
    updated_at = EXCLUDED.updated_at
`
	_, err := r.pool.Exec(ctx, q,
		id, cart.StoreID, cart.ProfileID, cart.SessionID, string(cart.Status),
		row.Items, row.Metadata, cart.DisplayName, cart.StoreName, cart.StoreImageRef,
		row.Rules, row.PromotionKinds, cart.CreatedAt.UTC(), cart.UpdatedAt.UTC(),
	)
	return wrapError("carts.save", err)
}

// DeleteCart implements repositories.CartRepository.
func (r *CartRepository) DeleteCart(ctx context.Context, cartID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE id = $1`, strings.TrimSpace(cartID))
	return wrapError("carts.delete", err)
}

// FetchCarts implements repositories.CartRepository.
func (r *CartRepository) FetchCarts(ctx context.Context, query domain.CartQuery, limit *int) ([]domain.Cart, error) {
	sql, args := buildFetchQuery(query, limit)
	return r.query(ctx, "carts.fetch", sql, args...)
}

// FetchAllCarts implements repositories.CartRepository.
func (r *CartRepository) FetchAllCarts(ctx context.Context, limit *int) ([]domain.Cart, error) {
	sql, args := buildFetchQuery(domain.CartQuery{Sort: domain.CartSortCreatedAsc}, limit)
	return r.query(ctx, "carts.fetch_all", sql, args...)
}

func (r *CartRepository) query(ctx context.Context, op, sql string, args ...any) ([]domain.Cart, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer rows.Close()

	var carts []domain.Cart
	for rows.Next() {
		cart, err := scanCart(rows)
		if err != nil {
			return nil, wrapError(op, err)
		}
		carts = append(carts, cart)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(op, err)
	}
	return carts, nil
}

// buildFetchQuery renders the filters of query as positional SQL.
func buildFetchQuery(query domain.CartQuery, limit *int) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if query.StoreID != nil {
		where = append(where, "store_id = "+arg(*query.StoreID))
	}
	switch query.Profile.Kind {
	case domain.ProfileFilterGuestOnly:
		where = append(where, "profile_id IS NULL")
	case domain.ProfileFilterProfile:
		where = append(where, "profile_id = "+arg(query.Profile.ID))
	}
	switch query.Session.Kind {
	case domain.SessionFilterSessionless:
		where = append(where, "session_id IS NULL")
	case domain.SessionFilterSession:
		where = append(where, "session_id = "+arg(query.Session.ID))
	}
	if len(query.Statuses) > 0 {
		statuses := make([]string, 0, len(query.Statuses))
		for _, status := range query.Statuses {
			statuses = append(statuses, string(status))
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}

	var b strings.Builder
	b.WriteString("SELECT " + cartColumns + " FROM carts")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	order := query.Sort
	if order == "" {
		order = domain.CartSortCreatedDesc
	}
	column := "created_at"
	if order.ByUpdatedAt() {
		column = "updated_at"
	}
	direction := "ASC"
	if order.Descending() {
		direction = "DESC"
	}
	b.WriteString(" ORDER BY " + column + " " + direction + ", id ASC")

	if limit != nil && *limit >= 0 {
		b.WriteString(" LIMIT " + arg(*limit))
	}
	return b.String(), args
}

func scanCart(row pgx.Row) (domain.Cart, error) {
	var (
		cart   domain.Cart
		status string
		data   cartRow
	)
	err := row.Scan(
		&cart.ID, &cart.StoreID, &cart.ProfileID, &cart.SessionID, &status,
		&data.Items, &data.Metadata, &cart.DisplayName, &cart.StoreName, &cart.StoreImageRef,
		&data.Rules, &data.PromotionKinds, &cart.CreatedAt, &cart.UpdatedAt,
	)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Status = domain.CartStatus(status)
	cart.CreatedAt = cart.CreatedAt.UTC()
	cart.UpdatedAt = cart.UpdatedAt.UTC()
	data.apply(&cart)
	return cart, nil
}

// cartRow carries the columns whose shape differs from the domain type.
type cartRow struct {
	Items          []itemJSON
	Metadata       map[string]string
	Rules          *rulesJSON
	PromotionKinds []string
}

type itemJSON struct {
	ID             string         `json:"id"`
	ProductID      string         `json:"productId"`
	Quantity       int            `json:"quantity"`
	UnitPrice      int64          `json:"unitPrice"`
	TotalPrice     int64          `json:"totalPrice"`
	Modifiers      []modifierJSON `json:"modifiers,omitempty"`
	ImageRef       *string        `json:"imageRef,omitempty"`
	AvailableStock *int           `json:"availableStock,omitempty"`
}

type modifierJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceDelta int64  `json:"priceDelta"`
}

type rulesJSON struct {
	MinSubtotal  *int64 `json:"minSubtotal,omitempty"`
	MaxItemCount *int   `json:"maxItemCount,omitempty"`
}

func newCartRow(cart domain.Cart) cartRow {
	row := cartRow{Items: make([]itemJSON, 0, len(cart.Items)), Metadata: cart.Metadata}
	for _, item := range cart.Items {
		encoded := itemJSON{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			TotalPrice:     item.TotalPrice,
			ImageRef:       item.ImageRef,
			AvailableStock: item.AvailableStock,
		}
		for _, mod := range item.Modifiers {
			encoded.Modifiers = append(encoded.Modifiers, modifierJSON(mod))
		}
		row.Items = append(row.Items, encoded)
	}
	if cart.Rules != nil {
		row.Rules = &rulesJSON{MinSubtotal: cart.Rules.MinSubtotal, MaxItemCount: cart.Rules.MaxItemCount}
	}
	for _, kind := range cart.SavedPromotionKinds {
		row.PromotionKinds = append(row.PromotionKinds, string(kind))
	}
	return row
}

func (r cartRow) apply(cart *domain.Cart) {
	cart.Items = make([]domain.CartItem, 0, len(r.Items))
	for _, item := range r.Items {
		decoded := domain.CartItem{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			TotalPrice:     item.TotalPrice,
			ImageRef:       item.ImageRef,
			AvailableStock: item.AvailableStock,
		}
		for _, mod := range item.Modifiers {
			decoded.Modifiers = append(decoded.Modifiers, domain.CartItemModifier(mod))
		}
		cart.Items = append(cart.Items, decoded)
	}
	if r.Metadata != nil {
		cart.Metadata = r.Metadata
	}
	if r.Rules != nil {
		cart.Rules = &domain.CartRules{MinSubtotal: r.Rules.MinSubtotal, MaxItemCount: r.Rules.MaxItemCount}
	}
	for _, kind := range r.PromotionKinds {
		cart.SavedPromotionKinds = append(cart.SavedPromotionKinds, domain.PromotionKind(kind))
	}
}

// Error implements repositories.RepositoryError for Postgres failures.
type Error struct {
	op          string
	err         error
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string       { return fmt.Sprintf("%s: %v", e.op, e.err) }
func (e *Error) Unwrap() error       { return e.err }
func (e *Error) IsNotFound() bool    { return false }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return e.unavailable }

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e := &Error{op: op, err: err}
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		switch pgErr.Code {
		case "23505", "40001", "40P01":
			e.conflict = true
		case "53300", "57P01", "57P03":
			e.unavailable = true
		}
	case pgconn.SafeToRetry(err), pgconn.Timeout(err):
		e.unavailable = true
	}
	return e
}

// Registry serves the Postgres repositories through repositories.Registry.
type Registry struct {
	pool  *pgxpool.Pool
	carts *CartRepository
}

// NewRegistry builds the Postgres-backed registry; it owns the pool from then on.
func NewRegistry(pool *pgxpool.Pool) (*Registry, error) {
	carts, err := NewCartRepository(pool)
	if err != nil {
		return nil, err
	}
	return &Registry{pool: pool, carts: carts}, nil
}

// Carts implements repositories.Registry.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Close implements repositories.Registry.
func (r *Registry) Close(context.Context) error {
	r.pool.Close()
	return nil
}

var (
	_ repositories.CartRepository  = (*CartRepository)(nil)
	_ repositories.Registry        = (*Registry)(nil)
	_ repositories.RepositoryError = (*Error)(nil)
)
