package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

var errCartSweeperCleanerRequired = errors.New("cart sweeper: cart cleaner is required")

// CleanupReport summarises one sweep across every scope holding archived carts.
type CleanupReport struct {
	RunID          string        `json:"runId"`
	StartedAt      time.Time     `json:"startedAt"`
	FinishedAt     time.Time     `json:"finishedAt"`
	Policy         CleanupPolicy `json:"policy"`
	ScopesScanned  int           `json:"scopesScanned"`
	DeletedCartIDs []string      `json:"deletedCartIds"`
	Errors         []string      `json:"errors,omitempty"`
}

// CleanupReporter persists sweep reports, e.g. to object storage.
type CleanupReporter interface {
	WriteCleanupReport(ctx context.Context, report CleanupReport) error
}

type cartCleaner interface {
	QueryCarts(ctx context.Context, query CartQuery, limit *int) ([]Cart, error)
	CleanupCarts(ctx context.Context, scope CartScope, policy CleanupPolicy) (CartCleanupResult, error)
}

// CartSweeperDeps configures the periodic archived-cart sweeper.
type CartSweeperDeps struct {
	Carts       cartCleaner
	Policy      CleanupPolicy
	Reporter    CleanupReporter
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

// CartSweeper applies the cleanup policy to every scope that holds archived carts.
type CartSweeper struct {
	carts    cartCleaner
	policy   CleanupPolicy
	reporter CleanupReporter
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCartSweeper constructs a sweeper.
func NewCartSweeper(deps CartSweeperDeps) (*CartSweeper, error) {
	if deps.Carts == nil {
		return nil, errCartSweeperCleanerRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CartSweeper{
		carts:    deps.Carts,
		policy:   deps.Policy,
		reporter: deps.Reporter,
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

// Sweep runs one cleanup pass. Failures in one scope do not stop the others; they are joined into
// the returned error and listed in the report.
func (s *CartSweeper) Sweep(ctx context.Context) (CleanupReport, error) {
	report := CleanupReport{
		RunID:          s.newID(),
		StartedAt:      s.now(),
		Policy:         s.policy,
		DeletedCartIDs: []string{},
	}
	if s.policy.IsEmpty() {
		report.FinishedAt = s.now()
		return report, nil
	}

	archived, err := s.carts.QueryCarts(ctx, ArchivedQuery(), nil)
	if err != nil {
		return report, fmt.Errorf("cart sweeper: list archived carts: %w", err)
	}
	scopes := make(map[string]CartScope)
	for _, cart := range archived {
		scope := cart.Scope()
		scopes[scope.Key()] = scope
	}
	keys := make([]string, 0, len(scopes))
	for key := range scopes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result, err := s.carts.CleanupCarts(ctx, scopes[key], s.policy)
		report.ScopesScanned++
		report.DeletedCartIDs = append(report.DeletedCartIDs, result.DeletedCartIDs...)
		if err != nil {
			errs = append(errs, fmt.Errorf("scope %s: %w", key, err))
			report.Errors = append(report.Errors, err.Error())
		}
	}
	sort.Strings(report.DeletedCartIDs)
	report.FinishedAt = s.now()

	s.logger(ctx, "cart.sweep_completed", map[string]any{
		"runID":   report.RunID,
		"scopes":  report.ScopesScanned,
		"deleted": len(report.DeletedCartIDs),
		"errors":  len(errs),
	})

	if s.reporter != nil && (len(report.DeletedCartIDs) > 0 || len(errs) > 0) {
		if err := s.reporter.WriteCleanupReport(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("cart sweeper: write report: %w", err))
		}
	}
	return report, errors.Join(errs...)
}
