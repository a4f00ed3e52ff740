package ruleset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -source=resolver.go -destination=mock/resolver_mock.go -package=mock
type Resolver interface {
	// Resolve returns the single rule set effective for the tax type on
	// the given date, brackets loaded and ordered. Zero matches and
	// multiple matches are both errors; the resolver never guesses.
	Resolve(ctx context.Context, organizationID uuid.UUID, taxType string, asOf time.Time) (*TaxRuleSet, error)
}

type resolver struct {
	repo Repository
}

func NewResolver(repo Repository) Resolver {
	return &resolver{repo: repo}
}

func (r *resolver) Resolve(ctx context.Context, organizationID uuid.UUID, taxType string, asOf time.Time) (*TaxRuleSet, error) {
	if !IsValidTaxType(taxType) {
		return nil, fmt.Errorf("unknown tax type %q", taxType)
	}

	matches, err := r.repo.FindEffective(ctx, organizationID.String(), taxType, truncateToDay(asOf))
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, &NoApplicableRuleError{OrganizationID: organizationID, TaxType: taxType, AsOf: asOf}
	case 1:
		rs := matches[0]
		rs.Brackets = rs.OrderedBrackets()
		return &rs, nil
	default:
		return nil, &AmbiguousRuleError{OrganizationID: organizationID, TaxType: taxType, AsOf: asOf, Matches: len(matches)}
	}
}

// CachedResolver memoizes resolutions for the lifetime of one payroll
// batch. Rule sets are immutable once referenced, so cached entries never
// go stale within a batch. Safe for concurrent use by the worker pool.
type CachedResolver struct {
	inner Resolver

	mu    sync.RWMutex
	cache map[string]*TaxRuleSet
}

func NewCachedResolver(inner Resolver) *CachedResolver {
	return &CachedResolver{
		inner: inner,
		cache: make(map[string]*TaxRuleSet),
	}
}

func (c *CachedResolver) Resolve(ctx context.Context, organizationID uuid.UUID, taxType string, asOf time.Time) (*TaxRuleSet, error) {
	key := cacheKey(organizationID, taxType, asOf)

	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	rs, err := c.inner.Resolve(ctx, organizationID, taxType, asOf)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = rs
	c.mu.Unlock()
	return rs, nil
}

func cacheKey(organizationID uuid.UUID, taxType string, asOf time.Time) string {
	return organizationID.String() + "|" + taxType + "|" + asOf.Format("2006-01-02")
}
