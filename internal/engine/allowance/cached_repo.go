package allowance

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// CachedRepository memoizes cap lookups for the lifetime of one payroll
// batch so the hot path stops hitting the database per employee. Usage
// reads and writes pass straight through; caching those would break the
// optimistic version check.
type CachedRepository struct {
	inner Repository

	mu   sync.RWMutex
	caps map[string][]Allowance
}

func NewCachedRepository(inner Repository) *CachedRepository {
	return &CachedRepository{
		inner: inner,
		caps:  make(map[string][]Allowance),
	}
}

func (c *CachedRepository) FindEffective(ctx context.Context, organizationID, allowanceType string, asOf time.Time) ([]Allowance, error) {
	key := organizationID + "|" + allowanceType + "|" + asOf.Format("2006-01-02")

	c.mu.RLock()
	cached, ok := c.caps[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	rows, err := c.inner.FindEffective(ctx, organizationID, allowanceType, asOf)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.caps[key] = rows
	c.mu.Unlock()
	return rows, nil
}

func (c *CachedRepository) CreateAllowance(ctx context.Context, a *Allowance) error {
	return c.inner.CreateAllowance(ctx, a)
}

func (c *CachedRepository) FindAllEffective(ctx context.Context, organizationID string, asOf time.Time) ([]Allowance, error) {
	return c.inner.FindAllEffective(ctx, organizationID, asOf)
}

func (c *CachedRepository) HasOverlappingWindow(ctx context.Context, organizationID, allowanceType string, from time.Time, to *time.Time) (bool, error) {
	return c.inner.HasOverlappingWindow(ctx, organizationID, allowanceType, from, to)
}

func (c *CachedRepository) FindUsage(ctx context.Context, employeeID, allowanceType string, year int) (*AllowanceUsage, error) {
	return c.inner.FindUsage(ctx, employeeID, allowanceType, year)
}

func (c *CachedRepository) CreateUsage(ctx context.Context, usage *AllowanceUsage) error {
	return c.inner.CreateUsage(ctx, usage)
}

func (c *CachedRepository) IncrementUsage(ctx context.Context, usage *AllowanceUsage, taxFreeDelta, totalDelta decimal.Decimal) error {
	return c.inner.IncrementUsage(ctx, usage, taxFreeDelta, totalDelta)
}
