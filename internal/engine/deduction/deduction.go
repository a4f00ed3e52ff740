// Package deduction resolves the standard deductible-cost relief applied
// to taxable earnings before bracket taxation.
package deduction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DeductibleCostRule is an organization-scoped standard deduction with its
// own effective window. Percentage rules resolve against taxable earnings
// and are bounded by max_deduction.
type DeductibleCostRule struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrganizationID uuid.UUID           `gorm:"type:uuid;not null;index"`
	CountryCode    string              `gorm:"type:varchar(2);not null"`
	Amount         decimal.Decimal     `gorm:"type:numeric(15,4);not null"`
	IsPercentage   bool                `gorm:"not null;default:false"`
	MaxDeduction   decimal.NullDecimal `gorm:"type:numeric(15,4)"`
	EffectiveFrom  time.Time           `gorm:"type:date;not null"`
	EffectiveTo    *time.Time          `gorm:"type:date"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (DeductibleCostRule) TableName() string {
	return "deductible_cost_rules"
}

type AmbiguousRuleError struct {
	OrganizationID uuid.UUID
	AsOf           time.Time
	Matches        int
}

func (e *AmbiguousRuleError) Error() string {
	return fmt.Sprintf("%d overlapping deductible cost rules effective on %s for organization %s",
		e.Matches, e.AsOf.Format("2006-01-02"), e.OrganizationID)
}

//go:generate mockgen -source=deduction.go -destination=mock/deduction_mock.go -package=mock
type Repository interface {
	Create(ctx context.Context, rule *DeductibleCostRule) error
	FindEffective(ctx context.Context, organizationID string, asOf time.Time) ([]DeductibleCostRule, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, rule *DeductibleCostRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *repository) FindEffective(ctx context.Context, organizationID string, asOf time.Time) ([]DeductibleCostRule, error) {
	var rules []DeductibleCostRule
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Where("effective_from <= ?", asOf).
		Where("effective_to IS NULL OR effective_to >= ?", asOf).
		Find(&rules).Error
	return rules, err
}

type Resolver interface {
	// Resolve returns the deduction rule effective on the date, or nil
	// when the organization defined none. Overlapping windows are a
	// data-integrity defect and error out.
	Resolve(ctx context.Context, organizationID uuid.UUID, asOf time.Time) (*DeductibleCostRule, error)
}

type resolver struct {
	repo Repository
}

func NewResolver(repo Repository) Resolver {
	return &resolver{repo: repo}
}

func (r *resolver) Resolve(ctx context.Context, organizationID uuid.UUID, asOf time.Time) (*DeductibleCostRule, error) {
	matches, err := r.repo.FindEffective(ctx, organizationID.String(), asOf)
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		// Unlike tax rule sets, a standard deduction is optional relief:
		// absence means no deduction, not a blocked run.
		return nil, nil
	case 1:
		rule := matches[0]
		return &rule, nil
	default:
		return nil, &AmbiguousRuleError{OrganizationID: organizationID, AsOf: asOf, Matches: len(matches)}
	}
}

var oneHundred = decimal.NewFromInt(100)

// Apply computes the deduction against taxable earnings: percentage rules
// take their share bounded by max_deduction, and the result never drives
// the base below zero.
func (d *DeductibleCostRule) Apply(taxable decimal.Decimal) decimal.Decimal {
	amount := d.Amount
	if d.IsPercentage {
		amount = taxable.Mul(d.Amount).Div(oneHundred)
	}
	if d.MaxDeduction.Valid && amount.GreaterThan(d.MaxDeduction.Decimal) {
		amount = d.MaxDeduction.Decimal
	}
	if amount.GreaterThan(taxable) {
		amount = taxable
	}
	return amount
}
