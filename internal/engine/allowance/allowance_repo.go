package allowance

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

//go:generate mockgen -source=allowance_repo.go -destination=mock/allowance_repo_mock.go -package=mock
type Repository interface {
	CreateAllowance(ctx context.Context, a *Allowance) error
	FindEffective(ctx context.Context, organizationID, allowanceType string, asOf time.Time) ([]Allowance, error)
	FindAllEffective(ctx context.Context, organizationID string, asOf time.Time) ([]Allowance, error)
	HasOverlappingWindow(ctx context.Context, organizationID, allowanceType string, from time.Time, to *time.Time) (bool, error)

	FindUsage(ctx context.Context, employeeID, allowanceType string, year int) (*AllowanceUsage, error)
	CreateUsage(ctx context.Context, usage *AllowanceUsage) error
	IncrementUsage(ctx context.Context, usage *AllowanceUsage, taxFreeDelta, totalDelta decimal.Decimal) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateAllowance(ctx context.Context, a *Allowance) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *repository) FindEffective(ctx context.Context, organizationID, allowanceType string, asOf time.Time) ([]Allowance, error) {
	var rows []Allowance
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Where("allowance_type = ?", allowanceType).
		Where("effective_from <= ?", asOf).
		Where("effective_to IS NULL OR effective_to >= ?", asOf).
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindAllEffective(ctx context.Context, organizationID string, asOf time.Time) ([]Allowance, error) {
	var rows []Allowance
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Where("effective_from <= ?", asOf).
		Where("effective_to IS NULL OR effective_to >= ?", asOf).
		Order("allowance_type ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) HasOverlappingWindow(ctx context.Context, organizationID, allowanceType string, from time.Time, to *time.Time) (bool, error) {
	end := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	if to != nil {
		end = *to
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&Allowance{}).
		Where("organization_id = ?", organizationID).
		Where("allowance_type = ?", allowanceType).
		Where("effective_from <= ?", end).
		Where("effective_to IS NULL OR effective_to >= ?", from).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) FindUsage(ctx context.Context, employeeID, allowanceType string, year int) (*AllowanceUsage, error) {
	var usage AllowanceUsage
	err := r.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Where("allowance_type = ?", allowanceType).
		Where("year = ?", year).
		First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func (r *repository) CreateUsage(ctx context.Context, usage *AllowanceUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

// IncrementUsage moves both counters in one statement guarded by the
// version column. Zero rows affected means a concurrent commit won the
// race; the caller re-reads and retries.
func (r *repository) IncrementUsage(ctx context.Context, usage *AllowanceUsage, taxFreeDelta, totalDelta decimal.Decimal) error {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE allowance_usages
		SET tax_free_granted = tax_free_granted + ?,
			total_granted = total_granted + ?,
			version = version + 1,
			updated_at = now()
		WHERE id = ? AND version = ?
	`, taxFreeDelta, totalDelta, usage.ID, usage.Version)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUsageVersionConflict
	}

	usage.TaxFreeGranted = usage.TaxFreeGranted.Add(taxFreeDelta)
	usage.TotalGranted = usage.TotalGranted.Add(totalDelta)
	usage.Version++
	return nil
}
