package ruleset

import (
	"context"
	"time"

	"gorm.io/gorm"
)

//go:generate mockgen -source=ruleset_repo.go -destination=mock/ruleset_repo_mock.go -package=mock
type Repository interface {
	Create(ctx context.Context, rs *TaxRuleSet) error
	FindEffective(ctx context.Context, organizationID, taxType string, asOf time.Time) ([]TaxRuleSet, error)
	FindAllEffective(ctx context.Context, organizationID string, asOf time.Time) ([]TaxRuleSet, error)
	FindAllByOrganization(ctx context.Context, organizationID string) ([]TaxRuleSet, error)
	HasOverlappingWindow(ctx context.Context, organizationID, taxType string, from time.Time, to *time.Time, excludeID *string) (bool, error)
	CloseWindow(ctx context.Context, organizationID, id string, effectiveTo time.Time) error
	IsReferenced(ctx context.Context, id string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, rs *TaxRuleSet) error {
	return r.db.WithContext(ctx).Create(rs).Error
}

func (r *repository) FindEffective(ctx context.Context, organizationID, taxType string, asOf time.Time) ([]TaxRuleSet, error) {
	var sets []TaxRuleSet
	err := r.db.WithContext(ctx).
		Preload("Brackets", func(db *gorm.DB) *gorm.DB {
			return db.Order("bracket_order ASC")
		}).
		Where("organization_id = ?", organizationID).
		Where("tax_type = ?", taxType).
		Where("effective_from <= ?", asOf).
		Where("effective_to IS NULL OR effective_to >= ?", asOf).
		Find(&sets).Error
	return sets, err
}

func (r *repository) FindAllEffective(ctx context.Context, organizationID string, asOf time.Time) ([]TaxRuleSet, error) {
	var sets []TaxRuleSet
	err := r.db.WithContext(ctx).
		Preload("Brackets", func(db *gorm.DB) *gorm.DB {
			return db.Order("bracket_order ASC")
		}).
		Where("organization_id = ?", organizationID).
		Where("effective_from <= ?", asOf).
		Where("effective_to IS NULL OR effective_to >= ?", asOf).
		Order("tax_type ASC").
		Find(&sets).Error
	return sets, err
}

func (r *repository) FindAllByOrganization(ctx context.Context, organizationID string) ([]TaxRuleSet, error) {
	var sets []TaxRuleSet
	err := r.db.WithContext(ctx).
		Preload("Brackets", func(db *gorm.DB) *gorm.DB {
			return db.Order("bracket_order ASC")
		}).
		Where("organization_id = ?", organizationID).
		Order("tax_type ASC, effective_from DESC").
		Find(&sets).Error
	return sets, err
}

func (r *repository) HasOverlappingWindow(ctx context.Context, organizationID, taxType string, from time.Time, to *time.Time, excludeID *string) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&TaxRuleSet{}).
		Where("organization_id = ?", organizationID).
		Where("tax_type = ?", taxType).
		Where("effective_from <= ?", endOrMax(to)).
		Where("effective_to IS NULL OR effective_to >= ?", from)

	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CloseWindow ends an open-ended rule set so a successor row can take over.
// The append-only discipline means this is the only mutation allowed, and
// only while the row is not referenced by a committed run.
func (r *repository) CloseWindow(ctx context.Context, organizationID, id string, effectiveTo time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&TaxRuleSet{}).
		Where("id = ?", id).
		Where("organization_id = ?", organizationID).
		Where("effective_to IS NULL").
		Update("effective_to", effectiveTo)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) IsReferenced(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("payroll_run_taxes").
		Where("tax_rule_set_id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func endOrMax(to *time.Time) time.Time {
	if to != nil {
		return *to
	}
	// Far-future sentinel keeps the overlap predicate symmetric for
	// open-ended windows.
	return time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
}
