package paycomponent

import (
	"context"
	"errors"

	"payrolliq/internal/tenant"

	"gorm.io/gorm"
)

//go:generate mockgen -source=paycomponent_repo.go -destination=mock/paycomponent_repo_mock.go -package=mock
type Repository interface {
	Create(ctx context.Context, component *PayComponent) error
	FindAllByOrganization(ctx context.Context, organizationID string) ([]PayComponent, error)
	FindByID(ctx context.Context, organizationID, id string) (*PayComponent, error)
	FindByCode(ctx context.Context, organizationID, code string) (*PayComponent, error)
	FindByCodes(ctx context.Context, organizationID string, codes []string) ([]PayComponent, error)
	Update(ctx context.Context, component *PayComponent) error
	Delete(ctx context.Context, organizationID, id string) error
	IsReferenced(ctx context.Context, organizationID, code string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, component *PayComponent) error {
	return r.db.WithContext(ctx).Create(component).Error
}

func (r *repository) FindAllByOrganization(ctx context.Context, organizationID string) ([]PayComponent, error) {
	var components []PayComponent
	err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(organizationID)).
		Order("component_type ASC, code ASC").
		Find(&components).Error
	return components, err
}

func (r *repository) FindByID(ctx context.Context, organizationID, id string) (*PayComponent, error) {
	var component PayComponent
	err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(organizationID)).
		Where("id = ?", id).
		First(&component).Error
	if err != nil {
		return nil, err
	}
	return &component, nil
}

func (r *repository) FindByCode(ctx context.Context, organizationID, code string) (*PayComponent, error) {
	var component PayComponent
	err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(organizationID)).
		Where("code = ?", code).
		First(&component).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &component, nil
}

func (r *repository) FindByCodes(ctx context.Context, organizationID string, codes []string) ([]PayComponent, error) {
	var components []PayComponent
	err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(organizationID)).
		Where("code IN ?", codes).
		Find(&components).Error
	return components, err
}

func (r *repository) Update(ctx context.Context, component *PayComponent) error {
	return r.db.WithContext(ctx).Save(component).Error
}

func (r *repository) Delete(ctx context.Context, organizationID, id string) error {
	return r.db.WithContext(ctx).
		Scopes(tenant.Scope(organizationID)).
		Where("id = ?", id).
		Delete(&PayComponent{}).Error
}

// IsReferenced reports whether any committed payslip line carries the
// component. Committed lines are immutable, so such a component can only
// be retired, never deleted.
func (r *repository) IsReferenced(ctx context.Context, organizationID, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("payroll_run_lines").
		Where("organization_id = ?", organizationID).
		Where("components @> ?", `[{"code":"`+code+`"}]`).
		Count(&count).Error
	return count > 0, err
}
