package payrollrun

import (
	"context"
	"database/sql"
	"time"

	"payrolliq/internal/tenant"

	"gorm.io/gorm"
)

//go:generate mockgen -source=payrollrun_repo.go -destination=mock/payrollrun_repo_mock.go -package=mock
type Repository interface {
	WithTx(tx *sql.Tx) Repository
	CreateRun(ctx context.Context, run *PayrollRun) error
	CreateLines(ctx context.Context, lines []PayrollRunLine) error
	CreateTaxes(ctx context.Context, taxes []PayrollRunTax) error
	FindAllByOrganization(ctx context.Context, organizationID string) ([]PayrollRun, error)
	FindByIDAndOrganization(ctx context.Context, organizationID, id string) (*PayrollRun, error)
	HasCommittedRegularRun(ctx context.Context, organizationID string, periodDate time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
	tx *sql.Tx
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *sql.Tx) Repository {
	return &repository{db: r.db, tx: tx}
}

func (r *repository) CreateRun(ctx context.Context, run *PayrollRun) error {
	return r.db.WithContext(ctx).Omit("Lines").Create(run).Error
}

func (r *repository) CreateLines(ctx context.Context, lines []PayrollRunLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

func (r *repository) CreateTaxes(ctx context.Context, taxes []PayrollRunTax) error {
	if len(taxes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&taxes).Error
}

func (r *repository) FindAllByOrganization(ctx context.Context, organizationID string) ([]PayrollRun, error) {
	var runs []PayrollRun
	err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(organizationID)).
		Order("period_date DESC, created_at DESC").
		Find(&runs).Error
	return runs, err
}

func (r *repository) FindByIDAndOrganization(ctx context.Context, organizationID, id string) (*PayrollRun, error) {
	var run PayrollRun
	err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(organizationID)).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("employee_id ASC")
		}).
		First(&run, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *repository) HasCommittedRegularRun(ctx context.Context, organizationID string, periodDate time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&PayrollRun{}).
		Scopes(tenant.Scope(organizationID)).
		Where("period_date = ?", periodDate).
		Where("run_type = ?", RunTypeRegular).
		Where("status = ?", StatusCommitted).
		Count(&count).Error
	return count > 0, err
}
