package paycomponent_test

import (
	"context"
	"errors"
	"testing"

	"payrolliq/internal/paycomponent"
	paycomponenterrors "payrolliq/internal/paycomponent/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeComponentRepository struct {
	createFn                func(ctx context.Context, component *paycomponent.PayComponent) error
	findAllByOrganizationFn func(ctx context.Context, organizationID string) ([]paycomponent.PayComponent, error)
	findByIDFn              func(ctx context.Context, organizationID, id string) (*paycomponent.PayComponent, error)
	findByCodeFn            func(ctx context.Context, organizationID, code string) (*paycomponent.PayComponent, error)
	findByCodesFn           func(ctx context.Context, organizationID string, codes []string) ([]paycomponent.PayComponent, error)
	updateFn                func(ctx context.Context, component *paycomponent.PayComponent) error
	deleteFn                func(ctx context.Context, organizationID, id string) error
	isReferencedFn          func(ctx context.Context, organizationID, code string) (bool, error)
}

func (f *fakeComponentRepository) Create(ctx context.Context, component *paycomponent.PayComponent) error {
	if f.createFn != nil {
		return f.createFn(ctx, component)
	}
	return nil
}

func (f *fakeComponentRepository) FindAllByOrganization(ctx context.Context, organizationID string) ([]paycomponent.PayComponent, error) {
	if f.findAllByOrganizationFn != nil {
		return f.findAllByOrganizationFn(ctx, organizationID)
	}
	return nil, nil
}

func (f *fakeComponentRepository) FindByID(ctx context.Context, organizationID, id string) (*paycomponent.PayComponent, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, organizationID, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeComponentRepository) FindByCode(ctx context.Context, organizationID, code string) (*paycomponent.PayComponent, error) {
	if f.findByCodeFn != nil {
		return f.findByCodeFn(ctx, organizationID, code)
	}
	return nil, nil
}

func (f *fakeComponentRepository) FindByCodes(ctx context.Context, organizationID string, codes []string) ([]paycomponent.PayComponent, error) {
	if f.findByCodesFn != nil {
		return f.findByCodesFn(ctx, organizationID, codes)
	}
	return nil, nil
}

func (f *fakeComponentRepository) Update(ctx context.Context, component *paycomponent.PayComponent) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, component)
	}
	return nil
}

func (f *fakeComponentRepository) Delete(ctx context.Context, organizationID, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, organizationID, id)
	}
	return nil
}

func (f *fakeComponentRepository) IsReferenced(ctx context.Context, organizationID, code string) (bool, error) {
	if f.isReferencedFn != nil {
		return f.isReferencedFn(ctx, organizationID, code)
	}
	return false, nil
}

const testOrganizationID = "6c9f2a41-8e7b-4c15-9d02-3fb5a81c6d90"

func strPtr(s string) *string { return &s }

func TestCreateFormulaComponentRecordsVariables(t *testing.T) {
	var created *paycomponent.PayComponent
	repo := &fakeComponentRepository{
		createFn: func(_ context.Context, component *paycomponent.PayComponent) error {
			created = component
			return nil
		},
	}
	svc := paycomponent.NewService(repo, nil)

	resp, err := svc.Create(context.Background(), testOrganizationID, paycomponent.CreatePayComponentRequest{
		Code:            "MEDICAL",
		Name:            "Medical Reimbursement",
		ComponentType:   paycomponent.TypeEarning,
		CalculationType: paycomponent.CalcFormula,
		Formula:         "MIN(annual_salary * 0.03, 200) / 12",
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.ElementsMatch(t, []string{"annual_salary"}, resp.RequiredVariables)
	assert.Equal(t, paycomponent.CategoryGeneral, created.Category)
	assert.True(t, created.IsTaxable)
	assert.False(t, created.Amount.Valid)
}

func TestCreateRejectsUnparsableFormula(t *testing.T) {
	svc := paycomponent.NewService(&fakeComponentRepository{}, nil)

	_, err := svc.Create(context.Background(), testOrganizationID, paycomponent.CreatePayComponentRequest{
		Code:            "BROKEN",
		Name:            "Broken",
		ComponentType:   paycomponent.TypeEarning,
		CalculationType: paycomponent.CalcFormula,
		Formula:         "1 + + 2",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not parse")
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	repo := &fakeComponentRepository{
		findByCodeFn: func(_ context.Context, _, _ string) (*paycomponent.PayComponent, error) {
			return &paycomponent.PayComponent{ID: uuid.New(), Code: "SALARY"}, nil
		},
	}
	svc := paycomponent.NewService(repo, nil)

	_, err := svc.Create(context.Background(), testOrganizationID, paycomponent.CreatePayComponentRequest{
		Code:            "SALARY",
		Name:            "Base Salary",
		ComponentType:   paycomponent.TypeEarning,
		CalculationType: paycomponent.CalcFixed,
		Amount:          strPtr("5000"),
	})
	assert.ErrorIs(t, err, paycomponenterrors.ErrComponentCodeExists)
}

func TestCreateFixedRequiresAmount(t *testing.T) {
	svc := paycomponent.NewService(&fakeComponentRepository{}, nil)

	_, err := svc.Create(context.Background(), testOrganizationID, paycomponent.CreatePayComponentRequest{
		Code:            "LUNCH",
		Name:            "Lunch Allowance",
		ComponentType:   paycomponent.TypeEarning,
		CalculationType: paycomponent.CalcFixed,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Amount is required")
}

func TestUpdateSystemComponentRejected(t *testing.T) {
	repo := &fakeComponentRepository{
		findByIDFn: func(_ context.Context, _, _ string) (*paycomponent.PayComponent, error) {
			return &paycomponent.PayComponent{
				ID:                uuid.New(),
				Code:              "BASE",
				IsSystemComponent: true,
			}, nil
		},
	}
	svc := paycomponent.NewService(repo, nil)

	_, err := svc.Update(context.Background(), testOrganizationID, uuid.NewString(), paycomponent.UpdatePayComponentRequest{
		Name:            "Renamed",
		CalculationType: paycomponent.CalcFixed,
		Amount:          strPtr("100"),
	})
	assert.ErrorIs(t, err, paycomponenterrors.ErrSystemComponentImmutable)
}

func TestDeleteReferencedComponentRejected(t *testing.T) {
	deleted := false
	repo := &fakeComponentRepository{
		findByIDFn: func(_ context.Context, _, _ string) (*paycomponent.PayComponent, error) {
			return &paycomponent.PayComponent{
				ID:              uuid.New(),
				Code:            "HOLIDAY",
				CalculationType: paycomponent.CalcFixed,
				Amount:          decimal.NullDecimal{Decimal: decimal.NewFromInt(1000), Valid: true},
			}, nil
		},
		isReferencedFn: func(_ context.Context, _, code string) (bool, error) {
			assert.Equal(t, "HOLIDAY", code)
			return true, nil
		},
		deleteFn: func(_ context.Context, _, _ string) error {
			deleted = true
			return nil
		},
	}
	svc := paycomponent.NewService(repo, nil)

	err := svc.Delete(context.Background(), testOrganizationID, uuid.NewString())
	assert.ErrorIs(t, err, paycomponenterrors.ErrComponentInUse)
	assert.False(t, deleted)
}

func TestDeleteUnknownComponent(t *testing.T) {
	repo := &fakeComponentRepository{
		findByIDFn: func(_ context.Context, _, _ string) (*paycomponent.PayComponent, error) {
			return nil, gorm.ErrRecordNotFound
		},
	}
	svc := paycomponent.NewService(repo, nil)

	err := svc.Delete(context.Background(), testOrganizationID, uuid.NewString())
	assert.ErrorIs(t, err, paycomponenterrors.ErrComponentNotFound)
}

func TestGetAllPropagatesRepositoryError(t *testing.T) {
	repoErr := errors.New("connection reset")
	repo := &fakeComponentRepository{
		findAllByOrganizationFn: func(_ context.Context, _ string) ([]paycomponent.PayComponent, error) {
			return nil, repoErr
		},
	}
	svc := paycomponent.NewService(repo, nil)

	_, err := svc.GetAll(context.Background(), testOrganizationID)
	require.Error(t, err)
	assert.ErrorIs(t, err, repoErr)
}
