package allowance_test

import (
	"context"
	"testing"
	"time"

	"payrolliq/internal/engine/allowance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const authoringOrgID = "8a4e1f72-3c95-4b08-b6d1-57c20e94af33"

func holidayRequest() allowance.CreateAllowanceRequest {
	return allowance.CreateAllowanceRequest{
		CountryCode:   "CW",
		AllowanceType: allowance.TypeHolidayAllowance,
		Amount:        "9000",
		EffectiveFrom: "2025-01-01",
	}
}

func TestServiceCreateAllowance(t *testing.T) {
	var created *allowance.Allowance
	repo := &fakeAllowanceRepository{
		createAllowanceFn: func(_ context.Context, a *allowance.Allowance) error {
			created = a
			return nil
		},
	}
	svc := allowance.NewService(repo)

	resp, err := svc.Create(context.Background(), authoringOrgID, holidayRequest())
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.Equal(t, allowance.TypeHolidayAllowance, created.AllowanceType)
	assert.True(t, created.Amount.Equal(dec("9000")))
	assert.Nil(t, created.EffectiveTo)
	assert.Equal(t, "9000", resp.Amount)
}

func TestServiceCreateRejectsOverlappingWindow(t *testing.T) {
	createCalled := false
	repo := &fakeAllowanceRepository{
		hasOverlappingWindowFn: func(context.Context, string, string, time.Time, *time.Time) (bool, error) {
			return true, nil
		},
		createAllowanceFn: func(context.Context, *allowance.Allowance) error {
			createCalled = true
			return nil
		},
	}
	svc := allowance.NewService(repo)

	_, err := svc.Create(context.Background(), authoringOrgID, holidayRequest())
	assert.ErrorIs(t, err, allowance.ErrAllowanceWindowOverlap)
	assert.False(t, createCalled)
}

func TestServiceCreateRejectsUnknownType(t *testing.T) {
	svc := allowance.NewService(&fakeAllowanceRepository{})

	req := holidayRequest()
	req.AllowanceType = "thirteenth_month"

	_, err := svc.Create(context.Background(), authoringOrgID, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown allowance type")
}

func TestServiceCreateRejectsNegativeAmount(t *testing.T) {
	svc := allowance.NewService(&fakeAllowanceRepository{})

	req := holidayRequest()
	req.Amount = "-1"

	_, err := svc.Create(context.Background(), authoringOrgID, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-negative")
}

func TestServiceCreateRejectsInvertedWindow(t *testing.T) {
	svc := allowance.NewService(&fakeAllowanceRepository{})

	req := holidayRequest()
	to := "2025-01-01"
	req.EffectiveTo = &to

	_, err := svc.Create(context.Background(), authoringOrgID, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after effective from")
}

func TestServiceGetAllFiltersByDate(t *testing.T) {
	asOf := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	var gotAsOf time.Time
	repo := &fakeAllowanceRepository{
		findAllEffectiveFn: func(_ context.Context, _ string, at time.Time) ([]allowance.Allowance, error) {
			gotAsOf = at
			return holidayCap("9000"), nil
		},
	}
	svc := allowance.NewService(repo)

	resp, err := svc.GetAll(context.Background(), authoringOrgID, asOf)
	require.NoError(t, err)
	assert.Equal(t, asOf, gotAsOf)
	require.Len(t, resp, 1)
	assert.Equal(t, allowance.TypeHolidayAllowance, resp[0].AllowanceType)
}
