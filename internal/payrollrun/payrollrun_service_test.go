package payrollrun_test

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"payrolliq/internal/engine/allowance"
	"payrolliq/internal/engine/composer"
	"payrolliq/internal/engine/deduction"
	"payrolliq/internal/engine/ruleset"
	"payrolliq/internal/messaging/kafka"
	"payrolliq/internal/paycomponent"
	"payrolliq/internal/payrollrun"
	payrollrunerrors "payrolliq/internal/payrollrun/errors"
	"payrolliq/internal/shared/apperror"
	countermock "payrolliq/internal/shared/counter/mock"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	testOrgID   = "8a4e1f72-3c95-4b08-b6d1-57c20e94af33"
	testActorID = "c51d0b88-6f2a-47e3-9a46-08d3e51c7b19"
)

type fakeRunRepository struct {
	runs        []*payrollrun.PayrollRun
	lines       []payrollrun.PayrollRunLine
	taxes       []payrollrun.PayrollRunTax
	hasRegular  bool
	hasRegularE error
}

func (f *fakeRunRepository) WithTx(*sql.Tx) payrollrun.Repository { return f }

func (f *fakeRunRepository) CreateRun(_ context.Context, run *payrollrun.PayrollRun) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRunRepository) CreateLines(_ context.Context, lines []payrollrun.PayrollRunLine) error {
	f.lines = append(f.lines, lines...)
	return nil
}

func (f *fakeRunRepository) CreateTaxes(_ context.Context, taxes []payrollrun.PayrollRunTax) error {
	f.taxes = append(f.taxes, taxes...)
	return nil
}

func (f *fakeRunRepository) FindAllByOrganization(context.Context, string) ([]payrollrun.PayrollRun, error) {
	return nil, nil
}

func (f *fakeRunRepository) FindByIDAndOrganization(context.Context, string, string) (*payrollrun.PayrollRun, error) {
	return nil, nil
}

func (f *fakeRunRepository) HasCommittedRegularRun(context.Context, string, time.Time) (bool, error) {
	return f.hasRegular, f.hasRegularE
}

type fakeComponentLookup struct {
	components []paycomponent.PayComponent
}

func (f *fakeComponentLookup) Create(context.Context, *paycomponent.PayComponent) error { return nil }
func (f *fakeComponentLookup) FindAllByOrganization(context.Context, string) ([]paycomponent.PayComponent, error) {
	return f.components, nil
}
func (f *fakeComponentLookup) FindByID(context.Context, string, string) (*paycomponent.PayComponent, error) {
	return nil, nil
}
func (f *fakeComponentLookup) FindByCode(context.Context, string, string) (*paycomponent.PayComponent, error) {
	return nil, nil
}
func (f *fakeComponentLookup) FindByCodes(_ context.Context, _ string, codes []string) ([]paycomponent.PayComponent, error) {
	byCode := make(map[string]paycomponent.PayComponent)
	for _, c := range f.components {
		byCode[c.Code] = c
	}
	var out []paycomponent.PayComponent
	for _, code := range codes {
		if c, ok := byCode[code]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeComponentLookup) Update(context.Context, *paycomponent.PayComponent) error { return nil }
func (f *fakeComponentLookup) Delete(context.Context, string, string) error             { return nil }
func (f *fakeComponentLookup) IsReferenced(context.Context, string, string) (bool, error) {
	return false, nil
}

type fakeRuleSetStore struct {
	sets map[string]*ruleset.TaxRuleSet
}

func (f *fakeRuleSetStore) Create(context.Context, *ruleset.TaxRuleSet) error { return nil }
func (f *fakeRuleSetStore) FindEffective(_ context.Context, _ string, taxType string, _ time.Time) ([]ruleset.TaxRuleSet, error) {
	if rs, ok := f.sets[taxType]; ok {
		return []ruleset.TaxRuleSet{*rs}, nil
	}
	return nil, nil
}
func (f *fakeRuleSetStore) FindAllEffective(context.Context, string, time.Time) ([]ruleset.TaxRuleSet, error) {
	return nil, nil
}
func (f *fakeRuleSetStore) FindAllByOrganization(context.Context, string) ([]ruleset.TaxRuleSet, error) {
	return nil, nil
}
func (f *fakeRuleSetStore) HasOverlappingWindow(context.Context, string, string, time.Time, *time.Time, *string) (bool, error) {
	return false, nil
}
func (f *fakeRuleSetStore) CloseWindow(context.Context, string, string, time.Time) error { return nil }
func (f *fakeRuleSetStore) IsReferenced(context.Context, string) (bool, error)           { return false, nil }

type fakeAllowanceStore struct{}

func (fakeAllowanceStore) CreateAllowance(context.Context, *allowance.Allowance) error { return nil }
func (fakeAllowanceStore) FindEffective(context.Context, string, string, time.Time) ([]allowance.Allowance, error) {
	return nil, nil
}
func (fakeAllowanceStore) FindAllEffective(context.Context, string, time.Time) ([]allowance.Allowance, error) {
	return nil, nil
}
func (fakeAllowanceStore) HasOverlappingWindow(context.Context, string, string, time.Time, *time.Time) (bool, error) {
	return false, nil
}
func (fakeAllowanceStore) FindUsage(context.Context, string, string, int) (*allowance.AllowanceUsage, error) {
	return nil, nil
}
func (fakeAllowanceStore) CreateUsage(context.Context, *allowance.AllowanceUsage) error { return nil }
func (fakeAllowanceStore) IncrementUsage(context.Context, *allowance.AllowanceUsage, decimal.Decimal, decimal.Decimal) error {
	return nil
}

type fakeMarkerStore struct{}

func (fakeMarkerStore) IsLineCommitted(context.Context, uuid.UUID, uuid.UUID, time.Time) (bool, error) {
	return false, nil
}
func (fakeMarkerStore) MarkLineCommitted(context.Context, uuid.UUID, uuid.UUID, time.Time) error {
	return nil
}

type fakeDeductionResolver struct{}

func (fakeDeductionResolver) Resolve(context.Context, uuid.UUID, time.Time) (*deduction.DeductibleCostRule, error) {
	return nil, nil
}

type fakeCounter struct {
	next int64
}

func (f *fakeCounter) GetNextValue(context.Context, string, string) (int64, error) {
	f.next++
	return f.next, nil
}

type fakeOutbox struct {
	created []kafka.OutboxEvent
}

func (f *fakeOutbox) WithTx(*sql.Tx) kafka.OutboxRepository { return f }
func (f *fakeOutbox) Create(_ context.Context, event kafka.OutboxEvent) error {
	f.created = append(f.created, event)
	return nil
}
func (f *fakeOutbox) ListPending(context.Context, int) ([]kafka.OutboxEvent, error) {
	return nil, nil
}
func (f *fakeOutbox) MarkSent(context.Context, string) error           { return nil }
func (f *fakeOutbox) MarkFailed(context.Context, string, string) error { return nil }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ndec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func testRuleSets() map[string]*ruleset.TaxRuleSet {
	orgID := uuid.MustParse(testOrgID)
	proportional := &ruleset.TaxRuleSet{
		ID:              uuid.New(),
		OrganizationID:  orgID,
		CountryCode:     "CW",
		TaxType:         ruleset.TaxTypeWageTaxMonthly,
		Name:            "wage tax monthly 2025",
		CalculationMode: ruleset.ModeProportional,
		EffectiveFrom:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Brackets: []ruleset.TaxBracket{
			{BracketOrder: 1, IncomeMin: dec("0"), IncomeMax: ndec("3500"), RatePercentage: dec("8")},
			{BracketOrder: 2, IncomeMin: dec("3500"), IncomeMax: ndec("7000"), RatePercentage: dec("18")},
			{BracketOrder: 3, IncomeMin: dec("7000"), RatePercentage: dec("30")},
		},
	}
	flat := func(taxType, rate string) *ruleset.TaxRuleSet {
		return &ruleset.TaxRuleSet{
			ID:              uuid.New(),
			OrganizationID:  orgID,
			CountryCode:     "CW",
			TaxType:         taxType,
			Name:            taxType + " 2025",
			CalculationMode: ruleset.ModeComponentBased,
			EffectiveFrom:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Brackets: []ruleset.TaxBracket{
				{BracketOrder: 1, IncomeMin: dec("0"), RatePercentage: dec(rate)},
			},
		}
	}
	return map[string]*ruleset.TaxRuleSet{
		ruleset.TaxTypeWageTaxMonthly: proportional,
		ruleset.TaxTypeAOV:            flat(ruleset.TaxTypeAOV, "10"),
		ruleset.TaxTypeAWW:            flat(ruleset.TaxTypeAWW, "2"),
	}
}

func salaryComponent() paycomponent.PayComponent {
	return paycomponent.PayComponent{
		ID:              uuid.New(),
		OrganizationID:  uuid.MustParse(testOrgID),
		Code:            "SALARY",
		Name:            "Base Salary",
		ComponentType:   paycomponent.TypeEarning,
		Category:        paycomponent.CategoryBaseSalary,
		CalculationType: paycomponent.CalcFixed,
		Amount:          ndec("5000"),
		IsTaxable:       true,
	}
}

type serviceDeps struct {
	db      *sql.DB
	sqlMock sqlmock.Sqlmock
	repo    *fakeRunRepository
	counter *fakeCounter
	outbox  *fakeOutbox
	service payrollrun.Service
}

func setupServiceTest(t *testing.T, components ...paycomponent.PayComponent) *serviceDeps {
	t.Helper()

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := &fakeRunRepository{}
	counterRepo := &fakeCounter{}
	outbox := &fakeOutbox{}

	runner := composer.NewRunner(
		&fakeRuleSetStore{sets: testRuleSets()},
		fakeAllowanceStore{},
		fakeDeductionResolver{},
		fakeMarkerStore{},
		nil,
	)

	svc := payrollrun.NewService(
		db,
		repo,
		&fakeComponentLookup{components: components},
		runner,
		counterRepo,
		outbox,
		nil,
	)

	return &serviceDeps{
		db:      db,
		sqlMock: sqlMock,
		repo:    repo,
		counter: counterRepo,
		outbox:  outbox,
		service: svc,
	}
}

func regularRequest() payrollrun.RunRequest {
	return payrollrun.RunRequest{
		PeriodDate: "2025-06-30",
		Employees: []payrollrun.EmployeeBatchInput{
			{
				EmployeeID: uuid.NewString(),
				Variables:  map[string]string{"monthly_wage": "5000"},
				Assignments: []payrollrun.ComponentAssignmentRequest{
					{ComponentCode: "SALARY"},
				},
			},
		},
	}
}

func TestPreviewComputesTotalsWithoutPersisting(t *testing.T) {
	deps := setupServiceTest(t, salaryComponent())

	resp, err := deps.service.Preview(context.Background(), testOrgID, regularRequest())
	require.NoError(t, err)

	require.Len(t, resp.Lines, 1)
	assert.Empty(t, resp.Failures)
	assert.Equal(t, "5000", resp.TotalGross)
	// 550 wage tax + 500 AOV + 100 AWW
	assert.Equal(t, "1150", resp.TotalTax)
	assert.Equal(t, "3850", resp.TotalNet)

	assert.Empty(t, deps.repo.runs)
	assert.Empty(t, deps.outbox.created)
	assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
}

func TestCommitPersistsRunLinesTaxesAndEvent(t *testing.T) {
	deps := setupServiceTest(t, salaryComponent())
	deps.sqlMock.ExpectBegin()
	deps.sqlMock.ExpectCommit()

	resp, err := deps.service.Commit(context.Background(), testOrgID, testActorID, regularRequest())
	require.NoError(t, err)

	assert.Equal(t, "RUN-202506-00001", resp.RunNumber)
	assert.Equal(t, payrollrun.StatusCommitted, resp.Status)
	assert.Equal(t, 1, resp.EmployeeCount)
	assert.Equal(t, 0, resp.FailureCount)
	assert.Equal(t, "3850", resp.TotalNet)

	require.Len(t, deps.repo.runs, 1)
	require.Len(t, deps.repo.lines, 1)
	// One tax row per applied rule set: wage tax, AOV, AWW.
	assert.Len(t, deps.repo.taxes, 3)

	require.Len(t, deps.outbox.created, 1)
	event := deps.outbox.created[0]
	assert.Equal(t, "payroll_run_committed", event.EventType)
	assert.Equal(t, "payroll.run.committed.v1", event.Topic)
	assert.Equal(t, kafka.OutboxStatusPending, event.Status)

	assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
}

func TestCommitRejectsSecondRegularRunForPeriod(t *testing.T) {
	deps := setupServiceTest(t, salaryComponent())
	deps.repo.hasRegular = true

	_, err := deps.service.Commit(context.Background(), testOrgID, testActorID, regularRequest())
	assert.ErrorIs(t, err, payrollrunerrors.ErrDuplicatePeriodRun)
	assert.Empty(t, deps.repo.runs)
}

func TestCommitSpecialRunSkipsPeriodCheck(t *testing.T) {
	deps := setupServiceTest(t, salaryComponent())
	deps.repo.hasRegular = true
	deps.sqlMock.ExpectBegin()
	deps.sqlMock.ExpectCommit()

	req := regularRequest()
	req.RunType = payrollrun.RunTypeSpecial

	resp, err := deps.service.Commit(context.Background(), testOrgID, testActorID, req)
	require.NoError(t, err)
	assert.Equal(t, payrollrun.RunTypeSpecial, deps.repo.runs[0].RunType)
	assert.Equal(t, 1, resp.EmployeeCount)
}

func TestCommitUnknownComponentCode(t *testing.T) {
	deps := setupServiceTest(t) // no components configured

	_, err := deps.service.Commit(context.Background(), testOrgID, testActorID, regularRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown pay component")
}

func TestCommitAllEmployeesFailed(t *testing.T) {
	formulaComp := paycomponent.PayComponent{
		ID:              uuid.New(),
		OrganizationID:  uuid.MustParse(testOrgID),
		Code:            "CAR",
		Name:            "Company Car",
		ComponentType:   paycomponent.TypeEarning,
		Category:        paycomponent.CategoryGeneral,
		CalculationType: paycomponent.CalcFormula,
		Formula:         "car_catalog_value * 0.02",
		IsTaxable:       true,
	}
	deps := setupServiceTest(t, formulaComp)

	req := regularRequest()
	req.Employees[0].Assignments = []payrollrun.ComponentAssignmentRequest{{ComponentCode: "CAR"}}

	_, err := deps.service.Commit(context.Background(), testOrgID, testActorID, req)
	assert.ErrorIs(t, err, payrollrunerrors.ErrAllEmployeesFailed)
	assert.Empty(t, deps.repo.runs)
}

func TestPreviewInvalidPeriodDate(t *testing.T) {
	deps := setupServiceTest(t, salaryComponent())

	req := regularRequest()
	req.PeriodDate = "June 2025"

	_, err := deps.service.Preview(context.Background(), testOrgID, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")
}

func TestPreviewNonNumericVariable(t *testing.T) {
	deps := setupServiceTest(t, salaryComponent())

	req := regularRequest()
	req.Employees[0].Variables["monthly_wage"] = "five thousand"

	_, err := deps.service.Preview(context.Background(), testOrgID, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-numeric")
}

func TestCommitRunNumberComesFromOrganizationCounter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()

	counterRepo := countermock.NewMockRepository(ctrl)
	counterRepo.EXPECT().
		GetNextValue(gomock.Any(), testOrgID, "payroll_run_number").
		Return(int64(42), nil)

	runner := composer.NewRunner(
		&fakeRuleSetStore{sets: testRuleSets()},
		fakeAllowanceStore{},
		fakeDeductionResolver{},
		fakeMarkerStore{},
		nil,
	)
	svc := payrollrun.NewService(
		db,
		&fakeRunRepository{},
		&fakeComponentLookup{components: []paycomponent.PayComponent{salaryComponent()}},
		runner,
		counterRepo,
		&fakeOutbox{},
		nil,
	)

	resp, err := svc.Commit(context.Background(), testOrgID, testActorID, regularRequest())
	require.NoError(t, err)
	assert.Equal(t, "RUN-202506-00042", resp.RunNumber)
}

func TestCommitHonorsClientRunID(t *testing.T) {
	deps := setupServiceTest(t, salaryComponent())
	deps.sqlMock.ExpectBegin()
	deps.sqlMock.ExpectCommit()

	req := regularRequest()
	req.RunID = "6b1f9a34-02de-4c87-9f5b-3a8e47d01c52"

	resp, err := deps.service.Commit(context.Background(), testOrgID, testActorID, req)
	require.NoError(t, err)
	assert.Equal(t, req.RunID, resp.RunID)

	require.Len(t, deps.repo.runs, 1)
	assert.Equal(t, req.RunID, deps.repo.runs[0].ID.String())
}

func TestCommitHaltsOnMissingRuleTable(t *testing.T) {
	sets := testRuleSets()
	delete(sets, ruleset.TaxTypeAOV)

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := &fakeRunRepository{}
	runner := composer.NewRunner(
		&fakeRuleSetStore{sets: sets},
		fakeAllowanceStore{},
		fakeDeductionResolver{},
		fakeMarkerStore{},
		nil,
	)
	svc := payrollrun.NewService(
		db,
		repo,
		&fakeComponentLookup{components: []paycomponent.PayComponent{salaryComponent()}},
		runner,
		&fakeCounter{},
		&fakeOutbox{},
		nil,
	)

	_, err = svc.Commit(context.Background(), testOrgID, testActorID, regularRequest())
	require.Error(t, err)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeInvalidState, appErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)

	// The run never reached persistence.
	assert.Empty(t, repo.runs)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}
