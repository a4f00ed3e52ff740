package payrollrun

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"payrolliq/internal/engine/composer"
	"payrolliq/internal/events"
	"payrolliq/internal/messaging/kafka"
	"payrolliq/internal/paycomponent"
	payrollrunerrors "payrolliq/internal/payrollrun/errors"
	"payrolliq/internal/shared/apperror"
	"payrolliq/internal/shared/contextutil"
	"payrolliq/internal/shared/counter"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:generate mockgen -source=payrollrun_service.go -destination=mock/payrollrun_service_mock.go -package=mock
type Service interface {
	Preview(ctx context.Context, organizationID string, req RunRequest) (*PreviewResponse, error)
	Commit(ctx context.Context, organizationID, actorID string, req RunRequest) (*CommitResponse, error)
	GetAll(ctx context.Context, organizationID string) ([]RunSummaryResponse, error)
	GetByID(ctx context.Context, organizationID, id string) (*RunDetailResponse, error)
}

type service struct {
	db         *sql.DB
	repo       Repository
	components paycomponent.Repository
	runner     *composer.Runner
	counter    counter.Repository
	outbox     kafka.OutboxRepository
	logger     *zap.Logger
}

func NewService(
	db *sql.DB,
	repo Repository,
	components paycomponent.Repository,
	runner *composer.Runner,
	counterRepo counter.Repository,
	outboxRepo kafka.OutboxRepository,
	logger *zap.Logger,
) Service {
	l := zap.L().Named("payrollrun.service")
	if logger != nil {
		l = logger.Named("payrollrun.service")
	}
	return &service{
		db:         db,
		repo:       repo,
		components: components,
		runner:     runner,
		counter:    counterRepo,
		outbox:     outboxRepo,
		logger:     l,
	}
}

func (s *service) Preview(ctx context.Context, organizationID string, req RunRequest) (*PreviewResponse, error) {
	run, inputs, err := s.buildBatch(ctx, organizationID, req)
	if err != nil {
		return nil, err
	}

	result, err := s.runner.Preview(ctx, run, inputs)
	if err != nil {
		return nil, mapRunnerError(err, "Preview failed")
	}

	gross, tax, net := sumTotals(result.Lines)
	return &PreviewResponse{
		PeriodDate: run.PeriodDate,
		Lines:      result.Lines,
		Failures:   result.Failures,
		TotalGross: gross.String(),
		TotalTax:   tax.String(),
		TotalNet:   net.String(),
	}, nil
}

func (s *service) Commit(ctx context.Context, organizationID, actorID string, req RunRequest) (*CommitResponse, error) {
	rid := contextutil.GetRequestID(ctx)

	actorUUID, err := uuid.Parse(actorID)
	if err != nil {
		return nil, apperror.ErrInvalidInput
	}

	run, inputs, err := s.buildBatch(ctx, organizationID, req)
	if err != nil {
		return nil, err
	}

	runType := req.RunType
	if runType == "" {
		runType = RunTypeRegular
	}
	if runType == RunTypeRegular {
		exists, err := s.repo.HasCommittedRegularRun(ctx, organizationID, run.PeriodDate)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to check existing runs", http.StatusInternalServerError)
		}
		if exists {
			return nil, payrollrunerrors.ErrDuplicatePeriodRun
		}
	}

	result, err := s.runner.Commit(ctx, run, inputs)
	if err != nil {
		return nil, mapRunnerError(err, "Commit failed")
	}
	if len(result.Lines) == 0 {
		return nil, payrollrunerrors.ErrAllEmployeesFailed
	}

	nextVal, err := s.counter.GetNextValue(ctx, organizationID, "payroll_run_number")
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to generate run number", http.StatusInternalServerError)
	}
	runNumber := fmt.Sprintf("RUN-%s-%05d", run.PeriodDate.Format("200601"), nextVal)

	gross, tax, net := sumTotals(result.Lines)
	record := &PayrollRun{
		ID:             run.RunID,
		OrganizationID: run.OrganizationID,
		RunNumber:      runNumber,
		RunType:        runType,
		PeriodDate:     run.PeriodDate,
		Status:         StatusCommitted,
		EmployeeCount:  len(result.Lines),
		FailureCount:   len(result.Failures),
		TotalGross:     gross,
		TotalTax:       tax,
		TotalNet:       net,
		CommittedBy:    actorUUID,
	}

	lines, taxes := buildRecords(record, result.Lines)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to open transaction", http.StatusInternalServerError)
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)
	if err := qtx.CreateRun(ctx, record); err != nil {
		if mapped := mapRepositoryError(err); mapped != err {
			return nil, mapped
		}
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to persist run", http.StatusInternalServerError)
	}
	if err := qtx.CreateLines(ctx, lines); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to persist payslip lines", http.StatusInternalServerError)
	}
	if err := qtx.CreateTaxes(ctx, taxes); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to persist tax records", http.StatusInternalServerError)
	}

	if s.outbox != nil {
		event := events.PayrollRunCommittedEvent{
			EventType:      "payroll_run_committed",
			RequestID:      rid,
			RunID:          record.ID.String(),
			OrganizationID: organizationID,
			RunNumber:      runNumber,
			PeriodDate:     run.PeriodDate.Format("2006-01-02"),
			EmployeeCount:  record.EmployeeCount,
			FailureCount:   record.FailureCount,
			TotalNetPay:    net.String(),
			CommittedBy:    actorID,
			OccurredAt:     time.Now().UTC(),
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to marshal event", http.StatusInternalServerError)
		}
		if err := s.outbox.WithTx(tx).Create(ctx, kafka.OutboxEvent{
			ID:            uuid.NewString(),
			RequestID:     rid,
			AggregateType: "payroll_run",
			AggregateID:   record.ID.String(),
			EventType:     event.EventType,
			Topic:         events.PayrollRunCommittedTopic,
			Payload:       payload,
			Status:        kafka.OutboxStatusPending,
		}); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to queue run event", http.StatusInternalServerError)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to commit transaction", http.StatusInternalServerError)
	}

	s.logger.Info("payroll run committed",
		zap.String("request_id", rid),
		zap.String("run_id", record.ID.String()),
		zap.String("run_number", runNumber),
		zap.Int("employee_count", record.EmployeeCount),
		zap.Int("failure_count", record.FailureCount),
	)

	return &CommitResponse{
		RunID:         record.ID.String(),
		RunNumber:     runNumber,
		Status:        record.Status,
		PeriodDate:    run.PeriodDate,
		EmployeeCount: record.EmployeeCount,
		FailureCount:  record.FailureCount,
		Lines:         result.Lines,
		Failures:      result.Failures,
		TotalGross:    gross.String(),
		TotalTax:      tax.String(),
		TotalNet:      net.String(),
	}, nil
}

func (s *service) GetAll(ctx context.Context, organizationID string) ([]RunSummaryResponse, error) {
	runs, err := s.repo.FindAllByOrganization(ctx, organizationID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to list runs", http.StatusInternalServerError)
	}

	responses := make([]RunSummaryResponse, len(runs))
	for i := range runs {
		responses[i] = mapToSummary(&runs[i])
	}
	return responses, nil
}

func (s *service) GetByID(ctx context.Context, organizationID, id string) (*RunDetailResponse, error) {
	run, err := s.repo.FindByIDAndOrganization(ctx, organizationID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, payrollrunerrors.ErrRunNotFound
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to load run", http.StatusInternalServerError)
	}

	return &RunDetailResponse{
		RunSummaryResponse: mapToSummary(run),
		Lines:              run.Lines,
	}, nil
}

// buildBatch validates the request and resolves every referenced
// component code once for the whole batch.
func (s *service) buildBatch(ctx context.Context, organizationID string, req RunRequest) (composer.RunContext, []composer.EmployeeInput, error) {
	var run composer.RunContext

	orgID, err := uuid.Parse(organizationID)
	if err != nil {
		return run, nil, apperror.ErrInvalidInput
	}
	periodDate, err := time.Parse("2006-01-02", req.PeriodDate)
	if err != nil {
		return run, nil, apperror.New(apperror.CodeInvalidInput, "Period date must be YYYY-MM-DD", http.StatusBadRequest)
	}
	if len(req.Employees) == 0 {
		return run, nil, payrollrunerrors.ErrEmptyBatch
	}

	codes := collectCodes(req.Employees)
	components, err := s.components.FindByCodes(ctx, organizationID, codes)
	if err != nil {
		return run, nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to load pay components", http.StatusInternalServerError)
	}
	byCode := make(map[string]paycomponent.PayComponent, len(components))
	for _, c := range components {
		byCode[c.Code] = c
	}

	inputs := make([]composer.EmployeeInput, 0, len(req.Employees))
	for _, emp := range req.Employees {
		employeeID, err := uuid.Parse(emp.EmployeeID)
		if err != nil {
			return run, nil, apperror.New(apperror.CodeInvalidInput, "Employee ID is not a valid UUID", http.StatusBadRequest)
		}

		variables, err := parseDecimalMap(emp.Variables)
		if err != nil {
			return run, nil, apperror.New(apperror.CodeInvalidInput,
				fmt.Sprintf("Variables for employee %s contain a non-numeric value", emp.EmployeeID), http.StatusBadRequest)
		}

		assignments := make([]composer.ComponentAssignment, 0, len(emp.Assignments))
		for _, a := range emp.Assignments {
			component, ok := byCode[a.ComponentCode]
			if !ok {
				return run, nil, apperror.New(apperror.CodeInvalidInput,
					fmt.Sprintf("Unknown pay component code %q", a.ComponentCode), http.StatusBadRequest)
			}

			configuration, err := parseDecimalMap(a.Configuration)
			if err != nil {
				return run, nil, apperror.New(apperror.CodeInvalidInput,
					fmt.Sprintf("Configuration for component %q contains a non-numeric value", a.ComponentCode), http.StatusBadRequest)
			}

			assignment := composer.ComponentAssignment{
				Component:     component,
				Configuration: configuration,
			}
			if a.EffectiveFrom != "" {
				from, err := time.Parse("2006-01-02", a.EffectiveFrom)
				if err != nil {
					return run, nil, apperror.New(apperror.CodeInvalidInput, "Assignment effective_from must be YYYY-MM-DD", http.StatusBadRequest)
				}
				assignment.EffectiveFrom = from
			}
			assignments = append(assignments, assignment)
		}

		inputs = append(inputs, composer.EmployeeInput{
			EmployeeID:  employeeID,
			Variables:   variables,
			Assignments: assignments,
		})
	}

	runID := uuid.New()
	if req.RunID != "" {
		runID, err = uuid.Parse(req.RunID)
		if err != nil {
			return run, nil, apperror.New(apperror.CodeInvalidInput, "Run ID is not a valid UUID", http.StatusBadRequest)
		}
	}

	run = composer.RunContext{
		OrganizationID:    orgID,
		RunID:             runID,
		PeriodDate:        periodDate,
		AllowedComponents: req.AllowedComponents,
	}
	return run, inputs, nil
}

func buildRecords(run *PayrollRun, lines []composer.PayslipLine) ([]PayrollRunLine, []PayrollRunTax) {
	records := make([]PayrollRunLine, 0, len(lines))
	var taxes []PayrollRunTax

	for _, line := range lines {
		record := PayrollRunLine{
			ID:             uuid.New(),
			RunID:          run.ID,
			OrganizationID: run.OrganizationID,
			EmployeeID:     line.EmployeeID,
			PeriodDate:     line.PeriodDate,
			GrossPay:       line.GrossPay,
			TaxableBase:    line.TaxableBase,
			TotalTax:       line.TotalTax,
			NetPay:         line.NetPay,
			Components:     line.Components,
			TaxByType:      line.TaxByType,
			Warnings:       line.Warnings,
		}
		records = append(records, record)

		for taxType, ruleSetID := range line.AppliedRuleSets {
			taxes = append(taxes, PayrollRunTax{
				ID:           uuid.New(),
				RunID:        run.ID,
				LineID:       record.ID,
				TaxRuleSetID: ruleSetID,
				TaxType:      taxType,
				Amount:       line.TaxByType[taxType],
			})
		}
	}
	return records, taxes
}

func sumTotals(lines []composer.PayslipLine) (gross, tax, net decimal.Decimal) {
	gross, tax, net = decimal.Zero, decimal.Zero, decimal.Zero
	for _, line := range lines {
		gross = gross.Add(line.GrossPay)
		tax = tax.Add(line.TotalTax)
		net = net.Add(line.NetPay)
	}
	return gross, tax, net
}

func collectCodes(employees []EmployeeBatchInput) []string {
	seen := make(map[string]bool)
	var codes []string
	for _, emp := range employees {
		for _, a := range emp.Assignments {
			if !seen[a.ComponentCode] {
				seen[a.ComponentCode] = true
				codes = append(codes, a.ComponentCode)
			}
		}
	}
	return codes
}

func parseDecimalMap(in map[string]string) (map[string]decimal.Decimal, error) {
	if len(in) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		out[k] = d
	}
	return out, nil
}

func mapToSummary(run *PayrollRun) RunSummaryResponse {
	return RunSummaryResponse{
		RunID:         run.ID.String(),
		RunNumber:     run.RunNumber,
		RunType:       run.RunType,
		Status:        run.Status,
		PeriodDate:    run.PeriodDate,
		EmployeeCount: run.EmployeeCount,
		FailureCount:  run.FailureCount,
		TotalGross:    run.TotalGross.String(),
		TotalTax:      run.TotalTax.String(),
		TotalNet:      run.TotalNet.String(),
		CreatedAt:     run.CreatedAt,
	}
}
