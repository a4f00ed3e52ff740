package composer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"payrolliq/internal/engine/allowance"
	"payrolliq/internal/engine/deduction"
	"payrolliq/internal/engine/ruleset"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultWorkerCount = 8

// Failure records one employee the batch could not compose. The rest of
// the batch is unaffected; a commit persists every successful line and
// reports failures alongside.
type Failure struct {
	EmployeeID uuid.UUID `json:"employee_id"`
	Step       Step      `json:"step"`
	Component  string    `json:"component,omitempty"`
	Message    string    `json:"message"`
}

// RunResult is the outcome of one batch pass, preview or commit.
type RunResult struct {
	Lines    []PayslipLine `json:"lines"`
	Failures []Failure     `json:"failures"`
}

// Runner composes a whole batch of employees against a single snapshot of
// reference data. Rule sets and allowance caps are memoized per batch so
// every employee sees the same effective rules; usage reads stay live so
// concurrent commits serialize on the version column.
type Runner struct {
	ruleSets   ruleset.Repository
	allowances allowance.Repository
	deductions deduction.Resolver
	markers    MarkerRepository
	workers    int
	logger     *zap.Logger
}

func NewRunner(ruleSets ruleset.Repository, allowances allowance.Repository, deductions deduction.Resolver, markers MarkerRepository, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		ruleSets:   ruleSets,
		allowances: allowances,
		deductions: deductions,
		markers:    markers,
		workers:    defaultWorkerCount,
		logger:     logger,
	}
}

// WithWorkers overrides the parallelism of batch passes.
func (r *Runner) WithWorkers(n int) *Runner {
	if n > 0 {
		r.workers = n
	}
	return r
}

// Preview composes every employee without touching allowance usage. Safe
// to call any number of times.
func (r *Runner) Preview(ctx context.Context, run RunContext, inputs []EmployeeInput) (*RunResult, error) {
	return r.execute(ctx, run, inputs, false)
}

// Commit composes every employee and persists allowance grants. Employees
// that fail a step are reported and skipped with no ledger footprint;
// grants only move after the whole line composed. Each committed line is
// pinned by a (run, employee, period) marker, so re-running a partially
// committed run grants only the remainder.
func (r *Runner) Commit(ctx context.Context, run RunContext, inputs []EmployeeInput) (*RunResult, error) {
	return r.execute(ctx, run, inputs, true)
}

func (r *Runner) execute(ctx context.Context, run RunContext, inputs []EmployeeInput, commit bool) (*RunResult, error) {
	cachedRules := ruleset.NewCachedResolver(ruleset.NewResolver(r.ruleSets))
	cachedAllowances := allowance.NewCachedRepository(r.allowances)
	comp := New(cachedRules, allowance.NewLedger(cachedAllowances), r.deductions, r.logger)

	var (
		mu       sync.Mutex
		lines    []PayslipLine
		failures []Failure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, in := range inputs {
		in := in
		g.Go(func() error {
			grant := commit
			if commit {
				done, err := r.markers.IsLineCommitted(gctx, run.RunID, in.EmployeeID, run.PeriodDate)
				if err != nil {
					return fmt.Errorf("commit marker lookup for employee %s: %w", in.EmployeeID, err)
				}
				// Already granted by a prior attempt of this run:
				// rebuild the line without touching the ledger again.
				grant = !done
			}

			line, err := comp.Compose(gctx, run, in, grant)
			if err != nil {
				if defect := asReferenceDataDefect(err); defect != nil {
					return defect
				}
				mu.Lock()
				failures = append(failures, toFailure(in.EmployeeID, err))
				mu.Unlock()
				return nil
			}
			if grant {
				if err := r.markers.MarkLineCommitted(gctx, run.RunID, in.EmployeeID, run.PeriodDate); err != nil {
					return fmt.Errorf("commit marker write for employee %s: %w", in.EmployeeID, err)
				}
			}

			mu.Lock()
			lines = append(lines, *line)
			mu.Unlock()
			return nil
		})
	}

	// Workers report per-employee input failures in the result; the group
	// error carries batch-fatal conditions: cancellation, marker store
	// failures and reference-data defects.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(lines, func(i, j int) bool {
		return lines[i].EmployeeID.String() < lines[j].EmployeeID.String()
	})
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].EmployeeID.String() < failures[j].EmployeeID.String()
	})

	r.logger.Info("payroll batch pass finished",
		zap.String("run_id", run.RunID.String()),
		zap.Bool("commit", commit),
		zap.Int("composed", len(lines)),
		zap.Int("failed", len(failures)),
	)
	return &RunResult{Lines: lines, Failures: failures}, nil
}

// ReferenceDataError halts a whole batch pass. A missing, ambiguous or
// malformed rule table affects every employee taxed under it; committing
// around it would silently drop a tax type from their payslips.
type ReferenceDataError struct {
	Err error
}

func (e *ReferenceDataError) Error() string {
	return fmt.Sprintf("run halted by reference data defect: %v", e.Err)
}

func (e *ReferenceDataError) Unwrap() error {
	return e.Err
}

func asReferenceDataDefect(err error) error {
	var (
		noRule             *ruleset.NoApplicableRuleError
		ambiguousRule      *ruleset.AmbiguousRuleError
		malformedRuleSet   *ruleset.MalformedRuleSetError
		ambiguousDeduction *deduction.AmbiguousRuleError
	)
	if errors.As(err, &noRule) || errors.As(err, &ambiguousRule) ||
		errors.As(err, &malformedRuleSet) || errors.As(err, &ambiguousDeduction) {
		return &ReferenceDataError{Err: err}
	}
	return nil
}

func toFailure(employeeID uuid.UUID, err error) Failure {
	if stepErr, ok := err.(*StepError); ok {
		return Failure{
			EmployeeID: stepErr.EmployeeID,
			Step:       stepErr.Step,
			Component:  stepErr.Component,
			Message:    stepErr.Err.Error(),
		}
	}
	return Failure{EmployeeID: employeeID, Step: StepInit, Message: err.Error()}
}
