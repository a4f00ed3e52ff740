package composer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payrolliq/internal/engine/allowance"
	"payrolliq/internal/engine/bracket"
	"payrolliq/internal/engine/deduction"
	"payrolliq/internal/engine/formula"
	"payrolliq/internal/engine/ruleset"
	"payrolliq/internal/paycomponent"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Steps of the per-employee composition state machine. Every failure names
// the step it happened in.
type Step string

const (
	StepInit              Step = "init"
	StepVariablesGathered Step = "variables_gathered"
	StepComponents        Step = "components_evaluated"
	StepAllowances        Step = "allowances_applied"
	StepStandardDeduction Step = "standard_deduction_applied"
	StepTaxComputed       Step = "tax_computed"
	StepComposed          Step = "composed"
)

// StepError wraps a failure with the employee, component and step it
// occurred in. A step failure aborts the whole employee line; there are no
// partial payslips.
type StepError struct {
	Step       Step
	EmployeeID uuid.UUID
	Component  string
	Err        error
}

func (e *StepError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("employee %s failed at step %s (component %s): %v", e.EmployeeID, e.Step, e.Component, e.Err)
	}
	return fmt.Sprintf("employee %s failed at step %s: %v", e.EmployeeID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ComponentAssignment binds a pay component to the employee for this run.
// Configuration overrides or supplements the employee variable bag for
// that component only (e.g. car_catalog_value). The engine reads these,
// it never manages their lifecycle.
type ComponentAssignment struct {
	Component     paycomponent.PayComponent
	Configuration map[string]decimal.Decimal
	EffectiveFrom time.Time
}

// EmployeeInput is one employee's slice of the batch: assigned components
// plus the variable bag supplied by the compensation collaborator.
type EmployeeInput struct {
	EmployeeID  uuid.UUID
	Variables   map[string]decimal.Decimal
	Assignments []ComponentAssignment
}

// RunContext is shared by every employee in a batch. AllowedComponents
// narrows the run to specific component codes (empty = all assigned),
// which is how bonus-only or regular run templates are expressed.
type RunContext struct {
	OrganizationID    uuid.UUID
	RunID             uuid.UUID
	PeriodDate        time.Time
	AllowedComponents []string
}

// ComponentLine is one evaluated component on the payslip. Amounts are
// rounded to 2 decimals with banker's rounding at emission; all upstream
// arithmetic keeps full precision.
type ComponentLine struct {
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	ComponentType   string          `json:"component_type"`
	Category        string          `json:"category"`
	CalculationType string          `json:"calculation_type"`
	Amount          decimal.Decimal `json:"amount"`
	IsTaxable       bool            `json:"is_taxable"`
	TaxFreePortion  decimal.Decimal `json:"tax_free_portion"`
	TaxablePortion  decimal.Decimal `json:"taxable_portion"`
}

// PayslipLine is the immutable outcome of one employee's composition.
// AppliedRuleSets records which rule set produced each tax figure so
// committed lines stay auditable after rule sets are superseded.
type PayslipLine struct {
	EmployeeID      uuid.UUID                  `json:"employee_id"`
	RunID           uuid.UUID                  `json:"run_id"`
	PeriodDate      time.Time                  `json:"period_date"`
	Components      []ComponentLine            `json:"components"`
	GrossPay        decimal.Decimal            `json:"gross_pay"`
	TaxableBase     decimal.Decimal            `json:"taxable_base"`
	TaxByType       map[string]decimal.Decimal `json:"tax_by_type"`
	AppliedRuleSets map[string]uuid.UUID       `json:"applied_rule_sets"`
	TotalTax        decimal.Decimal            `json:"total_tax"`
	NetPay          decimal.Decimal            `json:"net_pay"`
	Warnings        []allowance.Warning        `json:"warnings"`
}

// Composer turns one employee's components for one period into a payslip
// line. It is stateless; all state lives in the inputs and, for commits,
// in the allowance ledger.
type Composer struct {
	resolver   ruleset.Resolver
	ledger     allowance.Ledger
	deductions deduction.Resolver
	logger     *zap.Logger
}

func New(resolver ruleset.Resolver, ledger allowance.Ledger, deductions deduction.Resolver, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		resolver:   resolver,
		ledger:     ledger,
		deductions: deductions,
		logger:     logger,
	}
}

// Compose runs the state machine for one employee. When commit is false
// the allowance ledger is only consulted, never mutated. On commit the
// grants are persisted only after every step has succeeded, so an aborted
// line never leaves usage behind.
func (c *Composer) Compose(ctx context.Context, run RunContext, in EmployeeInput, commit bool) (*PayslipLine, error) {
	// Init
	if in.EmployeeID == uuid.Nil {
		return nil, c.fail(StepInit, in.EmployeeID, "", fmt.Errorf("employee id is required"))
	}
	assignments := filterAssignments(in.Assignments, run)

	// VariablesGathered: validate negative bases up front; a negative
	// salary input must surface here, not as a negative tax later.
	for name, v := range in.Variables {
		if v.IsNegative() {
			return nil, c.fail(StepVariablesGathered, in.EmployeeID, "", fmt.Errorf("variable %s is negative (%s)", name, v))
		}
	}

	// ComponentsEvaluated
	evaluated := make([]evaluatedComponent, 0, len(assignments))
	for _, a := range assignments {
		amount, err := c.evaluateComponent(a, in.Variables)
		if err != nil {
			return nil, c.fail(StepComponents, in.EmployeeID, a.Component.Code, err)
		}
		evaluated = append(evaluated, evaluatedComponent{assignment: a, amount: amount})
	}

	// AllowancesApplied: splits are previewed here in both modes. Grants
	// move only after every later step has succeeded, so a deduction or
	// tax failure leaves no ledger footprint.
	state := newLineState()
	for i := range evaluated {
		if err := c.previewAllowance(ctx, run, in, &evaluated[i]); err != nil {
			return nil, c.fail(StepAllowances, in.EmployeeID, evaluated[i].assignment.Component.Code, err)
		}
	}
	c.accumulate(evaluated, state)

	// StandardDeductionApplied
	rule, err := c.deductions.Resolve(ctx, run.OrganizationID, run.PeriodDate)
	if err != nil {
		return nil, c.fail(StepStandardDeduction, in.EmployeeID, "", err)
	}
	applyStandard := func(s *lineState) {
		if rule != nil {
			s.wageBase = s.wageBase.Sub(rule.Apply(s.wageBase))
		}
	}
	applyStandard(state)

	// TaxComputed
	taxByType, appliedRuleSets, err := c.computeTaxes(ctx, run, in, state)
	if err != nil {
		return nil, c.fail(StepTaxComputed, in.EmployeeID, "", err)
	}

	if commit {
		// Grants are the only mutation and they run last. A committed
		// split can carry less tax-free room than the preview saw when a
		// concurrent run consumed cap in between; the line is then
		// rebuilt from the splits that were actually granted.
		changed, err := c.commitGrants(ctx, run, in, evaluated)
		if err != nil {
			return nil, err
		}
		if changed {
			state = newLineState()
			c.accumulate(evaluated, state)
			applyStandard(state)
			taxByType, appliedRuleSets, err = c.computeTaxes(ctx, run, in, state)
			if err != nil {
				return nil, c.fail(StepTaxComputed, in.EmployeeID, "", err)
			}
		}
	}

	// Composed
	line := c.composeLine(run, in, evaluated, state, taxByType, appliedRuleSets)
	c.logger.Debug("payslip line composed",
		zap.String("employee_id", in.EmployeeID.String()),
		zap.String("run_id", run.RunID.String()),
		zap.String("net_pay", line.NetPay.String()),
		zap.Bool("commit", commit),
	)
	return line, nil
}

type evaluatedComponent struct {
	assignment ComponentAssignment
	amount     decimal.Decimal
	split      *allowance.Split
}

type lineState struct {
	wageBase     decimal.Decimal // regular taxable earnings
	overtimeBase decimal.Decimal // taxed by the overtime rate table
	lumpSumBase  decimal.Decimal // taxable overflow of capped irregular payments
	gross        decimal.Decimal
	preTax       decimal.Decimal // deductions that reduce the taxable base
	postTax      decimal.Decimal // deductions withheld after tax
	warnings     []allowance.Warning
}

func newLineState() *lineState {
	return &lineState{
		wageBase:     decimal.Zero,
		overtimeBase: decimal.Zero,
		lumpSumBase:  decimal.Zero,
		gross:        decimal.Zero,
		preTax:       decimal.Zero,
		postTax:      decimal.Zero,
	}
}

func (c *Composer) evaluateComponent(a ComponentAssignment, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	merged := mergeVariables(vars, a.Configuration)

	switch a.Component.CalculationType {
	case paycomponent.CalcFixed:
		if !a.Component.Amount.Valid {
			return decimal.Zero, fmt.Errorf("fixed component has no amount")
		}
		return a.Component.Amount.Decimal, nil

	case paycomponent.CalcPercentage:
		if !a.Component.Amount.Valid {
			return decimal.Zero, fmt.Errorf("percentage component has no rate")
		}
		wage, ok := merged["monthly_wage"]
		if !ok {
			return decimal.Zero, &formula.UndefinedVariableError{Name: "monthly_wage"}
		}
		return wage.Mul(a.Component.Amount.Decimal).Div(decimal.NewFromInt(100)), nil

	case paycomponent.CalcFormula:
		expr, err := formula.Parse(a.Component.Formula)
		if err != nil {
			return decimal.Zero, err
		}
		return expr.Evaluate(merged)

	default:
		return decimal.Zero, fmt.Errorf("unknown calculation type %q", a.Component.CalculationType)
	}
}

// previewAllowance routes capped categories through the ledger without
// mutating usage. Only the taxable overflow of a capped payment feeds the
// lump-sum base; the tax-free portion stays off every tax base.
func (c *Composer) previewAllowance(ctx context.Context, run RunContext, in EmployeeInput, ec *evaluatedComponent) error {
	comp := ec.assignment.Component
	if comp.ComponentType != paycomponent.TypeEarning || !allowance.IsValidType(comp.Category) {
		return nil
	}

	split, err := c.ledger.Preview(ctx, allowanceInput(run, in, ec))
	if err != nil {
		return err
	}

	ec.split = &split
	return nil
}

func allowanceInput(run RunContext, in EmployeeInput, ec *evaluatedComponent) allowance.ApplyInput {
	return allowance.ApplyInput{
		OrganizationID: run.OrganizationID,
		EmployeeID:     in.EmployeeID,
		AllowanceType:  ec.assignment.Component.Category,
		Gross:          ec.amount,
		PaymentDate:    run.PeriodDate,
		MonthlyWage:    in.Variables["monthly_wage"],
	}
}

// commitGrants persists every previewed split in one sweep once the whole
// machine has succeeded. Reports whether any committed split came back
// different from its preview, which happens when a concurrent run consumed
// cap room in between.
func (c *Composer) commitGrants(ctx context.Context, run RunContext, in EmployeeInput, evaluated []evaluatedComponent) (bool, error) {
	changed := false
	for i := range evaluated {
		ec := &evaluated[i]
		if ec.split == nil {
			continue
		}

		split, err := c.ledger.Commit(ctx, allowanceInput(run, in, ec))
		if err != nil {
			return false, c.fail(StepAllowances, in.EmployeeID, ec.assignment.Component.Code, err)
		}
		if !split.TaxablePortion.Equal(ec.split.TaxablePortion) {
			changed = true
		}
		ec.split = &split
	}
	return changed, nil
}

func (c *Composer) accumulate(evaluated []evaluatedComponent, state *lineState) {
	for _, ec := range evaluated {
		comp := ec.assignment.Component

		if ec.split != nil {
			state.warnings = append(state.warnings, ec.split.Warnings...)
		}

		if comp.ComponentType == paycomponent.TypeDeduction {
			if comp.IsTaxable {
				// Pre-tax deduction (pension contribution): reduces the
				// taxable base and is withheld from net.
				state.preTax = state.preTax.Add(ec.amount)
			} else {
				state.postTax = state.postTax.Add(ec.amount)
			}
			continue
		}

		// Benefit in kind is taxed but never paid out.
		if comp.Category != paycomponent.CategoryBenefitInKind {
			state.gross = state.gross.Add(ec.amount)
		}

		if !comp.IsTaxable {
			continue
		}

		switch {
		case ec.split != nil:
			state.lumpSumBase = state.lumpSumBase.Add(ec.split.TaxablePortion)
		case comp.Category == paycomponent.CategoryOvertime:
			state.overtimeBase = state.overtimeBase.Add(ec.amount)
		default:
			state.wageBase = state.wageBase.Add(ec.amount)
		}
	}

	state.wageBase = state.wageBase.Sub(state.preTax)
	if state.wageBase.IsNegative() {
		state.wageBase = decimal.Zero
	}
}

// computeTaxes resolves every applicable rule set and sums the bracket
// calculator's outputs. The monthly tax-free sum is consumed as a
// zero-rate floor on the wage-tax base before slicing. Flat AOV/AWW apply
// to the full taxable base, overtime and lump-sum bases go through their
// own tables only when non-zero.
func (c *Composer) computeTaxes(ctx context.Context, run RunContext, in EmployeeInput, state *lineState) (map[string]decimal.Decimal, map[string]uuid.UUID, error) {
	taxes := make(map[string]decimal.Decimal)
	applied := make(map[string]uuid.UUID)

	wageTaxBase, err := c.applyTaxFreeSum(ctx, run, in, state.wageBase)
	if err != nil {
		return nil, nil, err
	}

	fullBase := state.wageBase.Add(state.overtimeBase).Add(state.lumpSumBase)

	bases := []struct {
		taxType string
		amount  decimal.Decimal
		always  bool
	}{
		{ruleset.TaxTypeWageTaxMonthly, wageTaxBase, true},
		{ruleset.TaxTypeAOV, fullBase, true},
		{ruleset.TaxTypeAWW, fullBase, true},
		{ruleset.TaxTypeOvertime, state.overtimeBase, false},
		{ruleset.TaxTypeLumpSum, state.lumpSumBase, false},
	}

	for _, b := range bases {
		if !b.always && !b.amount.IsPositive() {
			continue
		}
		rs, err := c.resolver.Resolve(ctx, run.OrganizationID, b.taxType, run.PeriodDate)
		if err != nil {
			return nil, nil, err
		}
		tax, err := bracket.ComputeTax(rs, b.amount)
		if err != nil {
			return nil, nil, err
		}
		taxes[b.taxType] = tax
		applied[b.taxType] = rs.ID
	}

	return taxes, applied, nil
}

// applyTaxFreeSum consumes the monthly tax-free sum allowance against the
// wage-tax base. The monthly cap resets every period, so it goes through
// the ledger like any other capped allowance keyed to the period.
func (c *Composer) applyTaxFreeSum(ctx context.Context, run RunContext, in EmployeeInput, base decimal.Decimal) (decimal.Decimal, error) {
	if !base.IsPositive() {
		return base, nil
	}

	apply := allowance.ApplyInput{
		OrganizationID: run.OrganizationID,
		EmployeeID:     in.EmployeeID,
		AllowanceType:  allowance.TypeTaxFreeSumMonthly,
		Gross:          base,
		PaymentDate:    run.PeriodDate,
		MonthlyWage:    in.Variables["monthly_wage"],
	}

	split, err := c.ledger.Preview(ctx, apply)
	if err != nil {
		var noAllowance *allowance.NoApplicableAllowanceError
		if errors.As(err, &noAllowance) {
			// No monthly free sum configured: the full base is sliced.
			return base, nil
		}
		return decimal.Zero, err
	}

	// The monthly free sum is a per-period floor, not an annual running
	// cap, so the cap amount is simply subtracted each period.
	return decimal.Max(base.Sub(split.Cap), decimal.Zero), nil
}

func (c *Composer) composeLine(run RunContext, in EmployeeInput, evaluated []evaluatedComponent, state *lineState, taxByType map[string]decimal.Decimal, appliedRuleSets map[string]uuid.UUID) *PayslipLine {
	components := make([]ComponentLine, len(evaluated))
	for i, ec := range evaluated {
		comp := ec.assignment.Component
		line := ComponentLine{
			Code:            comp.Code,
			Name:            comp.Name,
			ComponentType:   comp.ComponentType,
			Category:        comp.Category,
			CalculationType: comp.CalculationType,
			Amount:          formula.RoundBank(ec.amount),
			IsTaxable:       comp.IsTaxable,
		}
		if ec.split != nil {
			line.TaxFreePortion = formula.RoundBank(ec.split.TaxFreePortion)
			line.TaxablePortion = formula.RoundBank(ec.split.TaxablePortion)
		}
		components[i] = line
	}

	totalTax := decimal.Zero
	rounded := make(map[string]decimal.Decimal, len(taxByType))
	for taxType, amount := range taxByType {
		r := formula.RoundBank(amount)
		rounded[taxType] = r
		totalTax = totalTax.Add(r)
	}

	taxableBase := state.wageBase.Add(state.overtimeBase).Add(state.lumpSumBase)
	net := state.gross.Sub(state.preTax).Sub(state.postTax).Sub(totalTax)

	return &PayslipLine{
		EmployeeID:      in.EmployeeID,
		RunID:           run.RunID,
		PeriodDate:      run.PeriodDate,
		Components:      components,
		GrossPay:        formula.RoundBank(state.gross),
		TaxableBase:     formula.RoundBank(taxableBase),
		TaxByType:       rounded,
		AppliedRuleSets: appliedRuleSets,
		TotalTax:        totalTax,
		NetPay:          formula.RoundBank(net),
		Warnings:        state.warnings,
	}
}

func (c *Composer) fail(step Step, employeeID uuid.UUID, component string, err error) error {
	c.logger.Warn("payslip composition failed",
		zap.String("employee_id", employeeID.String()),
		zap.String("step", string(step)),
		zap.String("component", component),
		zap.Error(err),
	)
	return &StepError{Step: step, EmployeeID: employeeID, Component: component, Err: err}
}

func filterAssignments(assignments []ComponentAssignment, run RunContext) []ComponentAssignment {
	allowed := make(map[string]bool, len(run.AllowedComponents))
	for _, code := range run.AllowedComponents {
		allowed[code] = true
	}

	out := make([]ComponentAssignment, 0, len(assignments))
	for _, a := range assignments {
		if len(allowed) > 0 && !allowed[a.Component.Code] {
			continue
		}
		if !a.EffectiveFrom.IsZero() && a.EffectiveFrom.After(run.PeriodDate) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func mergeVariables(base, overrides map[string]decimal.Decimal) map[string]decimal.Decimal {
	merged := make(map[string]decimal.Decimal, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
