package bracket

import (
	"fmt"

	"payrolliq/internal/engine/ruleset"

	"github.com/shopspring/decimal"
)

// InvalidTaxableAmountError is returned for negative taxable amounts.
// Coercing to zero would misstate tax liability, so it fails fast instead.
type InvalidTaxableAmountError struct {
	Amount decimal.Decimal
}

func (e *InvalidTaxableAmountError) Error() string {
	return fmt.Sprintf("taxable amount %s is negative", e.Amount)
}

var oneHundred = decimal.NewFromInt(100)

// ComputeTax applies the rule set's bracket table to the taxable amount.
// The partition invariant is re-validated first; a malformed table aborts
// rather than producing a wrong figure.
func ComputeTax(rs *ruleset.TaxRuleSet, taxable decimal.Decimal) (decimal.Decimal, error) {
	if taxable.IsNegative() {
		return decimal.Zero, &InvalidTaxableAmountError{Amount: taxable}
	}
	if err := rs.ValidateBrackets(); err != nil {
		return decimal.Zero, err
	}

	switch rs.CalculationMode {
	case ruleset.ModeProportional:
		return computeProportional(rs, taxable), nil
	case ruleset.ModeComponentBased:
		return computeComponentBased(rs, taxable)
	default:
		return decimal.Zero, &ruleset.MalformedRuleSetError{
			RuleSetID: rs.ID,
			TaxType:   rs.TaxType,
			Reason:    fmt.Sprintf("unknown calculation mode %q", rs.CalculationMode),
		}
	}
}

// computeProportional slices the amount across the ordered brackets. Each
// bracket taxes its own slice at its own rate; fixed_amount is added once
// per bracket the amount actually enters.
func computeProportional(rs *ruleset.TaxRuleSet, taxable decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, b := range rs.OrderedBrackets() {
		if !taxable.GreaterThan(b.IncomeMin) {
			break
		}

		upper := taxable
		if b.IncomeMax.Valid && upper.GreaterThan(b.IncomeMax.Decimal) {
			upper = b.IncomeMax.Decimal
		}
		slice := upper.Sub(b.IncomeMin)

		total = total.Add(slice.Mul(b.RatePercentage).Div(oneHundred))
		total = total.Add(b.FixedAmount)
	}
	return total
}

// computeComponentBased taxes the full amount at the single flat rate.
// Flat-rate social contributions are computed per component, never sliced
// across the progressive scale.
func computeComponentBased(rs *ruleset.TaxRuleSet, taxable decimal.Decimal) (decimal.Decimal, error) {
	brackets := rs.OrderedBrackets()
	if len(brackets) != 1 {
		return decimal.Zero, &ruleset.MalformedRuleSetError{
			RuleSetID: rs.ID,
			TaxType:   rs.TaxType,
			Reason:    "component_based rule sets carry exactly one bracket",
		}
	}
	b := brackets[0]
	return taxable.Mul(b.RatePercentage).Div(oneHundred), nil
}
