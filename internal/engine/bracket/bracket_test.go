package bracket_test

import (
	"testing"

	"payrolliq/internal/engine/bracket"
	"payrolliq/internal/engine/ruleset"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func nullDec(v string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(v), Valid: true}
}

func progressiveRuleSet(brackets ...ruleset.TaxBracket) *ruleset.TaxRuleSet {
	return &ruleset.TaxRuleSet{
		ID:                uuid.New(),
		TaxType:           ruleset.TaxTypeWageTaxMonthly,
		CalculationMethod: ruleset.MethodBracket,
		CalculationMode:   ruleset.ModeProportional,
		Brackets:          brackets,
	}
}

func monthlyWageTax2025() *ruleset.TaxRuleSet {
	return progressiveRuleSet(
		ruleset.TaxBracket{BracketOrder: 1, IncomeMin: dec("0"), IncomeMax: nullDec("3500"), RatePercentage: dec("8"), FixedAmount: decimal.Zero},
		ruleset.TaxBracket{BracketOrder: 2, IncomeMin: dec("3500"), IncomeMax: nullDec("7000"), RatePercentage: dec("18"), FixedAmount: decimal.Zero},
		ruleset.TaxBracket{BracketOrder: 3, IncomeMin: dec("7000"), RatePercentage: dec("30"), FixedAmount: decimal.Zero},
	)
}

func flatRuleSet(rate string) *ruleset.TaxRuleSet {
	return &ruleset.TaxRuleSet{
		ID:                uuid.New(),
		TaxType:           ruleset.TaxTypeAOV,
		CalculationMethod: ruleset.MethodFlatRate,
		CalculationMode:   ruleset.ModeComponentBased,
		Brackets: []ruleset.TaxBracket{
			{BracketOrder: 1, IncomeMin: dec("0"), RatePercentage: dec(rate), FixedAmount: decimal.Zero},
		},
	}
}

func TestComputeTax_ProportionalDistribution(t *testing.T) {
	rs := monthlyWageTax2025()

	cases := []struct {
		name    string
		taxable string
		want    string
	}{
		{"zero income", "0", "0"},
		{"inside first bracket", "2000", "160"},
		{"exactly at boundary", "3500", "280"},
		// 3500*0.08 + 1500*0.18 = 280 + 270
		{"two brackets", "5000", "550"},
		// 280 + 630 + 3000*0.30
		{"into top bracket", "10000", "1810"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := bracket.ComputeTax(rs, dec(tc.taxable))
			assert.NoError(t, err)
			assert.True(t, got.Equal(dec(tc.want)), "got %s, want %s", got, tc.want)
		})
	}
}

func TestComputeTax_ComponentBased(t *testing.T) {
	rs := flatRuleSet("4")

	got, err := bracket.ComputeTax(rs, dec("5000"))
	assert.NoError(t, err)
	assert.True(t, got.Equal(dec("200")), "got %s", got)
}

func TestComputeTax_FixedAmountAppliedOncePerBracketEntered(t *testing.T) {
	rs := progressiveRuleSet(
		ruleset.TaxBracket{BracketOrder: 1, IncomeMin: dec("0"), IncomeMax: nullDec("1000"), RatePercentage: dec("10"), FixedAmount: dec("5")},
		ruleset.TaxBracket{BracketOrder: 2, IncomeMin: dec("1000"), RatePercentage: dec("20"), FixedAmount: dec("25")},
	)

	t.Run("only first bracket entered", func(t *testing.T) {
		got, err := bracket.ComputeTax(rs, dec("500"))
		assert.NoError(t, err)
		// 500*0.10 + 5
		assert.True(t, got.Equal(dec("55")), "got %s", got)
	})

	t.Run("second bracket entered once", func(t *testing.T) {
		got, err := bracket.ComputeTax(rs, dec("1500"))
		assert.NoError(t, err)
		// 1000*0.10 + 5 + 500*0.20 + 25
		assert.True(t, got.Equal(dec("230")), "got %s", got)
	})

	t.Run("boundary does not enter next bracket", func(t *testing.T) {
		got, err := bracket.ComputeTax(rs, dec("1000"))
		assert.NoError(t, err)
		// exactly income_max of bracket 1: slice of bracket 2 is empty
		assert.True(t, got.Equal(dec("105")), "got %s", got)
	})
}

func TestComputeTax_NegativeAmount(t *testing.T) {
	_, err := bracket.ComputeTax(monthlyWageTax2025(), dec("-1"))
	assert.Error(t, err)

	var invalidErr *bracket.InvalidTaxableAmountError
	assert.ErrorAs(t, err, &invalidErr)
}

func TestComputeTax_MalformedRuleSets(t *testing.T) {
	cases := []struct {
		name string
		rs   *ruleset.TaxRuleSet
	}{
		{"no brackets", progressiveRuleSet()},
		{"gap between brackets", progressiveRuleSet(
			ruleset.TaxBracket{BracketOrder: 1, IncomeMin: dec("0"), IncomeMax: nullDec("1000"), RatePercentage: dec("10")},
			ruleset.TaxBracket{BracketOrder: 2, IncomeMin: dec("1200"), RatePercentage: dec("20")},
		)},
		{"overlapping brackets", progressiveRuleSet(
			ruleset.TaxBracket{BracketOrder: 1, IncomeMin: dec("0"), IncomeMax: nullDec("1000"), RatePercentage: dec("10")},
			ruleset.TaxBracket{BracketOrder: 2, IncomeMin: dec("800"), RatePercentage: dec("20")},
		)},
		{"bounded top bracket", progressiveRuleSet(
			ruleset.TaxBracket{BracketOrder: 1, IncomeMin: dec("0"), IncomeMax: nullDec("1000"), RatePercentage: dec("10")},
			ruleset.TaxBracket{BracketOrder: 2, IncomeMin: dec("1000"), IncomeMax: nullDec("2000"), RatePercentage: dec("20")},
		)},
		{"unbounded middle bracket", progressiveRuleSet(
			ruleset.TaxBracket{BracketOrder: 1, IncomeMin: dec("0"), RatePercentage: dec("10")},
			ruleset.TaxBracket{BracketOrder: 2, IncomeMin: dec("1000"), RatePercentage: dec("20")},
		)},
		{"non-contiguous order", progressiveRuleSet(
			ruleset.TaxBracket{BracketOrder: 1, IncomeMin: dec("0"), IncomeMax: nullDec("1000"), RatePercentage: dec("10")},
			ruleset.TaxBracket{BracketOrder: 3, IncomeMin: dec("1000"), RatePercentage: dec("20")},
		)},
		{"first bracket not at zero", progressiveRuleSet(
			ruleset.TaxBracket{BracketOrder: 1, IncomeMin: dec("100"), RatePercentage: dec("10")},
		)},
		{"flat rate with two brackets", func() *ruleset.TaxRuleSet {
			rs := flatRuleSet("4")
			rs.Brackets = []ruleset.TaxBracket{
				{BracketOrder: 1, IncomeMin: dec("0"), IncomeMax: nullDec("1000"), RatePercentage: dec("4")},
				{BracketOrder: 2, IncomeMin: dec("1000"), RatePercentage: dec("4")},
			}
			return rs
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := bracket.ComputeTax(tc.rs, dec("5000"))
			assert.Error(t, err)

			var malformedErr *ruleset.MalformedRuleSetError
			assert.ErrorAs(t, err, &malformedErr)
		})
	}
}

// Piecewise-linear reference check: tax over a fine sweep must be
// non-decreasing, and with zero fixed amounts also continuous (steps
// bounded by stepSize * topRate).
func TestComputeTax_MonotoneAndContinuous(t *testing.T) {
	rs := monthlyWageTax2025()
	step := dec("50")
	maxDelta := step.Mul(dec("0.30")) // top rate

	prev := decimal.Zero
	amount := decimal.Zero
	for i := 0; i < 300; i++ {
		got, err := bracket.ComputeTax(rs, amount)
		assert.NoError(t, err)
		assert.False(t, got.LessThan(prev), "tax decreased at %s", amount)
		assert.False(t, got.Sub(prev).GreaterThan(maxDelta.Add(dec("0.0001"))),
			"tax jumped at %s", amount)
		prev = got
		amount = amount.Add(step)
	}
}

// The sliced total must match a straightforward reference implementation
// for arbitrary amounts.
func TestComputeTax_MatchesReferenceImplementation(t *testing.T) {
	rs := monthlyWageTax2025()

	reference := func(taxable decimal.Decimal) decimal.Decimal {
		bounds := []struct {
			lo, hi, rate decimal.Decimal
		}{
			{dec("0"), dec("3500"), dec("0.08")},
			{dec("3500"), dec("7000"), dec("0.18")},
			{dec("7000"), dec("999999999"), dec("0.30")},
		}
		total := decimal.Zero
		for _, b := range bounds {
			if taxable.LessThanOrEqual(b.lo) {
				break
			}
			hi := decimal.Min(taxable, b.hi)
			total = total.Add(hi.Sub(b.lo).Mul(b.rate))
		}
		return total
	}

	for _, amount := range []string{"0", "1", "3499.99", "3500", "3500.01", "6999", "7000", "12345.67", "100000"} {
		taxable := dec(amount)
		got, err := bracket.ComputeTax(rs, taxable)
		assert.NoError(t, err)
		want := reference(taxable)
		assert.True(t, got.Equal(want), "amount %s: got %s, want %s", amount, got, want)
	}
}
