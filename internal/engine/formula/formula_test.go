package formula_test

import (
	"testing"

	"payrolliq/internal/engine/formula"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func vars(pairs map[string]string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(pairs))
	for k, v := range pairs {
		out[k] = decimal.RequireFromString(v)
	}
	return out
}

func TestEvaluate_Arithmetic(t *testing.T) {
	cases := []struct {
		name    string
		formula string
		vars    map[string]string
		want    string
	}{
		{"literal", "42", nil, "42"},
		{"precedence", "2 + 3 * 4", nil, "14"},
		{"parentheses", "(2 + 3) * 4", nil, "20"},
		{"unary minus", "-5 + 8", nil, "3"},
		{"decimal literal", "0.075 * 1200", nil, "90"},
		{"variable", "annual_salary / 12", map[string]string{"annual_salary": "60000"}, "5000"},
		{"mixed", "annual_salary * 0.075 / 12", map[string]string{"annual_salary": "48000"}, "300"},
		{"min", "MIN(annual_salary * 0.03, 200)", map[string]string{"annual_salary": "60000"}, "200"},
		{"max", "MAX(base, 150)", map[string]string{"base": "120"}, "150"},
		{"round", "ROUND(10 / 3, 2)", nil, "3.33"},
		{"nested calls", "MIN(MAX(a, b), 100)", map[string]string{"a": "40", "b": "70"}, "70"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := formula.Evaluate(tc.formula, vars(tc.vars))
			assert.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)),
				"got %s, want %s", got, tc.want)
		})
	}
}

func TestEvaluate_MedicalCapExample(t *testing.T) {
	// MIN(annual_salary*0.03, 200)/12 with salary 60000 keeps full precision
	// until the caller rounds: 200/12 = 16.666... -> 16.67 at 2dp.
	got, err := formula.Evaluate(
		"MIN(annual_salary * 0.03, 200) / 12",
		vars(map[string]string{"annual_salary": "60000"}),
	)
	assert.NoError(t, err)
	assert.Equal(t, "16.67", formula.RoundBank(got).StringFixed(2))
}

func TestEvaluate_UndefinedVariable(t *testing.T) {
	_, err := formula.Evaluate("car_catalog_value * 0.15", nil)
	assert.Error(t, err)

	var undefErr *formula.UndefinedVariableError
	assert.ErrorAs(t, err, &undefErr)
	assert.Equal(t, "car_catalog_value", undefErr.Name)
}

func TestEvaluate_DivisionByZero(t *testing.T) {
	_, err := formula.Evaluate("salary / months", vars(map[string]string{
		"salary": "1000",
		"months": "0",
	}))
	assert.Error(t, err)

	var evalErr *formula.EvalError
	assert.ErrorAs(t, err, &evalErr)
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name    string
		formula string
	}{
		{"empty", ""},
		{"dangling operator", "1 +"},
		{"unclosed paren", "(1 + 2"},
		{"unknown function", "SQRT(4)"},
		{"double dot", "1.2.3"},
		{"trailing garbage", "1 + 2 )"},
		{"min arity", "MIN(1)"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := formula.Parse(tc.formula)
			assert.Error(t, err)

			var parseErr *formula.ParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestExpr_Variables(t *testing.T) {
	expr, err := formula.Parse("MIN(annual_salary * 0.03, cap) / months + annual_salary")
	assert.NoError(t, err)
	assert.Equal(t, []string{"annual_salary", "cap", "months"}, expr.Variables())
}

func TestExpr_ReusableAcrossBags(t *testing.T) {
	expr, err := formula.Parse("annual_salary * 0.075 / 12")
	assert.NoError(t, err)

	first, err := expr.Evaluate(vars(map[string]string{"annual_salary": "48000"}))
	assert.NoError(t, err)
	second, err := expr.Evaluate(vars(map[string]string{"annual_salary": "96000"}))
	assert.NoError(t, err)

	assert.True(t, first.Equal(decimal.RequireFromString("300")))
	assert.True(t, second.Equal(decimal.RequireFromString("600")))
}
