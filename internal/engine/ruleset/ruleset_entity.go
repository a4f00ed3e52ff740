package ruleset

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tax types carried by rule sets. One rule set is effective per
// (organization, tax type, date).
const (
	TaxTypeWageTax        = "wage_tax"
	TaxTypeWageTaxMonthly = "wage_tax_monthly"
	TaxTypeLumpSum        = "lump_sum_benefits"
	TaxTypeOvertime       = "overtime"
	TaxTypeAOV            = "aov"
	TaxTypeAWW            = "aww"
)

const (
	MethodBracket  = "bracket"
	MethodFlatRate = "flat_rate"

	// ModeProportional slices the taxable amount across the ordered
	// brackets. ModeComponentBased taxes the full amount at one flat rate.
	ModeProportional   = "proportional_distribution"
	ModeComponentBased = "component_based"
)

var ValidTaxTypes = []string{
	TaxTypeWageTax,
	TaxTypeWageTaxMonthly,
	TaxTypeLumpSum,
	TaxTypeOvertime,
	TaxTypeAOV,
	TaxTypeAWW,
}

// TaxRuleSet is the legally effective rate table for one tax type.
// Rows are append-only: a legal rate change creates a new row with a new
// effective window, it never mutates a row a posted run already references.
type TaxRuleSet struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrganizationID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_ruleset_org_type"`
	CountryCode       string     `gorm:"type:varchar(2);not null"`
	TaxType           string     `gorm:"type:varchar(40);not null;index:idx_ruleset_org_type"`
	Name              string     `gorm:"type:varchar(120);not null"`
	CalculationMethod string     `gorm:"type:varchar(20);not null"`
	CalculationMode   string     `gorm:"type:varchar(40);not null"`
	EffectiveFrom     time.Time  `gorm:"type:date;not null"`
	EffectiveTo       *time.Time `gorm:"type:date"` // nil = still active
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Brackets []TaxBracket `gorm:"foreignKey:TaxRuleSetID"`
}

func (TaxRuleSet) TableName() string {
	return "tax_rule_sets"
}

// TaxBracket is one row of a rule set's rate table. Within a rule set the
// brackets partition [0, inf) exactly once; the last bracket has a null
// income_max.
type TaxBracket struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TaxRuleSetID   uuid.UUID           `gorm:"type:uuid;not null;index"`
	BracketOrder   int                 `gorm:"not null"`
	IncomeMin      decimal.Decimal     `gorm:"type:numeric(15,4);not null"`
	IncomeMax      decimal.NullDecimal `gorm:"type:numeric(15,4)"` // invalid = unbounded top bracket
	RatePercentage decimal.Decimal     `gorm:"type:numeric(7,4);not null"`
	FixedAmount    decimal.Decimal     `gorm:"type:numeric(15,4);not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (TaxBracket) TableName() string {
	return "tax_brackets"
}

// WindowContains reports whether the rule set is effective on the given
// date. effective_from is inclusive; a nil effective_to means open-ended.
func (rs *TaxRuleSet) WindowContains(asOf time.Time) bool {
	day := truncateToDay(asOf)
	if day.Before(truncateToDay(rs.EffectiveFrom)) {
		return false
	}
	if rs.EffectiveTo == nil {
		return true
	}
	return !day.After(truncateToDay(*rs.EffectiveTo))
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ValidateBrackets enforces the partition invariant: bracket_order
// contiguous from 1, income_min of each bracket equal to income_max of the
// previous one, the first bracket starting at 0 and exactly the last one
// unbounded. The calculator re-runs this before computing any tax.
func (rs *TaxRuleSet) ValidateBrackets() error {
	if len(rs.Brackets) == 0 {
		return &MalformedRuleSetError{RuleSetID: rs.ID, TaxType: rs.TaxType, Reason: "rule set has no brackets"}
	}

	brackets := rs.OrderedBrackets()
	for i, b := range brackets {
		if b.BracketOrder != i+1 {
			return rs.malformed("bracket_order must be contiguous from 1")
		}
		if b.IncomeMin.IsNegative() {
			return rs.malformed("income_min must not be negative")
		}
		if b.RatePercentage.IsNegative() {
			return rs.malformed("rate_percentage must not be negative")
		}

		if i == 0 && !b.IncomeMin.IsZero() {
			return rs.malformed("first bracket must start at 0")
		}
		if i > 0 {
			prev := brackets[i-1]
			if !prev.IncomeMax.Valid {
				return rs.malformed("only the last bracket may be unbounded")
			}
			if !b.IncomeMin.Equal(prev.IncomeMax.Decimal) {
				return rs.malformed("brackets must be contiguous without gaps or overlaps")
			}
		}
		if b.IncomeMax.Valid && !b.IncomeMax.Decimal.GreaterThan(b.IncomeMin) {
			return rs.malformed("income_max must be greater than income_min")
		}
	}
	if brackets[len(brackets)-1].IncomeMax.Valid {
		return rs.malformed("last bracket must be unbounded")
	}
	return nil
}

// OrderedBrackets returns the brackets sorted by bracket_order without
// mutating the receiver.
func (rs *TaxRuleSet) OrderedBrackets() []TaxBracket {
	out := make([]TaxBracket, len(rs.Brackets))
	copy(out, rs.Brackets)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].BracketOrder < out[j-1].BracketOrder; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (rs *TaxRuleSet) malformed(reason string) error {
	return &MalformedRuleSetError{RuleSetID: rs.ID, TaxType: rs.TaxType, Reason: reason}
}

func IsValidTaxType(taxType string) bool {
	for _, t := range ValidTaxTypes {
		if t == taxType {
			return true
		}
	}
	return false
}
