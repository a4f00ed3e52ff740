package seed

import (
	"context"
	"time"

	"payrolliq/internal/engine/allowance"
	"payrolliq/internal/engine/deduction"
	"payrolliq/internal/engine/ruleset"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 2025 reference data for a newly onboarded organization: progressive
// monthly wage tax, flat AOV/AWW contributions, separate overtime and
// lump-sum tables, plus the capped allowance amounts. Administrators
// supersede these rows when rates change; the seeder never overwrites.

var effectiveFrom2025 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func bounded(max string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(max), Valid: true}
}

func progressive(organizationID uuid.UUID, taxType, name string, brackets []ruleset.TaxBracket) ruleset.TaxRuleSet {
	id := uuid.New()
	for i := range brackets {
		brackets[i].ID = uuid.New()
		brackets[i].TaxRuleSetID = id
	}
	return ruleset.TaxRuleSet{
		ID:                id,
		OrganizationID:    organizationID,
		CountryCode:       "CW",
		TaxType:           taxType,
		Name:              name,
		CalculationMethod: ruleset.MethodBracket,
		CalculationMode:   ruleset.ModeProportional,
		EffectiveFrom:     effectiveFrom2025,
		Brackets:          brackets,
	}
}

func flat(organizationID uuid.UUID, taxType, name, rate string) ruleset.TaxRuleSet {
	id := uuid.New()
	return ruleset.TaxRuleSet{
		ID:                id,
		OrganizationID:    organizationID,
		CountryCode:       "CW",
		TaxType:           taxType,
		Name:              name,
		CalculationMethod: ruleset.MethodFlatRate,
		CalculationMode:   ruleset.ModeComponentBased,
		EffectiveFrom:     effectiveFrom2025,
		Brackets: []ruleset.TaxBracket{{
			ID:             uuid.New(),
			TaxRuleSetID:   id,
			BracketOrder:   1,
			IncomeMin:      decimal.Zero,
			RatePercentage: dec(rate),
		}},
	}
}

// RuleSets2025 returns the 2025 rate tables for one organization.
func RuleSets2025(organizationID uuid.UUID) []ruleset.TaxRuleSet {
	return []ruleset.TaxRuleSet{
		progressive(organizationID, ruleset.TaxTypeWageTaxMonthly, "Monthly wage tax 2025", []ruleset.TaxBracket{
			{BracketOrder: 1, IncomeMin: decimal.Zero, IncomeMax: bounded("3500"), RatePercentage: dec("8")},
			{BracketOrder: 2, IncomeMin: dec("3500"), IncomeMax: bounded("7000"), RatePercentage: dec("18")},
			{BracketOrder: 3, IncomeMin: dec("7000"), RatePercentage: dec("30")},
		}),
		progressive(organizationID, ruleset.TaxTypeOvertime, "Overtime tax 2025", []ruleset.TaxBracket{
			{BracketOrder: 1, IncomeMin: decimal.Zero, IncomeMax: bounded("1000"), RatePercentage: dec("12.5")},
			{BracketOrder: 2, IncomeMin: dec("1000"), RatePercentage: dec("20")},
		}),
		flat(organizationID, ruleset.TaxTypeAOV, "AOV contribution 2025", "4"),
		flat(organizationID, ruleset.TaxTypeAWW, "AWW contribution 2025", "0.5"),
		flat(organizationID, ruleset.TaxTypeLumpSum, "Lump sum benefits 2025", "25"),
	}
}

// Allowances2025 returns the 2025 allowance caps for one organization.
func Allowances2025(organizationID uuid.UUID) []allowance.Allowance {
	fixed := func(allowanceType, amount string) allowance.Allowance {
		return allowance.Allowance{
			ID:             uuid.New(),
			OrganizationID: organizationID,
			CountryCode:    "CW",
			AllowanceType:  allowanceType,
			Amount:         dec(amount),
			EffectiveFrom:  effectiveFrom2025,
		}
	}
	percentage := func(allowanceType, amount string) allowance.Allowance {
		a := fixed(allowanceType, amount)
		a.IsPercentage = true
		return a
	}

	return []allowance.Allowance{
		fixed(allowance.TypeHolidayAllowance, "10016"),
		fixed(allowance.TypeBonusGratuity, "1690"),
		fixed(allowance.TypeTaxFreeSumMonthly, "1250"),
		fixed(allowance.TypeChildAllowance, "900"),
		fixed(allowance.TypeExchangeRateComp, "600"),
		percentage(allowance.TypePensionPayment, "6"),
		percentage(allowance.TypeAnniversary25Years, "100"),
		percentage(allowance.TypeAnniversary40Years, "200"),
	}
}

// DeductibleCostRule2025 returns the standard deductible-cost relief:
// 3% of taxable earnings, bounded at 500 per period.
func DeductibleCostRule2025(organizationID uuid.UUID) deduction.DeductibleCostRule {
	return deduction.DeductibleCostRule{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		CountryCode:    "CW",
		Amount:         dec("3"),
		IsPercentage:   true,
		MaxDeduction:   decimal.NullDecimal{Decimal: dec("500"), Valid: true},
		EffectiveFrom:  effectiveFrom2025,
	}
}

// Apply inserts the 2025 reference data for an organization that has none
// yet. Existing rows for the organization make it a no-op, so restarts and
// reruns are safe.
func Apply(ctx context.Context, db *gorm.DB, organizationID uuid.UUID) error {
	var count int64
	err := db.WithContext(ctx).
		Model(&ruleset.TaxRuleSet{}).
		Where("organization_id = ?", organizationID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rs := range RuleSets2025(organizationID) {
			rs := rs
			if err := tx.Create(&rs).Error; err != nil {
				return err
			}
		}
		for _, a := range Allowances2025(organizationID) {
			a := a
			if err := tx.Create(&a).Error; err != nil {
				return err
			}
		}
		rule := DeductibleCostRule2025(organizationID)
		return tx.Create(&rule).Error
	})
}
