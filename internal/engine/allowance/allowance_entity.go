package allowance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Capped allowance categories. Values change by year through new rows with
// disjoint effective windows, never by mutating an existing row.
const (
	TypeHolidayAllowance   = "holiday_allowance"
	TypeBonusGratuity      = "bonus_gratuity"
	TypeTaxFreeSumMonthly  = "tax_free_sum_monthly"
	TypeChildAllowance     = "child_allowance"
	TypeExchangeRateComp   = "exchange_rate_compensation"
	TypePensionPayment     = "pension_payment"
	TypeAnniversary25Years = "anniversary_25"
	TypeAnniversary40Years = "anniversary_40"
)

var ValidTypes = []string{
	TypeHolidayAllowance,
	TypeBonusGratuity,
	TypeTaxFreeSumMonthly,
	TypeChildAllowance,
	TypeExchangeRateComp,
	TypePensionPayment,
	TypeAnniversary25Years,
	TypeAnniversary40Years,
}

// Allowance is the cap definition for one allowance type. Percentage caps
// resolve against the employee's monthly wage at apply time.
type Allowance struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrganizationID uuid.UUID       `gorm:"type:uuid;not null;index:idx_allowance_org_type"`
	CountryCode    string          `gorm:"type:varchar(2);not null"`
	AllowanceType  string          `gorm:"type:varchar(40);not null;index:idx_allowance_org_type"`
	Amount         decimal.Decimal `gorm:"type:numeric(15,4);not null"`
	IsPercentage   bool            `gorm:"not null;default:false"`
	EffectiveFrom  time.Time       `gorm:"type:date;not null"`
	EffectiveTo    *time.Time      `gorm:"type:date"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Allowance) TableName() string {
	return "allowances"
}

func (a *Allowance) WindowContains(asOf time.Time) bool {
	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	from := time.Date(a.EffectiveFrom.Year(), a.EffectiveFrom.Month(), a.EffectiveFrom.Day(), 0, 0, 0, 0, time.UTC)
	if day.Before(from) {
		return false
	}
	if a.EffectiveTo == nil {
		return true
	}
	to := time.Date(a.EffectiveTo.Year(), a.EffectiveTo.Month(), a.EffectiveTo.Day(), 0, 0, 0, 0, time.UTC)
	return !day.After(to)
}

// AllowanceUsage tracks cumulative grants per employee, allowance type and
// calendar year. Created lazily on first use, never deleted mid-year; a new
// year starts a new row. The version column serializes concurrent commits.
type AllowanceUsage struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrganizationID uuid.UUID       `gorm:"type:uuid;not null"`
	EmployeeID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_usage_employee_type_year,unique"`
	AllowanceType  string          `gorm:"type:varchar(40);not null;index:idx_usage_employee_type_year,unique"`
	Year           int             `gorm:"not null;index:idx_usage_employee_type_year,unique"`
	TotalGranted   decimal.Decimal `gorm:"type:numeric(15,4);not null;default:0"`
	TaxFreeGranted decimal.Decimal `gorm:"type:numeric(15,4);not null;default:0"`
	Version        int64           `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (AllowanceUsage) TableName() string {
	return "allowance_usages"
}

func IsValidType(allowanceType string) bool {
	for _, t := range ValidTypes {
		if t == allowanceType {
			return true
		}
	}
	return false
}
