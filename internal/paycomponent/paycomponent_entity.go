package paycomponent

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TypeEarning   = "earning"
	TypeDeduction = "deduction"

	CalcFixed      = "fixed"
	CalcFormula    = "formula"
	CalcPercentage = "percentage"
)

// Component categories steer downstream treatment: categories matching a
// capped allowance type route through the allowance ledger, the overtime
// category feeds the overtime rate table, benefit_in_kind components are
// taxed but not paid out.
const (
	CategoryBaseSalary    = "base_salary"
	CategoryOvertime      = "overtime"
	CategoryBenefitInKind = "benefit_in_kind"
	CategoryGeneral       = "general"
)

// Metadata declares the employee-scoped inputs a formula component needs.
// The assignment layer supplies the variables; the evaluator hard-fails on
// anything missing rather than defaulting to zero.
type Metadata struct {
	RequiredVariables []string `json:"required_variables,omitempty"`
	Description       string   `json:"description,omitempty"`
}

// PayComponent is an organization-scoped earning or deduction definition.
// System components are seeded, protected from deletion and customized by
// cloning.
type PayComponent struct {
	ID                uuid.UUID           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrganizationID    uuid.UUID           `gorm:"type:uuid;not null;index:idx_component_org_code,unique"`
	Code              string              `gorm:"type:varchar(60);not null;index:idx_component_org_code,unique"`
	Name              string              `gorm:"type:varchar(120);not null"`
	ComponentType     string              `gorm:"type:varchar(20);not null"`
	Category          string              `gorm:"type:varchar(40);not null;default:'general'"`
	CalculationType   string              `gorm:"type:varchar(20);not null"`
	Amount            decimal.NullDecimal `gorm:"type:numeric(15,4)"` // fixed amount or percentage rate
	Formula           string              `gorm:"type:text"`
	Metadata          Metadata            `gorm:"type:jsonb;serializer:json"`
	IsTaxable         bool                `gorm:"not null;default:true"`
	IsRecurring       bool                `gorm:"not null;default:true"`
	IsSystemComponent bool                `gorm:"not null;default:false"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (PayComponent) TableName() string {
	return "pay_components"
}
