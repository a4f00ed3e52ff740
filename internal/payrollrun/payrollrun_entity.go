package payrollrun

import (
	"time"

	"payrolliq/internal/engine/allowance"
	"payrolliq/internal/engine/composer"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusCommitted = "COMMITTED"

	RunTypeRegular = "regular"
	RunTypeSpecial = "special"
)

// PayrollRun is one committed batch. Previews never create a run; only a
// commit does, and a committed run is never modified afterwards.
type PayrollRun struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrganizationID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_run_org_number"`
	RunNumber      string          `gorm:"type:varchar(30);not null;uniqueIndex:idx_run_org_number"`
	RunType        string          `gorm:"type:varchar(20);not null;default:'regular'"`
	PeriodDate     time.Time       `gorm:"type:date;not null"`
	Status         string          `gorm:"type:varchar(20);not null"`
	EmployeeCount  int             `gorm:"not null;default:0"`
	FailureCount   int             `gorm:"not null;default:0"`
	TotalGross     decimal.Decimal `gorm:"type:numeric(15,4);not null;default:0"`
	TotalTax       decimal.Decimal `gorm:"type:numeric(15,4);not null;default:0"`
	TotalNet       decimal.Decimal `gorm:"type:numeric(15,4);not null;default:0"`
	CommittedBy    uuid.UUID       `gorm:"type:uuid;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Lines []PayrollRunLine `gorm:"foreignKey:RunID"`
}

func (PayrollRun) TableName() string {
	return "payroll_runs"
}

// PayrollRunLine is one employee's payslip inside a run. The component
// breakdown, tax split and warnings are stored as documents; they are
// read back whole, never queried field by field, except for the
// component reference check which uses jsonb containment.
type PayrollRunLine struct {
	ID             uuid.UUID                  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RunID          uuid.UUID                  `gorm:"type:uuid;not null;uniqueIndex:idx_line_run_employee"`
	OrganizationID uuid.UUID                  `gorm:"type:uuid;not null;index"`
	EmployeeID     uuid.UUID                  `gorm:"type:uuid;not null;uniqueIndex:idx_line_run_employee"`
	PeriodDate     time.Time                  `gorm:"type:date;not null"`
	GrossPay       decimal.Decimal            `gorm:"type:numeric(15,4);not null"`
	TaxableBase    decimal.Decimal            `gorm:"type:numeric(15,4);not null"`
	TotalTax       decimal.Decimal            `gorm:"type:numeric(15,4);not null"`
	NetPay         decimal.Decimal            `gorm:"type:numeric(15,4);not null"`
	Components     []composer.ComponentLine   `gorm:"type:jsonb;serializer:json"`
	TaxByType      map[string]decimal.Decimal `gorm:"type:jsonb;serializer:json"`
	Warnings       []allowance.Warning        `gorm:"type:jsonb;serializer:json"`
	CreatedAt      time.Time
}

func (PayrollRunLine) TableName() string {
	return "payroll_run_lines"
}

// PayrollRunTax links a payslip line to the rule set that produced one of
// its tax figures. Rule set deletion checks count these rows.
type PayrollRunTax struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RunID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	TaxRuleSetID uuid.UUID       `gorm:"type:uuid;not null;index"`
	TaxType      string          `gorm:"type:varchar(40);not null"`
	Amount       decimal.Decimal `gorm:"type:numeric(15,4);not null"`
	CreatedAt    time.Time
}

func (PayrollRunTax) TableName() string {
	return "payroll_run_taxes"
}
