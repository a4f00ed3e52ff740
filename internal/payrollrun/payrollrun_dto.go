package payrollrun

import (
	"time"

	"payrolliq/internal/engine/composer"
)

// EmployeeBatchInput is one employee's slice of a run request. Variables
// carry the compensation figures the formulas read (monthly_wage,
// annual_salary, hours worked); assignments name the employee's
// components by code with optional per-employee overrides.
type EmployeeBatchInput struct {
	EmployeeID  string                       `json:"employee_id" binding:"required,uuid"`
	Variables   map[string]string            `json:"variables" binding:"required"`
	Assignments []ComponentAssignmentRequest `json:"assignments" binding:"required,min=1,dive"`
}

type ComponentAssignmentRequest struct {
	ComponentCode string            `json:"component_code" binding:"required"`
	Configuration map[string]string `json:"configuration"`
	EffectiveFrom string            `json:"effective_from"`
}

// RunRequest drives both preview and commit. RunID is the caller's stable
// identity for the run: a retried or resumed commit carries the same
// run_id so already-granted employees are skipped. Omitting it mints a
// fresh one.
type RunRequest struct {
	RunID             string               `json:"run_id" binding:"omitempty,uuid"`
	PeriodDate        string               `json:"period_date" binding:"required"`
	RunType           string               `json:"run_type" binding:"omitempty,oneof=regular special"`
	AllowedComponents []string             `json:"allowed_components"`
	Employees         []EmployeeBatchInput `json:"employees" binding:"required,min=1,dive"`
}

type PreviewResponse struct {
	PeriodDate time.Time              `json:"period_date"`
	Lines      []composer.PayslipLine `json:"lines"`
	Failures   []composer.Failure     `json:"failures"`
	TotalGross string                 `json:"total_gross"`
	TotalTax   string                 `json:"total_tax"`
	TotalNet   string                 `json:"total_net"`
}

type CommitResponse struct {
	RunID         string                 `json:"run_id"`
	RunNumber     string                 `json:"run_number"`
	Status        string                 `json:"status"`
	PeriodDate    time.Time              `json:"period_date"`
	EmployeeCount int                    `json:"employee_count"`
	FailureCount  int                    `json:"failure_count"`
	Lines         []composer.PayslipLine `json:"lines"`
	Failures      []composer.Failure     `json:"failures"`
	TotalGross    string                 `json:"total_gross"`
	TotalTax      string                 `json:"total_tax"`
	TotalNet      string                 `json:"total_net"`
}

type RunSummaryResponse struct {
	RunID         string    `json:"run_id"`
	RunNumber     string    `json:"run_number"`
	RunType       string    `json:"run_type"`
	Status        string    `json:"status"`
	PeriodDate    time.Time `json:"period_date"`
	EmployeeCount int       `json:"employee_count"`
	FailureCount  int       `json:"failure_count"`
	TotalGross    string    `json:"total_gross"`
	TotalTax      string    `json:"total_tax"`
	TotalNet      string    `json:"total_net"`
	CreatedAt     time.Time `json:"created_at"`
}

type RunDetailResponse struct {
	RunSummaryResponse
	Lines []PayrollRunLine `json:"lines"`
}
