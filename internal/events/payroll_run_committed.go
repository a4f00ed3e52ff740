package events

import "time"

const PayrollRunCommittedTopic = "payroll.run.committed.v1"

type PayrollRunCommittedEvent struct {
	EventType      string    `json:"event_type"`
	RequestID      string    `json:"request_id,omitempty"`
	RunID          string    `json:"run_id"`
	OrganizationID string    `json:"organization_id"`
	RunNumber      string    `json:"run_number"`
	PeriodDate     string    `json:"period_date"`
	EmployeeCount  int       `json:"employee_count"`
	FailureCount   int       `json:"failure_count"`
	TotalNetPay    string    `json:"total_net_pay"`
	CommittedBy    string    `json:"committed_by"`
	OccurredAt     time.Time `json:"occurred_at"`
}
