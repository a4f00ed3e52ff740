package ruleset

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NoApplicableRuleError means no rule set covers the pay date. The run must
// block instead of silently skipping the tax.
type NoApplicableRuleError struct {
	OrganizationID uuid.UUID
	TaxType        string
	AsOf           time.Time
}

func (e *NoApplicableRuleError) Error() string {
	return fmt.Sprintf("no %s rule set effective on %s for organization %s",
		e.TaxType, e.AsOf.Format("2006-01-02"), e.OrganizationID)
}

// AmbiguousRuleError means overlapping effective windows matched the pay
// date. That is a reference-data defect; the resolver never picks one.
type AmbiguousRuleError struct {
	OrganizationID uuid.UUID
	TaxType        string
	AsOf           time.Time
	Matches        int
}

func (e *AmbiguousRuleError) Error() string {
	return fmt.Sprintf("%d overlapping %s rule sets effective on %s for organization %s",
		e.Matches, e.TaxType, e.AsOf.Format("2006-01-02"), e.OrganizationID)
}

// MalformedRuleSetError means the bracket table violates the partition
// invariant. Computing against it would misstate tax, so the run aborts.
type MalformedRuleSetError struct {
	RuleSetID uuid.UUID
	TaxType   string
	Reason    string
}

func (e *MalformedRuleSetError) Error() string {
	return fmt.Sprintf("malformed %s rule set %s: %s", e.TaxType, e.RuleSetID, e.Reason)
}
