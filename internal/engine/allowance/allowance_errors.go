package allowance

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUsageVersionConflict means another commit updated the usage row
// between read and write. The ledger retries once with fresh state before
// surfacing this.
var ErrUsageVersionConflict = errors.New("allowance usage was updated concurrently")

type NoApplicableAllowanceError struct {
	OrganizationID uuid.UUID
	AllowanceType  string
	AsOf           time.Time
}

func (e *NoApplicableAllowanceError) Error() string {
	return fmt.Sprintf("no %s allowance effective on %s for organization %s",
		e.AllowanceType, e.AsOf.Format("2006-01-02"), e.OrganizationID)
}

type AmbiguousAllowanceError struct {
	OrganizationID uuid.UUID
	AllowanceType  string
	AsOf           time.Time
	Matches        int
}

func (e *AmbiguousAllowanceError) Error() string {
	return fmt.Sprintf("%d overlapping %s allowances effective on %s for organization %s",
		e.Matches, e.AllowanceType, e.AsOf.Format("2006-01-02"), e.OrganizationID)
}
