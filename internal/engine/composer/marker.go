package composer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommittedLine pins one employee of one run once its allowance grants
// have been persisted. Commit retries and resumed partial runs consult
// it, so the same (employee, run, period) key never grants twice.
type CommittedLine struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	RunID      uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_committed_line_key"`
	EmployeeID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_committed_line_key"`
	PeriodDate time.Time `gorm:"type:date;uniqueIndex:idx_committed_line_key"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (CommittedLine) TableName() string {
	return "payroll_committed_lines"
}

//go:generate mockgen -source=marker.go -destination=mock/marker_repo_mock.go -package=mock

type MarkerRepository interface {
	IsLineCommitted(ctx context.Context, runID, employeeID uuid.UUID, period time.Time) (bool, error)
	MarkLineCommitted(ctx context.Context, runID, employeeID uuid.UUID, period time.Time) error
}

type markerRepository struct {
	db *gorm.DB
}

func NewMarkerRepository(db *gorm.DB) MarkerRepository {
	return &markerRepository{db: db}
}

func (r *markerRepository) IsLineCommitted(ctx context.Context, runID, employeeID uuid.UUID, period time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CommittedLine{}).
		Where("run_id = ? AND employee_id = ? AND period_date = ?", runID, employeeID, period).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *markerRepository) MarkLineCommitted(ctx context.Context, runID, employeeID uuid.UUID, period time.Time) error {
	marker := CommittedLine{
		ID:         uuid.New(),
		RunID:      runID,
		EmployeeID: employeeID,
		PeriodDate: period,
	}
	// A losing racer lands on the unique index; that still counts as marked.
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&marker).Error
}
