package payrollrun

import (
	"errors"
	"net/http"
	"strings"

	"payrolliq/internal/engine/composer"
	payrollrunerrors "payrolliq/internal/payrollrun/errors"
	"payrolliq/internal/shared/apperror"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// mapRunnerError translates a batch-pass halt into the API error taxonomy.
// A reference-data defect is an administrator problem, not a server fault.
func mapRunnerError(err error, fallback string) error {
	var refErr *composer.ReferenceDataError
	if errors.As(err, &refErr) {
		return apperror.Wrap(refErr.Err,
			payrollrunerrors.ErrReferenceDataDefect.Code,
			payrollrunerrors.ErrReferenceDataDefect.Message,
			payrollrunerrors.ErrReferenceDataDefect.HTTPStatus,
		)
	}
	return apperror.Wrap(err, apperror.CodeInternalError, fallback, http.StatusInternalServerError)
}

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return payrollrunerrors.ErrRunNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" && pgErr.ConstraintName == "idx_run_org_number" {
			return payrollrunerrors.ErrRunNumberConflict
		}
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "duplicate key value") && strings.Contains(errMsg, "idx_run_org_number") {
		return payrollrunerrors.ErrRunNumberConflict
	}

	return err
}
