package payrollrunerrors

import (
	"net/http"

	"payrolliq/internal/shared/apperror"
)

var (
	ErrRunNotFound = apperror.New(
		apperror.CodeNotFound,
		"Payroll run not found",
		http.StatusNotFound,
	)

	ErrEmptyBatch = apperror.New(
		apperror.CodeInvalidInput,
		"The run contains no employees",
		http.StatusBadRequest,
	)

	ErrDuplicatePeriodRun = apperror.New(
		apperror.CodeConflict,
		"A regular run for this period is already committed",
		http.StatusConflict,
	)

	ErrRunNumberConflict = apperror.New(
		apperror.CodeConflict,
		"Run number was already taken, retry the commit",
		http.StatusConflict,
	)

	ErrReferenceDataDefect = apperror.New(
		apperror.CodeInvalidState,
		"Run halted: a tax rule table is missing, ambiguous or malformed and needs correction",
		http.StatusUnprocessableEntity,
	)

	ErrAllEmployeesFailed = apperror.New(
		apperror.CodeInvalidState,
		"Every employee in the batch failed to compose",
		http.StatusUnprocessableEntity,
	)
)
