package ruleseterrors

import (
	"net/http"

	"payrolliq/internal/shared/apperror"
)

var (
	ErrWindowOverlap = apperror.New(
		apperror.CodeConflict,
		"A rule set for this tax type already covers part of the effective window",
		http.StatusConflict,
	)

	ErrRuleSetReferenced = apperror.New(
		apperror.CodeInvalidState,
		"Rule set is referenced by a committed payroll run and can no longer change",
		http.StatusConflict,
	)

	ErrRuleSetNotFound = apperror.New(
		apperror.CodeNotFound,
		"Rule set not found",
		http.StatusNotFound,
	)
)
