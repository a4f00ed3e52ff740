package paycomponenterrors

import (
	"net/http"

	"payrolliq/internal/shared/apperror"
)

var (
	ErrComponentCodeExists = apperror.New(
		apperror.CodeConflict,
		"A pay component with this code already exists",
		http.StatusConflict,
	)

	ErrComponentNotFound = apperror.New(
		apperror.CodeNotFound,
		"Pay component not found",
		http.StatusNotFound,
	)

	ErrSystemComponentImmutable = apperror.New(
		apperror.CodeForbidden,
		"System pay components cannot be modified or deleted",
		http.StatusForbidden,
	)

	ErrComponentInUse = apperror.New(
		apperror.CodeConflict,
		"Pay component is referenced by committed payroll lines",
		http.StatusConflict,
	)
)
