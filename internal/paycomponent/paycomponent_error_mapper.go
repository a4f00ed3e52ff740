package paycomponent

import (
	"errors"
	"strings"

	paycomponenterrors "payrolliq/internal/paycomponent/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return paycomponenterrors.ErrComponentNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" && pgErr.ConstraintName == "idx_component_org_code" {
			return paycomponenterrors.ErrComponentCodeExists
		}
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "duplicate key value") && strings.Contains(errMsg, "idx_component_org_code") {
		return paycomponenterrors.ErrComponentCodeExists
	}

	return err
}
