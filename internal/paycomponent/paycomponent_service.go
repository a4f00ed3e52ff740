package paycomponent

import (
	"context"
	"errors"
	"net/http"

	"payrolliq/internal/engine/formula"
	paycomponenterrors "payrolliq/internal/paycomponent/errors"
	"payrolliq/internal/shared/apperror"
	"payrolliq/internal/shared/contextutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:generate mockgen -source=paycomponent_service.go -destination=mock/paycomponent_service_mock.go -package=mock
type Service interface {
	Create(ctx context.Context, organizationID string, req CreatePayComponentRequest) (*PayComponentResponse, error)
	GetAll(ctx context.Context, organizationID string) ([]PayComponentResponse, error)
	GetByID(ctx context.Context, organizationID, id string) (*PayComponentResponse, error)
	Update(ctx context.Context, organizationID, id string, req UpdatePayComponentRequest) (*PayComponentResponse, error)
	Delete(ctx context.Context, organizationID, id string) error
}

type service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{repo: repo, logger: logger}
}

func (s *service) Create(ctx context.Context, organizationID string, req CreatePayComponentRequest) (*PayComponentResponse, error) {
	existing, err := s.repo.FindByCode(ctx, organizationID, req.Code)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to check component code", http.StatusInternalServerError)
	}
	if existing != nil {
		return nil, paycomponenterrors.ErrComponentCodeExists
	}

	orgID, err := uuid.Parse(organizationID)
	if err != nil {
		return nil, apperror.ErrInvalidInput
	}

	component := &PayComponent{
		OrganizationID:  orgID,
		Code:            req.Code,
		Name:            req.Name,
		ComponentType:   req.ComponentType,
		Category:        req.Category,
		CalculationType: req.CalculationType,
		Formula:         req.Formula,
		Metadata:        Metadata{Description: req.Description},
		IsTaxable:       true,
		IsRecurring:     true,
	}
	if req.Category == "" {
		component.Category = CategoryGeneral
	}
	if req.IsTaxable != nil {
		component.IsTaxable = *req.IsTaxable
	}
	if req.IsRecurring != nil {
		component.IsRecurring = *req.IsRecurring
	}

	if err := s.applyCalculation(component, req.CalculationType, req.Amount, req.Formula); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, component); err != nil {
		// Unique index can still trip under concurrent creates even though
		// the code was checked above.
		return nil, mapRepositoryError(err)
	}

	contextutil.GetLogger(ctx, s.logger).Info("pay component created",
		zap.String("component_id", component.ID.String()),
		zap.String("code", component.Code),
	)
	return mapToResponse(component), nil
}

func (s *service) GetAll(ctx context.Context, organizationID string) ([]PayComponentResponse, error) {
	components, err := s.repo.FindAllByOrganization(ctx, organizationID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to list pay components", http.StatusInternalServerError)
	}

	responses := make([]PayComponentResponse, len(components))
	for i := range components {
		responses[i] = *mapToResponse(&components[i])
	}
	return responses, nil
}

func (s *service) GetByID(ctx context.Context, organizationID, id string) (*PayComponentResponse, error) {
	component, err := s.repo.FindByID(ctx, organizationID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, paycomponenterrors.ErrComponentNotFound
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to load pay component", http.StatusInternalServerError)
	}
	return mapToResponse(component), nil
}

func (s *service) Update(ctx context.Context, organizationID, id string, req UpdatePayComponentRequest) (*PayComponentResponse, error) {
	component, err := s.repo.FindByID(ctx, organizationID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, paycomponenterrors.ErrComponentNotFound
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to load pay component", http.StatusInternalServerError)
	}
	if component.IsSystemComponent {
		return nil, paycomponenterrors.ErrSystemComponentImmutable
	}

	component.Name = req.Name
	if req.Category != "" {
		component.Category = req.Category
	}
	component.CalculationType = req.CalculationType
	component.Formula = req.Formula
	component.Metadata.Description = req.Description
	if req.IsTaxable != nil {
		component.IsTaxable = *req.IsTaxable
	}
	if req.IsRecurring != nil {
		component.IsRecurring = *req.IsRecurring
	}

	if err := s.applyCalculation(component, req.CalculationType, req.Amount, req.Formula); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, component); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "Failed to update pay component", http.StatusInternalServerError)
	}
	return mapToResponse(component), nil
}

func (s *service) Delete(ctx context.Context, organizationID, id string) error {
	component, err := s.repo.FindByID(ctx, organizationID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return paycomponenterrors.ErrComponentNotFound
	}
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInternalError, "Failed to load pay component", http.StatusInternalServerError)
	}
	if component.IsSystemComponent {
		return paycomponenterrors.ErrSystemComponentImmutable
	}

	referenced, err := s.repo.IsReferenced(ctx, organizationID, component.Code)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInternalError, "Failed to check component references", http.StatusInternalServerError)
	}
	if referenced {
		return paycomponenterrors.ErrComponentInUse
	}

	if err := s.repo.Delete(ctx, organizationID, id); err != nil {
		return apperror.Wrap(err, apperror.CodeInternalError, "Failed to delete pay component", http.StatusInternalServerError)
	}

	contextutil.GetLogger(ctx, s.logger).Info("pay component deleted",
		zap.String("component_id", id),
		zap.String("code", component.Code),
	)
	return nil
}

// applyCalculation validates the calculation inputs and, for formula
// components, parses the expression and records its variables so run
// inputs can be checked before evaluation.
func (s *service) applyCalculation(component *PayComponent, calcType string, amount *string, src string) error {
	switch calcType {
	case CalcFixed, CalcPercentage:
		if amount == nil {
			return apperror.New(apperror.CodeInvalidInput, "Amount is required for this calculation type", http.StatusBadRequest)
		}
		value, err := decimal.NewFromString(*amount)
		if err != nil {
			return apperror.New(apperror.CodeInvalidInput, "Amount is not a valid number", http.StatusBadRequest)
		}
		component.Amount = decimal.NullDecimal{Decimal: value, Valid: true}
		component.Formula = ""
		component.Metadata.RequiredVariables = nil

	case CalcFormula:
		if src == "" {
			return apperror.New(apperror.CodeInvalidInput, "Formula is required for formula components", http.StatusBadRequest)
		}
		expr, err := formula.Parse(src)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeInvalidInput, "Formula does not parse: "+err.Error(), http.StatusBadRequest)
		}
		component.Amount = decimal.NullDecimal{}
		component.Metadata.RequiredVariables = expr.Variables()
	}
	return nil
}

func mapToResponse(component *PayComponent) *PayComponentResponse {
	resp := &PayComponentResponse{
		ID:                component.ID.String(),
		Code:              component.Code,
		Name:              component.Name,
		ComponentType:     component.ComponentType,
		Category:          component.Category,
		CalculationType:   component.CalculationType,
		Formula:           component.Formula,
		RequiredVariables: component.Metadata.RequiredVariables,
		Description:       component.Metadata.Description,
		IsTaxable:         component.IsTaxable,
		IsRecurring:       component.IsRecurring,
		IsSystemComponent: component.IsSystemComponent,
		CreatedAt:         component.CreatedAt,
	}
	if component.Amount.Valid {
		amount := component.Amount.Decimal.String()
		resp.Amount = &amount
	}
	return resp
}
