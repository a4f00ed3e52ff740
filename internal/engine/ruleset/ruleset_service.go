package ruleset

import (
	"context"
	"errors"
	"fmt"
	"time"

	ruleseterrors "payrolliq/internal/engine/ruleset/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

//go:generate mockgen -source=ruleset_service.go -destination=mock/ruleset_service_mock.go -package=mock
type Service interface {
	Create(ctx context.Context, organizationID string, req CreateRuleSetRequest) (RuleSetResponse, error)
	Supersede(ctx context.Context, organizationID string, req SupersedeRuleSetRequest) (RuleSetResponse, error)
	GetAll(ctx context.Context, organizationID string) ([]RuleSetResponse, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Create(
	ctx context.Context,
	organizationID string,
	req CreateRuleSetRequest,
) (RuleSetResponse, error) {
	rs, err := buildRuleSet(organizationID, req)
	if err != nil {
		return RuleSetResponse{}, err
	}

	// The resolver rejects ambiguity defensively at calculation time, but
	// overlapping windows must never reach the table in the first place.
	overlap, err := s.repo.HasOverlappingWindow(ctx, organizationID, rs.TaxType, rs.EffectiveFrom, rs.EffectiveTo, nil)
	if err != nil {
		return RuleSetResponse{}, err
	}
	if overlap {
		return RuleSetResponse{}, ruleseterrors.ErrWindowOverlap
	}

	if err := s.repo.Create(ctx, rs); err != nil {
		return RuleSetResponse{}, err
	}

	return mapToResponse(*rs), nil
}

// Supersede implements versioning by new row: the predecessor's open window
// closes the day before the successor starts, then the successor is
// inserted. A predecessor referenced by a committed run stays readable
// forever; only its open end date changes.
func (s *service) Supersede(
	ctx context.Context,
	organizationID string,
	req SupersedeRuleSetRequest,
) (RuleSetResponse, error) {
	rs, err := buildRuleSet(organizationID, req.RuleSet)
	if err != nil {
		return RuleSetResponse{}, err
	}

	closeDate := rs.EffectiveFrom.AddDate(0, 0, -1)
	if err := s.repo.CloseWindow(ctx, organizationID, req.PredecessorID, closeDate); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RuleSetResponse{}, ruleseterrors.ErrRuleSetNotFound
		}
		return RuleSetResponse{}, err
	}

	excludeID := req.PredecessorID
	overlap, err := s.repo.HasOverlappingWindow(ctx, organizationID, rs.TaxType, rs.EffectiveFrom, rs.EffectiveTo, &excludeID)
	if err != nil {
		return RuleSetResponse{}, err
	}
	if overlap {
		return RuleSetResponse{}, ruleseterrors.ErrWindowOverlap
	}

	if err := s.repo.Create(ctx, rs); err != nil {
		return RuleSetResponse{}, err
	}

	return mapToResponse(*rs), nil
}

func (s *service) GetAll(ctx context.Context, organizationID string) ([]RuleSetResponse, error) {
	sets, err := s.repo.FindAllByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	out := make([]RuleSetResponse, len(sets))
	for i, rs := range sets {
		out[i] = mapToResponse(rs)
	}
	return out, nil
}

func buildRuleSet(organizationID string, req CreateRuleSetRequest) (*TaxRuleSet, error) {
	orgUUID, err := uuid.Parse(organizationID)
	if err != nil {
		return nil, errors.New("invalid organization id")
	}

	if !IsValidTaxType(req.TaxType) {
		return nil, fmt.Errorf("unknown tax type %q", req.TaxType)
	}

	from, err := parseDate(req.EffectiveFrom)
	if err != nil {
		return nil, err
	}

	var to *time.Time
	if req.EffectiveTo != nil && *req.EffectiveTo != "" {
		parsed, err := parseDate(*req.EffectiveTo)
		if err != nil {
			return nil, err
		}
		if parsed.Before(from) {
			return nil, errors.New("effective_to must not precede effective_from")
		}
		to = &parsed
	}

	id := uuid.New()
	brackets := make([]TaxBracket, len(req.Brackets))
	for i, b := range req.Brackets {
		bracket, err := buildBracket(id, b)
		if err != nil {
			return nil, err
		}
		brackets[i] = bracket
	}

	rs := &TaxRuleSet{
		ID:                id,
		OrganizationID:    orgUUID,
		CountryCode:       req.CountryCode,
		TaxType:           req.TaxType,
		Name:              req.Name,
		CalculationMethod: req.CalculationMethod,
		CalculationMode:   req.CalculationMode,
		EffectiveFrom:     from,
		EffectiveTo:       to,
		Brackets:          brackets,
	}

	if rs.CalculationMode == ModeComponentBased && len(brackets) != 1 {
		return nil, rs.malformed("component_based rule sets carry exactly one bracket")
	}
	if err := rs.ValidateBrackets(); err != nil {
		return nil, err
	}
	return rs, nil
}

func buildBracket(ruleSetID uuid.UUID, req BracketRequest) (TaxBracket, error) {
	min, err := decimal.NewFromString(req.IncomeMin)
	if err != nil {
		return TaxBracket{}, fmt.Errorf("invalid income_min %q", req.IncomeMin)
	}
	rate, err := decimal.NewFromString(req.RatePercentage)
	if err != nil {
		return TaxBracket{}, fmt.Errorf("invalid rate_percentage %q", req.RatePercentage)
	}

	fixed := decimal.Zero
	if req.FixedAmount != "" {
		fixed, err = decimal.NewFromString(req.FixedAmount)
		if err != nil {
			return TaxBracket{}, fmt.Errorf("invalid fixed_amount %q", req.FixedAmount)
		}
	}

	var max decimal.NullDecimal
	if req.IncomeMax != nil && *req.IncomeMax != "" {
		parsed, err := decimal.NewFromString(*req.IncomeMax)
		if err != nil {
			return TaxBracket{}, fmt.Errorf("invalid income_max %q", *req.IncomeMax)
		}
		max = decimal.NullDecimal{Decimal: parsed, Valid: true}
	}

	return TaxBracket{
		ID:             uuid.New(),
		TaxRuleSetID:   ruleSetID,
		BracketOrder:   req.BracketOrder,
		IncomeMin:      min,
		IncomeMax:      max,
		RatePercentage: rate,
		FixedAmount:    fixed,
	}, nil
}

func mapToResponse(rs TaxRuleSet) RuleSetResponse {
	resp := RuleSetResponse{
		ID:                rs.ID.String(),
		OrganizationID:    rs.OrganizationID.String(),
		CountryCode:       rs.CountryCode,
		TaxType:           rs.TaxType,
		Name:              rs.Name,
		CalculationMethod: rs.CalculationMethod,
		CalculationMode:   rs.CalculationMode,
		EffectiveFrom:     rs.EffectiveFrom.Format("2006-01-02"),
		Brackets:          make([]BracketResponse, len(rs.Brackets)),
	}
	if rs.EffectiveTo != nil {
		v := rs.EffectiveTo.Format("2006-01-02")
		resp.EffectiveTo = &v
	}

	for i, b := range rs.OrderedBrackets() {
		br := BracketResponse{
			ID:             b.ID.String(),
			BracketOrder:   b.BracketOrder,
			IncomeMin:      b.IncomeMin.String(),
			RatePercentage: b.RatePercentage.String(),
			FixedAmount:    b.FixedAmount.String(),
		}
		if b.IncomeMax.Valid {
			v := b.IncomeMax.Decimal.String()
			br.IncomeMax = &v
		}
		resp.Brackets[i] = br
	}
	return resp
}

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, errors.New("invalid date format, expected YYYY-MM-DD")
	}
	return t, nil
}
