package allowance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	WarningCapExceeded = "ALLOWANCE_CAP_EXCEEDED"
	WarningNearCap     = "ALLOWANCE_NEAR_CAP"
)

// nearCapThreshold: a near-cap warning fires once 90% of the annual cap is
// consumed after the grant.
var nearCapThreshold = decimal.NewFromFloat(0.9)

var oneHundred = decimal.NewFromInt(100)

type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ApplyInput carries one allowance grant through the ledger. MonthlyWage is
// only consulted for percentage caps and is supplied by the caller; the
// ledger never fetches employee compensation itself.
type ApplyInput struct {
	OrganizationID uuid.UUID
	EmployeeID     uuid.UUID
	AllowanceType  string
	Gross          decimal.Decimal
	PaymentDate    time.Time
	MonthlyWage    decimal.Decimal
}

// Split is the outcome of routing a gross amount through a capped
// allowance: the tax-free portion up to the remaining cap and the taxable
// overflow, plus reviewer-facing warnings.
type Split struct {
	AllowanceType  string
	Gross          decimal.Decimal
	TaxFreePortion decimal.Decimal
	TaxablePortion decimal.Decimal
	Cap            decimal.Decimal
	RemainingCap   decimal.Decimal // after this grant
	Warnings       []Warning
}

//go:generate mockgen -source=ledger.go -destination=mock/ledger_mock.go -package=mock
type Ledger interface {
	// Preview computes the split without touching usage state.
	Preview(ctx context.Context, in ApplyInput) (Split, error)
	// Commit computes the split against current usage and persists the
	// grant. Both counters move atomically or neither does.
	Commit(ctx context.Context, in ApplyInput) (Split, error)
}

type ledger struct {
	repo Repository
}

func NewLedger(repo Repository) Ledger {
	return &ledger{repo: repo}
}

func (l *ledger) Preview(ctx context.Context, in ApplyInput) (Split, error) {
	if err := validateInput(in); err != nil {
		return Split{}, err
	}

	cap, err := l.resolveCap(ctx, in)
	if err != nil {
		return Split{}, err
	}

	usage, err := l.repo.FindUsage(ctx, in.EmployeeID.String(), in.AllowanceType, in.PaymentDate.Year())
	if err != nil {
		return Split{}, err
	}

	granted := decimal.Zero
	if usage != nil {
		granted = usage.TaxFreeGranted
	}
	return computeSplit(in, cap, granted), nil
}

func (l *ledger) Commit(ctx context.Context, in ApplyInput) (Split, error) {
	if err := validateInput(in); err != nil {
		return Split{}, err
	}

	cap, err := l.resolveCap(ctx, in)
	if err != nil {
		return Split{}, err
	}

	// One retry on version conflict: a concurrent run (regular + bonus in
	// the same period) may have consumed cap between read and write.
	split, err := l.commitOnce(ctx, in, cap)
	if errors.Is(err, ErrUsageVersionConflict) {
		split, err = l.commitOnce(ctx, in, cap)
	}
	return split, err
}

func (l *ledger) commitOnce(ctx context.Context, in ApplyInput, cap decimal.Decimal) (Split, error) {
	year := in.PaymentDate.Year()

	usage, err := l.repo.FindUsage(ctx, in.EmployeeID.String(), in.AllowanceType, year)
	if err != nil {
		return Split{}, err
	}
	if usage == nil {
		usage = &AllowanceUsage{
			ID:             uuid.New(),
			OrganizationID: in.OrganizationID,
			EmployeeID:     in.EmployeeID,
			AllowanceType:  in.AllowanceType,
			Year:           year,
			TotalGranted:   decimal.Zero,
			TaxFreeGranted: decimal.Zero,
		}
		if err := l.repo.CreateUsage(ctx, usage); err != nil {
			return Split{}, err
		}
	}

	split := computeSplit(in, cap, usage.TaxFreeGranted)
	if err := l.repo.IncrementUsage(ctx, usage, split.TaxFreePortion, split.Gross); err != nil {
		return Split{}, err
	}
	return split, nil
}

func (l *ledger) resolveCap(ctx context.Context, in ApplyInput) (decimal.Decimal, error) {
	matches, err := l.repo.FindEffective(ctx, in.OrganizationID.String(), in.AllowanceType, in.PaymentDate)
	if err != nil {
		return decimal.Zero, err
	}

	switch len(matches) {
	case 0:
		return decimal.Zero, &NoApplicableAllowanceError{
			OrganizationID: in.OrganizationID,
			AllowanceType:  in.AllowanceType,
			AsOf:           in.PaymentDate,
		}
	case 1:
	default:
		return decimal.Zero, &AmbiguousAllowanceError{
			OrganizationID: in.OrganizationID,
			AllowanceType:  in.AllowanceType,
			AsOf:           in.PaymentDate,
			Matches:        len(matches),
		}
	}

	a := matches[0]
	if a.IsPercentage {
		return in.MonthlyWage.Mul(a.Amount).Div(oneHundred), nil
	}
	return a.Amount, nil
}

func computeSplit(in ApplyInput, cap, alreadyGranted decimal.Decimal) Split {
	remaining := cap.Sub(alreadyGranted)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	taxFree := decimal.Min(in.Gross, remaining)
	split := Split{
		AllowanceType:  in.AllowanceType,
		Gross:          in.Gross,
		TaxFreePortion: taxFree,
		TaxablePortion: in.Gross.Sub(taxFree),
		Cap:            cap,
		RemainingCap:   remaining.Sub(taxFree),
	}

	if split.TaxablePortion.IsPositive() {
		split.Warnings = append(split.Warnings, Warning{
			Code: WarningCapExceeded,
			Message: fmt.Sprintf("%s grant of %s exceeds the remaining tax-free cap by %s",
				in.AllowanceType, in.Gross.StringFixed(2), split.TaxablePortion.StringFixed(2)),
		})
	} else if cap.IsPositive() {
		consumed := alreadyGranted.Add(taxFree)
		if consumed.GreaterThanOrEqual(cap.Mul(nearCapThreshold)) {
			split.Warnings = append(split.Warnings, Warning{
				Code: WarningNearCap,
				Message: fmt.Sprintf("%s usage of %s is within 10%% of the annual cap %s",
					in.AllowanceType, consumed.StringFixed(2), cap.StringFixed(2)),
			})
		}
	}
	return split
}

func validateInput(in ApplyInput) error {
	if !IsValidType(in.AllowanceType) {
		return fmt.Errorf("unknown allowance type %q", in.AllowanceType)
	}
	if in.Gross.IsNegative() {
		return fmt.Errorf("allowance gross amount %s is negative", in.Gross)
	}
	return nil
}
