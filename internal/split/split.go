// Package split implements the expense-split allocation algorithm: it
// partitions a monetary total among participants under fixed allocations,
// proportional weights (equal/ratio/percentage), per-participant caps, and
// exclusions, guaranteeing the shares sum exactly to the total after
// currency rounding.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Amounts carry a fixed 2-decimal scale with half-up rounding at every
// materialization point.
package split

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Type selects how the non-fixed remainder is distributed.
type Type string

const (
	// TypeEqual gives every eligible participant the same weight.
	TypeEqual Type = "EQUAL"

	// TypeRatio weights participants by their declared ratio.
	TypeRatio Type = "RATIO"

	// TypePercentage weights participants by their declared percentage.
	TypePercentage Type = "PERCENTAGE"
)

var (
	// ErrUnsupportedType is returned for a split type outside
	// EQUAL/RATIO/PERCENTAGE.
	ErrUnsupportedType = errors.New("split: unsupported split type")

	// ErrNoParticipants is returned when the request names nobody.
	ErrNoParticipants = errors.New("split: at least one participant required")

	// ErrNonPositiveTotal is returned when the total is zero or negative.
	ErrNonPositiveTotal = errors.New("split: total amount must be positive")

	// ErrFixedExceedsTotal is returned when the fixed pre-allocations sum
	// to more than the total.
	ErrFixedExceedsTotal = errors.New("split: fixed amounts exceed total")

	// ErrInvalidWeight is returned for a negative ratio/fixed/cap or a
	// percentage outside [0, 100].
	ErrInvalidWeight = errors.New("split: participant weight out of range")
)

// moneyScale is the number of decimal places for currency amounts.
const moneyScale int32 = 2

// maxRounds bounds the iterative cap-enforcement loop. Each round either
// exhausts the remainder or shrinks the pool, so the bound is never hit in
// practice; it guards termination against pathological inputs.
const maxRounds = 50

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// ParseType validates a split type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeEqual, TypeRatio, TypePercentage:
		return Type(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, s)
	}
}

// Participant is one party to a split. No field is required: absent values
// default to zero/false. CapAmount, when positive, bounds the participant's
// total allocation across fixed and proportional passes.
type Participant struct {
	UserID      string          `json:"userId"`
	Ratio       decimal.Decimal `json:"ratio"`       // RATIO weight
	Percentage  decimal.Decimal `json:"percentage"`  // PERCENTAGE weight, 0-100
	Excluded    bool            `json:"excluded"`    // skip proportional distribution
	FixedAmount decimal.Decimal `json:"fixedAmount"` // allocated before distribution
	CapAmount   decimal.Decimal `json:"capAmount"`   // hard ceiling on total allocation
}

// Request describes one allocation: a total in a native currency on a
// date, and the participants to divide it among. Participant order matters:
// the last participant absorbs the rounding residue.
type Request struct {
	Type         Type
	TotalAmount  decimal.Decimal
	Currency     string    // empty means base currency
	OccurredOn   time.Time // zero means today
	Participants []Participant
}

// Share is one participant's allocated amount in the native currency and
// its base-currency conversion.
type Share struct {
	UserID     string          `json:"userId"`
	Amount     decimal.Decimal `json:"amount"`
	BaseAmount decimal.Decimal `json:"baseAmount"`
}

// Result is the outcome of one allocation. Shares preserve the input
// participant order and sum exactly to Total (less any remainder that was
// genuinely unallocatable under caps/exclusions).
type Result struct {
	Total        decimal.Decimal `json:"total"`
	Shares       []Share         `json:"shares"`
	BaseTotal    decimal.Decimal `json:"baseTotal"`
	BaseCurrency string          `json:"baseCurrency"`
}

// Allocate partitions req.TotalAmount among req.Participants and converts
// each share to the base currency at the given rate. It is a pure function:
// same inputs, same output.
//
// The algorithm runs four passes, in order: fixed pre-allocation, an
// eligibility filter, iterative weighted distribution with cap enforcement,
// and a final rounding reconciliation applied to the last participant by
// input order.
func Allocate(req Request, rate decimal.Decimal, baseCurrency string) (*Result, error) {
	if _, err := ParseType(string(req.Type)); err != nil {
		return nil, err
	}
	if len(req.Participants) == 0 {
		return nil, ErrNoParticipants
	}

	total := req.TotalAmount.Round(moneyScale)
	if total.Sign() <= 0 {
		return nil, ErrNonPositiveTotal
	}
	if err := validateWeights(req.Participants); err != nil {
		return nil, err
	}

	n := len(req.Participants)
	amounts := make([]decimal.Decimal, n)

	// Pass 1: fixed pre-allocation, clamped to the participant's cap.
	preAllocated := decimal.Zero
	for i, p := range req.Participants {
		fixed := p.FixedAmount.Round(moneyScale)
		if fixed.Sign() <= 0 {
			continue
		}
		if cap := p.CapAmount.Round(moneyScale); cap.Sign() > 0 && fixed.GreaterThan(cap) {
			fixed = cap
		}
		amounts[i] = fixed
		preAllocated = preAllocated.Add(fixed)
	}
	if preAllocated.GreaterThan(total) {
		return nil, fmt.Errorf("%w: %s > %s", ErrFixedExceedsTotal, preAllocated, total)
	}
	remaining := total.Sub(preAllocated)

	// Pass 2: eligibility — excluded participants and those already at
	// their cap sit out the proportional distribution.
	pool := make([]int, 0, n)
	for i, p := range req.Participants {
		if p.Excluded {
			continue
		}
		if cap := p.CapAmount.Round(moneyScale); cap.Sign() > 0 && amounts[i].GreaterThanOrEqual(cap) {
			continue
		}
		pool = append(pool, i)
	}

	// Pass 3: iterative weighted distribution. Whatever the loop cannot
	// place (everyone capped or excluded) stays unallocated.
	unallocated := distributeWithCaps(req, amounts, pool, remaining)

	// Pass 4: rounding reconciliation. The last participant by input order
	// absorbs the residue; the unallocatable remainder is excluded so caps
	// hold.
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(a)
	}
	if diff := total.Sub(sum).Sub(unallocated); !diff.IsZero() {
		amounts[n-1] = amounts[n-1].Add(diff)
	}

	shares := make([]Share, n)
	for i, p := range req.Participants {
		amt := amounts[i].Round(moneyScale)
		shares[i] = Share{
			UserID:     p.UserID,
			Amount:     amt,
			BaseAmount: amt.Mul(rate).Round(moneyScale),
		}
	}

	return &Result{
		Total:        total,
		Shares:       shares,
		BaseTotal:    total.Mul(rate).Round(moneyScale),
		BaseCurrency: baseCurrency,
	}, nil
}

func validateWeights(participants []Participant) error {
	for _, p := range participants {
		switch {
		case p.Ratio.Sign() < 0:
			return fmt.Errorf("%w: negative ratio for %s", ErrInvalidWeight, p.UserID)
		case p.Percentage.Sign() < 0 || p.Percentage.GreaterThan(hundred):
			return fmt.Errorf("%w: percentage outside [0,100] for %s", ErrInvalidWeight, p.UserID)
		case p.FixedAmount.Sign() < 0:
			return fmt.Errorf("%w: negative fixed amount for %s", ErrInvalidWeight, p.UserID)
		case p.CapAmount.Sign() < 0:
			return fmt.Errorf("%w: negative cap for %s", ErrInvalidWeight, p.UserID)
		}
	}
	return nil
}

// distributeWithCaps splits remaining across the pool proportionally to the
// split-type weights, re-distributing cap overflow to the shrinking pool
// each round. It mutates amounts in place and returns whatever could not be
// placed.
func distributeWithCaps(req Request, amounts []decimal.Decimal, pool []int, remaining decimal.Decimal) decimal.Decimal {
	for rounds := 0; remaining.Sign() > 0 && len(pool) > 0 && rounds < maxRounds; rounds++ {
		// Weights for the current pool.
		weights := make([]decimal.Decimal, len(pool))
		weightSum := decimal.Zero
		for j, idx := range pool {
			p := req.Participants[idx]
			switch req.Type {
			case TypeRatio:
				weights[j] = p.Ratio
			case TypePercentage:
				weights[j] = p.Percentage
			default:
				weights[j] = one
			}
			weightSum = weightSum.Add(weights[j])
		}
		// A pool with no declared weights splits equally.
		if weightSum.IsZero() {
			for j := range weights {
				weights[j] = one
			}
			weightSum = decimal.NewFromInt(int64(len(pool)))
		}

		// Provisional allocation, adjusted at the last slot so the round
		// places exactly `remaining`.
		provisional := make([]decimal.Decimal, len(pool))
		allocated := decimal.Zero
		for j := range pool {
			part := remaining.Mul(weights[j]).Div(weightSum).Round(moneyScale)
			provisional[j] = part
			allocated = allocated.Add(part)
		}
		provisional[len(pool)-1] = provisional[len(pool)-1].Add(remaining.Sub(allocated))

		// Apply caps; capped participants leave the pool, their overflow
		// feeds the next round.
		overflow := decimal.Zero
		next := make([]int, 0, len(pool))
		for j, idx := range pool {
			p := req.Participants[idx]
			add := provisional[j]
			if cap := p.CapAmount.Round(moneyScale); cap.Sign() > 0 && amounts[idx].Add(add).GreaterThan(cap) {
				allowed := cap.Sub(amounts[idx])
				if allowed.Sign() < 0 {
					allowed = decimal.Zero
				}
				amounts[idx] = amounts[idx].Add(allowed)
				overflow = overflow.Add(add.Sub(allowed))
				continue
			}
			amounts[idx] = amounts[idx].Add(add)
			next = append(next, idx)
		}

		remaining = overflow
		pool = next
	}
	return remaining
}
