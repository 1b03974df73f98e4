package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Monetary constants (all prices are integer cents)
const (
	OneCent   int64 = 1
	OneDollar int64 = 100 * OneCent

	// MinPrice is the lowest price an order or sale may carry
	MinPrice = OneCent
)

// Params is the fixed configuration of one market run
type Params struct {
	// FeeRate is the fraction of every sale the market keeps, in [0, 1)
	FeeRate decimal.Decimal
	// StepsPerDay converts simulated days to steps
	StepsPerDay uint64
	// TradeLockDays is how long a newly acquired item stays unsellable
	TradeLockDays uint64
	// BalanceCap bounds opening balances in cents (0 = no cap)
	BalanceCap int64
}

// DefaultParams mirrors the reference marketplace: 15% fee, 1000 steps per
// day, 7 day trade lock, balances up to $2000.
var DefaultParams = Params{
	FeeRate:       decimal.RequireFromString("0.15"),
	StepsPerDay:   1000,
	TradeLockDays: 7,
	BalanceCap:    2000 * OneDollar,
}

// NewParams builds params from a float fee rate, as read from config
func NewParams(feeRate float64, stepsPerDay, tradeLockDays uint64, balanceCap int64) (Params, error) {
	p := Params{
		FeeRate:       decimal.NewFromFloat(feeRate),
		StepsPerDay:   stepsPerDay,
		TradeLockDays: tradeLockDays,
		BalanceCap:    balanceCap,
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate checks parameter sanity
func (p Params) Validate() error {
	if p.FeeRate.IsNegative() || p.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: fee rate %s outside [0, 1)", ErrInvalidParams, p.FeeRate)
	}
	if p.StepsPerDay == 0 {
		return fmt.Errorf("%w: steps per day must be positive", ErrInvalidParams)
	}
	if p.BalanceCap < 0 {
		return fmt.Errorf("%w: balance cap cannot be negative", ErrInvalidParams)
	}
	return nil
}

// Fee returns floor(gross × fee rate), computed exactly
func (p Params) Fee(gross int64) int64 {
	if gross <= 0 {
		return 0
	}
	return decimal.NewFromInt(gross).Mul(p.FeeRate).Floor().IntPart()
}

// TradeLockSteps is the trade lock period expressed in steps
func (p Params) TradeLockSteps() uint64 {
	return p.TradeLockDays * p.StepsPerDay
}

// UnlockStep returns the first step at which an item acquired at step may be sold
func (p Params) UnlockStep(step uint64) uint64 {
	return step + p.TradeLockSteps()
}

// Day returns the simulated day of step
func (p Params) Day(step uint64) uint64 {
	return step / p.StepsPerDay
}

// IsDayBoundary reports whether step starts a new simulated day
func (p Params) IsDayBoundary(step uint64) bool {
	return step%p.StepsPerDay == 0
}
