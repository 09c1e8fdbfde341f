package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units (cents, paise). All ledger
// arithmetic is done on Money so totals never drift.
type Money int64

const minorUnitExp = 2

// MaxMoney caps every single amount and every total: one hundred billion
// major units. Anything larger is a data entry error.
const MaxMoney Money = 10_000_000_000_000

var ErrAmountOutOfRange = errors.New("amount out of range")

// NewMoney builds Money from a whole number of major units.
func NewMoney(major int64) Money {
	return Money(major * 100)
}

// MoneyFromDecimal converts a major-unit decimal into Money. Amounts with
// more than two fractional digits are rejected rather than rounded.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	minor := d.Shift(minorUnitExp)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d.String(), minorUnitExp)
	}
	if minor.Abs().GreaterThan(decimal.NewFromInt(int64(MaxMoney))) {
		return 0, fmt.Errorf("%w: %s exceeds %s", ErrAmountOutOfRange, d.String(), MaxMoney)
	}
	return Money(minor.IntPart()), nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -minorUnitExp)
}

// String formats the amount in major units with two decimals, e.g. "500.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(minorUnitExp)
}

func (m Money) IsPositive() bool { return m > 0 }

func (m Money) IsZero() bool { return m == 0 }

// FloorZero clamps negative amounts to zero.
func (m Money) FloorZero() Money {
	if m < 0 {
		return 0
	}
	return m
}

// SumMoney adds up values. Every value and every partial total must stay
// within MaxMoney in either direction.
func SumMoney(values ...Money) (Money, error) {
	var total Money
	for _, v := range values {
		if v > MaxMoney || v < -MaxMoney {
			return 0, fmt.Errorf("%w: %s", ErrAmountOutOfRange, v)
		}
		total += v
		if total > MaxMoney || total < -MaxMoney {
			return 0, fmt.Errorf("%w: total exceeds %s", ErrAmountOutOfRange, MaxMoney)
		}
	}
	return total, nil
}

// MarshalJSON writes the amount as a fixed two-decimal string in major units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts a quoted or bare major-unit amount.
func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
