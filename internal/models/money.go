package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Money is an amount in cents. It serializes as a decimal number with two
// fractional digits so stored documents read like currency.
type Money int64

// MaxMoney bounds any single amount and any wallet balance: one trillion in
// currency units. Sums of two values within the bound cannot overflow int64.
const MaxMoney Money = 100_000_000_000_000

var ErrMoneyOutOfRange = errors.New("money: amount out of range")

// MoneyFromFloat rounds a decimal amount to the nearest cent. Values beyond
// MaxMoney in either direction and non-finite values are rejected.
func MoneyFromFloat(v float64) (Money, error) {
	cents := math.Round(v * 100)
	if math.IsNaN(cents) || math.Abs(cents) > float64(MaxMoney) {
		return 0, fmt.Errorf("%w: %g", ErrMoneyOutOfRange, v)
	}
	return Money(cents), nil
}

func (m Money) Float() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	return strconv.FormatFloat(m.Float(), 'f', 2, 64)
}

// Percent returns the share of m given in basis points, rounded half away from zero.
func (m Money) Percent(basisPoints int64) Money {
	return Money(math.Round(float64(m) * float64(basisPoints) / 10000))
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	f, err := num.Float64()
	if err != nil {
		return fmt.Errorf("money: %w", err)
	}
	v, err := MoneyFromFloat(f)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// UnmarshalYAML reads a decimal price from the catalog seed file.
func (m *Money) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var f float64
	if err := unmarshal(&f); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	v, err := MoneyFromFloat(f)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
