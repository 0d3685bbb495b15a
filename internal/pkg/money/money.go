// Package money provides fixed-point money amounts for the wager ledger.
// Amounts are stored as integer cents so balance arithmetic is exact;
// binary floats never touch the ledger.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// MaxScale is the number of decimal places accepted when parsing.
const MaxScale = 2

// Amount is a money value in cents.
type Amount int64

// Common errors for money parsing.
var (
	ErrInvalidAmount = errors.New("invalid money amount")
	ErrTooManyDigits = errors.New("amount has more than two decimal places")
	ErrOutOfRange    = errors.New("amount out of range")
)

// maxUnits bounds the integer part so cents never overflow int64.
const maxUnits = math.MaxInt64 / 100

// Parse parses a strict decimal string ("10", "10.5", "-3.25") into cents.
// At most MaxScale decimal places are accepted; anything else is rejected.
func Parse(raw string) (Amount, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrInvalidAmount
	}

	negative := false
	if s[0] == '-' {
		negative = true
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i+1:]
		if fracPart == "" {
			return 0, ErrInvalidAmount
		}
	}

	if intPart == "" || !allDigits(intPart) {
		return 0, ErrInvalidAmount
	}
	if strings.ContainsRune(fracPart, '.') || (fracPart != "" && !allDigits(fracPart)) {
		return 0, ErrInvalidAmount
	}
	if len(fracPart) > MaxScale {
		return 0, ErrTooManyDigits
	}

	var units int64
	for _, c := range intPart {
		units = units*10 + int64(c-'0')
		if units > maxUnits {
			return 0, ErrOutOfRange
		}
	}

	cents := units * 100
	if fracPart != "" {
		frac := int64(fracPart[0]-'0') * 10
		if len(fracPart) == 2 {
			frac += int64(fracPart[1] - '0')
		}
		cents += frac
	}

	if negative {
		cents = -cents
	}
	return Amount(cents), nil
}

// MustParse parses a decimal string and panics on failure. Test helper.
func MustParse(raw string) Amount {
	a, err := Parse(raw)
	if err != nil {
		panic(fmt.Sprintf("money: parse %q: %v", raw, err))
	}
	return a
}

// FromUnits converts whole currency units to an Amount.
func FromUnits(units int64) Amount {
	return Amount(units * 100)
}

// Format returns the plain decimal form with two decimal places, e.g. "12.34".
func (a Amount) Format() string {
	cents := int64(a)
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// String renders the amount with a currency symbol, e.g. "$12.34".
func (a Amount) String() string {
	if a < 0 {
		return "-$" + (-a).Format()
	}
	return "$" + a.Format()
}

// Signed renders the amount with an explicit sign, e.g. "+$1.00" / "-$1.00".
func (a Amount) Signed() string {
	if a < 0 {
		return "-$" + (-a).Format()
	}
	return "+$" + a.Format()
}

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool {
	return a > 0
}

// Neg returns the negated amount.
func (a Amount) Neg() Amount {
	return -a
}

// MulMultiplier scales the amount by a float multiplier, rounding half away
// from zero. Used for crash payouts, which are not zero-sum, so cent-level
// rounding stays within a single account.
func (a Amount) MulMultiplier(m float64) Amount {
	return Amount(math.Round(float64(a) * m))
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
