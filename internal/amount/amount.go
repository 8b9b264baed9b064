// Package amount converts between human decimal strings and the fixed-point
// integers used on the wire.
package amount

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/rccstake/rccstake/pkg/types"
	"github.com/shopspring/decimal"
)

const (
	// EtherDecimals is the fixed-point precision of ETH (wei).
	EtherDecimals int32 = 18

	// DisplayPlaces is the precision used for UI output.
	DisplayPlaces int32 = 4
)

// plain non-negative decimals only: no sign, exponent, or whitespace
var decimalPattern = regexp.MustCompile(`^(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)$`)

// ToWire parses a human decimal string into wei.
func ToWire(s string) (*big.Int, error) {
	return ToWireDecimals(s, EtherDecimals)
}

// ToWireDecimals parses s at the given fixed-point precision. It fails with
// types.ErrInvalidAmount when s is not a non-negative decimal or carries more
// significant fractional digits than decimals.
func ToWireDecimals(s string, decimals int32) (*big.Int, error) {
	if !decimalPattern.MatchString(s) {
		return nil, fmt.Errorf("%w: %q is not a non-negative decimal", types.ErrInvalidAmount, s)
	}
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidAmount, err)
	}

	shifted := d.Mul(decimal.New(1, decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d fractional digits", types.ErrInvalidAmount, s, decimals)
	}
	return shifted.BigInt(), nil
}

// FromWire renders wei as a canonical full-precision decimal: no trailing
// zeros and "0" for zero.
func FromWire(x *big.Int) string {
	return FromWireDecimals(x, EtherDecimals)
}

// FromWireDecimals renders x at the given precision.
func FromWireDecimals(x *big.Int, decimals int32) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x, -decimals).String()
}

// FormatDisplay renders wei truncated (never rounded up) to places
// fractional digits, e.g. "10.0000".
func FormatDisplay(x *big.Int, places int32) string {
	if x == nil {
		x = new(big.Int)
	}
	if places < 0 {
		places = 0
	}
	return decimal.NewFromBigInt(x, -EtherDecimals).Truncate(places).StringFixed(places)
}

// Compare compares two decimal strings numerically at ether precision.
func Compare(a, b string) (int, error) {
	x, err := ToWire(a)
	if err != nil {
		return 0, err
	}
	y, err := ToWire(b)
	if err != nil {
		return 0, err
	}
	return x.Cmp(y), nil
}
