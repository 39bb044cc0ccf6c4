package contest

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// ParseAmount parses a base-10 unsigned 256-bit integer.
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("amount %q overflows 256 bits", s)
	}
	return v, nil
}

// MustParseAmount is ParseAmount for constants; it panics on bad input.
func MustParseAmount(s string) *uint256.Int {
	v, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatAmount renders v in base 10. nil renders as "0".
func FormatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.ToBig().String()
}

// AmountFloat is a lossy float view for metrics.
func AmountFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}

func minAmount(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}
