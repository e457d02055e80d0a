// Package coin converts integer amounts in the smallest currency unit into
// display strings.
package coin

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Unit sizes in copper.
const (
	CopperPerSilver = 100
	CopperPerGold   = 100 * CopperPerSilver
)

// Split is an amount broken into gold, silver and copper. All three
// components carry the sign of the original amount.
type Split struct {
	Gold   int64
	Silver int64
	Copper int64
}

// Decompose splits v into gold, silver and copper. The magnitude is split
// first and the sign applied to every unit, so -150 becomes 0G -1S -50C
// rather than the floor-division result -1G 98S 50C.
func Decompose(v int64) Split {
	sign := int64(1)
	// the magnitude is unsigned so math.MinInt64 does not overflow
	mag := uint64(v)
	if v < 0 {
		sign = -1
		mag = -mag
	}

	return Split{
		Gold:   sign * int64(mag/CopperPerGold),
		Silver: sign * int64((mag%CopperPerGold)/CopperPerSilver),
		Copper: sign * int64(mag%CopperPerSilver),
	}
}

// Total reassembles the amount in copper.
func (s Split) Total() int64 {
	return s.Gold*CopperPerGold + s.Silver*CopperPerSilver + s.Copper
}

// String renders the split as "{g}G {s}S {c}C".
func (s Split) String() string {
	return fmt.Sprintf("%dG %dS %dC", s.Gold, s.Silver, s.Copper)
}

// FormatTriUnit renders v as "{g}G {s}S {c}C".
func FormatTriUnit(v int64) string {
	return Decompose(v).String()
}

// FormatDecimal renders v divided by 100 with two decimals.
func FormatDecimal(v int64) string {
	return decimal.New(v, -2).StringFixed(2)
}

// FormatFloat renders an already fractional price with two decimals.
func FormatFloat(f float64) string {
	return decimal.NewFromFloat(f).StringFixed(2)
}

// Format selects a display convention.
type Format string

const (
	FormatNameTriUnit Format = "tri-unit"
	FormatNameDecimal Format = "decimal"
)

// ParseFormat accepts "tri-unit" (also "gsc") and "decimal".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tri-unit", "triunit", "gsc":
		return FormatNameTriUnit, nil
	case "decimal":
		return FormatNameDecimal, nil
	default:
		return "", fmt.Errorf("unknown price format %q", s)
	}
}

// Render formats v using f. Unknown formats fall back to tri-unit.
func (f Format) Render(v int64) string {
	if f == FormatNameDecimal {
		return FormatDecimal(v)
	}
	return FormatTriUnit(v)
}
