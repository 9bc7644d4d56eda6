// Package money converts between decimal amounts and integer micro-units.
// Limits are compared in micro-units so boundary checks stay exact.
package money

import (
	"math"
	"strconv"
)

// MicrosPerUnit matches USDC's six decimal places.
const MicrosPerUnit = 1_000_000

// MaxAmount is the largest amount a single claim may carry.
const MaxAmount = 1_000_000_000

// maxMicros bounds ToMicros so the sum of two converted values still fits
// in an int64.
const maxMicros = math.MaxInt64 / 2

// ToMicros rounds amount to the nearest micro-unit. Non-finite input yields 0;
// magnitudes beyond the int64 range saturate.
func ToMicros(amount float64) int64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	scaled := math.Round(amount * MicrosPerUnit)
	switch {
	case scaled >= maxMicros:
		return maxMicros
	case scaled <= -maxMicros:
		return -maxMicros
	}
	return int64(scaled)
}

// AddMicros adds two micro-unit values, saturating instead of wrapping.
func AddMicros(a, b int64) int64 {
	sum := a + b
	switch {
	case a > 0 && b > 0 && sum < 0:
		return math.MaxInt64
	case a < 0 && b < 0 && sum >= 0:
		return math.MinInt64
	}
	return sum
}

func FromMicros(micros int64) float64 {
	return float64(micros) / MicrosPerUnit
}

// Format renders amount with two decimal places.
func Format(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

// Finite reports whether v is a usable amount.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Valid reports whether v can be claimed: finite, non-negative and at most
// MaxAmount.
func Valid(v float64) bool {
	return Finite(v) && v >= 0 && v <= MaxAmount
}
