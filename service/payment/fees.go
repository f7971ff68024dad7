package payment

import (
	"math"
	"os"
	"strconv"
)

// DefaultFeeRate is the platform's cut of every consultation payment.
const DefaultFeeRate = 0.10

// FeeRate returns the configured platform fee rate, falling back to the
// default when PLATFORM_FEE_RATE is unset or unparseable.
func FeeRate() float64 {
	raw := os.Getenv("PLATFORM_FEE_RATE")
	if raw == "" {
		return DefaultFeeRate
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil || rate < 0 || rate >= 1 {
		return DefaultFeeRate
	}
	return rate
}

// SplitAmount computes the platform fee (rounded to cents) and the expert
// payout for a payment amount. The payout absorbs any rounding remainder so
// fee + payout always equals the amount.
func SplitAmount(amount, rate float64) (fee, payout float64) {
	fee = math.Round(amount*rate*100) / 100
	payout = amount - fee
	return fee, payout
}
