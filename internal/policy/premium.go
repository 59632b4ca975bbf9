package policy

import (
	"time"

	"github.com/shopspring/decimal"
)

const secondsPer30Days = 30 * 24 * 60 * 60

// ComputePremium prices coverage from payout size, duration and the base
// rate, scaling linearly with duration against a 30-day baseline and flooring
// at the configured minimum. Pure: identical inputs give identical output.
func ComputePremium(payout decimal.Decimal, duration time.Duration, rateBp int64, minPremium decimal.Decimal) decimal.Decimal {
	base := payout.Mul(decimal.NewFromInt(rateBp)).Div(decimal.NewFromInt(10000))
	secs := int64(duration / time.Second)
	premium := base.Mul(decimal.NewFromInt(secs)).Div(decimal.NewFromInt(secondsPer30Days)).Floor()
	if premium.LessThan(minPremium) {
		return minPremium
	}
	return premium
}
