package ledger

import "github.com/shopspring/decimal"

// Share math. All divisions round down so the pool can never pay out more
// than proportional ownership covers.

// MintShares returns the shares minted for a deposit. The first deposit
// bootstraps 1:1; later deposits mint amount * totalShares / poolValue.
func MintShares(poolValue, totalShares, amount decimal.Decimal) decimal.Decimal {
	if totalShares.IsZero() || poolValue.IsZero() {
		return amount
	}
	return amount.Mul(totalShares).Div(poolValue).Floor()
}

// RedeemValue returns the pool value a share balance is worth.
func RedeemValue(shares, poolValue, totalShares decimal.Decimal) decimal.Decimal {
	if totalShares.IsZero() {
		return decimal.Zero
	}
	return shares.Mul(poolValue).Div(totalShares).Floor()
}

// YieldAmount computes a provider's yield from current cumulative totals and
// current share balance. Net income clamps at zero when payouts exceed
// premiums.
func YieldAmount(premiums, payouts, shares, totalShares decimal.Decimal, yieldBp int64) decimal.Decimal {
	if totalShares.IsZero() || yieldBp <= 0 {
		return decimal.Zero
	}
	net := premiums.Sub(payouts)
	if net.IsNegative() {
		return decimal.Zero
	}
	shareOfIncome := net.Mul(shares).Div(totalShares)
	return shareOfIncome.Mul(decimal.NewFromInt(yieldBp)).Div(decimal.NewFromInt(10000)).Floor()
}

// UtilizationBp returns liability as basis points of pool value, 0 for an
// empty pool.
func UtilizationBp(liability, poolValue decimal.Decimal) int64 {
	if poolValue.IsZero() {
		return 0
	}
	return liability.Mul(decimal.NewFromInt(10000)).Div(poolValue).Floor().IntPart()
}

// Available returns the withdrawable headroom of the pool.
func Available(poolValue, liability decimal.Decimal) decimal.Decimal {
	out := poolValue.Sub(liability)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}
