package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMintShares_Bootstrap(t *testing.T) {
	got := MintShares(decimal.Zero, decimal.Zero, decimal.NewFromInt(1000))
	if got.Cmp(decimal.NewFromInt(1000)) != 0 {
		t.Fatalf("minted=%s want=1000", got.String())
	}
}

func TestMintShares_Proportional(t *testing.T) {
	// Pool worth 2000 backed by 1000 shares: a 500 deposit mints 250.
	got := MintShares(decimal.NewFromInt(2000), decimal.NewFromInt(1000), decimal.NewFromInt(500))
	if got.Cmp(decimal.NewFromInt(250)) != 0 {
		t.Fatalf("minted=%s want=250", got.String())
	}
}

func TestMintShares_RoundsDown(t *testing.T) {
	got := MintShares(decimal.NewFromInt(3000), decimal.NewFromInt(1000), decimal.NewFromInt(100))
	// 100 * 1000 / 3000 = 33.33..., floors to 33.
	if got.Cmp(decimal.NewFromInt(33)) != 0 {
		t.Fatalf("minted=%s want=33", got.String())
	}
}

func TestRedeemValue(t *testing.T) {
	got := RedeemValue(decimal.NewFromInt(250), decimal.NewFromInt(2000), decimal.NewFromInt(1000))
	if got.Cmp(decimal.NewFromInt(500)) != 0 {
		t.Fatalf("value=%s want=500", got.String())
	}
	if !RedeemValue(decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.Zero).IsZero() {
		t.Fatalf("empty pool should redeem zero")
	}
}

func TestYieldAmount(t *testing.T) {
	// Net income 400, half the shares, 500bp -> 400 * 0.5 * 0.05 = 10.
	got := YieldAmount(decimal.NewFromInt(500), decimal.NewFromInt(100),
		decimal.NewFromInt(500), decimal.NewFromInt(1000), 500)
	if got.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("yield=%s want=10", got.String())
	}
}

func TestYieldAmount_NetLossClampsToZero(t *testing.T) {
	got := YieldAmount(decimal.NewFromInt(100), decimal.NewFromInt(500),
		decimal.NewFromInt(500), decimal.NewFromInt(1000), 500)
	if !got.IsZero() {
		t.Fatalf("yield=%s want=0", got.String())
	}
}

func TestYieldAmount_ZeroRate(t *testing.T) {
	got := YieldAmount(decimal.NewFromInt(500), decimal.Zero,
		decimal.NewFromInt(500), decimal.NewFromInt(1000), 0)
	if !got.IsZero() {
		t.Fatalf("yield=%s want=0", got.String())
	}
}

func TestUtilizationBp(t *testing.T) {
	if got := UtilizationBp(decimal.NewFromInt(250), decimal.NewFromInt(1000)); got != 2500 {
		t.Fatalf("utilization=%d want=2500", got)
	}
	if got := UtilizationBp(decimal.NewFromInt(250), decimal.Zero); got != 0 {
		t.Fatalf("empty pool utilization=%d want=0", got)
	}
}

func TestAvailable(t *testing.T) {
	got := Available(decimal.NewFromInt(1000), decimal.NewFromInt(400))
	if got.Cmp(decimal.NewFromInt(600)) != 0 {
		t.Fatalf("available=%s want=600", got.String())
	}
	if !Available(decimal.NewFromInt(100), decimal.NewFromInt(400)).IsZero() {
		t.Fatalf("over-committed pool should report zero headroom")
	}
}
