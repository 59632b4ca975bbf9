package policy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestComputePremium_ThirtyDayBaseline(t *testing.T) {
	// 10000 payout at 200bp over 30 days = 200.
	got := ComputePremium(decimal.NewFromInt(10000), 30*24*time.Hour, 200, decimal.NewFromInt(1))
	if got.Cmp(decimal.NewFromInt(200)) != 0 {
		t.Fatalf("premium=%s want=200", got.String())
	}
}

func TestComputePremium_ScalesWithDuration(t *testing.T) {
	base := ComputePremium(decimal.NewFromInt(10000), 30*24*time.Hour, 200, decimal.Zero)
	double := ComputePremium(decimal.NewFromInt(10000), 60*24*time.Hour, 200, decimal.Zero)
	if double.Cmp(base.Mul(decimal.NewFromInt(2))) != 0 {
		t.Fatalf("60d premium=%s want=2x 30d premium %s", double.String(), base.String())
	}
}

func TestComputePremium_FloorsAtMinimum(t *testing.T) {
	got := ComputePremium(decimal.NewFromInt(10), 24*time.Hour, 200, decimal.NewFromInt(5))
	if got.Cmp(decimal.NewFromInt(5)) != 0 {
		t.Fatalf("premium=%s want=5 (minimum)", got.String())
	}
}

func TestComputePremium_Deterministic(t *testing.T) {
	a := ComputePremium(decimal.NewFromInt(12345), 77*time.Hour, 314, decimal.NewFromInt(1))
	b := ComputePremium(decimal.NewFromInt(12345), 77*time.Hour, 314, decimal.NewFromInt(1))
	if a.Cmp(b) != 0 {
		t.Fatalf("same inputs gave %s and %s", a.String(), b.String())
	}
}
