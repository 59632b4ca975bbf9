package ledger

import (
	"context"
	"errors"
	"testing"

	"skycover/internal/auth"
	"skycover/internal/config"
	"skycover/internal/event"
	"skycover/internal/repository/memory"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	store := memory.New()
	return &Ledger{Repo: store, Events: event.NewHub(store, nil)}
}

func TestEnsureDefaults_SeedsYieldRate(t *testing.T) {
	l := newTestLedger(t)
	if err := l.EnsureDefaults(context.Background(), config.LedgerConfig{YieldBp: 500}); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}
	stats, err := l.PoolStats(context.Background())
	if err != nil {
		t.Fatalf("pool stats: %v", err)
	}
	if stats.YieldBp != 500 {
		t.Fatalf("yield bp=%d want=500", stats.YieldBp)
	}
}

func TestEnsureDefaults_KeepsStoredRate(t *testing.T) {
	l := newTestLedger(t)
	admin := auth.Identity{Subject: "ops", Roles: []string{auth.RoleAdmin}}
	if err := l.SetYieldBp(context.Background(), admin, 250); err != nil {
		t.Fatalf("set yield: %v", err)
	}
	if err := l.EnsureDefaults(context.Background(), config.LedgerConfig{YieldBp: 500}); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}
	stats, err := l.PoolStats(context.Background())
	if err != nil {
		t.Fatalf("pool stats: %v", err)
	}
	if stats.YieldBp != 250 {
		t.Fatalf("yield bp=%d want=250", stats.YieldBp)
	}
}

func TestEnsureDefaults_RejectsBadRate(t *testing.T) {
	l := newTestLedger(t)
	if err := l.EnsureDefaults(context.Background(), config.LedgerConfig{YieldBp: 10001}); !errors.Is(err, ErrInvalidBasisPoints) {
		t.Fatalf("err=%v want=ErrInvalidBasisPoints", err)
	}
}
