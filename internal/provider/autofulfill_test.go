package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"skycover/internal/event"
	"skycover/internal/ledger"
	"skycover/internal/models"
	"skycover/internal/oracle"
	"skycover/internal/policy"
	"skycover/internal/repository/memory"
)

type fixedSource struct {
	value      int64
	observedAt time.Time
	err        error
}

func (f fixedSource) Observe(ctx context.Context, location, parameter string) (Observation, error) {
	if f.err != nil {
		return Observation{}, f.err
	}
	return Observation{Value: f.value, ObservedAt: f.observedAt}, nil
}

func TestAutoFulfiller_DrainsPendingRequests(t *testing.T) {
	store := memory.New()
	hub := event.NewHub(store, nil)
	pool := &ledger.Ledger{Repo: store, Events: hub}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	registry := &policy.Registry{
		Repo:   store,
		Events: hub,
		Ledger: pool,
		Funds:  pool.GrantFundsAccess(),
		Clock:  func() time.Time { return now },
	}
	gateway := &oracle.Gateway{
		Repo:     store,
		Events:   hub,
		Registry: registry,
		Access:   registry.GrantEvaluateAccess(),
		Clock:    func() time.Time { return now },
	}

	ctx := context.Background()
	err := store.SaveRegistryParamsTx(ctx, nil, &models.RegistryParams{
		BasePremiumRateBp:  200,
		MinPremium:         decimal.NewFromInt(1),
		MinPayout:          decimal.NewFromInt(10),
		MaxPayout:          decimal.NewFromInt(1000000),
		MinCoverageSeconds: 86400,
		MaxCoverageSeconds: 31536000,
	})
	if err != nil {
		t.Fatalf("seed params: %v", err)
	}
	err = store.SaveOracleConfigTx(ctx, nil, &models.OracleConfig{OracleSubject: "openmeteo-relay"})
	if err != nil {
		t.Fatalf("seed oracle config: %v", err)
	}
	if _, err := pool.Deposit(ctx, "lp-1", decimal.NewFromInt(10000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	created, err := registry.CreatePolicy(ctx, policy.CreateParams{
		Holder:       "alice",
		Start:        now.Add(time.Hour),
		End:          now.Add(time.Hour + 30*24*time.Hour),
		Location:     "52.52,13.40",
		Parameter:    models.ParameterTemperature,
		Operator:     models.OperatorGreaterThan,
		TriggerValue: 38,
		PayoutAmount: decimal.NewFromInt(1000),
		PremiumPaid:  decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	now = now.Add(2 * time.Hour)

	if _, err := gateway.RequestWeatherData(ctx, "alice", "52.52,13.40", models.ParameterTemperature); err != nil {
		t.Fatalf("request: %v", err)
	}

	fulfiller := &AutoFulfiller{
		Gateway: gateway,
		Source:  fixedSource{value: 41, observedAt: now},
		Subject: "openmeteo-relay",
	}
	if err := fulfiller.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	pending, _ := gateway.PendingRequests(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("pending=%d want=0", len(pending))
	}
	p, _ := registry.GetPolicy(ctx, created.Policy.ID)
	if p.Status != models.PolicyStatusClaimed {
		t.Fatalf("status=%s want=claimed", p.Status)
	}
}

func TestAutoFulfiller_SkipsFailingObservations(t *testing.T) {
	store := memory.New()
	hub := event.NewHub(store, nil)
	pool := &ledger.Ledger{Repo: store, Events: hub}
	registry := &policy.Registry{Repo: store, Events: hub, Ledger: pool, Funds: pool.GrantFundsAccess()}
	gateway := &oracle.Gateway{Repo: store, Events: hub, Registry: registry, Access: registry.GrantEvaluateAccess()}

	ctx := context.Background()
	if _, err := gateway.RequestWeatherData(ctx, "alice", "52.52,13.40", models.ParameterTemperature); err != nil {
		t.Fatalf("request: %v", err)
	}
	fulfiller := &AutoFulfiller{
		Gateway: gateway,
		Source:  fixedSource{err: errors.New("upstream down")},
		Subject: "openmeteo-relay",
	}
	if err := fulfiller.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	pending, _ := gateway.PendingRequests(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("failed observation should leave the request pending")
	}
}
