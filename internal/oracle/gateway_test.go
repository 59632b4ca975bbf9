package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"skycover/internal/auth"
	"skycover/internal/event"
	"skycover/internal/ledger"
	"skycover/internal/models"
	"skycover/internal/policy"
	"skycover/internal/repository/memory"
)

type testStack struct {
	store    *memory.Store
	pool     *ledger.Ledger
	registry *policy.Registry
	gateway  *Gateway
	now      time.Time
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	store := memory.New()
	hub := event.NewHub(store, nil)
	pool := &ledger.Ledger{Repo: store, Events: hub}

	s := &testStack{
		store: store,
		pool:  pool,
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	s.registry = &policy.Registry{
		Repo:   store,
		Events: hub,
		Ledger: pool,
		Funds:  pool.GrantFundsAccess(),
		Clock:  func() time.Time { return s.now },
	}
	s.gateway = &Gateway{
		Repo:     store,
		Events:   hub,
		Registry: s.registry,
		Access:   s.registry.GrantEvaluateAccess(),
		Clock:    func() time.Time { return s.now },
	}

	err := store.SaveRegistryParamsTx(context.Background(), nil, &models.RegistryParams{
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
	return s
}

func (s *testStack) setOracle(t *testing.T, subject, publicKeyHex string) {
	t.Helper()
	err := s.store.SaveOracleConfigTx(context.Background(), nil, &models.OracleConfig{
		OracleSubject:   subject,
		OraclePublicKey: publicKeyHex,
	})
	if err != nil {
		t.Fatalf("seed oracle config: %v", err)
	}
}

func (s *testStack) activePolicy(t *testing.T, holder string, payout int64) models.Policy {
	t.Helper()
	if _, err := s.pool.Deposit(context.Background(), "lp-1", decimal.NewFromInt(10*payout)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	result, err := s.registry.CreatePolicy(context.Background(), policy.CreateParams{
		Holder:       holder,
		Start:        s.now.Add(time.Hour),
		End:          s.now.Add(time.Hour + 30*24*time.Hour),
		Location:     "52.52,13.40",
		Parameter:    models.ParameterTemperature,
		Operator:     models.OperatorGreaterThan,
		TriggerValue: 38,
		PayoutAmount: decimal.NewFromInt(payout),
		PremiumPaid:  decimal.NewFromInt(payout),
	})
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	s.now = s.now.Add(2 * time.Hour)
	return result.Policy
}

func TestRequestWeatherData_DistinctIDs(t *testing.T) {
	s := newTestStack(t)

	a, err := s.gateway.RequestWeatherData(context.Background(), "alice", "52.52,13.40", models.ParameterTemperature)
	if err != nil {
		t.Fatalf("request a: %v", err)
	}
	b, err := s.gateway.RequestWeatherData(context.Background(), "alice", "52.52,13.40", models.ParameterTemperature)
	if err != nil {
		t.Fatalf("request b: %v", err)
	}
	if a.RequestID == b.RequestID {
		t.Fatalf("identical requests share id %s", a.RequestID)
	}
	pending, err := s.gateway.PendingRequests(context.Background(), 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending=%d want=2", len(pending))
	}
}

func TestRequestWeatherData_RejectsBadParameter(t *testing.T) {
	s := newTestStack(t)
	if _, err := s.gateway.RequestWeatherData(context.Background(), "alice", "52.52,13.40", "sunshine"); !errors.Is(err, policy.ErrInvalidParameter) {
		t.Fatalf("err=%v want=ErrInvalidParameter", err)
	}
}

func TestFulfill_SettlesOnceOnly(t *testing.T) {
	s := newTestStack(t)
	s.setOracle(t, "met-office", "")
	p := s.activePolicy(t, "alice", 1000)

	req, err := s.gateway.RequestWeatherData(context.Background(), "alice", p.Location, p.Parameter)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	result, err := s.gateway.Fulfill(context.Background(), "met-office", req.RequestID, 41, s.now)
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if len(result.Claims) != 1 || result.Claims[0].PolicyID != p.ID {
		t.Fatalf("claims=%+v want one for policy %d", result.Claims, p.ID)
	}

	stored, err := s.gateway.GetRequest(context.Background(), req.RequestID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if !stored.Fulfilled || stored.FulfilledAt == nil {
		t.Fatalf("request not marked fulfilled: %+v", stored)
	}

	// Second delivery for the same request must fail and settle nothing.
	if _, err := s.gateway.Fulfill(context.Background(), "met-office", req.RequestID, 41, s.now); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("err=%v want=ErrRequestNotPending", err)
	}
	claims, _ := s.registry.UserClaims(context.Background(), "alice", 10, 0)
	if len(claims) != 1 {
		t.Fatalf("claims=%d want=1", len(claims))
	}
}

func TestFulfill_RejectsUnknownCaller(t *testing.T) {
	s := newTestStack(t)
	s.setOracle(t, "met-office", "")
	p := s.activePolicy(t, "alice", 1000)

	req, err := s.gateway.RequestWeatherData(context.Background(), "alice", p.Location, p.Parameter)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := s.gateway.Fulfill(context.Background(), "impostor", req.RequestID, 41, s.now); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("err=%v want=ErrUnauthorized", err)
	}
	stored, _ := s.gateway.GetRequest(context.Background(), req.RequestID)
	if stored.Fulfilled {
		t.Fatalf("rejected delivery still fulfilled the request")
	}
}

func TestFulfill_UnknownRequestNotPending(t *testing.T) {
	s := newTestStack(t)
	key, hexKey := newSigner(t)
	s.setOracle(t, "met-office", hexKey)

	// A request id that never existed is indistinguishable from one already
	// fulfilled on both delivery paths.
	if _, err := s.gateway.Fulfill(context.Background(), "met-office", "no-such-request", 41, s.now); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("err=%v want=ErrRequestNotPending", err)
	}

	sig := signTuple(t, key, CanonicalTuple("no-such-request", "52.52,13.40", models.ParameterTemperature, 41, s.now))
	if _, err := s.gateway.FulfillWithSignature(context.Background(), "no-such-request", 41, s.now, sig); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("err=%v want=ErrRequestNotPending", err)
	}
}

func TestFulfill_NotConfigured(t *testing.T) {
	s := newTestStack(t)
	if _, err := s.gateway.Fulfill(context.Background(), "anyone", "req", 41, s.now); !errors.Is(err, ErrOracleNotConfigured) {
		t.Fatalf("err=%v want=ErrOracleNotConfigured", err)
	}
}

func TestFulfillWithSignature(t *testing.T) {
	s := newTestStack(t)
	key, hexKey := newSigner(t)
	s.setOracle(t, "met-office", hexKey)
	p := s.activePolicy(t, "alice", 1000)

	req, err := s.gateway.RequestWeatherData(context.Background(), "alice", p.Location, p.Parameter)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	ts := s.now
	tuple := CanonicalTuple(req.RequestID, req.Location, req.Parameter, 41, ts)
	sig := signTuple(t, key, tuple)

	// A relay that is not the oracle delivers the signed observation.
	result, err := s.gateway.FulfillWithSignature(context.Background(), req.RequestID, 41, ts, sig)
	if err != nil {
		t.Fatalf("fulfill signed: %v", err)
	}
	if len(result.Claims) != 1 {
		t.Fatalf("claims=%d want=1", len(result.Claims))
	}
}

func TestFulfillWithSignature_RejectsTamperedValue(t *testing.T) {
	s := newTestStack(t)
	key, hexKey := newSigner(t)
	s.setOracle(t, "met-office", hexKey)
	p := s.activePolicy(t, "alice", 1000)

	req, err := s.gateway.RequestWeatherData(context.Background(), "alice", p.Location, p.Parameter)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	ts := s.now
	sig := signTuple(t, key, CanonicalTuple(req.RequestID, req.Location, req.Parameter, 30, ts))

	if _, err := s.gateway.FulfillWithSignature(context.Background(), req.RequestID, 41, ts, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err=%v want=ErrInvalidSignature", err)
	}
	stored, _ := s.gateway.GetRequest(context.Background(), req.RequestID)
	if stored.Fulfilled {
		t.Fatalf("tampered delivery fulfilled the request")
	}
}

func TestSetOracleIdentity(t *testing.T) {
	s := newTestStack(t)
	admin := auth.Identity{Subject: "ops", Roles: []string{auth.RoleAdmin}}
	_, hexKey := newSigner(t)

	if err := s.gateway.SetOracleIdentity(context.Background(), admin, "met-office", hexKey); err != nil {
		t.Fatalf("set identity: %v", err)
	}
	cfg, _ := s.gateway.Config(context.Background())
	if cfg.OracleSubject != "met-office" || cfg.OraclePublicKey != hexKey {
		t.Fatalf("stored identity=%+v", cfg)
	}

	if err := s.gateway.SetOracleIdentity(context.Background(), admin, "", hexKey); err == nil {
		t.Fatalf("empty subject accepted")
	}
	if err := s.gateway.SetOracleIdentity(context.Background(), admin, "x", "zz"); err == nil {
		t.Fatalf("bad key accepted")
	}
	user := auth.Identity{Subject: "alice"}
	if err := s.gateway.SetOracleIdentity(context.Background(), user, "x", hexKey); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("err=%v want=ErrUnauthorized", err)
	}
}

func TestEnsureIdentity_DoesNotOverwrite(t *testing.T) {
	s := newTestStack(t)
	s.setOracle(t, "met-office", "")

	if err := s.gateway.EnsureIdentity(context.Background(), "other", ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	cfg, _ := s.gateway.Config(context.Background())
	if cfg.OracleSubject != "met-office" {
		t.Fatalf("seed overwrote stored identity: %+v", cfg)
	}
}
