package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"skycover/internal/auth"
	"skycover/internal/event"
	"skycover/internal/ledger"
	"skycover/internal/models"
	"skycover/internal/policy"
	"skycover/internal/repository/memory"
)

func newTestServer(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	hub := event.NewHub(store, nil)
	pool := &ledger.Ledger{Repo: store, Events: hub}
	registry := &policy.Registry{
		Repo:   store,
		Events: hub,
		Ledger: pool,
		Funds:  pool.GrantFundsAccess(),
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

	engine := gin.New()
	engine.Use(auth.Middleware(auth.JWT{}, true))
	(&PoolHandler{Ledger: pool}).Register(engine)
	(&PolicyHandler{Registry: registry}).Register(engine)
	(&AdminHandler{Ledger: pool, Registry: registry, JWT: auth.JWT{Secret: []byte("s")}}).Register(engine)
	return engine, store
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestDepositAndStats(t *testing.T) {
	engine, _ := newTestServer(t)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/pool/deposits", `{"amount":"1000"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("deposit status=%d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, engine, http.MethodGet, "/api/v1/pool/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status=%d", w.Code)
	}
	var resp struct {
		Data struct {
			PoolValue string `json:"pool_value"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.PoolValue != "1000" {
		t.Fatalf("pool_value=%s want=1000", resp.Data.PoolValue)
	}
}

func TestDeposit_BadAmount(t *testing.T) {
	engine, _ := newTestServer(t)
	w := doJSON(t, engine, http.MethodPost, "/api/v1/pool/deposits", `{"amount":"abc"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want=400", w.Code)
	}
}

func TestCreatePolicy_ErrorMapping(t *testing.T) {
	engine, _ := newTestServer(t)
	doJSON(t, engine, http.MethodPost, "/api/v1/pool/deposits", `{"amount":"10000"}`)

	// Coverage already started: the window is invalid and maps to 400.
	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	end := time.Now().UTC().Add(30 * 24 * time.Hour).Format(time.RFC3339)
	body := `{"location":"52.52,13.40","parameter":"temperature","operator":"gt",` +
		`"trigger_value":38,"payout_amount":"1000","premium_paid":"100",` +
		`"coverage_start":"` + past + `","coverage_end":"` + end + `"}`
	w := doJSON(t, engine, http.MethodPost, "/api/v1/policies", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want=400 body=%s", w.Code, w.Body.String())
	}
}

func TestCreateAndFetchPolicy(t *testing.T) {
	engine, _ := newTestServer(t)
	doJSON(t, engine, http.MethodPost, "/api/v1/pool/deposits", `{"amount":"10000"}`)

	start := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	end := time.Now().UTC().Add(time.Hour + 30*24*time.Hour).Format(time.RFC3339)
	body := `{"location":"52.52,13.40","parameter":"temperature","operator":"gt",` +
		`"trigger_value":38,"payout_amount":"1000","premium_paid":"100",` +
		`"coverage_start":"` + start + `","coverage_end":"` + end + `"}`
	w := doJSON(t, engine, http.MethodPost, "/api/v1/policies", body)
	if w.Code != http.StatusOK {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, engine, http.MethodGet, "/api/v1/policies/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status=%d", w.Code)
	}
	w = doJSON(t, engine, http.MethodGet, "/api/v1/policies/999", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing policy status=%d want=404", w.Code)
	}
}

func TestAdminMintToken(t *testing.T) {
	engine, _ := newTestServer(t)
	w := doJSON(t, engine, http.MethodPost, "/api/v1/admin/auth/tokens", `{"subject":"alice","roles":["admin"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Token == "" {
		t.Fatalf("empty token")
	}
}
