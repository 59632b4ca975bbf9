// Package memory is an in-memory repository used by tests and local
// experiments. Transactions are a pass-through: mutations apply immediately
// and are not rolled back on error.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"skycover/internal/models"
	"skycover/internal/repository"
)

type Store struct {
	mu sync.Mutex

	pool      *models.PoolState
	positions map[string]models.LiquidityPosition

	policies     map[uint64]models.Policy
	nextPolicyID uint64
	claims       []models.Claim

	templates map[string]models.PolicyTemplate
	requests  map[string]models.WeatherRequest

	params    *models.RegistryParams
	oracleCfg *models.OracleConfig

	events []models.EngineEvent
}

var _ repository.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		positions: map[string]models.LiquidityPosition{},
		policies:  map[uint64]models.Policy{},
		templates: map[string]models.PolicyTemplate{},
		requests:  map[string]models.WeatherRequest{},
	}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *Store) GetPoolState(ctx context.Context) (*models.PoolState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return &models.PoolState{
			ID:                models.PoolStateID,
			PoolValue:         decimal.Zero,
			TotalShares:       decimal.Zero,
			TotalLiability:    decimal.Zero,
			PremiumsCollected: decimal.Zero,
			PayoutsPaid:       decimal.Zero,
		}, nil
	}
	cp := *s.pool
	return &cp, nil
}

func (s *Store) GetPoolStateTx(ctx context.Context, tx *gorm.DB) (*models.PoolState, error) {
	return s.GetPoolState(ctx)
}

func (s *Store) SavePoolStateTx(ctx context.Context, tx *gorm.DB, state *models.PoolState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	cp.ID = models.PoolStateID
	s.pool = &cp
	return nil
}

func (s *Store) GetPosition(ctx context.Context, provider string) (*models.LiquidityPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[provider]
	if !ok {
		return nil, nil
	}
	cp := pos
	return &cp, nil
}

func (s *Store) GetPositionTx(ctx context.Context, tx *gorm.DB, provider string) (*models.LiquidityPosition, error) {
	return s.GetPosition(ctx, provider)
}

func (s *Store) SavePositionTx(ctx context.Context, tx *gorm.DB, pos *models.LiquidityPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.Provider] = *pos
	return nil
}

func (s *Store) ListPositions(ctx context.Context, limit, offset int) ([]models.LiquidityPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LiquidityPosition, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return paginate(out, limit, offset), nil
}

func (s *Store) InsertPolicyTx(ctx context.Context, tx *gorm.DB, policy *models.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPolicyID++
	policy.ID = s.nextPolicyID
	s.policies[policy.ID] = *policy
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, id uint64) (*models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (s *Store) GetPolicyTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Policy, error) {
	return s.GetPolicy(ctx, id)
}

func (s *Store) UpdatePolicyStatusTx(ctx context.Context, tx *gorm.DB, id uint64, from, to string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok || p.Status != from {
		return 0, nil
	}
	p.Status = to
	s.policies[id] = p
	return 1, nil
}

func (s *Store) ListPoliciesByHolder(ctx context.Context, params repository.ListPoliciesParams) ([]models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Policy, 0)
	for _, p := range s.policies {
		if p.Holder != params.Holder {
			continue
		}
		if params.Status != nil && p.Status != *params.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, params.Limit, params.Offset), nil
}

func (s *Store) CountPoliciesByHolder(ctx context.Context, params repository.ListPoliciesParams) (int64, error) {
	params.Limit = 0
	params.Offset = 0
	items, err := s.ListPoliciesByHolder(ctx, params)
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

func (s *Store) ListActivePoliciesForEvaluationTx(ctx context.Context, tx *gorm.DB, location, parameter string, at time.Time) ([]models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Policy, 0)
	for _, p := range s.policies {
		if p.Status != models.PolicyStatusActive {
			continue
		}
		if p.Location != location || p.Parameter != parameter {
			continue
		}
		if at.Before(p.CoverageStart) || at.After(p.CoverageEnd) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListDueActivePolicyIDs(ctx context.Context, asOf time.Time, limit int) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, 0)
	for _, p := range s.policies {
		if p.Status == models.PolicyStatusActive && p.CoverageEnd.Before(asOf) {
			out = append(out, p.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SumActiveLiabilityTx(ctx context.Context, tx *gorm.DB, asOf time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, p := range s.policies {
		if p.Status == models.PolicyStatusActive && p.CoverageEnd.After(asOf) {
			total = total.Add(p.PayoutAmount)
		}
	}
	return total, nil
}

func (s *Store) InsertClaimTx(ctx context.Context, tx *gorm.DB, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.claims {
		if c.PolicyID == claim.PolicyID {
			return fmt.Errorf("duplicate claim for policy %d", claim.PolicyID)
		}
	}
	claim.ID = uint64(len(s.claims) + 1)
	s.claims = append(s.claims, *claim)
	return nil
}

func (s *Store) ListClaimsByHolder(ctx context.Context, holder string, limit, offset int) ([]models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Claim, 0)
	for _, c := range s.claims {
		if c.Holder == holder {
			out = append(out, c)
		}
	}
	return paginate(out, limit, offset), nil
}

func (s *Store) UpsertTemplate(ctx context.Context, item *models.PolicyTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[item.Name] = *item
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, name string) (*models.PolicyTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[name]
	if !ok {
		return nil, nil
	}
	cp := t
	return &cp, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]models.PolicyTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PolicyTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) InsertRequestTx(ctx context.Context, tx *gorm.DB, req *models.WeatherRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.RequestID]; ok {
		return fmt.Errorf("duplicate request %s", req.RequestID)
	}
	s.requests[req.RequestID] = *req
	return nil
}

func (s *Store) GetRequest(ctx context.Context, requestID string) (*models.WeatherRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, nil
	}
	cp := r
	return &cp, nil
}

func (s *Store) GetRequestTx(ctx context.Context, tx *gorm.DB, requestID string) (*models.WeatherRequest, error) {
	return s.GetRequest(ctx, requestID)
}

func (s *Store) MarkRequestFulfilledTx(ctx context.Context, tx *gorm.DB, requestID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok || r.Fulfilled {
		return 0, nil
	}
	r.Fulfilled = true
	r.FulfilledAt = &at
	s.requests[requestID] = r
	return 1, nil
}

func (s *Store) ListPendingRequests(ctx context.Context, limit int) ([]models.WeatherRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.WeatherRequest, 0)
	for _, r := range s.requests {
		if !r.Fulfilled {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetRegistryParams(ctx context.Context) (*models.RegistryParams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.params == nil {
		return nil, nil
	}
	cp := *s.params
	return &cp, nil
}

func (s *Store) GetRegistryParamsTx(ctx context.Context, tx *gorm.DB) (*models.RegistryParams, error) {
	return s.GetRegistryParams(ctx)
}

func (s *Store) SaveRegistryParamsTx(ctx context.Context, tx *gorm.DB, params *models.RegistryParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *params
	cp.ID = models.RegistryParamsID
	s.params = &cp
	return nil
}

func (s *Store) GetOracleConfig(ctx context.Context) (*models.OracleConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.oracleCfg == nil {
		return nil, nil
	}
	cp := *s.oracleCfg
	return &cp, nil
}

func (s *Store) SaveOracleConfigTx(ctx context.Context, tx *gorm.DB, cfg *models.OracleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	cp.ID = models.OracleConfigID
	s.oracleCfg = &cp
	return nil
}

func (s *Store) InsertEventTx(ctx context.Context, tx *gorm.DB, event *models.EngineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *Store) ListEvents(ctx context.Context, params repository.ListEventsParams) ([]models.EngineEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EngineEvent, 0)
	for _, e := range s.events {
		if params.Type != nil && e.Type != *params.Type {
			continue
		}
		if params.Since != nil && e.CreatedAt.Before(*params.Since) {
			continue
		}
		out = append(out, e)
	}
	return paginate(out, params.Limit, params.Offset), nil
}

func (s *Store) DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]models.EngineEvent, 0, len(s.events))
	var removed int64
	for _, e := range s.events {
		if e.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
