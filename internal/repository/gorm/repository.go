package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"skycover/internal/models"
	"skycover/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- liquidity ledger --------------------------------------------------------

func (s *Store) GetPoolState(ctx context.Context) (*models.PoolState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return getPoolState(s.db.WithContext(ctx))
}

func (s *Store) GetPoolStateTx(ctx context.Context, tx *gorm.DB) (*models.PoolState, error) {
	return getPoolState(tx.WithContext(ctx))
}

func getPoolState(db *gorm.DB) (*models.PoolState, error) {
	var state models.PoolState
	err := db.Where("id = ?", models.PoolStateID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.PoolState{ID: models.PoolStateID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SavePoolStateTx(ctx context.Context, tx *gorm.DB, state *models.PoolState) error {
	if state == nil {
		return nil
	}
	state.ID = models.PoolStateID
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(state).Error
}

func (s *Store) GetPosition(ctx context.Context, provider string) (*models.LiquidityPosition, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return getPosition(s.db.WithContext(ctx), provider)
}

func (s *Store) GetPositionTx(ctx context.Context, tx *gorm.DB, provider string) (*models.LiquidityPosition, error) {
	return getPosition(tx.WithContext(ctx), provider)
}

func getPosition(db *gorm.DB, provider string) (*models.LiquidityPosition, error) {
	var pos models.LiquidityPosition
	err := db.Where("provider = ?", provider).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (s *Store) SavePositionTx(ctx context.Context, tx *gorm.DB, pos *models.LiquidityPosition) error {
	if pos == nil || strings.TrimSpace(pos.Provider) == "" {
		return nil
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		UpdateAll: true,
	}).Create(pos).Error
}

func (s *Store) ListPositions(ctx context.Context, limit, offset int) ([]models.LiquidityPosition, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.LiquidityPosition
	err := s.db.WithContext(ctx).
		Model(&models.LiquidityPosition{}).
		Where("shares > 0").
		Order("provider asc").
		Limit(normalizeLimit(limit, 200)).
		Offset(normalizeOffset(offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- policies and claims -----------------------------------------------------

func (s *Store) InsertPolicyTx(ctx context.Context, tx *gorm.DB, policy *models.Policy) error {
	if policy == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(policy).Error
}

func (s *Store) GetPolicy(ctx context.Context, id uint64) (*models.Policy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return getPolicy(s.db.WithContext(ctx), id)
}

func (s *Store) GetPolicyTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Policy, error) {
	return getPolicy(tx.WithContext(ctx), id)
}

func getPolicy(db *gorm.DB, id uint64) (*models.Policy, error) {
	var policy models.Policy
	err := db.Where("id = ?", id).First(&policy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

// UpdatePolicyStatusTx performs a guarded transition; zero rows affected means
// the policy was no longer in the expected source state.
func (s *Store) UpdatePolicyStatusTx(ctx context.Context, tx *gorm.DB, id uint64, from, to string) (int64, error) {
	res := tx.WithContext(ctx).
		Model(&models.Policy{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

func (s *Store) ListPoliciesByHolder(ctx context.Context, params repository.ListPoliciesParams) ([]models.Policy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.policyQuery(ctx, params).Order("created_at desc")
	var items []models.Policy
	if err := query.
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPoliciesByHolder(ctx context.Context, params repository.ListPoliciesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.policyQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) policyQuery(ctx context.Context, params repository.ListPoliciesParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Policy{})
	if strings.TrimSpace(params.Holder) != "" {
		query = query.Where("holder = ?", strings.TrimSpace(params.Holder))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	return query
}

func (s *Store) ListActivePoliciesForEvaluationTx(ctx context.Context, tx *gorm.DB, location, parameter string, at time.Time) ([]models.Policy, error) {
	var items []models.Policy
	err := tx.WithContext(ctx).
		Model(&models.Policy{}).
		Where("status = ?", models.PolicyStatusActive).
		Where("location = ? AND parameter = ?", location, parameter).
		Where("coverage_start <= ? AND coverage_end >= ?", at, at).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListDueActivePolicyIDs(ctx context.Context, asOf time.Time, limit int) ([]uint64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ids []uint64
	err := s.db.WithContext(ctx).
		Model(&models.Policy{}).
		Where("status = ? AND coverage_end < ?", models.PolicyStatusActive, asOf).
		Order("id asc").
		Limit(normalizeLimit(limit, 500)).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) SumActiveLiabilityTx(ctx context.Context, tx *gorm.DB, asOf time.Time) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := tx.WithContext(ctx).
		Model(&models.Policy{}).
		Select("COALESCE(SUM(payout_amount), 0) AS total").
		Where("status = ? AND coverage_end > ?", models.PolicyStatusActive, asOf).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func (s *Store) InsertClaimTx(ctx context.Context, tx *gorm.DB, claim *models.Claim) error {
	if claim == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(claim).Error
}

func (s *Store) ListClaimsByHolder(ctx context.Context, holder string, limit, offset int) ([]models.Claim, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Claim
	err := s.db.WithContext(ctx).
		Model(&models.Claim{}).
		Where("holder = ?", strings.TrimSpace(holder)).
		Order("settled_at asc").
		Limit(normalizeLimit(limit, 100)).
		Offset(normalizeOffset(offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- templates ---------------------------------------------------------------

func (s *Store) UpsertTemplate(ctx context.Context, item *models.PolicyTemplate) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Name) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(item).Error
}

func (s *Store) GetTemplate(ctx context.Context, name string) (*models.PolicyTemplate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.PolicyTemplate
	err := s.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]models.PolicyTemplate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.PolicyTemplate
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- oracle requests ---------------------------------------------------------

func (s *Store) InsertRequestTx(ctx context.Context, tx *gorm.DB, req *models.WeatherRequest) error {
	if req == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(req).Error
}

func (s *Store) GetRequest(ctx context.Context, requestID string) (*models.WeatherRequest, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return getRequest(s.db.WithContext(ctx), requestID)
}

func (s *Store) GetRequestTx(ctx context.Context, tx *gorm.DB, requestID string) (*models.WeatherRequest, error) {
	return getRequest(tx.WithContext(ctx), requestID)
}

func getRequest(db *gorm.DB, requestID string) (*models.WeatherRequest, error) {
	var req models.WeatherRequest
	err := db.Where("request_id = ?", requestID).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// MarkRequestFulfilledTx flips the fulfilled flag; zero rows affected means
// the request was missing or already fulfilled.
func (s *Store) MarkRequestFulfilledTx(ctx context.Context, tx *gorm.DB, requestID string, at time.Time) (int64, error) {
	res := tx.WithContext(ctx).
		Model(&models.WeatherRequest{}).
		Where("request_id = ? AND fulfilled = ?", requestID, false).
		Updates(map[string]any{"fulfilled": true, "fulfilled_at": at})
	return res.RowsAffected, res.Error
}

func (s *Store) ListPendingRequests(ctx context.Context, limit int) ([]models.WeatherRequest, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.WeatherRequest
	err := s.db.WithContext(ctx).
		Model(&models.WeatherRequest{}).
		Where("fulfilled = ?", false).
		Order("created_at asc").
		Limit(normalizeLimit(limit, 100)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- configuration singletons ------------------------------------------------

func (s *Store) GetRegistryParams(ctx context.Context) (*models.RegistryParams, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return getRegistryParams(s.db.WithContext(ctx))
}

func (s *Store) GetRegistryParamsTx(ctx context.Context, tx *gorm.DB) (*models.RegistryParams, error) {
	return getRegistryParams(tx.WithContext(ctx))
}

func getRegistryParams(db *gorm.DB) (*models.RegistryParams, error) {
	var params models.RegistryParams
	err := db.Where("id = ?", models.RegistryParamsID).First(&params).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &params, nil
}

func (s *Store) SaveRegistryParamsTx(ctx context.Context, tx *gorm.DB, params *models.RegistryParams) error {
	if params == nil {
		return nil
	}
	params.ID = models.RegistryParamsID
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(params).Error
}

func (s *Store) GetOracleConfig(ctx context.Context) (*models.OracleConfig, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var cfg models.OracleConfig
	err := s.db.WithContext(ctx).Where("id = ?", models.OracleConfigID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) SaveOracleConfigTx(ctx context.Context, tx *gorm.DB, cfg *models.OracleConfig) error {
	if cfg == nil {
		return nil
	}
	cfg.ID = models.OracleConfigID
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(cfg).Error
}

// --- event log ---------------------------------------------------------------

func (s *Store) InsertEventTx(ctx context.Context, tx *gorm.DB, event *models.EngineEvent) error {
	if event == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(event).Error
}

func (s *Store) ListEvents(ctx context.Context, params repository.ListEventsParams) ([]models.EngineEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.EngineEvent{})
	if params.Type != nil && strings.TrimSpace(*params.Type) != "" {
		query = query.Where("type = ?", strings.TrimSpace(*params.Type))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	var items []models.EngineEvent
	err := query.
		Order("created_at desc").
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.EngineEvent{})
	return res.RowsAffected, res.Error
}

// --- helpers -----------------------------------------------------------------

func normalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
