package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"skycover/internal/models"
)

type ListPoliciesParams struct {
	Holder string
	Status *string
	Limit  int
	Offset int
}

type ListEventsParams struct {
	Type   *string
	Since  *time.Time
	Limit  int
	Offset int
}

// Repository is the storage surface shared by the three engine components.
// Methods with a Tx suffix run inside a caller-owned transaction opened with
// InTx; the rest are single-statement reads or standalone writes.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Liquidity ledger state.
	GetPoolState(ctx context.Context) (*models.PoolState, error)
	GetPoolStateTx(ctx context.Context, tx *gorm.DB) (*models.PoolState, error)
	SavePoolStateTx(ctx context.Context, tx *gorm.DB, state *models.PoolState) error
	GetPosition(ctx context.Context, provider string) (*models.LiquidityPosition, error)
	GetPositionTx(ctx context.Context, tx *gorm.DB, provider string) (*models.LiquidityPosition, error)
	SavePositionTx(ctx context.Context, tx *gorm.DB, pos *models.LiquidityPosition) error
	ListPositions(ctx context.Context, limit, offset int) ([]models.LiquidityPosition, error)

	// Policies and claims.
	InsertPolicyTx(ctx context.Context, tx *gorm.DB, policy *models.Policy) error
	GetPolicy(ctx context.Context, id uint64) (*models.Policy, error)
	GetPolicyTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Policy, error)
	UpdatePolicyStatusTx(ctx context.Context, tx *gorm.DB, id uint64, from, to string) (int64, error)
	ListPoliciesByHolder(ctx context.Context, params ListPoliciesParams) ([]models.Policy, error)
	CountPoliciesByHolder(ctx context.Context, params ListPoliciesParams) (int64, error)
	ListActivePoliciesForEvaluationTx(ctx context.Context, tx *gorm.DB, location, parameter string, at time.Time) ([]models.Policy, error)
	ListDueActivePolicyIDs(ctx context.Context, asOf time.Time, limit int) ([]uint64, error)
	SumActiveLiabilityTx(ctx context.Context, tx *gorm.DB, asOf time.Time) (decimal.Decimal, error)
	InsertClaimTx(ctx context.Context, tx *gorm.DB, claim *models.Claim) error
	ListClaimsByHolder(ctx context.Context, holder string, limit, offset int) ([]models.Claim, error)

	// Templates.
	UpsertTemplate(ctx context.Context, item *models.PolicyTemplate) error
	GetTemplate(ctx context.Context, name string) (*models.PolicyTemplate, error)
	ListTemplates(ctx context.Context) ([]models.PolicyTemplate, error)

	// Oracle requests.
	InsertRequestTx(ctx context.Context, tx *gorm.DB, req *models.WeatherRequest) error
	GetRequest(ctx context.Context, requestID string) (*models.WeatherRequest, error)
	GetRequestTx(ctx context.Context, tx *gorm.DB, requestID string) (*models.WeatherRequest, error)
	MarkRequestFulfilledTx(ctx context.Context, tx *gorm.DB, requestID string, at time.Time) (int64, error)
	ListPendingRequests(ctx context.Context, limit int) ([]models.WeatherRequest, error)

	// Engine configuration singletons.
	GetRegistryParams(ctx context.Context) (*models.RegistryParams, error)
	GetRegistryParamsTx(ctx context.Context, tx *gorm.DB) (*models.RegistryParams, error)
	SaveRegistryParamsTx(ctx context.Context, tx *gorm.DB, params *models.RegistryParams) error
	GetOracleConfig(ctx context.Context) (*models.OracleConfig, error)
	SaveOracleConfigTx(ctx context.Context, tx *gorm.DB, cfg *models.OracleConfig) error

	// Event log.
	InsertEventTx(ctx context.Context, tx *gorm.DB, event *models.EngineEvent) error
	ListEvents(ctx context.Context, params ListEventsParams) ([]models.EngineEvent, error)
	DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error)
}
