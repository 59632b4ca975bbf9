package policy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"skycover/internal/auth"
	"skycover/internal/config"
	"skycover/internal/event"
	"skycover/internal/ledger"
	"skycover/internal/models"
	"skycover/internal/repository"
)

var (
	ErrInvalidCoverageWindow = errors.New("invalid coverage window")
	ErrPayoutOutOfBounds     = errors.New("payout out of bounds")
	ErrInsufficientPremium   = errors.New("insufficient premium")
	ErrInvalidParameter      = errors.New("invalid parameter or operator")
	ErrPaused                = errors.New("policy creation paused")
	ErrPolicyNotFound        = errors.New("policy not found")
	ErrTemplateNotFound      = errors.New("template not found")
	ErrInvalidBasisPoints    = errors.New("basis points out of range")
	ErrReentrantCall         = errors.New("operation in progress")
)

// EvaluateAccess is the capability required to feed weather data into trigger
// evaluation. Granted once, to the oracle gateway, at wiring time.
type EvaluateAccess struct {
	token *struct{}
}

// Registry owns the policy lifecycle: creation and pricing, trigger
// evaluation and claim settlement, expiry maintenance and queries. All fund
// movement goes through the liquidity ledger under the funds capability, in
// the same transaction as the policy mutation it belongs to.
type Registry struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Events *event.Hub
	Ledger *ledger.Ledger
	Funds  ledger.FundsAccess

	// Clock is factored for tests; nil means time.Now UTC.
	Clock func() time.Time

	mu        sync.Mutex
	notifying atomic.Bool
	capToken  *struct{}
	grantOnce sync.Once
}

func (r *Registry) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

// GrantEvaluateAccess issues the trigger-evaluation capability. Meant to be
// called once from wiring; repeated calls return the same token.
func (r *Registry) GrantEvaluateAccess() EvaluateAccess {
	r.grantOnce.Do(func() { r.capToken = &struct{}{} })
	return EvaluateAccess{token: r.capToken}
}

func (r *Registry) authorize(a EvaluateAccess) error {
	if r.capToken == nil || a.token != r.capToken {
		return auth.ErrUnauthorized
	}
	return nil
}

func (r *Registry) guard() error {
	if r.notifying.Load() {
		return ErrReentrantCall
	}
	return nil
}

// LockFunds hands the ledger's funds lock to the settlement transaction
// owner. The oracle gateway holds it across its whole fulfillment
// transaction so the pool writes inside EvaluateTriggersTx serialize with
// deposits and withdrawals.
func (r *Registry) LockFunds(a EvaluateAccess) (func(), error) {
	if err := r.authorize(a); err != nil {
		return nil, err
	}
	return r.Ledger.LockFunds(r.Funds)
}

// EnsureDefaults seeds the registry parameter row and the configured policy
// templates on startup. Existing parameters are left untouched.
func (r *Registry) EnsureDefaults(ctx context.Context, cfg config.RegistryConfig) error {
	params, err := r.Repo.GetRegistryParams(ctx)
	if err != nil {
		return err
	}
	if params == nil {
		minPremium, err := decimal.NewFromString(cfg.MinPremium)
		if err != nil {
			return err
		}
		minPayout, err := decimal.NewFromString(cfg.MinPayout)
		if err != nil {
			return err
		}
		maxPayout, err := decimal.NewFromString(cfg.MaxPayout)
		if err != nil {
			return err
		}
		params = &models.RegistryParams{
			BasePremiumRateBp:  cfg.BasePremiumRateBp,
			MinPremium:         minPremium,
			MinPayout:          minPayout,
			MaxPayout:          maxPayout,
			MinCoverageSeconds: int64(cfg.MinCoveragePeriod / time.Second),
			MaxCoverageSeconds: int64(cfg.MaxCoveragePeriod / time.Second),
		}
		if err := r.Repo.InTx(ctx, func(tx *gorm.DB) error {
			return r.Repo.SaveRegistryParamsTx(ctx, tx, params)
		}); err != nil {
			return err
		}
	}
	for _, t := range cfg.Templates {
		payout, err := decimal.NewFromString(t.PayoutAmount)
		if err != nil {
			return err
		}
		item := &models.PolicyTemplate{
			Name:            t.Name,
			Parameter:       t.Parameter,
			Operator:        t.Operator,
			TriggerValue:    t.TriggerValue,
			CoverageSeconds: t.CoverageSeconds,
			PayoutAmount:    payout,
		}
		if err := r.Repo.UpsertTemplate(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

type CreateParams struct {
	Holder       string
	Start        time.Time
	End          time.Time
	Location     string
	Parameter    string
	Operator     string
	TriggerValue int64
	PayoutAmount decimal.Decimal
	PremiumPaid  decimal.Decimal
}

type CreateResult struct {
	Policy         models.Policy   `json:"policy"`
	PremiumCharged decimal.Decimal `json:"premium_charged"`
	Refund         decimal.Decimal `json:"refund"`
}

// CreatePolicy validates, prices and stores a policy, then moves the premium
// into the pool and pushes the recomputed liability in the same transaction.
// Overpayment never enters the pool and is reported back as a refund.
func (r *Registry) CreatePolicy(ctx context.Context, p CreateParams) (CreateResult, error) {
	if err := r.guard(); err != nil {
		return CreateResult{}, err
	}
	if strings.TrimSpace(p.Holder) == "" || strings.TrimSpace(p.Location) == "" {
		return CreateResult{}, ErrInvalidParameter
	}
	if !models.ValidParameter(p.Parameter) || !models.ValidOperator(p.Operator) {
		return CreateResult{}, ErrInvalidParameter
	}
	now := r.now()
	if !p.Start.After(now) {
		return CreateResult{}, ErrInvalidCoverageWindow
	}
	if !p.End.After(p.Start) {
		return CreateResult{}, ErrInvalidCoverageWindow
	}

	unlock, err := r.Ledger.LockFunds(r.Funds)
	if err != nil {
		return CreateResult{}, err
	}
	defer unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	var result CreateResult
	var emitted []models.EngineEvent
	err = r.Repo.InTx(ctx, func(tx *gorm.DB) error {
		params, err := r.Repo.GetRegistryParamsTx(ctx, tx)
		if err != nil {
			return err
		}
		if params == nil {
			return errors.New("registry params missing")
		}
		if params.Paused {
			return ErrPaused
		}
		duration := p.End.Sub(p.Start)
		secs := int64(duration / time.Second)
		if secs < params.MinCoverageSeconds || secs > params.MaxCoverageSeconds {
			return ErrInvalidCoverageWindow
		}
		if p.PayoutAmount.LessThan(params.MinPayout) || p.PayoutAmount.GreaterThan(params.MaxPayout) {
			return ErrPayoutOutOfBounds
		}
		premium := ComputePremium(p.PayoutAmount, duration, params.BasePremiumRateBp, params.MinPremium)
		if p.PremiumPaid.LessThan(premium) {
			return ErrInsufficientPremium
		}

		policy := models.Policy{
			Holder:        p.Holder,
			Location:      p.Location,
			Parameter:     p.Parameter,
			Operator:      p.Operator,
			TriggerValue:  p.TriggerValue,
			Premium:       premium,
			PayoutAmount:  p.PayoutAmount,
			Status:        models.PolicyStatusActive,
			CoverageStart: p.Start.UTC(),
			CoverageEnd:   p.End.UTC(),
		}
		if err := r.Repo.InsertPolicyTx(ctx, tx, &policy); err != nil {
			return err
		}
		if err := r.Ledger.TransferPremiumTx(ctx, tx, r.Funds, premium); err != nil {
			return err
		}
		if err := r.recomputeLiabilityTx(ctx, tx, now); err != nil {
			return err
		}
		evt, err := r.Events.Record(ctx, tx, models.EventPolicyCreated, map[string]any{
			"policy_id":      policy.ID,
			"holder":         policy.Holder,
			"premium":        premium,
			"payout_amount":  policy.PayoutAmount,
			"coverage_start": policy.CoverageStart,
			"coverage_end":   policy.CoverageEnd,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, evt)
		result = CreateResult{
			Policy:         policy,
			PremiumCharged: premium,
			Refund:         p.PremiumPaid.Sub(premium),
		}
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}
	r.broadcast(emitted)
	if r.Logger != nil {
		r.Logger.Info("policy created",
			zap.Uint64("policy_id", result.Policy.ID),
			zap.String("holder", result.Policy.Holder),
			zap.String("premium", result.PremiumCharged.String()),
		)
	}
	return result, nil
}

// CreateFromTemplate resolves defaults from a named template and delegates to
// CreatePolicy. A zero start means one hour from now.
func (r *Registry) CreateFromTemplate(ctx context.Context, templateName, holder, location string, start time.Time, premiumPaid decimal.Decimal) (CreateResult, error) {
	t, err := r.Repo.GetTemplate(ctx, templateName)
	if err != nil {
		return CreateResult{}, err
	}
	if t == nil {
		return CreateResult{}, ErrTemplateNotFound
	}
	if start.IsZero() {
		start = r.now().Add(time.Hour)
	}
	return r.CreatePolicy(ctx, CreateParams{
		Holder:       holder,
		Start:        start,
		End:          start.Add(time.Duration(t.CoverageSeconds) * time.Second),
		Location:     location,
		Parameter:    t.Parameter,
		Operator:     t.Operator,
		TriggerValue: t.TriggerValue,
		PayoutAmount: t.PayoutAmount,
		PremiumPaid:  premiumPaid,
	})
}

// QuotePremium prices coverage against the current rate configuration
// without touching any state.
func (r *Registry) QuotePremium(ctx context.Context, payout decimal.Decimal, duration time.Duration, parameter, operator string) (decimal.Decimal, error) {
	if !models.ValidParameter(parameter) || !models.ValidOperator(operator) {
		return decimal.Zero, ErrInvalidParameter
	}
	params, err := r.Repo.GetRegistryParams(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if params == nil {
		return decimal.Zero, errors.New("registry params missing")
	}
	return ComputePremium(payout, duration, params.BasePremiumRateBp, params.MinPremium), nil
}

type ClaimOutcome struct {
	PolicyID uint64          `json:"policy_id"`
	Holder   string          `json:"holder"`
	Payout   decimal.Decimal `json:"payout"`
}

type SettlementResult struct {
	Evaluated   int             `json:"evaluated"`
	Claims      []ClaimOutcome  `json:"claims"`
	TotalPayout decimal.Decimal `json:"total_payout"`
}

// EvaluateTriggersTx settles every matching active policy whose condition
// holds for the reported value. Runs inside the oracle gateway's transaction
// so fulfillment and settlement commit together; the transaction owner holds
// the funds lock obtained from LockFunds until that transaction commits.
// Policies already claimed are skipped, so re-delivery of the same data is a
// no-op.
func (r *Registry) EvaluateTriggersTx(ctx context.Context, tx *gorm.DB, a EvaluateAccess, location, parameter string, value int64, ts time.Time) (SettlementResult, []models.EngineEvent, error) {
	if err := r.authorize(a); err != nil {
		return SettlementResult{}, nil, err
	}
	if err := r.guard(); err != nil {
		return SettlementResult{}, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	result := SettlementResult{TotalPayout: decimal.Zero}
	var emitted []models.EngineEvent
	policies, err := r.Repo.ListActivePoliciesForEvaluationTx(ctx, tx, location, parameter, ts)
	if err != nil {
		return SettlementResult{}, nil, err
	}
	result.Evaluated = len(policies)
	for _, p := range policies {
		if !Triggered(p.Operator, value, p.TriggerValue) {
			continue
		}
		rows, err := r.Repo.UpdatePolicyStatusTx(ctx, tx, p.ID, models.PolicyStatusActive, models.PolicyStatusClaimed)
		if err != nil {
			return SettlementResult{}, nil, err
		}
		if rows == 0 {
			// Lost the race to an earlier settlement; idempotent skip.
			continue
		}
		claim := models.Claim{
			PolicyID:      p.ID,
			Holder:        p.Holder,
			PayoutAmount:  p.PayoutAmount,
			ObservedValue: value,
			SettledAt:     ts.UTC(),
		}
		if err := r.Repo.InsertClaimTx(ctx, tx, &claim); err != nil {
			return SettlementResult{}, nil, err
		}
		if err := r.Ledger.TransferPayoutTx(ctx, tx, r.Funds, p.Holder, p.PayoutAmount); err != nil {
			return SettlementResult{}, nil, err
		}
		evt, err := r.Events.Record(ctx, tx, models.EventClaimProcessed, map[string]any{
			"policy_id":      p.ID,
			"holder":         p.Holder,
			"payout_amount":  p.PayoutAmount,
			"observed_value": value,
			"settled_at":     claim.SettledAt,
		})
		if err != nil {
			return SettlementResult{}, nil, err
		}
		emitted = append(emitted, evt)
		result.Claims = append(result.Claims, ClaimOutcome{PolicyID: p.ID, Holder: p.Holder, Payout: p.PayoutAmount})
		result.TotalPayout = result.TotalPayout.Add(p.PayoutAmount)
	}
	if err := r.recomputeLiabilityTx(ctx, tx, r.now()); err != nil {
		return SettlementResult{}, nil, err
	}
	return result, emitted, nil
}

// ExpirePolicies transitions due active policies to expired and recomputes
// liability. Safe to re-run; non-due and non-active ids are skipped.
func (r *Registry) ExpirePolicies(ctx context.Context, ids []uint64) (int, error) {
	if err := r.guard(); err != nil {
		return 0, err
	}
	unlock, err := r.Ledger.LockFunds(r.Funds)
	if err != nil {
		return 0, err
	}
	defer unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	expired := 0
	var emitted []models.EngineEvent
	err = r.Repo.InTx(ctx, func(tx *gorm.DB) error {
		for _, id := range ids {
			p, err := r.Repo.GetPolicyTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if p == nil || p.Status != models.PolicyStatusActive || !p.CoverageEnd.Before(now) {
				continue
			}
			rows, err := r.Repo.UpdatePolicyStatusTx(ctx, tx, id, models.PolicyStatusActive, models.PolicyStatusExpired)
			if err != nil {
				return err
			}
			if rows == 0 {
				continue
			}
			evt, err := r.Events.Record(ctx, tx, models.EventPolicyExpired, map[string]any{
				"policy_id": id,
				"holder":    p.Holder,
			})
			if err != nil {
				return err
			}
			emitted = append(emitted, evt)
			expired++
		}
		if expired == 0 {
			return nil
		}
		return r.recomputeLiabilityTx(ctx, tx, now)
	})
	if err != nil {
		return 0, err
	}
	r.broadcast(emitted)
	return expired, nil
}

// recomputeLiabilityTx pushes the from-scratch liability sum into the ledger.
func (r *Registry) recomputeLiabilityTx(ctx context.Context, tx *gorm.DB, asOf time.Time) error {
	sum, err := r.Repo.SumActiveLiabilityTx(ctx, tx, asOf)
	if err != nil {
		return err
	}
	return r.Ledger.UpdateLiabilityTx(ctx, tx, r.Funds, sum)
}

// GetPolicy returns the stored policy record.
func (r *Registry) GetPolicy(ctx context.Context, id uint64) (*models.Policy, error) {
	p, err := r.Repo.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPolicyNotFound
	}
	return p, nil
}

// PolicyStatus reports expired for a past-window active policy even before
// the maintenance sweep has stored the transition.
func (r *Registry) PolicyStatus(ctx context.Context, id uint64) (string, error) {
	p, err := r.GetPolicy(ctx, id)
	if err != nil {
		return "", err
	}
	if p.Status == models.PolicyStatusActive && r.now().After(p.CoverageEnd) {
		return models.PolicyStatusExpired, nil
	}
	return p.Status, nil
}

// UserPolicies lists the holder's policies along with the unpaginated total.
func (r *Registry) UserPolicies(ctx context.Context, holder string, limit, offset int) ([]models.Policy, int64, error) {
	params := repository.ListPoliciesParams{
		Holder: holder,
		Limit:  limit,
		Offset: offset,
	}
	items, err := r.Repo.ListPoliciesByHolder(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.Repo.CountPoliciesByHolder(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UserActivePolicies filters to status active and current time inside the
// coverage window.
func (r *Registry) UserActivePolicies(ctx context.Context, holder string, limit, offset int) ([]models.Policy, error) {
	status := models.PolicyStatusActive
	items, err := r.Repo.ListPoliciesByHolder(ctx, repository.ListPoliciesParams{
		Holder: holder,
		Status: &status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}
	now := r.now()
	out := make([]models.Policy, 0, len(items))
	for _, p := range items {
		if now.Before(p.CoverageStart) || now.After(p.CoverageEnd) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *Registry) UserClaims(ctx context.Context, holder string, limit, offset int) ([]models.Claim, error) {
	return r.Repo.ListClaimsByHolder(ctx, holder, limit, offset)
}

func (r *Registry) Params(ctx context.Context) (*models.RegistryParams, error) {
	return r.Repo.GetRegistryParams(ctx)
}

func (r *Registry) Templates(ctx context.Context) ([]models.PolicyTemplate, error) {
	return r.Repo.ListTemplates(ctx)
}

type ParameterLimits struct {
	MinPremium  decimal.Decimal
	MinPayout   decimal.Decimal
	MaxPayout   decimal.Decimal
	MinCoverage time.Duration
	MaxCoverage time.Duration
}

// SetParameterLimits replaces the validation bounds for new policies.
func (r *Registry) SetParameterLimits(ctx context.Context, ident auth.Identity, limits ParameterLimits) error {
	if !ident.HasRole(auth.RoleAdmin) {
		return auth.ErrUnauthorized
	}
	if limits.MinPayout.IsNegative() || limits.MaxPayout.LessThan(limits.MinPayout) {
		return ErrPayoutOutOfBounds
	}
	if limits.MinCoverage <= 0 || limits.MaxCoverage < limits.MinCoverage {
		return ErrInvalidCoverageWindow
	}
	return r.updateParams(ctx, ident, "parameter_limits", func(params *models.RegistryParams) error {
		params.MinPremium = limits.MinPremium
		params.MinPayout = limits.MinPayout
		params.MaxPayout = limits.MaxPayout
		params.MinCoverageSeconds = int64(limits.MinCoverage / time.Second)
		params.MaxCoverageSeconds = int64(limits.MaxCoverage / time.Second)
		return nil
	})
}

// SetBasePremiumRate replaces the base rate; rates above 100% are rejected.
func (r *Registry) SetBasePremiumRate(ctx context.Context, ident auth.Identity, bp int64) error {
	if !ident.HasRole(auth.RoleAdmin) {
		return auth.ErrUnauthorized
	}
	if bp < 0 || bp > 10000 {
		return ErrInvalidBasisPoints
	}
	return r.updateParams(ctx, ident, "base_premium_rate_bp", func(params *models.RegistryParams) error {
		params.BasePremiumRateBp = bp
		return nil
	})
}

// Pause blocks new policy creation. Settlement and expiry of existing
// exposure keep working while paused.
func (r *Registry) Pause(ctx context.Context, ident auth.Identity) error {
	if !ident.HasRole(auth.RoleAdmin) {
		return auth.ErrUnauthorized
	}
	return r.updateParams(ctx, ident, "paused", func(params *models.RegistryParams) error {
		params.Paused = true
		return nil
	})
}

func (r *Registry) Unpause(ctx context.Context, ident auth.Identity) error {
	if !ident.HasRole(auth.RoleAdmin) {
		return auth.ErrUnauthorized
	}
	return r.updateParams(ctx, ident, "unpaused", func(params *models.RegistryParams) error {
		params.Paused = false
		return nil
	})
}

func (r *Registry) updateParams(ctx context.Context, ident auth.Identity, setting string, mutate func(*models.RegistryParams) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var emitted []models.EngineEvent
	err := r.Repo.InTx(ctx, func(tx *gorm.DB) error {
		params, err := r.Repo.GetRegistryParamsTx(ctx, tx)
		if err != nil {
			return err
		}
		if params == nil {
			params = &models.RegistryParams{}
		}
		if err := mutate(params); err != nil {
			return err
		}
		if err := r.Repo.SaveRegistryParamsTx(ctx, tx, params); err != nil {
			return err
		}
		evt, err := r.Events.Record(ctx, tx, models.EventConfigUpdated, map[string]any{
			"setting": setting,
			"by":      ident.Subject,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, evt)
		return nil
	})
	if err != nil {
		return err
	}
	r.broadcast(emitted)
	return nil
}

// Broadcast exposes post-commit fanout for callers that drove a settlement
// through EvaluateTriggersTx inside their own transaction.
func (r *Registry) Broadcast(events []models.EngineEvent) {
	r.broadcast(events)
}

func (r *Registry) broadcast(events []models.EngineEvent) {
	if len(events) == 0 || r.Events == nil {
		return
	}
	r.notifying.Store(true)
	defer r.notifying.Store(false)
	r.Events.Broadcast(events...)
}
