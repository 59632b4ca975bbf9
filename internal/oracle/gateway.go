package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"skycover/internal/auth"
	"skycover/internal/event"
	"skycover/internal/models"
	"skycover/internal/policy"
	"skycover/internal/repository"
)

var (
	ErrRequestNotFound     = errors.New("weather request not found")
	ErrRequestNotPending   = errors.New("weather request already fulfilled")
	ErrOracleNotConfigured = errors.New("oracle identity not configured")
)

// Gateway accepts weather data requests and authenticated fulfillments from
// the configured oracle, and drives policy settlement off each fulfillment in
// the same transaction.
type Gateway struct {
	Repo     repository.Repository
	Logger   *zap.Logger
	Events   *event.Hub
	Registry *policy.Registry
	Access   policy.EvaluateAccess

	// Clock is factored for tests; nil means time.Now UTC.
	Clock func() time.Time

	mu  sync.Mutex
	seq atomic.Uint64
}

func (g *Gateway) now() time.Time {
	if g.Clock != nil {
		return g.Clock()
	}
	return time.Now().UTC()
}

// newRequestID derives a collision-resistant id from the request fields and a
// process-local counter, so concurrent identical requests stay distinct.
func (g *Gateway) newRequestID(requester, location, parameter string) string {
	seed := fmt.Sprintf("%s|%s|%s|%d|%d",
		requester, location, parameter, g.seq.Add(1), g.now().UnixNano())
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// RequestWeatherData registers a pending observation request for a location
// and parameter and returns its id.
func (g *Gateway) RequestWeatherData(ctx context.Context, requester, location, parameter string) (*models.WeatherRequest, error) {
	if strings.TrimSpace(requester) == "" || strings.TrimSpace(location) == "" {
		return nil, policy.ErrInvalidParameter
	}
	if !models.ValidParameter(parameter) {
		return nil, policy.ErrInvalidParameter
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	req := &models.WeatherRequest{
		RequestID: g.newRequestID(requester, location, parameter),
		Requester: requester,
		Location:  location,
		Parameter: parameter,
		CreatedAt: g.now(),
	}
	var emitted []models.EngineEvent
	err := g.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := g.Repo.InsertRequestTx(ctx, tx, req); err != nil {
			return err
		}
		evt, err := g.Events.Record(ctx, tx, models.EventWeatherDataRequested, map[string]any{
			"request_id": req.RequestID,
			"requester":  req.Requester,
			"location":   req.Location,
			"parameter":  req.Parameter,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.Events.Broadcast(emitted...)
	if g.Logger != nil {
		g.Logger.Info("weather data requested",
			zap.String("request_id", req.RequestID),
			zap.String("location", req.Location),
			zap.String("parameter", req.Parameter),
		)
	}
	return req, nil
}

// Fulfill records an observation for a pending request and settles every
// matching policy atomically with the fulfillment. Only the configured
// oracle subject may call it; a request that never existed or was already
// fulfilled fails with ErrRequestNotPending and changes nothing.
func (g *Gateway) Fulfill(ctx context.Context, caller, requestID string, value int64, ts time.Time) (policy.SettlementResult, error) {
	cfg, err := g.Repo.GetOracleConfig(ctx)
	if err != nil {
		return policy.SettlementResult{}, err
	}
	if cfg == nil || cfg.OracleSubject == "" {
		return policy.SettlementResult{}, ErrOracleNotConfigured
	}
	if caller != cfg.OracleSubject {
		return policy.SettlementResult{}, auth.ErrUnauthorized
	}
	return g.fulfill(ctx, requestID, value, ts)
}

// FulfillWithSignature verifies an ECDSA signature over the canonical
// fulfillment tuple against the configured oracle public key, then settles.
// It does not require the transport caller to be the oracle itself, so any
// party may relay a signed observation.
func (g *Gateway) FulfillWithSignature(ctx context.Context, requestID string, value int64, ts time.Time, sig []byte) (policy.SettlementResult, error) {
	req, err := g.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return policy.SettlementResult{}, err
	}
	if req == nil {
		return policy.SettlementResult{}, ErrRequestNotPending
	}
	if err := g.VerifySignature(ctx, requestID, req.Location, req.Parameter, value, ts, sig); err != nil {
		return policy.SettlementResult{}, err
	}
	return g.fulfill(ctx, requestID, value, ts)
}

// VerifySignature checks a fulfillment signature without mutating state.
func (g *Gateway) VerifySignature(ctx context.Context, requestID, location, parameter string, value int64, ts time.Time, sig []byte) error {
	cfg, err := g.Repo.GetOracleConfig(ctx)
	if err != nil {
		return err
	}
	if cfg == nil || cfg.OraclePublicKey == "" {
		return ErrOracleNotConfigured
	}
	pub, err := ParsePublicKey(cfg.OraclePublicKey)
	if err != nil {
		return err
	}
	return VerifyP256(pub, CanonicalTuple(requestID, location, parameter, value, ts), sig)
}

func (g *Gateway) fulfill(ctx context.Context, requestID string, value int64, ts time.Time) (policy.SettlementResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	unlock, err := g.Registry.LockFunds(g.Access)
	if err != nil {
		return policy.SettlementResult{}, err
	}
	defer unlock()

	var result policy.SettlementResult
	var emitted []models.EngineEvent
	err = g.Repo.InTx(ctx, func(tx *gorm.DB) error {
		req, err := g.Repo.GetRequestTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return ErrRequestNotPending
		}
		rows, err := g.Repo.MarkRequestFulfilledTx(ctx, tx, requestID, g.now())
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrRequestNotPending
		}
		evt, err := g.Events.Record(ctx, tx, models.EventWeatherDataFulfilled, map[string]any{
			"request_id": requestID,
			"location":   req.Location,
			"parameter":  req.Parameter,
			"value":      value,
			"observed":   ts.UTC(),
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, evt)

		settlement, settlementEvents, err := g.Registry.EvaluateTriggersTx(ctx, tx, g.Access, req.Location, req.Parameter, value, ts)
		if err != nil {
			return err
		}
		result = settlement
		emitted = append(emitted, settlementEvents...)
		return nil
	})
	if err != nil {
		return policy.SettlementResult{}, err
	}
	g.Registry.Broadcast(emitted)
	if g.Logger != nil {
		g.Logger.Info("weather data fulfilled",
			zap.String("request_id", requestID),
			zap.Int64("value", value),
			zap.Int("policies_evaluated", result.Evaluated),
			zap.Int("claims", len(result.Claims)),
			zap.String("total_payout", result.TotalPayout.String()),
		)
	}
	return result, nil
}

// GetRequest returns a request by id.
func (g *Gateway) GetRequest(ctx context.Context, requestID string) (*models.WeatherRequest, error) {
	req, err := g.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// PendingRequests lists unfulfilled requests, oldest first.
func (g *Gateway) PendingRequests(ctx context.Context, limit int) ([]models.WeatherRequest, error) {
	return g.Repo.ListPendingRequests(ctx, limit)
}

// Config returns the stored oracle identity.
func (g *Gateway) Config(ctx context.Context) (*models.OracleConfig, error) {
	return g.Repo.GetOracleConfig(ctx)
}

// EnsureIdentity seeds the oracle identity from configuration on startup.
// An identity already stored by an admin wins over the config file.
func (g *Gateway) EnsureIdentity(ctx context.Context, subject, publicKeyHex string) error {
	if strings.TrimSpace(subject) == "" {
		return nil
	}
	existing, err := g.Repo.GetOracleConfig(ctx)
	if err != nil {
		return err
	}
	if existing != nil && existing.OracleSubject != "" {
		return nil
	}
	if publicKeyHex != "" {
		if _, err := ParsePublicKey(publicKeyHex); err != nil {
			return err
		}
	}
	return g.Repo.InTx(ctx, func(tx *gorm.DB) error {
		return g.Repo.SaveOracleConfigTx(ctx, tx, &models.OracleConfig{
			OracleSubject:   subject,
			OraclePublicKey: publicKeyHex,
		})
	})
}

// SetOracleIdentity replaces the trusted oracle subject and public key. The
// key must parse as a P-256 SPKI before it is accepted.
func (g *Gateway) SetOracleIdentity(ctx context.Context, ident auth.Identity, subject, publicKeyHex string) error {
	if !ident.HasRole(auth.RoleAdmin) {
		return auth.ErrUnauthorized
	}
	if strings.TrimSpace(subject) == "" {
		return errors.New("oracle subject must not be empty")
	}
	if publicKeyHex != "" {
		if _, err := ParsePublicKey(publicKeyHex); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var emitted []models.EngineEvent
	err := g.Repo.InTx(ctx, func(tx *gorm.DB) error {
		cfg := &models.OracleConfig{
			OracleSubject:   subject,
			OraclePublicKey: publicKeyHex,
		}
		if err := g.Repo.SaveOracleConfigTx(ctx, tx, cfg); err != nil {
			return err
		}
		evt, err := g.Events.Record(ctx, tx, models.EventConfigUpdated, map[string]any{
			"setting": "oracle_identity",
			"subject": subject,
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
	g.Events.Broadcast(emitted...)
	return nil
}
