package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"skycover/internal/auth"
	"skycover/internal/ledger"
	"skycover/internal/oracle"
	"skycover/internal/policy"
)

type AdminHandler struct {
	Ledger   *ledger.Ledger
	Registry *policy.Registry
	Gateway  *oracle.Gateway
	JWT      auth.JWT
}

func (h *AdminHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/admin", auth.RequireRole(auth.RoleAdmin))
	group.GET("/registry/params", h.params)
	group.PUT("/registry/limits", h.setLimits)
	group.PUT("/registry/premium-rate", h.setPremiumRate)
	group.POST("/registry/pause", h.pause)
	group.POST("/registry/unpause", h.unpause)
	group.PUT("/pool/yield-rate", h.setYieldRate)
	group.GET("/oracle/identity", h.oracleIdentity)
	group.PUT("/oracle/identity", h.setOracleIdentity)
	group.POST("/auth/tokens", h.mintToken)
}

// @Summary Current registry parameters
// @Tags admin
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/admin/registry/params [get]
func (h *AdminHandler) params(c *gin.Context) {
	params, err := h.Registry.Params(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, params, nil)
}

type setLimitsRequest struct {
	MinPremium  string `json:"min_premium"`
	MinPayout   string `json:"min_payout"`
	MaxPayout   string `json:"max_payout"`
	MinCoverage string `json:"min_coverage"` // Go duration, e.g. "24h"
	MaxCoverage string `json:"max_coverage"`
}

// @Summary Replace policy validation bounds
// @Tags admin
// @Param body body handler.setLimitsRequest true "limits"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/admin/registry/limits [put]
func (h *AdminHandler) setLimits(c *gin.Context) {
	ident, _ := auth.IdentityFrom(c)
	var req setLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	minPremium, err := decimal.NewFromString(strings.TrimSpace(req.MinPremium))
	if err != nil {
		Error(c, http.StatusBadRequest, "min_premium must be a decimal string", nil)
		return
	}
	minPayout, err := decimal.NewFromString(strings.TrimSpace(req.MinPayout))
	if err != nil {
		Error(c, http.StatusBadRequest, "min_payout must be a decimal string", nil)
		return
	}
	maxPayout, err := decimal.NewFromString(strings.TrimSpace(req.MaxPayout))
	if err != nil {
		Error(c, http.StatusBadRequest, "max_payout must be a decimal string", nil)
		return
	}
	minCoverage, err := time.ParseDuration(strings.TrimSpace(req.MinCoverage))
	if err != nil {
		Error(c, http.StatusBadRequest, "min_coverage must be a Go duration", nil)
		return
	}
	maxCoverage, err := time.ParseDuration(strings.TrimSpace(req.MaxCoverage))
	if err != nil {
		Error(c, http.StatusBadRequest, "max_coverage must be a Go duration", nil)
		return
	}
	if err := h.Registry.SetParameterLimits(c.Request.Context(), ident, policy.ParameterLimits{
		MinPremium:  minPremium,
		MinPayout:   minPayout,
		MaxPayout:   maxPayout,
		MinCoverage: minCoverage,
		MaxCoverage: maxCoverage,
	}); err != nil {
		failWith(c, err)
		return
	}
	Ok(c, gin.H{"updated": true}, nil)
}

type setRateRequest struct {
	Bp int64 `json:"bp"`
}

// @Summary Replace the base premium rate (basis points)
// @Tags admin
// @Param body body handler.setRateRequest true "rate"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/admin/registry/premium-rate [put]
func (h *AdminHandler) setPremiumRate(c *gin.Context) {
	ident, _ := auth.IdentityFrom(c)
	var req setRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Registry.SetBasePremiumRate(c.Request.Context(), ident, req.Bp); err != nil {
		failWith(c, err)
		return
	}
	Ok(c, gin.H{"updated": true}, nil)
}

// @Summary Pause new policy creation
// @Tags admin
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/admin/registry/pause [post]
func (h *AdminHandler) pause(c *gin.Context) {
	ident, _ := auth.IdentityFrom(c)
	if err := h.Registry.Pause(c.Request.Context(), ident); err != nil {
		failWith(c, err)
		return
	}
	Ok(c, gin.H{"paused": true}, nil)
}

// @Summary Resume policy creation
// @Tags admin
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/admin/registry/unpause [post]
func (h *AdminHandler) unpause(c *gin.Context) {
	ident, _ := auth.IdentityFrom(c)
	if err := h.Registry.Unpause(c.Request.Context(), ident); err != nil {
		failWith(c, err)
		return
	}
	Ok(c, gin.H{"paused": false}, nil)
}

// @Summary Replace the provider yield rate (basis points)
// @Tags admin
// @Param body body handler.setRateRequest true "rate"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/admin/pool/yield-rate [put]
func (h *AdminHandler) setYieldRate(c *gin.Context) {
	ident, _ := auth.IdentityFrom(c)
	var req setRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Ledger.SetYieldBp(c.Request.Context(), ident, req.Bp); err != nil {
		failWith(c, err)
		return
	}
	Ok(c, gin.H{"updated": true}, nil)
}

// @Summary Current trusted oracle identity
// @Tags admin
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/admin/oracle/identity [get]
func (h *AdminHandler) oracleIdentity(c *gin.Context) {
	cfg, err := h.Gateway.Config(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, cfg, nil)
}

type setOracleRequest struct {
	Subject   string `json:"subject"`
	PublicKey string `json:"public_key"` // hex DER SPKI, P-256
}

// @Summary Replace the trusted oracle subject and public key
// @Tags admin
// @Param body body handler.setOracleRequest true "oracle identity"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/admin/oracle/identity [put]
func (h *AdminHandler) setOracleIdentity(c *gin.Context) {
	ident, _ := auth.IdentityFrom(c)
	var req setOracleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Gateway.SetOracleIdentity(c.Request.Context(), ident,
		strings.TrimSpace(req.Subject), strings.TrimSpace(req.PublicKey)); err != nil {
		failWith(c, err)
		return
	}
	Ok(c, gin.H{"updated": true}, nil)
}

type mintTokenRequest struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles"`
}

// @Summary Mint an access token for a subject
// @Tags admin
// @Param body body handler.mintTokenRequest true "token request"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/admin/auth/tokens [post]
func (h *AdminHandler) mintToken(c *gin.Context) {
	var req mintTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		Error(c, http.StatusBadRequest, "subject required", nil)
		return
	}
	token, expiresAt, err := h.JWT.Sign(subject, req.Roles)
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, gin.H{"token": token, "expires_at": expiresAt}, nil)
}
