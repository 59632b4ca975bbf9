package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"skycover/internal/auth"
	"skycover/internal/policy"
)

type PolicyHandler struct {
	Registry *policy.Registry
}

func (h *PolicyHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/policies")
	group.POST("", h.create)
	group.POST("/from-template", h.createFromTemplate)
	group.GET("/quote", h.quote)
	group.GET("/templates", h.templates)
	group.GET("/mine", h.mine)
	group.GET("/mine/active", h.mineActive)
	group.GET("/claims", h.claims)
	group.GET("/:id", h.get)
	group.GET("/:id/status", h.status)
}

type createPolicyRequest struct {
	Location      string `json:"location"`
	Parameter     string `json:"parameter"`
	Operator      string `json:"operator"`
	TriggerValue  int64  `json:"trigger_value"`
	PayoutAmount  string `json:"payout_amount"`
	PremiumPaid   string `json:"premium_paid"`
	CoverageStart string `json:"coverage_start"`
	CoverageEnd   string `json:"coverage_end"`
}

// @Summary Create a parametric policy
// @Tags policies
// @Param body body handler.createPolicyRequest true "policy"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/policies [post]
func (h *PolicyHandler) create(c *gin.Context) {
	ident, ok := auth.IdentityFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "identity required", nil)
		return
	}
	var req createPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.CoverageStart))
	if err != nil {
		Error(c, http.StatusBadRequest, "coverage_start must be RFC3339", nil)
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.CoverageEnd))
	if err != nil {
		Error(c, http.StatusBadRequest, "coverage_end must be RFC3339", nil)
		return
	}
	payout, err := decimal.NewFromString(strings.TrimSpace(req.PayoutAmount))
	if err != nil {
		Error(c, http.StatusBadRequest, "payout_amount must be a decimal string", nil)
		return
	}
	premium, err := decimal.NewFromString(strings.TrimSpace(req.PremiumPaid))
	if err != nil {
		Error(c, http.StatusBadRequest, "premium_paid must be a decimal string", nil)
		return
	}
	result, err := h.Registry.CreatePolicy(c.Request.Context(), policy.CreateParams{
		Holder:       ident.Subject,
		Start:        start,
		End:          end,
		Location:     strings.TrimSpace(req.Location),
		Parameter:    strings.TrimSpace(req.Parameter),
		Operator:     strings.TrimSpace(req.Operator),
		TriggerValue: req.TriggerValue,
		PayoutAmount: payout,
		PremiumPaid:  premium,
	})
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, result, nil)
}

type createFromTemplateRequest struct {
	Template      string `json:"template"`
	Location      string `json:"location"`
	CoverageStart string `json:"coverage_start"`
	PremiumPaid   string `json:"premium_paid"`
}

// @Summary Create a policy from a named template
// @Tags policies
// @Param body body handler.createFromTemplateRequest true "template policy"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/policies/from-template [post]
func (h *PolicyHandler) createFromTemplate(c *gin.Context) {
	ident, ok := auth.IdentityFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "identity required", nil)
		return
	}
	var req createFromTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	var start time.Time
	if strings.TrimSpace(req.CoverageStart) != "" {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(req.CoverageStart))
		if err != nil {
			Error(c, http.StatusBadRequest, "coverage_start must be RFC3339", nil)
			return
		}
		start = ts
	}
	premium, err := decimal.NewFromString(strings.TrimSpace(req.PremiumPaid))
	if err != nil {
		Error(c, http.StatusBadRequest, "premium_paid must be a decimal string", nil)
		return
	}
	result, err := h.Registry.CreateFromTemplate(c.Request.Context(),
		strings.TrimSpace(req.Template), ident.Subject, strings.TrimSpace(req.Location), start, premium)
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, result, nil)
}

// @Summary Quote a premium without creating a policy
// @Tags policies
// @Param payout_amount query string true "payout amount"
// @Param duration query string true "coverage duration, e.g. 720h"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/policies/quote [get]
func (h *PolicyHandler) quote(c *gin.Context) {
	payout, err := decimal.NewFromString(strings.TrimSpace(c.Query("payout_amount")))
	if err != nil {
		Error(c, http.StatusBadRequest, "payout_amount must be a decimal string", nil)
		return
	}
	duration, err := time.ParseDuration(strings.TrimSpace(c.Query("duration")))
	if err != nil {
		Error(c, http.StatusBadRequest, "duration must be a Go duration", nil)
		return
	}
	parameter := strings.TrimSpace(c.DefaultQuery("parameter", "temperature"))
	operator := strings.TrimSpace(c.DefaultQuery("operator", "gt"))
	premium, err := h.Registry.QuotePremium(c.Request.Context(), payout, duration, parameter, operator)
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, gin.H{"premium": premium}, nil)
}

// @Summary List policy templates
// @Tags policies
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/policies/templates [get]
func (h *PolicyHandler) templates(c *gin.Context) {
	items, err := h.Registry.Templates(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, items, nil)
}

// @Summary List the caller's policies
// @Tags policies
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/policies/mine [get]
func (h *PolicyHandler) mine(c *gin.Context) {
	ident, ok := auth.IdentityFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "identity required", nil)
		return
	}
	items, total, err := h.Registry.UserPolicies(c.Request.Context(), ident.Subject,
		intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items), "total": total})
}

// @Summary List the caller's currently active policies
// @Tags policies
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/policies/mine/active [get]
func (h *PolicyHandler) mineActive(c *gin.Context) {
	ident, ok := auth.IdentityFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "identity required", nil)
		return
	}
	items, err := h.Registry.UserActivePolicies(c.Request.Context(), ident.Subject,
		intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

// @Summary List the caller's settled claims
// @Tags policies
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/policies/claims [get]
func (h *PolicyHandler) claims(c *gin.Context) {
	ident, ok := auth.IdentityFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "identity required", nil)
		return
	}
	items, err := h.Registry.UserClaims(c.Request.Context(), ident.Subject,
		intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

// @Summary Fetch a policy by id
// @Tags policies
// @Param id path int true "policy id"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/policies/{id} [get]
func (h *PolicyHandler) get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid policy id", nil)
		return
	}
	item, err := h.Registry.GetPolicy(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, item, nil)
}

// @Summary Effective policy status, accounting for coverage expiry
// @Tags policies
// @Param id path int true "policy id"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/policies/{id}/status [get]
func (h *PolicyHandler) status(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid policy id", nil)
		return
	}
	status, err := h.Registry.PolicyStatus(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, gin.H{"policy_id": id, "status": status}, nil)
}
