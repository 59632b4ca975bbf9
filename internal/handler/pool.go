package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"skycover/internal/auth"
	"skycover/internal/ledger"
)

type PoolHandler struct {
	Ledger *ledger.Ledger
}

func (h *PoolHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/pool")
	group.GET("/stats", h.stats)
	group.POST("/deposits", h.deposit)
	group.POST("/withdrawals", h.withdraw)
	group.GET("/position", h.position)
	group.GET("/positions", h.positions)
	group.GET("/yield", h.yield)
}

// @Summary Pool statistics
// @Tags pool
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/pool/stats [get]
func (h *PoolHandler) stats(c *gin.Context) {
	stats, err := h.Ledger.PoolStats(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, stats, nil)
}

type depositRequest struct {
	Amount string `json:"amount"`
}

// @Summary Deposit liquidity for the authenticated provider
// @Tags pool
// @Param body body handler.depositRequest true "deposit"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/pool/deposits [post]
func (h *PoolHandler) deposit(c *gin.Context) {
	ident, ok := auth.IdentityFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "identity required", nil)
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		Error(c, http.StatusBadRequest, "amount must be a decimal string", nil)
		return
	}
	shares, err := h.Ledger.Deposit(c.Request.Context(), ident.Subject, amount)
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, gin.H{"provider": ident.Subject, "shares_minted": shares}, nil)
}

type withdrawRequest struct {
	Shares string `json:"shares"`
}

// @Summary Redeem pool shares for the authenticated provider
// @Tags pool
// @Param body body handler.withdrawRequest true "withdrawal"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/pool/withdrawals [post]
func (h *PoolHandler) withdraw(c *gin.Context) {
	ident, ok := auth.IdentityFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "identity required", nil)
		return
	}
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	shares, err := decimal.NewFromString(strings.TrimSpace(req.Shares))
	if err != nil {
		Error(c, http.StatusBadRequest, "shares must be a decimal string", nil)
		return
	}
	amount, err := h.Ledger.Withdraw(c.Request.Context(), ident.Subject, shares)
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, gin.H{"provider": ident.Subject, "amount": amount}, nil)
}

// @Summary List all provider positions
// @Tags pool
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/pool/positions [get]
func (h *PoolHandler) positions(c *gin.Context) {
	items, err := h.Ledger.Positions(c.Request.Context(),
		intQuery(c, "limit", 100), intQuery(c, "offset", 0))
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

// @Summary Current provider share position and redeemable value
// @Tags pool
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/pool/position [get]
func (h *PoolHandler) position(c *gin.Context) {
	ident, ok := auth.IdentityFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "identity required", nil)
		return
	}
	pos, err := h.Ledger.Position(c.Request.Context(), ident.Subject)
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, pos, nil)
}

// @Summary Accrued yield share for the authenticated provider
// @Tags pool
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/pool/yield [get]
func (h *PoolHandler) yield(c *gin.Context) {
	ident, ok := auth.IdentityFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "identity required", nil)
		return
	}
	amount, err := h.Ledger.CalculateYield(c.Request.Context(), ident.Subject)
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, gin.H{"provider": ident.Subject, "yield": amount}, nil)
}
