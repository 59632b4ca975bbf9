package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"skycover/internal/auth"
	"skycover/internal/ledger"
	"skycover/internal/oracle"
	"skycover/internal/policy"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// failWith maps engine errors to HTTP statuses; anything unrecognized is
// treated as a storage failure.
func failWith(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidBasisPoints),
		errors.Is(err, policy.ErrInvalidBasisPoints),
		errors.Is(err, policy.ErrInvalidParameter),
		errors.Is(err, policy.ErrInvalidCoverageWindow),
		errors.Is(err, policy.ErrPayoutOutOfBounds),
		errors.Is(err, policy.ErrInsufficientPremium):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, oracle.ErrInvalidSignature):
		status = http.StatusUnauthorized
	case errors.Is(err, policy.ErrPolicyNotFound),
		errors.Is(err, policy.ErrTemplateNotFound),
		errors.Is(err, oracle.ErrRequestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientShares),
		errors.Is(err, ledger.ErrInsufficientLiquidity),
		errors.Is(err, policy.ErrPaused),
		errors.Is(err, policy.ErrReentrantCall),
		errors.Is(err, ledger.ErrReentrantCall),
		errors.Is(err, oracle.ErrRequestNotPending):
		status = http.StatusConflict
	case errors.Is(err, oracle.ErrOracleNotConfigured):
		status = http.StatusServiceUnavailable
	}
	Error(c, status, err.Error(), nil)
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}
