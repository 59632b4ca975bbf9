package handler

import (
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"skycover/internal/auth"
	"skycover/internal/oracle"
)

type OracleHandler struct {
	Gateway *oracle.Gateway
}

func (h *OracleHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/oracle")
	group.POST("/requests", h.request)
	group.GET("/requests/pending", h.pending)
	group.GET("/requests/:id", h.get)
	group.POST("/fulfillments", h.fulfill)
	group.POST("/fulfillments/signed", h.fulfillSigned)
	group.POST("/verify", h.verify)
}

type weatherRequestBody struct {
	Location  string `json:"location"`
	Parameter string `json:"parameter"`
}

// @Summary Request a weather observation
// @Tags oracle
// @Param body body handler.weatherRequestBody true "request"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/oracle/requests [post]
func (h *OracleHandler) request(c *gin.Context) {
	ident, ok := auth.IdentityFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "identity required", nil)
		return
	}
	var req weatherRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	item, err := h.Gateway.RequestWeatherData(c.Request.Context(), ident.Subject,
		strings.TrimSpace(req.Location), strings.TrimSpace(req.Parameter))
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, item, nil)
}

// @Summary List pending weather requests
// @Tags oracle
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/oracle/requests/pending [get]
func (h *OracleHandler) pending(c *gin.Context) {
	items, err := h.Gateway.PendingRequests(c.Request.Context(), intQuery(c, "limit", 50))
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

// @Summary Fetch a weather request by id
// @Tags oracle
// @Param id path string true "request id"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/oracle/requests/{id} [get]
func (h *OracleHandler) get(c *gin.Context) {
	item, err := h.Gateway.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, item, nil)
}

type fulfillBody struct {
	RequestID  string `json:"request_id"`
	Value      int64  `json:"value"`
	ObservedAt string `json:"observed_at"`
}

// @Summary Deliver an observation as the configured oracle subject
// @Tags oracle
// @Param body body handler.fulfillBody true "fulfillment"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/oracle/fulfillments [post]
func (h *OracleHandler) fulfill(c *gin.Context) {
	ident, ok := auth.IdentityFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "identity required", nil)
		return
	}
	var req fulfillBody
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	ts, err := parseObservedAt(req.ObservedAt)
	if err != nil {
		Error(c, http.StatusBadRequest, "observed_at must be RFC3339", nil)
		return
	}
	result, err := h.Gateway.Fulfill(c.Request.Context(), ident.Subject,
		strings.TrimSpace(req.RequestID), req.Value, ts)
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, result, nil)
}

type signedFulfillBody struct {
	RequestID  string `json:"request_id"`
	Value      int64  `json:"value"`
	ObservedAt string `json:"observed_at"`
	Signature  string `json:"signature"` // hex ASN.1 DER
}

// @Summary Deliver a signed observation, relayable by any caller
// @Tags oracle
// @Param body body handler.signedFulfillBody true "signed fulfillment"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/oracle/fulfillments/signed [post]
func (h *OracleHandler) fulfillSigned(c *gin.Context) {
	var req signedFulfillBody
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	ts, err := parseObservedAt(req.ObservedAt)
	if err != nil {
		Error(c, http.StatusBadRequest, "observed_at must be RFC3339", nil)
		return
	}
	sig, err := hex.DecodeString(strings.TrimSpace(req.Signature))
	if err != nil {
		Error(c, http.StatusBadRequest, "signature must be hex", nil)
		return
	}
	result, err := h.Gateway.FulfillWithSignature(c.Request.Context(),
		strings.TrimSpace(req.RequestID), req.Value, ts, sig)
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, result, nil)
}

type verifyBody struct {
	RequestID  string `json:"request_id"`
	Location   string `json:"location"`
	Parameter  string `json:"parameter"`
	Value      int64  `json:"value"`
	ObservedAt string `json:"observed_at"`
	Signature  string `json:"signature"`
}

// @Summary Verify a fulfillment signature without settling
// @Tags oracle
// @Param body body handler.verifyBody true "signature check"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/oracle/verify [post]
func (h *OracleHandler) verify(c *gin.Context) {
	var req verifyBody
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	ts, err := parseObservedAt(req.ObservedAt)
	if err != nil {
		Error(c, http.StatusBadRequest, "observed_at must be RFC3339", nil)
		return
	}
	sig, err := hex.DecodeString(strings.TrimSpace(req.Signature))
	if err != nil {
		Error(c, http.StatusBadRequest, "signature must be hex", nil)
		return
	}
	if err := h.Gateway.VerifySignature(c.Request.Context(),
		strings.TrimSpace(req.RequestID), strings.TrimSpace(req.Location),
		strings.TrimSpace(req.Parameter), req.Value, ts, sig); err != nil {
		failWith(c, err)
		return
	}
	Ok(c, gin.H{"valid": true}, nil)
}

func parseObservedAt(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Now().UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
