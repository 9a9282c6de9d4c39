package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"callmarket/internal/auth"
	"callmarket/internal/availability"
	"callmarket/internal/calls"
	"callmarket/internal/ledger"
	"callmarket/internal/rates"
	"callmarket/internal/receipts"
	"callmarket/internal/settlement"
	"callmarket/internal/users"
	"callmarket/internal/webhooks"
	"callmarket/internal/withdrawal"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth         *auth.Manager
	Users        *users.Service
	Calls        *calls.Service
	Ledger       *ledger.Service
	Rates        *rates.Service
	Receipts     *receipts.Projector
	Withdrawals  *withdrawal.Service
	Availability *availability.Service
	Settlement   *settlement.Engine
	Webhooks     *webhooks.Processor
}

func identity(c *gin.Context) (userID, role string, ok bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil || uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return "", "", false
	}
	r, _ := auth.Role(c.Request.Context())
	return uid, r, true
}

// --- Calls ---

type startCallRequest struct {
	ReceiverID string `json:"receiver_id"`
}

func (h Handlers) StartCall(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	call, err := h.Calls.Start(c.Request.Context(), userID, req.ReceiverID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

func (h Handlers) GetCall(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	call, err := h.Calls.Get(c.Request.Context(), userID, c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

type respondRequest struct {
	Accept bool `json:"accept"`
}

func (h Handlers) RespondToCall(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	call, err := h.Calls.Respond(c.Request.Context(), userID, c.Param("call_id"), req.Accept)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

type endCallRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h Handlers) EndCall(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	var req endCallRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	call, err := h.Calls.End(c.Request.Context(), userID, c.Param("call_id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) GetReceipt(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	receipt, err := h.Receipts.Project(c.Request.Context(), userID, c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// --- Balance and ledger ---

func (h Handlers) GetBalance(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	balance, err := h.Ledger.BalanceOf(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	available, err := h.Withdrawals.Available(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance_tokens":   balance,
		"available_tokens": available,
	})
}

func (h Handlers) ListLedgerEntries(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	entries, err := h.Ledger.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// --- Withdrawals ---

type withdrawalRequest struct {
	AmountTokens int64  `json:"amount_tokens"`
	ClientKey    string `json:"client_key,omitempty"`
}

func (h Handlers) RequestWithdrawal(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	r, err := h.Withdrawals.Request(c.Request.Context(), userID, req.AmountTokens, req.ClientKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h Handlers) ListWithdrawals(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	reqs, err := h.Withdrawals.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": reqs})
}

// --- Profile ---

func (h Handlers) Me(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	u, err := h.Users.Get(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type payoutAddressRequest struct {
	Address string `json:"address"`
}

func (h Handlers) SetPayoutAddress(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	var req payoutAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Users.SetPayoutAddress(c.Request.Context(), userID, req.Address); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Rates ---

type setRateRequest struct {
	TokensPerSecond string `json:"tokens_per_second"`
}

// SetRate opens a new per-second rate for the authenticated receiver.
func (h Handlers) SetRate(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	var req setRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tps, err := decimal.NewFromString(req.TokensPerSecond)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tokens_per_second must be a decimal string"})
		return
	}
	rate, err := h.Rates.Set(c.Request.Context(), userID, tps)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rate)
}

func (h Handlers) GetRate(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		return
	}
	rate, err := h.Rates.Resolve(c.Request.Context(), c.Param("receiver_id"), time.Time{})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rate)
}

// --- Availability ---

func (h Handlers) AvailabilityPing(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	res, err := h.Availability.Ping(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
