package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callmarket/internal/ledger"
)

// Admin endpoints. Route groups apply RBAC before these run; they still read
// the actor identity for the audit trail.

type adminMintRequest struct {
	UserID         string `json:"user_id"`
	AmountTokens   int64  `json:"amount_tokens"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h Handlers) AdminMint(c *gin.Context) {
	adminID, adminRole, ok := identity(c)
	if !ok {
		return
	}
	var req adminMintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Ledger.AdminMint(c.Request.Context(), adminID, adminRole,
		req.UserID, req.AmountTokens, req.Reason, req.IdempotencyKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": res.Entry, "created": res.Created})
}

type adminAdjustRequest struct {
	UserID         string `json:"user_id"`
	Type           string `json:"type"`
	AmountTokens   int64  `json:"amount_tokens"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h Handlers) AdminAdjust(c *gin.Context) {
	adminID, adminRole, ok := identity(c)
	if !ok {
		return
	}
	var req adminAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Ledger.AdminAdjust(c.Request.Context(), adminID, adminRole,
		req.UserID, ledger.EntryType(req.Type), req.AmountTokens, req.Reason, req.IdempotencyKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": res.Entry, "created": res.Created})
}

type adminReverseRequest struct {
	Reason string `json:"reason"`
}

func (h Handlers) AdminReverseCall(c *gin.Context) {
	adminID, adminRole, ok := identity(c)
	if !ok {
		return
	}
	var req adminReverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Settlement.Reverse(c.Request.Context(), adminID, adminRole, c.Param("call_id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reversed_tokens":  res.ChargedTokens,
		"shortfall_tokens": res.ShortfallTokens,
	})
}

type adminFreezeRequest struct {
	Frozen bool `json:"frozen"`
}

func (h Handlers) AdminFreezeUser(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		return
	}
	var req adminFreezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Users.SetFrozen(c.Request.Context(), c.Param("user_id"), req.Frozen); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type withdrawalSentRequest struct {
	TxHash string `json:"tx_hash"`
}

func (h Handlers) AdminMarkWithdrawalSent(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		return
	}
	var req withdrawalSentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	r, err := h.Withdrawals.MarkSent(c.Request.Context(), c.Param("request_id"), req.TxHash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h Handlers) AdminMarkWithdrawalFailed(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		return
	}
	r, err := h.Withdrawals.MarkFailed(c.Request.Context(), c.Param("request_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
