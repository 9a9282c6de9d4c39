package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callmarket/internal/httpapi"
	"callmarket/internal/rbac"
	"callmarket/pkg/utils"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public; HMAC-verified inside the processor).
	r.POST("/webhooks/provider", h.ProviderWebhook)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", h.Me)
		v1.PUT("/me/payout-address", h.SetPayoutAddress)

		callGroup := v1.Group("/calls")
		{
			callGroup.POST("", h.StartCall)
			callGroup.GET("/:call_id", h.GetCall)
			callGroup.POST("/:call_id/respond", h.RespondToCall)
			callGroup.POST("/:call_id/end", h.EndCall)
			callGroup.GET("/:call_id/receipt", h.GetReceipt)
		}

		v1.GET("/balance", h.GetBalance)
		v1.GET("/ledger", h.ListLedgerEntries)

		v1.POST("/rates", h.SetRate)
		v1.GET("/rates/:receiver_id", h.GetRate)

		v1.POST("/withdrawals", h.RequestWithdrawal)
		v1.GET("/withdrawals", h.ListWithdrawals)

		v1.POST("/availability/ping", h.AvailabilityPing)

		// ADMIN routes
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.POST("/ledger/mint", h.AdminMint)
			admin.POST("/ledger/adjust", h.AdminAdjust)
			admin.POST("/calls/:call_id/reverse", h.AdminReverseCall)
			admin.POST("/users/:user_id/freeze", h.AdminFreezeUser)
			admin.POST("/withdrawals/:request_id/sent", h.AdminMarkWithdrawalSent)
			admin.POST("/withdrawals/:request_id/failed", h.AdminMarkWithdrawalFailed)
		}
	}
}
