package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"callmarket/internal/webhooks"
)

// ProviderWebhook receives call-provider and payment-provider events.
//
// The body is read raw so the HMAC covers exactly the delivered bytes.
// Duplicate deliveries are acknowledged with 200 so providers stop retrying.
func (h Handlers) ProviderWebhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	res, err := h.Webhooks.Process(c.Request.Context(), raw, c.GetHeader(webhooks.SignatureHeader))
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Duplicate {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate", "event_key": res.EventKey})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed", "event_key": res.EventKey})
}
