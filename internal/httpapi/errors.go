package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"callmarket/internal/availability"
	"callmarket/internal/calls"
	"callmarket/internal/ledger"
	"callmarket/internal/preview"
	"callmarket/internal/rates"
	"callmarket/internal/receipts"
	"callmarket/internal/settlement"
	"callmarket/internal/users"
	"callmarket/internal/webhooks"
	"callmarket/internal/withdrawal"
	"callmarket/pkg/logger"
)

// writeError maps service errors onto HTTP statuses. Unknown errors are
// logged and hidden behind a generic 500 so internals never leak.
func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "error", err, "path", c.FullPath())
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, calls.ErrNotFound),
		errors.Is(err, receipts.ErrCallNotFound),
		errors.Is(err, settlement.ErrCallNotFound),
		errors.Is(err, users.ErrNotFound),
		errors.Is(err, withdrawal.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, rates.ErrRateNotFound):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, calls.ErrForbidden),
		errors.Is(err, receipts.ErrForbidden),
		errors.Is(err, withdrawal.ErrUserFrozen):
		return http.StatusForbidden, err.Error()

	case errors.Is(err, calls.ErrCallEnded),
		errors.Is(err, withdrawal.ErrNotPending),
		errors.Is(err, settlement.ErrNotSettled):
		return http.StatusConflict, err.Error()

	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, withdrawal.ErrInsufficientAvailable):
		return http.StatusPaymentRequired, err.Error()

	case errors.Is(err, withdrawal.ErrPayoutsDisabled):
		return http.StatusServiceUnavailable, err.Error()

	case errors.Is(err, webhooks.ErrBadSignature):
		return http.StatusUnauthorized, err.Error()

	case errors.Is(err, calls.ErrInvalidRequest),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidArgument),
		errors.Is(err, preview.ErrInvalidRequest),
		errors.Is(err, rates.ErrInvalidRate),
		errors.Is(err, rates.ErrInvalidRequest),
		errors.Is(err, users.ErrInvalidAddress),
		errors.Is(err, users.ErrInvalidRequest),
		errors.Is(err, availability.ErrInvalidRequest),
		errors.Is(err, withdrawal.ErrInvalidRequest),
		errors.Is(err, withdrawal.ErrBelowMinimum),
		errors.Is(err, withdrawal.ErrNoPayoutAddress),
		errors.Is(err, webhooks.ErrMalformedPayload),
		errors.Is(err, webhooks.ErrUnknownEvent):
		return http.StatusBadRequest, err.Error()

	default:
		return http.StatusInternalServerError, ""
	}
}
