package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callmarket/internal/audit"
	"callmarket/internal/auth"
	"callmarket/internal/availability"
	"callmarket/internal/calls"
	"callmarket/internal/ledger"
	"callmarket/internal/preview"
	"callmarket/internal/rates"
	"callmarket/internal/rbac"
	"callmarket/internal/receipts"
	"callmarket/internal/settlement"
	"callmarket/internal/users"
	"callmarket/internal/webhooks"
	"callmarket/internal/withdrawal"
)

var testSecret = []byte("test-webhook-secret")

// testAuth injects identity from headers, standing in for the JWT middleware.
func testAuth(c *gin.Context) {
	uid := c.GetHeader("X-Test-User")
	role := c.GetHeader("X-Test-Role")
	if uid != "" {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), uid, role))
	}
	c.Next()
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := ledger.NewMemoryStore()
	auditSvc := audit.NewService(audit.NewMemoryRepo())
	ledgerSvc := ledger.NewService(store, auditSvc)

	userRepo := users.NewMemoryRepo()
	for _, u := range []users.User{
		{ID: "alice", DisplayName: "Alice", Role: rbac.RoleMember},
		{ID: "bob", DisplayName: "Bob", Role: rbac.RoleMember},
		{ID: "root", DisplayName: "Root", Role: rbac.RoleAdmin},
	} {
		userRepo.Put(u)
	}
	userSvc := users.NewService(userRepo)

	rateRepo := rates.NewMemoryRepo()
	require.NoError(t, rateRepo.Create(context.Background(), rates.ReceiverRate{
		ID: "r1", ReceiverID: "bob",
		TokensPerSecond: decimal.NewFromInt(1),
		EffectiveFrom:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:          rates.RateStatusActive,
	}))
	rateSvc := rates.NewService(rateRepo)

	callRepo := calls.NewMemoryRepo()
	engine := settlement.NewEngine(callRepo, ledgerSvc, rateSvc, auditSvc, 30)
	callSvc := calls.NewService(callRepo, preview.NewService(preview.NewMemoryRepo()), engine)

	h := Handlers{
		Users:        userSvc,
		Calls:        callSvc,
		Ledger:       ledgerSvc,
		Rates:        rateSvc,
		Receipts:     receipts.NewProjector(callRepo, ledgerSvc, 10, 30),
		Withdrawals:  withdrawal.NewService(withdrawal.NewMemoryRepo(store), ledgerSvc, userSvc, auditSvc, withdrawal.Config{MinTokens: 100}),
		Availability: availability.NewService(availability.NewMemoryClaimer(), ledgerSvc, 5*time.Minute, 1),
		Settlement:   engine,
		Webhooks:     webhooks.NewProcessor(webhooks.NewMemoryRepo(), callSvc, ledgerSvc, testSecret),
	}

	r := gin.New()
	r.POST("/webhooks/provider", h.ProviderWebhook)

	v1 := r.Group("/v1")
	v1.Use(testAuth)
	{
		v1.POST("/calls", h.StartCall)
		v1.GET("/calls/:call_id", h.GetCall)
		v1.POST("/calls/:call_id/respond", h.RespondToCall)
		v1.POST("/calls/:call_id/end", h.EndCall)
		v1.GET("/calls/:call_id/receipt", h.GetReceipt)
		v1.GET("/balance", h.GetBalance)
		v1.POST("/withdrawals", h.RequestWithdrawal)
		v1.POST("/availability/ping", h.AvailabilityPing)
		v1.PUT("/me/payout-address", h.SetPayoutAddress)

		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.POST("/ledger/mint", h.AdminMint)
			admin.POST("/calls/:call_id/reverse", h.AdminReverseCall)
		}
	}
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
		req.Header.Set("X-Test-Role", role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func webhook(t *testing.T, r *gin.Engine, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", bytes.NewReader(raw))
	req.Header.Set(webhooks.SignatureHeader, webhooks.Sign(testSecret, raw))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCallLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	// Fund the caller.
	w := do(t, r, http.MethodPost, "/v1/admin/ledger/mint", "root", rbac.RoleAdmin, map[string]any{
		"user_id": "alice", "amount_tokens": 100, "reason": "test grant", "idempotency_key": "mint-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/v1/calls", "alice", rbac.RoleMember, map[string]any{"receiver_id": "bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	callID := decode(t, w)["id"].(string)

	w = do(t, r, http.MethodPost, "/v1/calls/"+callID+"/respond", "bob", rbac.RoleMember, map[string]any{"accept": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for i, role := range []string{"caller", "receiver"} {
		w = webhook(t, r, map[string]any{
			"event_id": fmt.Sprintf("e%d", i), "event": webhooks.EventParticipantConnected,
			"call_id": callID, "role": role,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodPost, "/v1/calls/"+callID+"/end", "alice", rbac.RoleMember, map[string]any{"reason": "hangup"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/v1/calls/"+callID+"/receipt", "alice", rbac.RoleMember, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	receipt := decode(t, w)
	assert.Equal(t, "ended", receipt["status"])
	assert.Equal(t, true, receipt["preview_applied"])

	w = do(t, r, http.MethodGet, "/v1/balance", "bob", rbac.RoleMember, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestThirdPartyCannotTouchCall(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/calls", "alice", rbac.RoleMember, map[string]any{"receiver_id": "bob"})
	require.Equal(t, http.StatusCreated, w.Code)
	callID := decode(t, w)["id"].(string)

	w = do(t, r, http.MethodPost, "/v1/calls/"+callID+"/end", "root", rbac.RoleAdmin, map[string]any{})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodGet, "/v1/calls/"+callID, "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWithdrawalRejectionsOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPut, "/v1/me/payout-address", "alice", rbac.RoleMember, map[string]any{
		"address": "0x52908400098527886E0F7030069857D2E4169EE7",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// No funds yet.
	w = do(t, r, http.MethodPost, "/v1/withdrawals", "alice", rbac.RoleMember, map[string]any{"amount_tokens": 200})
	assert.Equal(t, http.StatusPaymentRequired, w.Code, w.Body.String())

	// Below minimum.
	w = do(t, r, http.MethodPost, "/v1/withdrawals", "alice", rbac.RoleMember, map[string]any{"amount_tokens": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookBadSignatureOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	raw := []byte(`{"event":"call.ringing","call_id":"c1"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", bytes.NewReader(raw))
	req.Header.Set(webhooks.SignatureHeader, "sha256=deadbeef")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/admin/ledger/mint", "alice", rbac.RoleMember, map[string]any{
		"user_id": "alice", "amount_tokens": 100, "reason": "nope", "idempotency_key": "mint-x",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
