package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callmarket/internal/audit"
	"callmarket/internal/calls"
	"callmarket/internal/ledger"
	"callmarket/internal/rates"
)

type fixture struct {
	engine   *Engine
	callRepo *calls.MemoryRepo
	ledgers  *ledger.Service
	store    *ledger.MemoryStore
	audits   *audit.MemoryRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	auditRepo := audit.NewMemoryRepo()
	ledgerSvc := ledger.NewService(store, audit.NewService(auditRepo))
	callRepo := calls.NewMemoryRepo()

	rateRepo := rates.NewMemoryRepo()
	require.NoError(t, rateRepo.Create(context.Background(), rates.ReceiverRate{
		ID:              "r1",
		ReceiverID:      "bob",
		TokensPerSecond: decimal.NewFromInt(1),
		EffectiveFrom:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:          rates.RateStatusActive,
	}))

	return &fixture{
		engine:   NewEngine(callRepo, ledgerSvc, rates.NewService(rateRepo), audit.NewService(auditRepo), 30),
		callRepo: callRepo,
		ledgers:  ledgerSvc,
		store:    store,
		audits:   auditRepo,
	}
}

// seedCall creates an ended call with the given connected span.
func (f *fixture) seedCall(t *testing.T, id string, previewApplied bool, connectedFor time.Duration) calls.Call {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := calls.Call{
		ID: id, CallerID: "alice", ReceiverID: "bob",
		Status: calls.StatusCreated, CreatedAt: start,
	}
	require.NoError(t, f.callRepo.Create(ctx, c))

	if connectedFor > 0 {
		_, err := f.callRepo.EnsureParticipant(ctx, id)
		require.NoError(t, err)
		_, err = f.callRepo.SetConnected(ctx, id, calls.RoleCaller, start)
		require.NoError(t, err)
		_, err = f.callRepo.SetConnected(ctx, id, calls.RoleReceiver, start)
		require.NoError(t, err)
		_, _, err = f.callRepo.SetBothConnected(ctx, id, start)
		require.NoError(t, err)
	}
	if previewApplied {
		require.NoError(t, f.callRepo.SetPreviewApplied(ctx, id, true))
	}

	ended, _, err := f.callRepo.MarkEnded(ctx, id, start.Add(connectedFor), calls.EndReasonHangup)
	require.NoError(t, err)
	return ended
}

func (f *fixture) fund(t *testing.T, userID string, tokens int64) {
	t.Helper()
	_, err := f.ledgers.Append(context.Background(), ledger.Entry{
		UserID: userID, Type: ledger.EntryTypeCredit, AmountTokens: tokens,
		Source: ledger.SourceAdminMint, IdempotencyKey: "seed:" + userID,
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := f.ledgers.BalanceOf(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func TestSettle_ChargesConnectedTimeMinusPreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "alice", 100)
	f.seedCall(t, "c1", true, 90*time.Second)

	require.NoError(t, f.engine.Settle(ctx, "c1"))

	// 90s connected, 30s preview, 1 token/s.
	assert.Equal(t, int64(40), f.balance(t, "alice"))
	assert.Equal(t, int64(60), f.balance(t, "bob"))
}

func TestSettle_NoPreviewChargesFullSpan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "alice", 100)
	f.seedCall(t, "c1", false, 90*time.Second)

	require.NoError(t, f.engine.Settle(ctx, "c1"))
	assert.Equal(t, int64(10), f.balance(t, "alice"))
	assert.Equal(t, int64(90), f.balance(t, "bob"))
}

func TestSettle_FractionalSecondsRoundUpOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "alice", 100)
	f.seedCall(t, "c1", false, 90*time.Second+500*time.Millisecond)

	require.NoError(t, f.engine.Settle(ctx, "c1"))
	// 90.5s * 1 token/s, rounded up on the final charge only.
	assert.Equal(t, int64(91), f.balance(t, "bob"))
}

func TestSettle_WithinPreviewIsFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "alice", 100)
	f.seedCall(t, "c1", true, 20*time.Second)

	require.NoError(t, f.engine.Settle(ctx, "c1"))
	assert.Equal(t, int64(100), f.balance(t, "alice"))
	assert.Equal(t, int64(0), f.balance(t, "bob"))

	entries, err := f.ledgers.ListByCall(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, entries, "free call must write no ledger rows")
}

func TestSettle_NeverBothConnectedOwesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "alice", 100)
	f.seedCall(t, "c1", false, 0)

	require.NoError(t, f.engine.Settle(ctx, "c1"))
	assert.Equal(t, int64(100), f.balance(t, "alice"))
}

func TestSettle_CapsAtBalanceAndAuditsShortfall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "alice", 10)
	f.seedCall(t, "c1", false, 50*time.Second)

	require.NoError(t, f.engine.Settle(ctx, "c1"))

	assert.Equal(t, int64(0), f.balance(t, "alice"), "balance never goes negative")
	assert.Equal(t, int64(10), f.balance(t, "bob"), "receiver earns the capped amount")

	events, err := f.audits.ListByType(ctx, audit.EventTypeSettlementShortfall)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(40), events[0].AmountTokens)
}

func TestSettle_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "alice", 100)
	f.seedCall(t, "c1", false, 60*time.Second)

	require.NoError(t, f.engine.Settle(ctx, "c1"))
	require.NoError(t, f.engine.Settle(ctx, "c1"))

	assert.Equal(t, int64(40), f.balance(t, "alice"))
	assert.Equal(t, int64(60), f.balance(t, "bob"))

	entries, err := f.ledgers.ListByCall(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, entries, 2, "exactly one debit and one credit")
}

func TestSettle_ConcurrentEndsWriteOnePair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "alice", 100)
	f.seedCall(t, "c1", false, 60*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.engine.Settle(ctx, "c1")
		}()
	}
	wg.Wait()

	entries, err := f.ledgers.ListByCall(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, int64(40), f.balance(t, "alice"))
}

func TestSettle_FailsClosedWithoutRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "carol", 100)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.callRepo.Create(ctx, calls.Call{
		ID: "c2", CallerID: "carol", ReceiverID: "dave",
		Status: calls.StatusCreated, CreatedAt: start,
	}))
	_, err := f.callRepo.EnsureParticipant(ctx, "c2")
	require.NoError(t, err)
	_, err = f.callRepo.SetConnected(ctx, "c2", calls.RoleCaller, start)
	require.NoError(t, err)
	_, err = f.callRepo.SetConnected(ctx, "c2", calls.RoleReceiver, start)
	require.NoError(t, err)
	_, _, err = f.callRepo.SetBothConnected(ctx, "c2", start)
	require.NoError(t, err)
	_, _, err = f.callRepo.MarkEnded(ctx, "c2", start.Add(time.Minute), calls.EndReasonHangup)
	require.NoError(t, err)

	err = f.engine.Settle(ctx, "c2")
	assert.ErrorIs(t, err, rates.ErrRateNotFound)
	assert.Equal(t, int64(100), f.balance(t, "carol"), "no charge without a rate")
}

func TestReverse_RestoresCallerAndDebitsReceiver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "alice", 100)
	f.seedCall(t, "c1", false, 60*time.Second)
	require.NoError(t, f.engine.Settle(ctx, "c1"))

	res, err := f.engine.Reverse(ctx, "admin-1", "admin", "c1", "disputed charge")
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.ChargedTokens)

	assert.Equal(t, int64(100), f.balance(t, "alice"))
	assert.Equal(t, int64(0), f.balance(t, "bob"))

	// Replayed reversal converges on the same rows.
	res2, err := f.engine.Reverse(ctx, "admin-1", "admin", "c1", "disputed charge")
	require.NoError(t, err)
	assert.False(t, res2.DebitCreated)
	assert.Equal(t, int64(100), f.balance(t, "alice"))

	events, err := f.audits.ListByType(ctx, audit.EventTypeCallReversal)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestReverse_NothingSettled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCall(t, "c1", true, 10*time.Second)
	require.NoError(t, f.engine.Settle(ctx, "c1"))

	_, err := f.engine.Reverse(ctx, "admin-1", "admin", "c1", "no-op")
	assert.ErrorIs(t, err, ErrNotSettled)
}

func TestReverse_CapsAtReceiverBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "alice", 100)
	f.seedCall(t, "c1", false, 60*time.Second)
	require.NoError(t, f.engine.Settle(ctx, "c1"))

	// Receiver spends part of the earnings before the reversal lands.
	_, err := f.ledgers.Append(ctx, ledger.Entry{
		UserID: "bob", Type: ledger.EntryTypeDebit, AmountTokens: 50,
		Source: ledger.SourceAdminAdjustment, IdempotencyKey: "spend:bob",
	})
	require.NoError(t, err)

	res, err := f.engine.Reverse(ctx, "admin-1", "admin", "c1", "disputed charge")
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.ChargedTokens)
	assert.Equal(t, int64(50), res.ShortfallTokens)

	assert.Equal(t, int64(0), f.balance(t, "bob"))
	assert.Equal(t, int64(50), f.balance(t, "alice"))
}
