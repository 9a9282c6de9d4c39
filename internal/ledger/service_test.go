package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"callmarket/internal/audit"
)

func testService(t *testing.T) (*Service, *MemoryStore, *audit.MemoryRepo) {
	t.Helper()
	store := NewMemoryStore()
	auditRepo := audit.NewMemoryRepo()
	svc := NewService(store, audit.NewService(auditRepo))
	svc.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return svc, store, auditRepo
}

func credit(userID string, amount int64, key string) Entry {
	return Entry{
		UserID:         userID,
		Type:           EntryTypeCredit,
		AmountTokens:   amount,
		Source:         SourceCryptoDeposit,
		IdempotencyKey: key,
	}
}

func TestAppend_RejectsInvalidAmount(t *testing.T) {
	svc, _, _ := testService(t)

	_, err := svc.Append(context.Background(), credit("u1", 0, "k1"))
	if err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	_, err = svc.Append(context.Background(), credit("u1", -5, "k1"))
	if err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestAppend_RejectsInvalidArgs(t *testing.T) {
	svc, _, _ := testService(t)

	e := credit("", 10, "k1")
	if _, err := svc.Append(context.Background(), e); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument (missing user), got %v", err)
	}
	e = credit("u1", 10, "")
	if _, err := svc.Append(context.Background(), e); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument (missing key), got %v", err)
	}
	e = credit("u1", 10, "k1")
	e.Source = "mystery"
	if _, err := svc.Append(context.Background(), e); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument (bad source), got %v", err)
	}
}

func TestAppend_DuplicateKeyReturnsExisting(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	first, err := svc.Append(ctx, credit("u1", 100, "dup"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !first.Created {
		t.Fatalf("expected created")
	}

	second, err := svc.Append(ctx, credit("u1", 999, "dup"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.Created {
		t.Fatalf("expected AlreadyExists outcome")
	}
	if second.Entry.ID != first.Entry.ID || second.Entry.AmountTokens != 100 {
		t.Fatalf("expected original entry back, got %+v", second.Entry)
	}

	bal, err := svc.BalanceOf(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 100 {
		t.Fatalf("expected balance 100, got %d", bal)
	}
}

func TestAppend_ConcurrentSharedKeyCreatesExactlyOne(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	created := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Append(ctx, credit("u1", 50, "shared"))
			if err != nil {
				t.Errorf("append %d: %v", i, err)
				return
			}
			created <- res.Created
		}(i)
	}
	wg.Wait()
	close(created)

	wins := 0
	for c := range created {
		if c {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one created, got %d", wins)
	}

	bal, _ := store.BalanceOf(ctx, "u1")
	if bal != 50 {
		t.Fatalf("expected balance to reflect entry once, got %d", bal)
	}
}

func TestBalanceOf_SignedSum(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	mustAppend := func(e Entry) {
		t.Helper()
		if _, err := svc.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	mustAppend(credit("u1", 100, "c1"))
	mustAppend(Entry{UserID: "u1", Type: EntryTypeDebit, AmountTokens: 30, Source: SourceCallBilling, IdempotencyKey: "d1", CallID: "call-1"})
	mustAppend(credit("u2", 500, "c2"))

	bal, err := svc.BalanceOf(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 70 {
		t.Fatalf("expected 70, got %d", bal)
	}
}

func TestAdminMint_RequiresReasonAndAudits(t *testing.T) {
	svc, _, auditRepo := testService(t)
	ctx := context.Background()

	if _, err := svc.AdminMint(ctx, "admin-1", "admin", "u1", 100, "", "mint-1"); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument for missing reason, got %v", err)
	}

	res, err := svc.AdminMint(ctx, "admin-1", "admin", "u1", 100, "promo grant", "mint-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if res.Entry.Source != SourceAdminMint || res.Entry.Type != EntryTypeCredit {
		t.Fatalf("unexpected entry: %+v", res.Entry)
	}

	events := auditRepo.Events()
	if len(events) != 1 || events[0].Type != audit.EventTypeAdminLedgerAction {
		t.Fatalf("expected admin audit event, got %+v", events)
	}
}

func TestAdminAdjust_DebitCannotGoNegative(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.Append(ctx, credit("u1", 50, "c1")); err != nil {
		t.Fatalf("append: %v", err)
	}

	_, err := svc.AdminAdjust(ctx, "admin-1", "admin", "u1", EntryTypeDebit, 80, "dispute", "adj-1")
	if err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	res, err := svc.AdminAdjust(ctx, "admin-1", "admin", "u1", EntryTypeDebit, 50, "dispute", "adj-2")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if res.Entry.Source != SourceAdminAdjustment {
		t.Fatalf("unexpected source: %v", res.Entry.Source)
	}

	bal, _ := svc.BalanceOf(ctx, "u1")
	if bal != 0 {
		t.Fatalf("expected 0, got %d", bal)
	}
}

func TestMemoryStore_AppendSettlement_CapsAtBalance(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Append(ctx, Entry{ID: "e1", UserID: "caller", Type: EntryTypeCredit, AmountTokens: 10, Source: SourceCryptoDeposit, IdempotencyKey: "seed"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	debit := Entry{ID: "e2", UserID: "caller", Type: EntryTypeDebit, AmountTokens: 50, Source: SourceCallBilling, IdempotencyKey: "call:1:debit:caller", CallID: "1"}
	creditEntry := Entry{ID: "e3", UserID: "receiver", Type: EntryTypeCredit, AmountTokens: 50, Source: SourceCallBilling, IdempotencyKey: "call:1:credit:receiver", CallID: "1"}

	res, err := store.AppendSettlement(ctx, debit, creditEntry)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if res.ChargedTokens != 10 || res.ShortfallTokens != 40 {
		t.Fatalf("expected charge 10 shortfall 40, got %+v", res)
	}

	callerBal, _ := store.BalanceOf(ctx, "caller")
	receiverBal, _ := store.BalanceOf(ctx, "receiver")
	if callerBal != 0 || receiverBal != 10 {
		t.Fatalf("expected caller 0 / receiver 10, got %d / %d", callerBal, receiverBal)
	}

	// Re-entrant settlement converges with no new movement.
	again, err := store.AppendSettlement(ctx, debit, creditEntry)
	if err != nil {
		t.Fatalf("settle again: %v", err)
	}
	if again.DebitCreated || again.CreditCreated {
		t.Fatalf("expected no new rows, got %+v", again)
	}
	callerBal, _ = store.BalanceOf(ctx, "caller")
	if callerBal != 0 {
		t.Fatalf("balance drifted on re-settlement: %d", callerBal)
	}
}

func TestMemoryStore_AppendSettlement_ConcurrentSettlesOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Append(ctx, Entry{ID: "seed", UserID: "caller", Type: EntryTypeCredit, AmountTokens: 100, Source: SourceCryptoDeposit, IdempotencyKey: "seed"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			debit := Entry{ID: fmt.Sprintf("d%d", i), UserID: "caller", Type: EntryTypeDebit, AmountTokens: 60, Source: SourceCallBilling, IdempotencyKey: "call:1:debit:caller", CallID: "1"}
			creditEntry := Entry{ID: fmt.Sprintf("c%d", i), UserID: "receiver", Type: EntryTypeCredit, AmountTokens: 60, Source: SourceCallBilling, IdempotencyKey: "call:1:credit:receiver", CallID: "1"}
			if _, err := store.AppendSettlement(ctx, debit, creditEntry); err != nil {
				t.Errorf("settle %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	callerBal, _ := store.BalanceOf(ctx, "caller")
	receiverBal, _ := store.BalanceOf(ctx, "receiver")
	if callerBal != 40 || receiverBal != 60 {
		t.Fatalf("expected caller 40 / receiver 60, got %d / %d", callerBal, receiverBal)
	}

	entries, _ := store.ListByCall(ctx, "1")
	if len(entries) != 2 {
		t.Fatalf("expected exactly 2 settlement entries, got %d", len(entries))
	}
}
