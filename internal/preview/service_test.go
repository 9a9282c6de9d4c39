package preview

import (
	"context"
	"testing"
)

func TestConsumeIfUnused_FirstCallWins(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	if _, err := svc.EnsureLock(ctx, "alice", "bob"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	got, err := svc.ConsumeIfUnused(ctx, "alice", "bob", "call-1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !got {
		t.Fatalf("expected first consume to win")
	}

	got, err = svc.ConsumeIfUnused(ctx, "alice", "bob", "call-2")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got {
		t.Fatalf("expected second consume to lose")
	}
}

func TestEnsureLock_IdempotentPerPair(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	first, err := svc.EnsureLock(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := svc.EnsureLock(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same lock row, got %s vs %s", first.ID, second.ID)
	}
}

func TestLocksAreDirectional(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	if _, err := svc.EnsureLock(ctx, "alice", "bob"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := svc.EnsureLock(ctx, "bob", "alice"); err != nil {
		t.Fatalf("ensure reverse: %v", err)
	}

	if ok, _ := svc.ConsumeIfUnused(ctx, "alice", "bob", "call-1"); !ok {
		t.Fatalf("expected alice->bob preview")
	}
	// Reverse direction keeps its own preview.
	if ok, _ := svc.ConsumeIfUnused(ctx, "bob", "alice", "call-2"); !ok {
		t.Fatalf("expected bob->alice preview untouched")
	}
}

func TestEnsureLock_RejectsSelfCall(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if _, err := svc.EnsureLock(context.Background(), "alice", "alice"); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
