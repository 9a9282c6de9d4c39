package rates

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestResolve_PicksLatestEffectiveWindow(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	base := time.Unix(1700000000, 0).UTC()
	old := ReceiverRate{
		ID: "r1", ReceiverID: "recv", TokensPerSecond: decimal.NewFromInt(1),
		EffectiveFrom: base.Add(-48 * time.Hour), Status: RateStatusActive,
	}
	current := ReceiverRate{
		ID: "r2", ReceiverID: "recv", TokensPerSecond: decimal.NewFromInt(2),
		EffectiveFrom: base.Add(-1 * time.Hour), Status: RateStatusActive,
	}
	_ = repo.Create(context.Background(), old)
	_ = repo.Create(context.Background(), current)

	got, err := svc.Resolve(context.Background(), "recv", base)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != "r2" {
		t.Fatalf("expected latest rate r2, got %s", got.ID)
	}
}

func TestResolve_RespectsEffectiveTo(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	base := time.Unix(1700000000, 0).UTC()
	to := base.Add(-1 * time.Hour)
	expired := ReceiverRate{
		ID: "r1", ReceiverID: "recv", TokensPerSecond: decimal.NewFromInt(1),
		EffectiveFrom: base.Add(-48 * time.Hour), EffectiveTo: &to, Status: RateStatusActive,
	}
	_ = repo.Create(context.Background(), expired)

	if _, err := svc.Resolve(context.Background(), "recv", base); err != ErrRateNotFound {
		t.Fatalf("expected ErrRateNotFound, got %v", err)
	}
}

func TestSet_RejectsNonPositiveRate(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if _, err := svc.Set(context.Background(), "recv", decimal.Zero); err != ErrInvalidRate {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
	if _, err := svc.Set(context.Background(), "recv", decimal.NewFromFloat(-0.5)); err != ErrInvalidRate {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
}
