package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callmarket/internal/audit"

	"github.com/google/uuid"
)

// Service provides validated ledger operations.
//
// Money invariants:
// - Ledger is append-only (immutable); corrections are reversal entries.
// - Balance is derived from entries; no mutable balance state exists anywhere.
// - Duplicate idempotency keys resolve to the original entry, never an error.
type Service struct {
	store Store
	audit *audit.Service

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store Store, auditSvc *audit.Service) *Service {
	return &Service{store: store, audit: auditSvc, clock: time.Now}
}

var (
	ErrNotFound            = errors.New("ledger: not found")
	ErrInvalidAmount       = errors.New("ledger: amount must be a positive integer")
	ErrInvalidArgument     = errors.New("ledger: invalid argument")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
)

// Append validates and appends a single entry.
func (s *Service) Append(ctx context.Context, e Entry) (AppendResult, error) {
	if err := validateEntry(e); err != nil {
		return AppendResult{}, err
	}
	e = s.stamp(e)
	return s.store.Append(ctx, e)
}

// AppendSettlement posts a capped debit/credit pair atomically. The debit is
// capped at the payer's balance inside the same transaction; see Store.
func (s *Service) AppendSettlement(ctx context.Context, debit, credit Entry) (SettlementResult, error) {
	if debit.Type != EntryTypeDebit || credit.Type != EntryTypeCredit {
		return SettlementResult{}, ErrInvalidArgument
	}
	if debit.AmountTokens != credit.AmountTokens {
		return SettlementResult{}, ErrInvalidArgument
	}
	if err := validateEntry(debit); err != nil {
		return SettlementResult{}, err
	}
	if err := validateEntry(credit); err != nil {
		return SettlementResult{}, err
	}
	res, err := s.store.AppendSettlement(ctx, s.stamp(debit), s.stamp(credit))
	if err != nil {
		return SettlementResult{}, err
	}
	if res.ShortfallTokens > 0 && s.audit != nil {
		_ = s.audit.LogSettlementShortfall(ctx, debit.CallID, debit.UserID, res.ShortfallTokens)
	}
	return res, nil
}

// BalanceOf derives a user's token balance.
func (s *Service) BalanceOf(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrInvalidArgument
	}
	return s.store.BalanceOf(ctx, userID)
}

func (s *Service) FindByKey(ctx context.Context, key string) (Entry, bool, error) {
	if key == "" {
		return Entry{}, false, ErrInvalidArgument
	}
	return s.store.FindByKey(ctx, key)
}

func (s *Service) ListByCall(ctx context.Context, callID string) ([]Entry, error) {
	if callID == "" {
		return nil, ErrInvalidArgument
	}
	return s.store.ListByCall(ctx, callID)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	return s.store.ListByUser(ctx, userID)
}

// AdminMint credits tokens out of thin air. Requires a reason; audited.
func (s *Service) AdminMint(ctx context.Context, adminUserID, adminRole, userID string, amountTokens int64, reason, idempotencyKey string) (AppendResult, error) {
	if adminUserID == "" || adminRole == "" || reason == "" {
		return AppendResult{}, ErrInvalidArgument
	}
	res, err := s.Append(ctx, Entry{
		UserID:         userID,
		Type:           EntryTypeCredit,
		AmountTokens:   amountTokens,
		Source:         SourceAdminMint,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return AppendResult{}, err
	}
	s.logAdminAction(ctx, adminUserID, adminRole, userID, res.Entry, reason)
	return res, nil
}

// AdminAdjust posts a manual credit or debit correction. Requires a reason; audited.
// Debit adjustments may not drive the balance negative.
func (s *Service) AdminAdjust(ctx context.Context, adminUserID, adminRole, userID string, entryType EntryType, amountTokens int64, reason, idempotencyKey string) (AppendResult, error) {
	if adminUserID == "" || adminRole == "" || reason == "" {
		return AppendResult{}, ErrInvalidArgument
	}
	if entryType != EntryTypeCredit && entryType != EntryTypeDebit {
		return AppendResult{}, ErrInvalidArgument
	}
	if entryType == EntryTypeDebit {
		balance, err := s.BalanceOf(ctx, userID)
		if err != nil {
			return AppendResult{}, err
		}
		if balance < amountTokens {
			return AppendResult{}, ErrInsufficientBalance
		}
	}
	res, err := s.Append(ctx, Entry{
		UserID:         userID,
		Type:           entryType,
		AmountTokens:   amountTokens,
		Source:         SourceAdminAdjustment,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return AppendResult{}, err
	}
	s.logAdminAction(ctx, adminUserID, adminRole, userID, res.Entry, reason)
	return res, nil
}

func (s *Service) logAdminAction(ctx context.Context, adminUserID, adminRole, userID string, e Entry, reason string) {
	if s.audit == nil {
		return
	}
	// Best-effort; audit failures must not roll back money movement.
	_ = s.audit.LogAdminLedgerAction(ctx, adminUserID, adminRole, userID, e.ID,
		fmt.Sprintf("%s %s %d tokens: %s", e.Source, e.Type, e.AmountTokens, reason))
}

func (s *Service) stamp(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return e
}

func validateEntry(e Entry) error {
	if e.UserID == "" || e.IdempotencyKey == "" {
		return ErrInvalidArgument
	}
	if e.Type != EntryTypeCredit && e.Type != EntryTypeDebit {
		return ErrInvalidArgument
	}
	if !e.Source.Valid() {
		return ErrInvalidArgument
	}
	if e.AmountTokens <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
