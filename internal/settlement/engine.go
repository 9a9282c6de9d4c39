package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"callmarket/internal/audit"
	"callmarket/internal/calls"
	"callmarket/internal/ledger"
	"callmarket/internal/rates"
	"callmarket/pkg/logger"
)

var (
	ErrCallNotFound = errors.New("settlement: call not found")
	ErrNotSettled   = errors.New("settlement: call has no settled charge to reverse")
)

// CallReader is the slice of call persistence the engine needs.
type CallReader interface {
	Get(ctx context.Context, id string) (calls.Call, bool, error)
	GetParticipant(ctx context.Context, callID string) (calls.Participant, bool, error)
}

// Engine turns an ended call into ledger entries.
//
// Settle is idempotent: every entry it writes carries a deterministic
// idempotency key derived from the call id, and the debit/credit pair is
// posted through the ledger's capped atomic settlement. Running it twice,
// concurrently or after a crash, produces the same rows once.
type Engine struct {
	callRepo CallReader
	ledgers  *ledger.Service
	rates    *rates.Service
	audits   *audit.Service

	previewSeconds int
}

func NewEngine(callRepo CallReader, ledgerSvc *ledger.Service, rateSvc *rates.Service, auditSvc *audit.Service, previewSeconds int) *Engine {
	return &Engine{
		callRepo:       callRepo,
		ledgers:        ledgerSvc,
		rates:          rateSvc,
		audits:         auditSvc,
		previewSeconds: previewSeconds,
	}
}

// Settle computes and posts the final charge for an ended call.
//
// Billable time runs from the moment both sides were connected to the end of
// the call, minus the preview allowance when this call consumed the pair's
// preview. Calls that never reached both-connected owe nothing. The charge is
// capped at the caller's balance; the receiver earns exactly what was charged.
func (e *Engine) Settle(ctx context.Context, callID string) error {
	c, ok, err := e.callRepo.Get(ctx, callID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCallNotFound
	}
	if !c.Ended() || c.EndedAt == nil {
		// End drives settlement; nothing to do yet.
		return nil
	}

	debitKey := DebitKey(c.ID, c.CallerID)
	if _, found, err := e.ledgers.FindByKey(ctx, debitKey); err != nil {
		return err
	} else if found {
		return nil
	}

	charge, err := e.chargeFor(ctx, c)
	if err != nil {
		return err
	}
	if charge == 0 {
		return e.refundIfCharged(ctx, c)
	}

	res, err := e.ledgers.AppendSettlement(ctx,
		ledger.Entry{
			UserID:         c.CallerID,
			Type:           ledger.EntryTypeDebit,
			AmountTokens:   charge,
			Source:         ledger.SourceCallBilling,
			IdempotencyKey: debitKey,
			CallID:         c.ID,
		},
		ledger.Entry{
			UserID:         c.ReceiverID,
			Type:           ledger.EntryTypeCredit,
			AmountTokens:   charge,
			Source:         ledger.SourceCallBilling,
			IdempotencyKey: CreditKey(c.ID, c.ReceiverID),
			CallID:         c.ID,
		},
	)
	if err != nil {
		return err
	}

	log := logger.From(ctx)
	log.Info("call settled",
		"call_id", c.ID,
		"charged_tokens", res.ChargedTokens,
		"shortfall_tokens", res.ShortfallTokens,
	)
	return nil
}

// chargeFor derives the token charge for an ended call. Returns 0 without
// consulting rates when no billable time accrued.
func (e *Engine) chargeFor(ctx context.Context, c calls.Call) (int64, error) {
	p, ok, err := e.callRepo.GetParticipant(ctx, c.ID)
	if err != nil {
		return 0, err
	}
	if !ok || p.BothConnectedAt == nil {
		return 0, nil
	}

	billable := c.EndedAt.Sub(*p.BothConnectedAt)
	if c.PreviewApplied {
		billable -= time.Duration(e.previewSeconds) * time.Second
	}
	if billable <= 0 {
		return 0, nil
	}

	// Rate is pinned at connection time so mid-call changes never apply.
	rate, err := e.rates.Resolve(ctx, c.ReceiverID, *p.BothConnectedAt)
	if err != nil {
		return 0, err
	}

	seconds := decimal.NewFromInt(billable.Milliseconds()).Div(decimal.NewFromInt(1000))
	charge := seconds.Mul(rate.TokensPerSecond).Ceil().IntPart()
	if charge < 0 {
		charge = 0
	}
	return charge, nil
}

// refundIfCharged corrects an earlier non-zero settlement for a call whose
// recomputed charge is zero. Normal first-time settlement of a free call
// writes nothing.
func (e *Engine) refundIfCharged(ctx context.Context, c calls.Call) error {
	prior, found, err := e.ledgers.FindByKey(ctx, DebitKey(c.ID, c.CallerID))
	if err != nil || !found {
		return err
	}
	res, err := e.ledgers.Append(ctx, ledger.Entry{
		UserID:         c.CallerID,
		Type:           ledger.EntryTypeCredit,
		AmountTokens:   prior.AmountTokens,
		Source:         ledger.SourceCallBilling,
		IdempotencyKey: RefundKey(c.ID, c.CallerID),
		CallID:         c.ID,
	})
	if err != nil {
		return err
	}
	if res.Created {
		logger.From(ctx).Info("call charge refunded",
			"call_id", c.ID, "refunded_tokens", prior.AmountTokens)
	}
	return nil
}

// Reverse undoes a settled call charge: the receiver is debited and the caller
// re-credited, capped at the receiver's current balance. Audited; idempotent
// per call.
func (e *Engine) Reverse(ctx context.Context, adminUserID, adminRole, callID, reason string) (ledger.SettlementResult, error) {
	if adminUserID == "" || adminRole == "" || reason == "" {
		return ledger.SettlementResult{}, ledger.ErrInvalidArgument
	}
	c, ok, err := e.callRepo.Get(ctx, callID)
	if err != nil {
		return ledger.SettlementResult{}, err
	}
	if !ok {
		return ledger.SettlementResult{}, ErrCallNotFound
	}

	debit, found, err := e.ledgers.FindByKey(ctx, DebitKey(c.ID, c.CallerID))
	if err != nil {
		return ledger.SettlementResult{}, err
	}
	if !found {
		return ledger.SettlementResult{}, ErrNotSettled
	}

	res, err := e.ledgers.AppendSettlement(ctx,
		ledger.Entry{
			UserID:         c.ReceiverID,
			Type:           ledger.EntryTypeDebit,
			AmountTokens:   debit.AmountTokens,
			Source:         ledger.SourceCallBilling,
			IdempotencyKey: ReversalDebitKey(c.ID, c.ReceiverID),
			CallID:         c.ID,
		},
		ledger.Entry{
			UserID:         c.CallerID,
			Type:           ledger.EntryTypeCredit,
			AmountTokens:   debit.AmountTokens,
			Source:         ledger.SourceCallBilling,
			IdempotencyKey: ReversalCreditKey(c.ID, c.CallerID),
			CallID:         c.ID,
		},
	)
	if err != nil {
		return ledger.SettlementResult{}, err
	}

	if e.audits != nil && res.DebitCreated {
		// Best-effort; the reversal itself already landed.
		_ = e.audits.LogCallReversal(ctx, adminUserID, adminRole, c.ID, res.ChargedTokens, reason)
	}
	return res, nil
}
