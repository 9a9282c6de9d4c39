package receipts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"callmarket/internal/calls"
	"callmarket/internal/ledger"
)

var (
	ErrCallNotFound = errors.New("receipts: call not found")
	ErrForbidden    = errors.New("receipts: not a participant of this call")
)

// CallReader is the slice of call persistence the projector needs.
type CallReader interface {
	Get(ctx context.Context, id string) (calls.Call, bool, error)
	GetParticipant(ctx context.Context, callID string) (calls.Participant, bool, error)
}

// Projector builds receipts from call records and ledger entries.
type Projector struct {
	callRepo CallReader
	ledgers  *ledger.Service

	tokenPrice     decimal.Decimal
	previewSeconds int64
}

// NewProjector builds a projector. tokenPriceUSDCents is the display price of
// one token; receipts convert with decimal arithmetic, never floats.
func NewProjector(callRepo CallReader, ledgerSvc *ledger.Service, tokenPriceUSDCents int64, previewSeconds int) *Projector {
	return &Projector{
		callRepo:       callRepo,
		ledgers:        ledgerSvc,
		tokenPrice:     decimal.NewFromInt(tokenPriceUSDCents).Div(decimal.NewFromInt(100)),
		previewSeconds: int64(previewSeconds),
	}
}

// Project renders the receipt for one of the call's participants.
func (p *Projector) Project(ctx context.Context, actorID, callID string) (Receipt, error) {
	c, ok, err := p.callRepo.Get(ctx, callID)
	if err != nil {
		return Receipt{}, err
	}
	if !ok {
		return Receipt{}, ErrCallNotFound
	}
	if !c.IsParty(actorID) {
		return Receipt{}, ErrForbidden
	}

	r := Receipt{
		CallID:         c.ID,
		CallerID:       c.CallerID,
		ReceiverID:     c.ReceiverID,
		Status:         string(c.Status),
		EndReason:      c.EndReason,
		EndedAt:        c.EndedAt,
		PreviewApplied: c.PreviewApplied,
	}

	part, ok, err := p.callRepo.GetParticipant(ctx, callID)
	if err != nil {
		return Receipt{}, err
	}
	if ok && part.BothConnectedAt != nil && c.EndedAt != nil {
		span := c.EndedAt.Sub(*part.BothConnectedAt)
		if span < 0 {
			span = 0
		}
		r.DurationSeconds = int64(span / time.Second)
	}
	r.Duration = formatDuration(r.DurationSeconds)

	if c.PreviewApplied {
		r.PreviewSeconds = p.previewSeconds
		if r.PreviewSeconds > r.DurationSeconds {
			r.PreviewSeconds = r.DurationSeconds
		}
	}

	entries, err := p.ledgers.ListByCall(ctx, callID)
	if err != nil {
		return Receipt{}, err
	}
	for _, e := range entries {
		switch {
		case e.UserID == c.CallerID && e.Type == ledger.EntryTypeDebit:
			r.ChargedTokens += e.AmountTokens
		case e.UserID == c.CallerID && e.Type == ledger.EntryTypeCredit:
			r.RefundedTokens += e.AmountTokens
		case e.UserID == c.ReceiverID && e.Type == ledger.EntryTypeCredit:
			r.EarnedTokens += e.AmountTokens
		case e.UserID == c.ReceiverID && e.Type == ledger.EntryTypeDebit:
			r.EarnedTokens -= e.AmountTokens
		}
	}
	r.NetChargedTokens = r.ChargedTokens - r.RefundedTokens

	r.ChargedUSD = p.usd(r.NetChargedTokens)
	r.EarnedUSD = p.usd(r.EarnedTokens)
	return r, nil
}

func (p *Projector) usd(tokens int64) string {
	return "$" + p.tokenPrice.Mul(decimal.NewFromInt(tokens)).StringFixed(2)
}

func formatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
