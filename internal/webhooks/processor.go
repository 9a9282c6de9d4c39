package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"callmarket/internal/calls"
	"callmarket/internal/ledger"
	"callmarket/pkg/logger"
)

var (
	ErrBadSignature     = errors.New("webhooks: signature verification failed")
	ErrMalformedPayload = errors.New("webhooks: malformed payload")
	ErrUnknownEvent     = errors.New("webhooks: unknown event type")
)

// Result reports what Process did with a delivery.
type Result struct {
	EventKey  string
	EventType string

	// Duplicate means the delivery was already processed and was dropped.
	// Duplicates are acknowledged to the provider as success.
	Duplicate bool
}

// Processor verifies, deduplicates, and dispatches provider deliveries.
//
// Every dispatch target is idempotent on its own (state machine guards,
// earliest-timestamp wins, ledger idempotency keys), so the event marker is a
// fast-path gate, not the sole correctness mechanism.
type Processor struct {
	repo    Repository
	calls   *calls.Service
	ledgers *ledger.Service
	secret  []byte
	clock   func() time.Time
}

func NewProcessor(repo Repository, callSvc *calls.Service, ledgerSvc *ledger.Service, secret []byte) *Processor {
	return &Processor{
		repo:    repo,
		calls:   callSvc,
		ledgers: ledgerSvc,
		secret:  secret,
		clock:   time.Now,
	}
}

// Process handles one raw delivery. raw is the unmodified request body; the
// signature must cover it byte for byte.
func (p *Processor) Process(ctx context.Context, raw []byte, signature string) (Result, error) {
	if !VerifySignature(p.secret, raw, signature) {
		return Result{}, ErrBadSignature
	}

	var ev payload
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Event == "" {
		return Result{}, ErrMalformedPayload
	}

	key := EventKey(ev.EventID, raw)
	res := Result{EventKey: key, EventType: ev.Event}

	created, err := p.repo.Insert(ctx, EventRecord{
		ID:         uuid.NewString(),
		EventKey:   key,
		EventType:  ev.Event,
		CallID:     ev.CallID,
		ReceivedAt: p.clock().UTC(),
	})
	if err != nil {
		return Result{}, err
	}
	if !created {
		logger.From(ctx).Info("webhook redelivery dropped", "event_key", key, "event", ev.Event)
		res.Duplicate = true
		return res, nil
	}

	if err := p.dispatch(ctx, ev); err != nil {
		return res, err
	}
	return res, nil
}

func (p *Processor) dispatch(ctx context.Context, ev payload) error {
	switch ev.Event {
	case EventCallRinging:
		if ev.CallID == "" {
			return ErrMalformedPayload
		}
		_, err := p.calls.MarkRinging(ctx, ev.CallID)
		return err

	case EventParticipantConnected:
		if ev.CallID == "" {
			return ErrMalformedPayload
		}
		_, err := p.calls.HandleParticipantConnected(ctx, ev.CallID, calls.Role(ev.Role))
		return err

	case EventParticipantDisconnected:
		if ev.CallID == "" {
			return ErrMalformedPayload
		}
		_, err := p.calls.HandleParticipantDisconnected(ctx, ev.CallID, calls.Role(ev.Role))
		return err

	case EventCallEnded:
		if ev.CallID == "" {
			return ErrMalformedPayload
		}
		_, err := p.calls.EndFromProvider(ctx, ev.CallID, normalizeReason(ev.Reason))
		return err

	case EventDepositConfirmed:
		return p.applyDeposit(ctx, ev)

	default:
		return ErrUnknownEvent
	}
}

func (p *Processor) applyDeposit(ctx context.Context, ev payload) error {
	if ev.UserID == "" || ev.TxHash == "" || ev.AmountTokens <= 0 {
		return ErrMalformedPayload
	}
	// Keyed on the transaction hash, so the same on-chain deposit reported
	// under two provider event ids still credits once.
	_, err := p.ledgers.Append(ctx, ledger.Entry{
		UserID:         ev.UserID,
		Type:           ledger.EntryTypeCredit,
		AmountTokens:   ev.AmountTokens,
		Source:         ledger.SourceCryptoDeposit,
		IdempotencyKey: "deposit:" + ev.TxHash,
		TxHash:         ev.TxHash,
	})
	return err
}

func normalizeReason(reason string) string {
	switch reason {
	case "declined", "rejected", "busy":
		return calls.EndReasonDeclined
	case "disconnected", "network", "timeout":
		return calls.EndReasonDisconnected
	default:
		return calls.EndReasonHangup
	}
}
