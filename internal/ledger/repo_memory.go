package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and early development.
// It enforces the same idempotency-key uniqueness the Postgres schema does,
// under a single mutex so concurrent appends behave like the DB constraint.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	byKey   map[string]int // idempotency key -> index into entries
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: map[string]int{}}
}

func (s *MemoryStore) Append(ctx context.Context, e Entry) (AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(e)
}

func (s *MemoryStore) appendLocked(e Entry) (AppendResult, error) {
	if i, ok := s.byKey[e.IdempotencyKey]; ok {
		return AppendResult{Entry: s.entries[i], Created: false}, nil
	}
	s.byKey[e.IdempotencyKey] = len(s.entries)
	s.entries = append(s.entries, e)
	return AppendResult{Entry: e, Created: true}, nil
}

func (s *MemoryStore) AppendSettlement(ctx context.Context, debit, credit Entry) (SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := SettlementResult{}

	if i, ok := s.byKey[debit.IdempotencyKey]; ok {
		// Settlement already ran; converge on its outcome. The credit is
		// re-posted with the settled amount if a previous attempt only got
		// halfway (cannot happen in-memory, but mirrors the SQL behavior).
		out.Debit = s.entries[i]
		out.ChargedTokens = out.Debit.AmountTokens
		credit.AmountTokens = out.Debit.AmountTokens
		res, _ := s.appendLocked(credit)
		out.Credit = res.Entry
		out.CreditCreated = res.Created
		return out, nil
	}

	requested := debit.AmountTokens
	balance := s.balanceLocked(debit.UserID)
	capped := requested
	if balance < capped {
		capped = balance
	}
	if capped < 0 {
		capped = 0
	}
	out.ShortfallTokens = requested - capped
	out.ChargedTokens = capped
	if capped == 0 {
		return out, nil
	}

	debit.AmountTokens = capped
	credit.AmountTokens = capped

	res, _ := s.appendLocked(debit)
	out.Debit = res.Entry
	out.DebitCreated = res.Created

	res, _ = s.appendLocked(credit)
	out.Credit = res.Entry
	out.CreditCreated = res.Created

	return out, nil
}

func (s *MemoryStore) BalanceOf(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(userID), nil
}

func (s *MemoryStore) balanceLocked(userID string) int64 {
	var sum int64
	for _, e := range s.entries {
		if e.UserID != userID {
			continue
		}
		if e.Type == EntryTypeCredit {
			sum += e.AmountTokens
		} else {
			sum -= e.AmountTokens
		}
	}
	return sum
}

func (s *MemoryStore) FindByKey(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byKey[key]; ok {
		return s.entries[i], true, nil
	}
	return Entry{}, false, nil
}

func (s *MemoryStore) ListByCall(ctx context.Context, callID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0)
	for _, e := range s.entries {
		if e.CallID == callID {
			out = append(out, e)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0)
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sortByCreated(out)
	return out, nil
}

func sortByCreated(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
