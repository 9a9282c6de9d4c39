package calls

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryRepo is an in-memory call store for tests.
type MemoryRepo struct {
	mu           sync.Mutex
	calls        map[string]Call
	participants map[string]Participant
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		calls:        map[string]Call{},
		participants: map[string]Participant{},
	}
}

func (r *MemoryRepo) Create(ctx context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[c.ID]; ok {
		return errors.New("calls: duplicate id")
	}
	r.calls[c.ID] = c
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Call, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	return c, ok, nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, to Status, from ...Status) (Call, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return Call{}, false, errors.New("calls: not found")
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			r.calls[id] = c
			return c, true, nil
		}
	}
	return c, false, nil
}

func (r *MemoryRepo) MarkEnded(ctx context.Context, id string, at time.Time, reason string) (Call, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return Call{}, false, errors.New("calls: not found")
	}
	if c.Status == StatusEnded {
		return c, false, nil
	}
	c.Status = StatusEnded
	c.EndedAt = &at
	c.EndReason = reason
	r.calls[id] = c
	return c, true, nil
}

func (r *MemoryRepo) SetPreviewApplied(ctx context.Context, id string, applied bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return errors.New("calls: not found")
	}
	c.PreviewApplied = applied
	r.calls[id] = c
	return nil
}

func (r *MemoryRepo) EnsureParticipant(ctx context.Context, callID string) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[callID]; ok {
		return p, nil
	}
	p := Participant{CallID: callID}
	r.participants[callID] = p
	return p, nil
}

func (r *MemoryRepo) SetConnected(ctx context.Context, callID string, role Role, at time.Time) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[callID]
	if !ok {
		p = Participant{CallID: callID}
	}
	switch role {
	case RoleCaller:
		if p.CallerConnectedAt == nil {
			t := at
			p.CallerConnectedAt = &t
		}
	case RoleReceiver:
		if p.ReceiverConnectedAt == nil {
			t := at
			p.ReceiverConnectedAt = &t
		}
	default:
		return Participant{}, errors.New("calls: unknown role")
	}
	r.participants[callID] = p
	return p, nil
}

func (r *MemoryRepo) SetBothConnected(ctx context.Context, callID string, at time.Time) (Participant, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[callID]
	if !ok {
		return Participant{}, false, errors.New("calls: participant not found")
	}
	if p.BothConnectedAt != nil {
		return p, false, nil
	}
	t := at
	p.BothConnectedAt = &t
	r.participants[callID] = p
	return p, true, nil
}

func (r *MemoryRepo) GetParticipant(ctx context.Context, callID string) (Participant, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[callID]
	return p, ok, nil
}
