package users

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Repository abstracts user persistence.
type Repository interface {
	Create(ctx context.Context, u User) error
	Get(ctx context.Context, id string) (User, bool, error)
	SetFrozen(ctx context.Context, id string, frozen bool, at time.Time) error
	SetPayoutAddress(ctx context.Context, id, address string, at time.Time) error
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var (
	ErrNotFound       = errors.New("users: not found")
	ErrInvalidAddress = errors.New("users: invalid payout address")
	ErrInvalidRequest = errors.New("users: invalid request")
)

// payoutAddressRe matches 0x-prefixed 20-byte hex addresses.
var payoutAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

func ValidPayoutAddress(addr string) bool {
	return payoutAddressRe.MatchString(addr)
}

func (s *Service) Create(ctx context.Context, displayName, role string) (User, error) {
	if displayName == "" || role == "" {
		return User{}, ErrInvalidRequest
	}
	now := s.clock().UTC()
	u := User{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrInvalidRequest
	}
	u, ok, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *Service) SetFrozen(ctx context.Context, id string, frozen bool) error {
	if id == "" {
		return ErrInvalidRequest
	}
	return s.repo.SetFrozen(ctx, id, frozen, s.clock().UTC())
}

func (s *Service) SetPayoutAddress(ctx context.Context, id, address string) error {
	if id == "" {
		return ErrInvalidRequest
	}
	if !ValidPayoutAddress(address) {
		return ErrInvalidAddress
	}
	return s.repo.SetPayoutAddress(ctx, id, address, s.clock().UTC())
}
