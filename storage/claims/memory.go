package claimstore

import (
	"context"
	"sync"

	"github.com/trezcool/shule/core/subscription"
)

type memoryStore struct {
	mu   sync.Mutex
	data []byte
}

var _ subscription.ClaimStore = (*memoryStore)(nil)

// NewMemoryStore returns a ledger that lives in the process only.
func NewMemoryStore() *memoryStore {
	return &memoryStore{}
}

// SetRaw replaces the stored bytes as they are.
func (s *memoryStore) SetRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

func (s *memoryStore) Load(ctx context.Context) ([]subscription.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return decode(s.data), nil
}

func (s *memoryStore) Append(ctx context.Context, build subscription.ClaimBuilder) (subscription.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claims, claim, err := appendClaim(decode(s.data), build)
	if err != nil {
		return subscription.Claim{}, err
	}
	return claim, s.write(claims)
}

func (s *memoryStore) UpdateStatus(ctx context.Context, id string, from, to subscription.ClaimStatus) (subscription.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claims := decode(s.data)
	claim, err := updateStatus(claims, id, from, to)
	if err != nil {
		return subscription.Claim{}, err
	}
	return claim, s.write(claims)
}

func (s *memoryStore) write(claims []subscription.Claim) error {
	data, err := encode(claims)
	if err != nil {
		return err
	}
	s.data = data
	return nil
}
