package claimstore

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/subscription"
)

type fileStore struct {
	mu   sync.Mutex
	path string
}

var _ subscription.ClaimStore = (*fileStore)(nil)

// NewFileStore keeps the ledger in a JSON file. The file is created on first write.
func NewFileStore(path string) *fileStore {
	return &fileStore{path: path}
}

func (s *fileStore) read() ([]subscription.Claim, error) {
	data, err := ioutil.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return decode(nil), nil
		}
		return nil, errors.Wrap(err, "reading claims file")
	}
	return decode(data), nil
}

// write replaces the file atomically.
func (s *fileStore) write(claims []subscription.Claim) error {
	data, err := encode(claims)
	if err != nil {
		return errors.Wrap(err, "encoding claims")
	}
	tmp, err := ioutil.TempFile(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing claims file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "writing claims file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "replacing claims file")
}

func (s *fileStore) Load(ctx context.Context) ([]subscription.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *fileStore) Append(ctx context.Context, build subscription.ClaimBuilder) (subscription.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claims, err := s.read()
	if err != nil {
		return subscription.Claim{}, err
	}
	claims, claim, err := appendClaim(claims, build)
	if err != nil {
		return subscription.Claim{}, err
	}
	if err = s.write(claims); err != nil {
		return subscription.Claim{}, err
	}
	return claim, nil
}

func (s *fileStore) UpdateStatus(ctx context.Context, id string, from, to subscription.ClaimStatus) (subscription.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claims, err := s.read()
	if err != nil {
		return subscription.Claim{}, err
	}
	claim, err := updateStatus(claims, id, from, to)
	if err != nil {
		return subscription.Claim{}, err
	}
	if err = s.write(claims); err != nil {
		return subscription.Claim{}, err
	}
	return claim, nil
}
