package auth

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// Accounts abstracts service account lookup.
type Accounts interface {
	FindByID(ctx context.Context, id int64) (ServiceAccount, error)
}

// Service verifies API keys of the form "<account-id>.<secret>".
type Service struct {
	repo Accounts
}

// NewService constructs a new Service.
func NewService(repo Accounts) *Service {
	return &Service{repo: repo}
}

// Verify checks a presented API key and returns the owning account.
func (s *Service) Verify(ctx context.Context, key string) (ServiceAccount, error) {
	id, secret, ok := splitKey(key)
	if !ok {
		return ServiceAccount{}, shared.ErrInvalidCredentials
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return ServiceAccount{}, shared.ErrInvalidCredentials
	}
	if !account.Active {
		return ServiceAccount{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.KeyHash), []byte(secret)); err != nil {
		return ServiceAccount{}, shared.ErrInvalidCredentials
	}
	return account, nil
}

func splitKey(key string) (int64, string, bool) {
	key = strings.TrimSpace(key)
	idx := strings.IndexByte(key, '.')
	if idx <= 0 || idx == len(key)-1 {
		return 0, "", false
	}
	id, err := strconv.ParseInt(key[:idx], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, key[idx+1:], true
}
