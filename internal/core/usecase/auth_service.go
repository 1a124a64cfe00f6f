package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
	"github.com/atvirokodosprendimai/mongovalidate/internal/core/ports"
)

var ErrUnauthorized = errors.New("unauthorized")

type AuthService struct {
	repo ports.APIKeyRepository
}

func NewAuthService(repo ports.APIKeyRepository) *AuthService {
	return &AuthService{repo: repo}
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, ErrUnauthorized
	}

	apiKey, err := s.repo.FindByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, ErrUnauthorized
		}
		return domain.APIKey{}, err
	}
	if !apiKey.Active {
		return domain.APIKey{}, ErrUnauthorized
	}
	return apiKey, nil
}

// Bootstrap stores token as an active key so a fresh deployment is reachable.
func (s *AuthService) Bootstrap(ctx context.Context, token, name string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("bootstrap api key must not be empty")
	}
	if name == "" {
		name = "bootstrap"
	}
	return s.repo.Upsert(ctx, domain.APIKey{
		TokenHash: HashToken(token),
		Name:      name,
		Active:    true,
	})
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
