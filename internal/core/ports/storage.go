package ports

import (
	"context"

	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
)

type ValidationRunRepository interface {
	Insert(ctx context.Context, run domain.ValidationRun) error
	// List returns runs newest first, at most filter.Limit of them.
	List(ctx context.Context, filter domain.ValidationRunFilter) ([]domain.ValidationRun, error)
}

type APIKeyRepository interface {
	// FindByTokenHash returns domain.ErrNotFound for unknown hashes.
	FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error)
	Upsert(ctx context.Context, key domain.APIKey) error
}
