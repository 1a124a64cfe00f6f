package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/mongovalidate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
)

type apiKeyModel struct {
	TokenHash string    `gorm:"column:token_hash;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Active    bool      `gorm:"column:active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (apiKeyModel) TableName() string {
	return "api_keys"
}

type APIKeyRepository struct {
	db *gormsqlite.DB
}

func NewAPIKeyRepository(db *gormsqlite.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error) {
	var m apiKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("token_hash = ?", tokenHash).Take(&m).Error
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.APIKey{}, domain.ErrNotFound
	case err != nil:
		return domain.APIKey{}, fmt.Errorf("find api key: %w", err)
	}
	return toAPIKeyDomain(m), nil
}

// Upsert inserts key or updates name and active flag of an existing hash.
// The original creation time is kept on update.
func (r *APIKeyRepository) Upsert(ctx context.Context, key domain.APIKey) error {
	m := toAPIKeyModel(key)
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "active"}),
		}).Create(&m).Error
	})
	if err != nil {
		return fmt.Errorf("upsert api key %q: %w", key.Name, err)
	}
	return nil
}

func toAPIKeyModel(key domain.APIKey) apiKeyModel {
	createdAt := key.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return apiKeyModel{
		TokenHash: key.TokenHash,
		Name:      key.Name,
		Active:    key.Active,
		CreatedAt: createdAt.UTC(),
	}
}

func toAPIKeyDomain(m apiKeyModel) domain.APIKey {
	return domain.APIKey{
		TokenHash: m.TokenHash,
		Name:      m.Name,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
	}
}
