package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/mongovalidate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
)

type validationRunModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	Collection string    `gorm:"column:collection;not null"`
	Actor      string    `gorm:"column:actor;not null"`
	Valid      bool      `gorm:"column:valid;not null"`
	ErrorsJSON string    `gorm:"column:errors_json;not null"`
	ErrorsText string    `gorm:"column:errors_text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

func (validationRunModel) TableName() string {
	return "validation_runs"
}

type ValidationRunRepository struct {
	db *gormsqlite.DB
}

func NewValidationRunRepository(db *gormsqlite.DB) *ValidationRunRepository {
	return &ValidationRunRepository{db: db}
}

func (r *ValidationRunRepository) Insert(ctx context.Context, run domain.ValidationRun) error {
	errorsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("encode validation errors: %w", err)
	}
	model := validationRunModel{
		ID:         run.ID,
		Collection: run.Collection,
		Actor:      run.Actor,
		Valid:      run.Valid,
		ErrorsJSON: string(errorsJSON),
		ErrorsText: run.ErrorsText,
		CreatedAt:  run.CreatedAt,
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}

	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("insert validation run: %w", err)
	}
	return nil
}

// List returns the newest runs first.
func (r *ValidationRunRepository) List(ctx context.Context, filter domain.ValidationRunFilter) ([]domain.ValidationRun, error) {
	var models []validationRunModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		q := tx.Order("created_at DESC").Order("id DESC").Limit(filter.Limit)
		if filter.Collection != "" {
			q = q.Where("collection = ?", filter.Collection)
		}
		return q.Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list validation runs: %w", err)
	}

	out := make([]domain.ValidationRun, 0, len(models))
	for _, m := range models {
		run, err := toValidationRunDomain(m)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func toValidationRunDomain(m validationRunModel) (domain.ValidationRun, error) {
	var details []domain.ErrorDetail
	if err := json.Unmarshal([]byte(m.ErrorsJSON), &details); err != nil {
		return domain.ValidationRun{}, fmt.Errorf("decode validation errors for run %s: %w", m.ID, err)
	}
	return domain.ValidationRun{
		ID:         m.ID,
		Collection: m.Collection,
		Actor:      m.Actor,
		Valid:      m.Valid,
		Errors:     details,
		ErrorsText: m.ErrorsText,
		CreatedAt:  m.CreatedAt,
	}, nil
}
