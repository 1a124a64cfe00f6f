package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
	"github.com/atvirokodosprendimai/mongovalidate/internal/core/ports"
)

// TopicValidationFailed is the topic invalid runs are published under.
const TopicValidationFailed = "validation.failed"

// ValidationHistory persists validation outcomes for later inspection.
type ValidationHistory struct {
	repo      ports.ValidationRunRepository
	publisher ports.RunPublisher
	now       func() time.Time
}

type ValidationHistoryOption func(*ValidationHistory)

// WithPublisher announces every invalid run after it is stored.
func WithPublisher(publisher ports.RunPublisher) ValidationHistoryOption {
	return func(h *ValidationHistory) {
		h.publisher = publisher
	}
}

func NewValidationHistory(repo ports.ValidationRunRepository, opts ...ValidationHistoryOption) *ValidationHistory {
	h := &ValidationHistory{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Record stores the outcome of one validation. When publishing fails the
// stored run is returned together with the error.
func (h *ValidationHistory) Record(ctx context.Context, collection, actor string, result domain.ValidationResult) (domain.ValidationRun, error) {
	if err := domain.ValidateCollectionName(collection); err != nil {
		return domain.ValidationRun{}, err
	}
	run := domain.ValidationRun{
		ID:         uuid.NewString(),
		Collection: collection,
		Actor:      actor,
		Valid:      result.Valid,
		Errors:     result.Errors,
		ErrorsText: result.ErrorsText,
		CreatedAt:  h.now().UTC(),
	}
	if err := h.repo.Insert(ctx, run); err != nil {
		return domain.ValidationRun{}, err
	}
	if h.publisher != nil && !run.Valid {
		if err := h.publisher.Publish(ctx, TopicValidationFailed, run); err != nil {
			return run, fmt.Errorf("publish validation run: %w", err)
		}
	}
	return run, nil
}

func (h *ValidationHistory) List(ctx context.Context, filter domain.ValidationRunFilter) ([]domain.ValidationRun, error) {
	if filter.Collection != "" {
		if err := domain.ValidateCollectionName(filter.Collection); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return h.repo.List(ctx, filter)
}
