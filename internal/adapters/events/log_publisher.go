package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
)

type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, run domain.ValidationRun) error {
	p.log.Info().
		Str("topic", topic).
		Str("run_id", run.ID).
		Str("collection", run.Collection).
		Str("actor", run.Actor).
		Bool("valid", run.Valid).
		Int("errors", len(run.Errors)).
		Msg("validation run published")
	return nil
}
