package ports

import (
	"context"

	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
)

// RunPublisher announces validation runs to an external receiver.
type RunPublisher interface {
	Publish(ctx context.Context, topic string, run domain.ValidationRun) error
}
