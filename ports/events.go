package ports

import (
	"context"

	"github.com/layer-3/mercuria/core"
)

// EventPublisher publishes session transitions to interested listeners
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event core.SessionEvent) error
}
