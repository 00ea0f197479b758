package inventory

import (
	"context"

	"reservationservice/internal/domain"
)

// EventPublisher announces committed state changes. Implementations must not block
// the caller for long; failures are reported but never undo the committed change.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// NoopPublisher drops every event. It is used when messaging is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, domain.Event) error { return nil }
