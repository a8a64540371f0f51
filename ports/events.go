package ports

import (
	"context"

	"github.com/layer-3/tokenstore/core"
)

// EventPublisher publishes token lifecycle events to notify other instances
type EventPublisher interface {
	PublishIssued(ctx context.Context, token core.Token) error
	PublishRevoked(ctx context.Context, token core.Token) error
}
