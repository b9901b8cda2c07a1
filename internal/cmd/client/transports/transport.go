// Package transports provides the transport used by the CLI to reach a
// running syncq server.
package transports

import (
	"context"
	"encoding/json"

	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/queue"
)

// QueueTransport abstracts how the CLI issues queue commands.
type QueueTransport interface {
	Enqueue(ctx context.Context, queueName, resourceKey string, payload json.RawMessage) (queue.Summary, error)
	Status(ctx context.Context, resourceKey string) (queue.Snapshot, error)
	Start(ctx context.Context, token string) (started bool, err error)
	Stop(ctx context.Context) error
	Purge(ctx context.Context, queueName, resourceKey string) error
	Clear(ctx context.Context) error
	Processors(ctx context.Context) ([]string, error)
	// Events streams broadcast events matching filter until ctx ends,
	// onEvent fails or the server closes the stream.
	Events(ctx context.Context, filter string, onEvent func(events.Event) error) error
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "server returned status " + itoa(e.Status)
	}
	return e.Message + " (status " + itoa(e.Status) + ")"
}
