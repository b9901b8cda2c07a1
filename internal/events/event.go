package events

// Kind names a lifecycle event.
type Kind string

const (
	KindProcessingStart Kind = "processing-start"
	KindReady           Kind = "ready"
	KindProcessing      Kind = "processing"
	KindProcessed       Kind = "processed"
	KindError           Kind = "error"
	KindDrained         Kind = "drained"
	KindStopped         Kind = "stopped"
)

// Kinds lists every event kind in lifecycle order.
var Kinds = []Kind{KindProcessingStart, KindReady, KindProcessing, KindProcessed, KindError, KindDrained, KindStopped}

// Terminal reports whether k ends a processing run.
func (k Kind) Terminal() bool { return k == KindDrained || k == KindStopped }

// Event is broadcast to every subscriber. QueueName and ResourceKey are empty
// for run-level events (processing-start, drained, stopped).
type Event struct {
	ID          string `json:"id,omitempty"`
	Event       Kind   `json:"event"`
	QueueName   string `json:"queueName,omitempty"`
	ResourceKey string `json:"resourceKey,omitempty"`
	AtMs        int64  `json:"atMs,omitempty"`
}

// ForEntry builds an entry-scoped event.
func ForEntry(kind Kind, queueName, resourceKey string) Event {
	return Event{Event: kind, QueueName: queueName, ResourceKey: resourceKey}
}

// Run builds a run-level event.
func Run(kind Kind) Event { return Event{Event: kind} }
