package host

import (
	"encoding/json"

	"github.com/rzbill/syncq/internal/queue"
)

// Kind identifies a command sent to the host.
type Kind string

const (
	KindEnqueue       Kind = "QUEUE_ENQUEUE"
	KindStatus        Kind = "QUEUE_STATUS"
	KindStart         Kind = "QUEUE_START"
	KindStop          Kind = "QUEUE_STOP"
	KindPurgeResource Kind = "QUEUE_PURGE_RESOURCE"
	KindClearAll      Kind = "QUEUE_CLEAR_ALL"
)

// Command is one request to the host. Reply is optional; when set, the host
// sends exactly one Reply carrying the same ReplyID.
type Command struct {
	Kind        Kind            `json:"type"`
	ReplyID     string          `json:"replyId,omitempty"`
	QueueName   string          `json:"queueName,omitempty"`
	ResourceKey string          `json:"resourceKey,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Token       string          `json:"token,omitempty"`

	Reply chan<- Reply `json:"-"`
}

// Reply answers a Command.
type Reply struct {
	ReplyID string          `json:"replyId"`
	OK      bool            `json:"ok"`
	Status  *queue.Snapshot `json:"status,omitempty"`
	Entry   *queue.Summary  `json:"entry,omitempty"`
	// Started is set for START: whether a run actually began. OK is true
	// either way.
	Started bool   `json:"started,omitempty"`
	Error   string `json:"error,omitempty"`

	// Err keeps the original error for in-process callers.
	Err error `json:"-"`
}
