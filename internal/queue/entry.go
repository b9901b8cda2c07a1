package queue

import (
	"encoding/json"
	"strings"
)

// Status is the lifecycle state of a stored entry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusError:
		return true
	}
	return false
}

// IDSeparator joins queue name and resource key into an entry id.
const IDSeparator = "::"

// MakeID returns the composite id for (queueName, resourceKey).
func MakeID(queueName, resourceKey string) string {
	return queueName + IDSeparator + resourceKey
}

// SplitID is the inverse of MakeID. The queue name ends at the first separator.
func SplitID(id string) (queueName, resourceKey string, ok bool) {
	return strings.Cut(id, IDSeparator)
}

// Entry is one unit of persisted work. At most one exists per composite id.
type Entry struct {
	ID              string          `json:"id"`
	QueueName       string          `json:"queueName"`
	ResourceKey     string          `json:"resourceKey"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	LastUpdatedAtMs int64           `json:"lastUpdatedAt"`
	CoalesceUntilMs int64           `json:"coalesceUntil"`
	Status          Status          `json:"status"`
}

// Ready reports whether the engine may pick e at nowMs.
func (e Entry) Ready(nowMs int64) bool {
	return e.Status == StatusPending && e.CoalesceUntilMs <= nowMs
}

// Summary drops the payload.
func (e Entry) Summary() Summary {
	return Summary{
		ID:              e.ID,
		QueueName:       e.QueueName,
		ResourceKey:     e.ResourceKey,
		Status:          e.Status,
		LastUpdatedAtMs: e.LastUpdatedAtMs,
		CoalesceUntilMs: e.CoalesceUntilMs,
	}
}

// Summary is an Entry without its payload, as returned by status queries.
type Summary struct {
	ID              string `json:"id"`
	QueueName       string `json:"queueName"`
	ResourceKey     string `json:"resourceKey"`
	Status          Status `json:"status"`
	LastUpdatedAtMs int64  `json:"lastUpdatedAt"`
	CoalesceUntilMs int64  `json:"coalesceUntil"`
}

// Snapshot answers a status query.
type Snapshot struct {
	Processing bool      `json:"processing"`
	Items      []Summary `json:"items"`
}

// Summarize builds a snapshot from entries, keeping only those whose
// resource key equals filter when filter is non-empty.
func Summarize(processing bool, entries []Entry, filter string) Snapshot {
	snap := Snapshot{Processing: processing, Items: make([]Summary, 0, len(entries))}
	for _, e := range entries {
		if filter != "" && e.ResourceKey != filter {
			continue
		}
		snap.Items = append(snap.Items, e.Summary())
	}
	return snap
}

// MostRecent returns the index of the entry with the greatest LastUpdatedAtMs,
// breaking ties by lowest id, or -1 for an empty slice.
func MostRecent(entries []Entry) int {
	best := -1
	for i, e := range entries {
		if best < 0 {
			best = i
			continue
		}
		b := entries[best]
		if e.LastUpdatedAtMs > b.LastUpdatedAtMs ||
			(e.LastUpdatedAtMs == b.LastUpdatedAtMs && e.ID < b.ID) {
			best = i
		}
	}
	return best
}
