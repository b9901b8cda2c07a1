package queue

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
)

// Record encoding: headerLen(4B BE) | header JSON | payload | crc32c(header|payload).
// The header carries every Entry field except Payload.

// ErrCorrupt marks a record that is truncated or fails its checksum.
var ErrCorrupt = errors.New("queue: corrupt record")

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type recordHeader struct {
	ID              string `json:"id"`
	QueueName       string `json:"q"`
	ResourceKey     string `json:"k"`
	LastUpdatedAtMs int64  `json:"u"`
	CoalesceUntilMs int64  `json:"c"`
	Status          Status `json:"s"`
}

// EncodeEntry serializes e for storage.
func EncodeEntry(e Entry) ([]byte, error) {
	header, err := json.Marshal(recordHeader{
		ID:              e.ID,
		QueueName:       e.QueueName,
		ResourceKey:     e.ResourceKey,
		LastUpdatedAtMs: e.LastUpdatedAtMs,
		CoalesceUntilMs: e.CoalesceUntilMs,
		Status:          e.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("queue: encode header: %w", err)
	}
	out := make([]byte, 4, 4+len(header)+len(e.Payload)+4)
	binary.BigEndian.PutUint32(out, uint32(len(header)))
	out = append(out, header...)
	out = append(out, e.Payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, e.Payload)
	return binary.BigEndian.AppendUint32(out, crc), nil
}

// DecodeEntry parses a record written by EncodeEntry. The returned entry does
// not alias b.
func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < 8 {
		return Entry{}, ErrCorrupt
	}
	hlen := int(binary.BigEndian.Uint32(b))
	if hlen > len(b)-8 {
		return Entry{}, ErrCorrupt
	}
	header := b[4 : 4+hlen]
	payload := b[4+hlen : len(b)-4]
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return Entry{}, ErrCorrupt
	}

	var h recordHeader
	if err := json.Unmarshal(header, &h); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	e := Entry{
		ID:              h.ID,
		QueueName:       h.QueueName,
		ResourceKey:     h.ResourceKey,
		LastUpdatedAtMs: h.LastUpdatedAtMs,
		CoalesceUntilMs: h.CoalesceUntilMs,
		Status:          h.Status,
	}
	if len(payload) > 0 {
		e.Payload = append(json.RawMessage(nil), payload...)
	}
	return e, nil
}
