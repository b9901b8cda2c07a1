package log

import "time"

// Field is a single structured key/value pair.
type Field struct {
	Key   string
	Value any
}

// F builds a field from any value.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

func Str(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Dur records a duration as its string form.
func Dur(key string, d time.Duration) Field { return Field{Key: key, Value: d.String()} }

// Err records err under the "error" key. A nil error is recorded as "<nil>".
func Err(err error) Field {
	if err == nil {
		return Field{Key: ErrorKey, Value: "<nil>"}
	}
	return Field{Key: ErrorKey, Value: err.Error()}
}

// Component tags an entry with the emitting component.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }

// Queue and Resource tag an entry with the queue entry it concerns.
func Queue(name string) Field { return Field{Key: QueueKey, Value: name} }
func Resource(key string) Field { return Field{Key: ResourceKey, Value: key} }
