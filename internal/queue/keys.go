package queue

// Keyspace: q/entry/{id}. Ids sort byte-wise, so a prefix scan returns
// entries ordered by id.

var entryPrefix = []byte("q/entry/")

// EntryPrefix returns the scan prefix covering every entry.
func EntryPrefix() []byte { return append([]byte(nil), entryPrefix...) }

// EntryKey returns the storage key for an entry id.
func EntryKey(id string) []byte {
	k := make([]byte, 0, len(entryPrefix)+len(id))
	k = append(k, entryPrefix...)
	return append(k, id...)
}

// IDFromKey strips the entry prefix; ok is false for foreign keys.
func IDFromKey(key []byte) (string, bool) {
	if len(key) < len(entryPrefix) || string(key[:len(entryPrefix)]) != string(entryPrefix) {
		return "", false
	}
	return string(key[len(entryPrefix):]), true
}
