package purldb

import (
	"encoding/json"
	"time"
)

// HistoryTimestampFormat is the layout used for ledger entry timestamps.
// It is second-precision and must match what existing stores hold.
const HistoryTimestampFormat = `2006-01-02-15:04:05`

// HistoryEntry is one record in a package's audit trail.
type HistoryEntry struct {
	// Timestamp is the entry creation time, formatted with
	// [HistoryTimestampFormat].
	Timestamp string `json:"timestamp"`
	// Message is a human-readable description of the event, including the
	// originating collector or harvest item where known.
	Message string `json:"message"`
	// Data holds structured detail, such as the field diff of a merge.
	Data map[string]interface{} `json:"data"`
}

// History is the append-only ledger of creation and mutation events for a
// package. Entries are ordered oldest-first and are never edited or removed.
//
// The zero History is ready for use.
type History struct {
	entries []HistoryEntry
}

// Append records a new entry at the current time.
func (h *History) Append(message string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	h.entries = append(h.entries, HistoryEntry{
		Timestamp: time.Now().UTC().Format(HistoryTimestampFormat),
		Message:   message,
		Data:      data,
	})
}

// Entries returns the ledger oldest-first.
//
// The returned slice must not be modified.
func (h *History) Entries() []HistoryEntry {
	return h.entries
}

// Len reports the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}

// MarshalJSON implements [json.Marshaler]. The ledger serializes as a bare
// JSON array for the backing jsonb column.
func (h History) MarshalJSON() ([]byte, error) {
	if h.entries == nil {
		return []byte(`[]`), nil
	}
	return json.Marshal(h.entries)
}

// UnmarshalJSON implements [json.Unmarshaler].
func (h *History) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &h.entries)
}
