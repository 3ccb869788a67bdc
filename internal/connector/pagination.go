package connector

import (
	"encoding/json"
	"fmt"
)

// NormalizeItems tolerates servers that return null, [], or a missing key
// in place of an items array, always yielding a non-nil empty slice
// instead of nil (§4.1 paginated-fetch tolerance requirement).
func NormalizeItems(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []json.RawMessage{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("normalize items: %w", err)
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, nil
}

// CursorPageDone reports whether a cursor-style pagination loop should
// stop: the server returned an empty cursor and a partial page (shorter
// than the requested page size).
func CursorPageDone(nextCursor string, itemCount, pageSize int) bool {
	return nextCursor == "" && itemCount < pageSize
}

// PageNumberDone reports whether a page-number-style pagination loop
// should stop: the server signalled hasMore=false, or returned fewer
// items than requested.
func PageNumberDone(hasMore bool, itemCount, pageSize int) bool {
	if !hasMore {
		return true
	}
	return itemCount < pageSize
}

// ChunkIDs splits ids into sub-batches whose serialized length (as a
// comma-joined string, the shape used by both SOQL WHERE IN and
// query-string "ids=" encodings) fits within maxSerializedLen. Each
// returned chunk, once joined and uppercased/quoted by the specific
// vendor encoder, is guaranteed to fit the vendor's query/URL limit
// (§4.1 batch-get-by-ids; Salesforce's ~3.6kB WHERE IN clause is the
// motivating case).
func ChunkIDs(ids []string, maxSerializedLen int) [][]string {
	if maxSerializedLen <= 0 {
		maxSerializedLen = 3600
	}
	var chunks [][]string
	var current []string
	currentLen := 0
	for _, id := range ids {
		// +3 approximates the per-id overhead of quoting and the
		// separating comma in the serialized clause.
		idLen := len(id) + 3
		if currentLen+idLen > maxSerializedLen && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			currentLen = 0
		}
		current = append(current, id)
		currentLen += idLen
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
