package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many notes any page query can request.
	MaxLimit = 100
)

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit    int
	PageMark string
}

// Cursor carries the note-store continuation key between pages. It mirrors
// the key attributes of the creation-time index so the store can resume the
// query exactly where the previous page stopped.
type Cursor struct {
	OwnerID   string `json:"owner_id"`
	NoteID    string `json:"note_id"`
	CreatedAt string `json:"created_at"`
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EncodeCursor builds an opaque base64 page mark from the cursor.
func EncodeCursor(cursor Cursor) string {
	payload, _ := json.Marshal(cursor)
	return base64.StdEncoding.EncodeToString(payload)
}

// ParseCursor decodes a page mark back into its components. An empty mark
// yields a nil cursor, meaning "start from the newest note".
func ParseCursor(value string) (*Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode page mark: %w", err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return nil, fmt.Errorf("invalid page mark format: %w", err)
	}
	if cursor.OwnerID == "" || cursor.NoteID == "" || cursor.CreatedAt == "" {
		return nil, fmt.Errorf("incomplete page mark")
	}
	return &cursor, nil
}
