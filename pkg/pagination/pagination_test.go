package pagination

import (
	"testing"
)

func TestNormalizeLimit(t *testing.T) {
	if got := NormalizeLimit(0); got != DefaultLimit {
		t.Fatalf("expected default limit, got %d", got)
	}
	if got := NormalizeLimit(-3); got != DefaultLimit {
		t.Fatalf("expected default limit for negative input, got %d", got)
	}
	if got := NormalizeLimit(500); got != MaxLimit {
		t.Fatalf("expected max limit cap, got %d", got)
	}
	if got := NormalizeLimit(40); got != 40 {
		t.Fatalf("expected passthrough, got %d", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	cursor := Cursor{
		OwnerID:   "owner-1",
		NoteID:    "note-9",
		CreatedAt: "2026-03-14T09:26:53Z",
	}

	mark := EncodeCursor(cursor)
	parsed, err := ParseCursor(mark)
	if err != nil {
		t.Fatalf("ParseCursor: %v", err)
	}
	if parsed == nil {
		t.Fatal("expected cursor, got nil")
	}
	if parsed.OwnerID != cursor.OwnerID || parsed.NoteID != cursor.NoteID || parsed.CreatedAt != cursor.CreatedAt {
		t.Fatalf("cursor did not round-trip: %+v", parsed)
	}
}

func TestParseCursorEmpty(t *testing.T) {
	parsed, err := ParseCursor("  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != nil {
		t.Fatal("blank page mark should yield nil cursor")
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if _, err := ParseCursor("not-base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := ParseCursor("aGVsbG8="); err == nil {
		t.Fatal("expected error for non-JSON payload")
	}
}
