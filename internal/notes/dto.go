// Package notes is the consistency boundary over the note store: create
// dedup, batched mutation with per-item failure reporting, and the media
// lifecycle under the per-note cap.
package notes

import (
	"unicode/utf8"

	"github.com/notewellhq/notewell-backend/pkg/enums"
)

// shortContentMax bounds the derived preview attribute.
const shortContentMax = 60

// dedupIndexSK is the sort key of the per-owner dedup index item.
const dedupIndexSK = "#GLOBAL_IDS"

// NoteMedia is one entry of a note's media map, keyed by derived media id.
type NoteMedia struct {
	Key      string            `dynamodbav:"key" json:"key"`
	URL      string            `dynamodbav:"url" json:"url"`
	Type     string            `dynamodbav:"type" json:"type"`
	Size     int64             `dynamodbav:"size" json:"size"`
	Status   enums.MediaStatus `dynamodbav:"status" json:"status"`
	GlobalID string            `dynamodbav:"global_id" json:"global_id"`
}

// Note is the stored note item. PK is the owner id, SK the server-generated
// note id.
type Note struct {
	OwnerID           string               `dynamodbav:"PK" json:"owner_id"`
	NoteID            string               `dynamodbav:"SK" json:"note_id"`
	GlobalID          string               `dynamodbav:"global_id" json:"global_id"`
	Title             string               `dynamodbav:"title" json:"title"`
	Content           string               `dynamodbav:"content" json:"content"`
	ShortContent      string               `dynamodbav:"short_content" json:"short_content"`
	TimestampCreated  string               `dynamodbav:"timestamp_created" json:"timestamp_created"`
	TimestampModified string               `dynamodbav:"timestamp_modified" json:"timestamp_modified"`
	Medias            map[string]NoteMedia `dynamodbav:"medias" json:"medias"`
}

// CreateNoteInput is one entry of a batch create. GlobalID is the
// client-supplied idempotency key.
type CreateNoteInput struct {
	GlobalID string `json:"global_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

// CreateNoteResult annotates each input with either the resolved note or the
// error that kept it from being created. Siblings are unaffected.
type CreateNoteResult struct {
	GlobalID string `json:"global_id"`
	Note     *Note  `json:"note,omitempty"`
	Existing bool   `json:"existing"`
	Err      error  `json:"-"`
}

// UpdateNoteFields carries the mutable note attributes. Nil means unchanged.
type UpdateNoteFields struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// NotePage is one page of a newest-first listing. PageMark is absent on the
// final page.
type NotePage struct {
	Notes    []Note `json:"notes"`
	PageMark string `json:"page_mark,omitempty"`
}

// MediaInput is one media attachment request.
type MediaInput struct {
	GlobalID string `json:"global_id"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
}

// AddMediasResult distinguishes freshly stored entries from ones already
// present under the same media id.
type AddMediasResult struct {
	Added    map[string]NoteMedia `json:"added"`
	Existing map[string]NoteMedia `json:"existing"`
}

// shortContent derives the preview attribute, truncated on a rune boundary.
func shortContent(content string) string {
	if utf8.RuneCountInString(content) <= shortContentMax {
		return content
	}
	runes := []rune(content)
	return string(runes[:shortContentMax])
}
