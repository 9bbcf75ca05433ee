package notes

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/notewellhq/notewell-backend/pkg/config"
	"github.com/notewellhq/notewell-backend/pkg/enums"
	"github.com/notewellhq/notewell-backend/pkg/errors"
	"github.com/notewellhq/notewell-backend/pkg/logger"
	"github.com/notewellhq/notewell-backend/pkg/pagination"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store with the same conditional semantics as the
// real repository. Individual operations can be rigged to fail.
type memStore struct {
	mu    sync.Mutex
	index map[string]map[string]string
	notes map[string]map[string]Note

	failCreate map[string]error
	failDelete map[string]bool
	queryCalls int
}

func newMemStore() *memStore {
	return &memStore{
		index:      map[string]map[string]string{},
		notes:      map[string]map[string]Note{},
		failCreate: map[string]error{},
		failDelete: map[string]bool{},
	}
}

func (m *memStore) EnsureDedupIndex(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[ownerID]; !ok {
		m.index[ownerID] = map[string]string{}
	}
	return nil
}

func (m *memStore) GetDedupIndex(_ context.Context, ownerID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.index[ownerID] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) DeleteDedupIndex(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.index, ownerID)
	return nil
}

func (m *memStore) CreateNoteWithIndex(_ context.Context, note Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failCreate[note.GlobalID]; ok {
		return err
	}
	if _, ok := m.index[note.OwnerID]; !ok {
		return errors.New(errors.CodeDependency, "dedup index missing")
	}
	if m.notes[note.OwnerID] == nil {
		m.notes[note.OwnerID] = map[string]Note{}
	}
	m.notes[note.OwnerID][note.NoteID] = note
	m.index[note.OwnerID][note.GlobalID] = note.NoteID
	return nil
}

func (m *memStore) GetNote(_ context.Context, ownerID, noteID string) (*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.notes[ownerID][noteID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "note not found")
	}
	copied := note
	return &copied, nil
}

func (m *memStore) BatchGetNotes(_ context.Context, ownerID string, noteIDs []string) (map[string]Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := map[string]Note{}
	for _, id := range noteIDs {
		if note, ok := m.notes[ownerID][id]; ok {
			found[id] = note
		}
	}
	return found, nil
}

func (m *memStore) UpdateNote(_ context.Context, ownerID, noteID string, fields UpdateNoteFields, modifiedAt string) (*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.notes[ownerID][noteID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "note not found")
	}
	if fields.Title != nil {
		note.Title = *fields.Title
	}
	if fields.Content != nil {
		note.Content = *fields.Content
		note.ShortContent = shortContent(*fields.Content)
	}
	note.TimestampModified = modifiedAt
	m.notes[ownerID][noteID] = note
	return &note, nil
}

func (m *memStore) DeleteNotesBatch(_ context.Context, ownerID string, noteIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []string
	for _, id := range noteIDs {
		if m.failDelete[id] {
			failed = append(failed, id)
			continue
		}
		delete(m.notes[ownerID], id)
	}
	return failed, nil
}

func (m *memStore) sortedNotes(ownerID string) []Note {
	all := make([]Note, 0, len(m.notes[ownerID]))
	for _, note := range m.notes[ownerID] {
		all = append(all, note)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].TimestampCreated != all[j].TimestampCreated {
			return all[i].TimestampCreated > all[j].TimestampCreated
		}
		return all[i].NoteID > all[j].NoteID
	})
	return all
}

func (m *memStore) QueryPage(_ context.Context, ownerID string, limit int32, cursor *pagination.Cursor) ([]Note, *pagination.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++

	all := m.sortedNotes(ownerID)
	start := 0
	if cursor != nil {
		for i, note := range all {
			if note.NoteID == cursor.NoteID {
				start = i + 1
				break
			}
		}
	}

	end := min(start+int(limit), len(all))
	page := all[start:end]

	var next *pagination.Cursor
	if end < len(all) {
		last := page[len(page)-1]
		next = &pagination.Cursor{OwnerID: ownerID, NoteID: last.NoteID, CreatedAt: last.TimestampCreated}
	}
	return page, next, nil
}

func (m *memStore) QueryIDsPage(_ context.Context, ownerID string, limit int32) ([]Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++

	all := m.sortedNotes(ownerID)
	if int(limit) < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *memStore) AddMedias(_ context.Context, ownerID, noteID string, medias map[string]NoteMedia, modifiedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.notes[ownerID][noteID]
	if !ok {
		return errors.New(errors.CodeNotFound, "note not found")
	}
	if note.Medias == nil {
		note.Medias = map[string]NoteMedia{}
	}
	for id, media := range medias {
		note.Medias[id] = media
	}
	note.TimestampModified = modifiedAt
	m.notes[ownerID][noteID] = note
	return nil
}

func (m *memStore) SetMediaStatus(_ context.Context, ownerID, noteID string, mediaIDs []string, status string, modifiedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.notes[ownerID][noteID]
	if !ok {
		return errors.New(errors.CodeNotFound, "note or media not found")
	}
	for _, id := range mediaIDs {
		if _, ok := note.Medias[id]; !ok {
			return errors.New(errors.CodeNotFound, "note or media not found")
		}
	}
	for _, id := range mediaIDs {
		media := note.Medias[id]
		media.Status = enums.MediaStatus(status)
		note.Medias[id] = media
	}
	note.TimestampModified = modifiedAt
	m.notes[ownerID][noteID] = note
	return nil
}

func (m *memStore) RemoveMedias(_ context.Context, ownerID, noteID string, mediaIDs []string, modifiedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.notes[ownerID][noteID]
	if !ok {
		return errors.New(errors.CodeNotFound, "note not found")
	}
	for _, id := range mediaIDs {
		delete(note.Medias, id)
	}
	note.TimestampModified = modifiedAt
	m.notes[ownerID][noteID] = note
	return nil
}

type stubURLs struct{}

func (stubURLs) PublicURL(key string) string { return "https://cdn.test/" + key }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(store, stubURLs{}, testLogger(), config.NotesConfig{
		MaxMediasPerNote: 3,
		DeletePageSize:   50,
	})
	require.NoError(t, err)

	// Deterministic, strictly increasing clock.
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return svc
}
