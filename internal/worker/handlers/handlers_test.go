package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/notewellhq/notewell-backend/internal/notes"
	"github.com/notewellhq/notewell-backend/pkg/enums"
	"github.com/notewellhq/notewell-backend/pkg/errors"
	"github.com/notewellhq/notewell-backend/pkg/logger"
	"github.com/notewellhq/notewell-backend/pkg/metrics"
	"github.com/notewellhq/notewell-backend/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxAttempt = 3

func testPolicy(t *testing.T) Policy {
	t.Helper()
	log := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	policy, err := NewPolicy(testMaxAttempt, log, metrics.NewWorkerMetrics(nil))
	require.NoError(t, err)
	return policy
}

func queueMsg(t *testing.T, event enums.EventType, source enums.SourceType, attempt int, body any) queue.Message {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	return queue.Message{
		Source:        source,
		Event:         event,
		Attempt:       attempt,
		Body:          payload,
		ReceiptHandle: fmt.Sprintf("rh-%s-%d", event, attempt),
	}
}

func s3NotificationBody(t *testing.T, keys ...string) json.RawMessage {
	t.Helper()
	records := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		records = append(records, map[string]any{
			"s3": map[string]any{"object": map[string]any{"key": key}},
		})
	}
	payload, err := json.Marshal(map[string]any{"Records": records})
	require.NoError(t, err)
	return payload
}

// stubObjectStore records calls and marks keys in failKeys as undeleted.
type stubObjectStore struct {
	batches      [][]string
	prefixes     []string
	failKeys     map[string]bool
	prefixFailed map[string][]string
	err          error
	prefixErr    error
}

func (s *stubObjectStore) DeleteBatch(_ context.Context, keys []string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.batches = append(s.batches, keys)
	var failed []string
	for _, key := range keys {
		if s.failKeys[key] {
			failed = append(failed, key)
		}
	}
	return failed, nil
}

func (s *stubObjectStore) DeleteByPrefix(_ context.Context, prefix string) ([]string, error) {
	if s.prefixErr != nil {
		return nil, s.prefixErr
	}
	s.prefixes = append(s.prefixes, prefix)
	return s.prefixFailed[prefix], nil
}

func (s *stubObjectStore) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

type mediaStatusCall struct {
	ownerID  string
	noteID   string
	mediaIDs []string
	status   enums.MediaStatus
}

type stubMediaUpdater struct {
	calls []mediaStatusCall
	err   error
}

func (s *stubMediaUpdater) UpdateMediaStatus(_ context.Context, ownerID, noteID string, mediaIDs []string, status enums.MediaStatus) error {
	s.calls = append(s.calls, mediaStatusCall{ownerID: ownerID, noteID: noteID, mediaIDs: mediaIDs, status: status})
	return s.err
}

type stubPhotoUpdater struct {
	photos map[string]string
	err    error
}

func (s *stubPhotoUpdater) SetProfilePhoto(_ context.Context, userID, photoURL string) error {
	if s.err != nil {
		return s.err
	}
	if s.photos == nil {
		s.photos = map[string]string{}
	}
	s.photos[userID] = photoURL
	return nil
}

// stubCascader serves note pages in order, then empty pages forever.
type stubCascader struct {
	pages        [][]notes.Note
	listCalls    int
	deletedNotes [][]string
	failNoteIDs  map[string]bool
	indexDeleted []string
	listErr      error
}

func (s *stubCascader) ListNotePage(_ context.Context, _ string) ([]notes.Note, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.listCalls++
	if len(s.pages) == 0 {
		return nil, nil
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

func (s *stubCascader) DeleteMultipleNotes(_ context.Context, _ string, noteIDs []string) ([]string, error) {
	s.deletedNotes = append(s.deletedNotes, noteIDs)
	var failed []string
	for _, id := range noteIDs {
		if s.failNoteIDs[id] {
			failed = append(failed, id)
		}
	}
	return failed, nil
}

func (s *stubCascader) DeleteDedupIndex(_ context.Context, ownerID string) error {
	s.indexDeleted = append(s.indexDeleted, ownerID)
	return nil
}

func ownerNotes(ownerID string, count, mediasEach int) []notes.Note {
	page := make([]notes.Note, 0, count)
	for i := 0; i < count; i++ {
		noteID := fmt.Sprintf("note-%s-%d", ownerID, i)
		medias := map[string]notes.NoteMedia{}
		for j := 0; j < mediasEach; j++ {
			mediaID := fmt.Sprintf("media-%d", j)
			medias[mediaID] = notes.NoteMedia{
				Key: notes.NoteMediaKey(ownerID, noteID, mediaID),
			}
		}
		page = append(page, notes.Note{OwnerID: ownerID, NoteID: noteID, Medias: medias})
	}
	return page
}

func TestUnknownHandlerReplayTerminates(t *testing.T) {
	handler := NewUnknownHandler(testPolicy(t))
	msg := queueMsg(t, enums.EventUnknown, enums.SourceNoteService, 0, map[string]any{"weird": true})

	// Feed each retry copy back in; the attempt ceiling must stop the loop.
	rounds := 0
	for {
		require.Less(t, rounds, testMaxAttempt+2, "replay loop never exhausted")
		outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
		require.NoError(t, err)
		require.Len(t, outcome.Acknowledge, 1)
		if len(outcome.Retry) == 0 {
			break
		}
		require.Len(t, outcome.Retry, 1)
		bumped := outcome.Retry[0]
		assert.Equal(t, enums.SourceQueueService, bumped.Source)
		assert.Equal(t, msg.Attempt+1, bumped.Attempt)
		assert.Empty(t, bumped.ReceiptHandle)
		msg = bumped
		rounds++
	}
	assert.Equal(t, testMaxAttempt, msg.Attempt)
}

func TestDeleteMediasBatchesAcrossMessages(t *testing.T) {
	store := &stubObjectStore{}
	handler, err := NewDeleteMediasHandler(testPolicy(t), store)
	require.NoError(t, err)

	msgs := []queue.Message{
		queueMsg(t, enums.EventDeleteMedias, enums.SourceNoteService, 0, DeleteMediasBody{Keys: []string{"notes/o1/n1/m1", "notes/o1/n1/m2"}}),
		queueMsg(t, enums.EventDeleteMedias, enums.SourceNoteService, 0, DeleteMediasBody{Keys: []string{"notes/o2/n3/m1"}}),
	}
	outcome, err := handler.Handle(context.Background(), msgs)
	require.NoError(t, err)

	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 3)
	assert.Len(t, outcome.Acknowledge, 2)
	assert.Empty(t, outcome.Retry)
}

func TestDeleteMediasRepackagesUndeleted(t *testing.T) {
	store := &stubObjectStore{failKeys: map[string]bool{"notes/o1/n1/m2": true}}
	handler, err := NewDeleteMediasHandler(testPolicy(t), store)
	require.NoError(t, err)

	msg := queueMsg(t, enums.EventDeleteMedias, enums.SourceQueueService, 1, DeleteMediasBody{Keys: []string{"notes/o1/n1/m1", "notes/o1/n1/m2"}})
	outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
	require.NoError(t, err)

	require.Len(t, outcome.Acknowledge, 1)
	require.Len(t, outcome.Retry, 1)

	retry := outcome.Retry[0]
	assert.Equal(t, enums.SourceQueueService, retry.Source)
	assert.Equal(t, enums.EventDeleteMedias, retry.Event)
	assert.Equal(t, 2, retry.Attempt)

	var body DeleteMediasBody
	require.NoError(t, json.Unmarshal(retry.Body, &body))
	assert.Equal(t, []string{"notes/o1/n1/m2"}, body.Keys)
}

func TestDeleteMediasStoreFailureClassification(t *testing.T) {
	t.Run("retriable requeues survivors", func(t *testing.T) {
		store := &stubObjectStore{err: errors.New(errors.CodeRateLimit, "throttled")}
		handler, err := NewDeleteMediasHandler(testPolicy(t), store)
		require.NoError(t, err)

		msg := queueMsg(t, enums.EventDeleteMedias, enums.SourceNoteService, 0, DeleteMediasBody{Keys: []string{"notes/o1/n1/m1"}})
		outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
		require.NoError(t, err)
		require.Len(t, outcome.Retry, 1)
		assert.Equal(t, 1, outcome.Retry[0].Attempt)
	})

	t.Run("terminal drops survivors", func(t *testing.T) {
		store := &stubObjectStore{err: errors.New(errors.CodeDependency, "bucket gone")}
		handler, err := NewDeleteMediasHandler(testPolicy(t), store)
		require.NoError(t, err)

		msg := queueMsg(t, enums.EventDeleteMedias, enums.SourceNoteService, 0, DeleteMediasBody{Keys: []string{"notes/o1/n1/m1"}})
		outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
		require.NoError(t, err)
		assert.Len(t, outcome.Acknowledge, 1)
		assert.Empty(t, outcome.Retry)
	})
}

func TestDeleteMediasDropsExhaustedWithoutStoreCall(t *testing.T) {
	store := &stubObjectStore{}
	handler, err := NewDeleteMediasHandler(testPolicy(t), store)
	require.NoError(t, err)

	msg := queueMsg(t, enums.EventDeleteMedias, enums.SourceQueueService, testMaxAttempt, DeleteMediasBody{Keys: []string{"notes/o1/n1/m1"}})
	outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
	require.NoError(t, err)

	assert.Len(t, outcome.Acknowledge, 1)
	assert.Empty(t, outcome.Retry)
	assert.Empty(t, store.batches)
}

func TestDeleteMediasUnreadableBodyAcked(t *testing.T) {
	store := &stubObjectStore{}
	handler, err := NewDeleteMediasHandler(testPolicy(t), store)
	require.NoError(t, err)

	msg := queue.Message{
		Source:        enums.SourceNoteService,
		Event:         enums.EventDeleteMedias,
		Body:          json.RawMessage(`{"keys": "not-a-list"`),
		ReceiptHandle: "rh-bad",
	}
	outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
	require.NoError(t, err)
	assert.Len(t, outcome.Acknowledge, 1)
	assert.Empty(t, store.batches)
}

func TestDeleteNotesSweepsPrefixesAndRepackagesLeftovers(t *testing.T) {
	store := &stubObjectStore{
		prefixFailed: map[string][]string{
			"notes/o1/n2/": {"notes/o1/n2/m7"},
		},
	}
	handler, err := NewDeleteNotesHandler(testPolicy(t), store)
	require.NoError(t, err)

	msg := queueMsg(t, enums.EventDeleteNotes, enums.SourceNoteService, 0, DeleteNotesBody{
		Prefixes: []string{"notes/o1/n1/", "notes/o1/n2/"},
	})
	outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
	require.NoError(t, err)

	assert.Equal(t, []string{"notes/o1/n1/", "notes/o1/n2/"}, store.prefixes)
	require.Len(t, outcome.Acknowledge, 1)
	require.Len(t, outcome.Retry, 1)

	// Leftovers continue as a concrete key delete, not another prefix sweep.
	retry := outcome.Retry[0]
	assert.Equal(t, enums.EventDeleteMedias, retry.Event)
	assert.Equal(t, 1, retry.Attempt)
	var body DeleteMediasBody
	require.NoError(t, json.Unmarshal(retry.Body, &body))
	assert.Equal(t, []string{"notes/o1/n2/m7"}, body.Keys)
}

func TestDeleteUserCascadeDrainsEveryPage(t *testing.T) {
	cascader := &stubCascader{pages: [][]notes.Note{
		ownerNotes("owner-1", 50, 2),
		ownerNotes("owner-1", 50, 2),
		ownerNotes("owner-1", 50, 0),
	}}
	store := &stubObjectStore{}
	handler, err := NewDeleteUserHandler(testPolicy(t), cascader, store)
	require.NoError(t, err)

	msg := queueMsg(t, enums.EventDeleteUser, enums.SourceNoteService, 0, DeleteUserBody{UserID: "owner-1"})
	outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
	require.NoError(t, err)

	assert.Len(t, outcome.Acknowledge, 1)
	assert.Empty(t, outcome.Retry)

	// Three populated pages plus the terminating empty one.
	assert.Equal(t, 4, cascader.listCalls)

	total := 0
	for _, batch := range cascader.deletedNotes {
		total += len(batch)
	}
	assert.Equal(t, 150, total)

	mediaKeys := 0
	for _, batch := range store.batches {
		mediaKeys += len(batch)
	}
	assert.Equal(t, 200, mediaKeys)

	assert.Equal(t, []string{"owner-1"}, cascader.indexDeleted)
}

func TestDeleteUserRedeliveryIsOneEmptyPage(t *testing.T) {
	cascader := &stubCascader{}
	store := &stubObjectStore{}
	handler, err := NewDeleteUserHandler(testPolicy(t), cascader, store)
	require.NoError(t, err)

	msg := queueMsg(t, enums.EventDeleteUser, enums.SourceQueueService, 1, DeleteUserBody{UserID: "owner-1"})
	outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
	require.NoError(t, err)

	assert.Len(t, outcome.Acknowledge, 1)
	assert.Empty(t, outcome.Retry)
	assert.Equal(t, 1, cascader.listCalls)
	assert.Empty(t, store.batches)
	assert.Equal(t, []string{"owner-1"}, cascader.indexDeleted)
}

func TestDeleteUserIncompletePageRequeues(t *testing.T) {
	cascader := &stubCascader{
		pages:       [][]notes.Note{ownerNotes("owner-1", 3, 0)},
		failNoteIDs: map[string]bool{"note-owner-1-1": true},
	}
	handler, err := NewDeleteUserHandler(testPolicy(t), cascader, &stubObjectStore{})
	require.NoError(t, err)

	msg := queueMsg(t, enums.EventDeleteUser, enums.SourceNoteService, 0, DeleteUserBody{UserID: "owner-1"})
	outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
	require.NoError(t, err)

	require.Len(t, outcome.Retry, 1)
	assert.Equal(t, enums.SourceQueueService, outcome.Retry[0].Source)
	assert.Equal(t, 1, outcome.Retry[0].Attempt)
	// No dedup index delete while notes remain.
	assert.Empty(t, cascader.indexDeleted)
}

func TestCreateObjectFlipsMediaStatusPerNote(t *testing.T) {
	medias := &stubMediaUpdater{}
	identity := &stubPhotoUpdater{}
	store := &stubObjectStore{}
	handler, err := NewCreateObjectHandler(testPolicy(t), medias, identity, store)
	require.NoError(t, err)

	msgs := []queue.Message{
		{
			Source:        enums.SourceObjectStore,
			Event:         enums.EventCreateObject,
			Body:          s3NotificationBody(t, "notes/o1/n1/m1", "notes/o1/n1/m2"),
			ReceiptHandle: "rh-1",
		},
		{
			Source:        enums.SourceObjectStore,
			Event:         enums.EventCreateObject,
			Body:          s3NotificationBody(t, "notes/o1/n2/m1"),
			ReceiptHandle: "rh-2",
		},
	}
	outcome, err := handler.Handle(context.Background(), msgs)
	require.NoError(t, err)

	assert.Len(t, outcome.Acknowledge, 2)
	assert.Empty(t, outcome.Retry)

	// One status flip per note, medias batched within it.
	require.Len(t, medias.calls, 2)
	byNote := map[string][]string{}
	for _, call := range medias.calls {
		assert.Equal(t, "o1", call.ownerID)
		assert.Equal(t, enums.MediaStatusAvailable, call.status)
		byNote[call.noteID] = call.mediaIDs
	}
	assert.ElementsMatch(t, []string{"m1", "m2"}, byNote["n1"])
	assert.Equal(t, []string{"m1"}, byNote["n2"])
}

func TestCreateObjectProfilePhotoDecodesKey(t *testing.T) {
	medias := &stubMediaUpdater{}
	identity := &stubPhotoUpdater{}
	store := &stubObjectStore{}
	handler, err := NewCreateObjectHandler(testPolicy(t), medias, identity, store)
	require.NoError(t, err)

	msg := queue.Message{
		Source:        enums.SourceObjectStore,
		Event:         enums.EventCreateObject,
		Body:          s3NotificationBody(t, "profile-photos/user-1/photo+1.png"),
		ReceiptHandle: "rh-1",
	}
	outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
	require.NoError(t, err)

	assert.Len(t, outcome.Acknowledge, 1)
	assert.Equal(t, "https://cdn.test/profile-photos/user-1/photo 1.png", identity.photos["user-1"])
	assert.Empty(t, medias.calls)
}

func TestCreateObjectMissingNoteIsSuccess(t *testing.T) {
	medias := &stubMediaUpdater{err: errors.New(errors.CodeNotFound, "note or media not found")}
	handler, err := NewCreateObjectHandler(testPolicy(t), medias, &stubPhotoUpdater{}, &stubObjectStore{})
	require.NoError(t, err)

	msg := queue.Message{
		Source:        enums.SourceObjectStore,
		Event:         enums.EventCreateObject,
		Body:          s3NotificationBody(t, "notes/o1/n1/m1"),
		ReceiptHandle: "rh-1",
	}
	outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
	require.NoError(t, err)
	assert.Len(t, outcome.Acknowledge, 1)
	assert.Empty(t, outcome.Retry)
}

func TestCreateObjectRetryableStatusFailureRequeues(t *testing.T) {
	medias := &stubMediaUpdater{err: errors.New(errors.CodeConflict, "transaction conflict")}
	handler, err := NewCreateObjectHandler(testPolicy(t), medias, &stubPhotoUpdater{}, &stubObjectStore{})
	require.NoError(t, err)

	msg := queue.Message{
		Source:        enums.SourceObjectStore,
		Event:         enums.EventCreateObject,
		Body:          s3NotificationBody(t, "notes/o1/n1/m1"),
		ReceiptHandle: "rh-1",
	}
	outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
	require.NoError(t, err)

	require.Len(t, outcome.Retry, 1)
	assert.Equal(t, enums.SourceQueueService, outcome.Retry[0].Source)
	assert.Equal(t, 1, outcome.Retry[0].Attempt)
}

func TestCreateObjectUnknownPrefixDropped(t *testing.T) {
	medias := &stubMediaUpdater{}
	handler, err := NewCreateObjectHandler(testPolicy(t), medias, &stubPhotoUpdater{}, &stubObjectStore{})
	require.NoError(t, err)

	msg := queue.Message{
		Source:        enums.SourceObjectStore,
		Event:         enums.EventCreateObject,
		Body:          s3NotificationBody(t, "exports/owner-1/dump.csv"),
		ReceiptHandle: "rh-1",
	}
	outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
	require.NoError(t, err)
	assert.Len(t, outcome.Acknowledge, 1)
	assert.Empty(t, outcome.Retry)
	assert.Empty(t, medias.calls)
}

func TestDeleteProfilePhotoOriginDeliverySingleBatch(t *testing.T) {
	store := &stubObjectStore{}
	handler, err := NewDeleteProfilePhotoHandler(testPolicy(t), store, 2, 0)
	require.NoError(t, err)

	msg := queueMsg(t, enums.EventDeleteProfilePhoto, enums.SourceNoteService, 0, DeleteProfilePhotoBody{
		Keys: []string{"profile-photos/u1/a.png", "profile-photos/u1/b.png", "profile-photos/u1/c.png"},
	})
	outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
	require.NoError(t, err)

	assert.Len(t, outcome.Acknowledge, 1)
	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 3)
}

func TestDeleteProfilePhotoReattemptThrottlesSubBatches(t *testing.T) {
	store := &stubObjectStore{failKeys: map[string]bool{"profile-photos/u1/e.png": true}}
	handler, err := NewDeleteProfilePhotoHandler(testPolicy(t), store, 2, 0)
	require.NoError(t, err)

	msg := queueMsg(t, enums.EventDeleteProfilePhoto, enums.SourceQueueService, 1, DeleteProfilePhotoBody{
		Keys: []string{
			"profile-photos/u1/a.png",
			"profile-photos/u1/b.png",
			"profile-photos/u1/c.png",
			"profile-photos/u1/d.png",
			"profile-photos/u1/e.png",
		},
	})
	outcome, err := handler.Handle(context.Background(), []queue.Message{msg})
	require.NoError(t, err)

	require.Len(t, store.batches, 3)
	assert.Len(t, store.batches[0], 2)
	assert.Len(t, store.batches[1], 2)
	assert.Len(t, store.batches[2], 1)

	require.Len(t, outcome.Retry, 1)
	var body DeleteProfilePhotoBody
	require.NoError(t, json.Unmarshal(outcome.Retry[0].Body, &body))
	assert.Equal(t, []string{"profile-photos/u1/e.png"}, body.Keys)
	assert.Equal(t, 2, outcome.Retry[0].Attempt)
}

func TestNewPolicyValidation(t *testing.T) {
	log := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	_, err := NewPolicy(0, log, metrics.NewWorkerMetrics(nil))
	require.Error(t, err)

	_, err = NewPolicy(3, nil, metrics.NewWorkerMetrics(nil))
	require.Error(t, err)

	_, err = NewPolicy(3, log, nil)
	require.Error(t, err)
}
