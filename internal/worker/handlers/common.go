// Package handlers implements the per-event-type reducers behind the queue
// worker: each folds a batch of messages into acknowledge and retry sets
// under the shared bounded-attempt policy.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/notewellhq/notewell-backend/internal/notes"
	"github.com/notewellhq/notewell-backend/internal/worker"
	"github.com/notewellhq/notewell-backend/pkg/enums"
	"github.com/notewellhq/notewell-backend/pkg/errors"
	"github.com/notewellhq/notewell-backend/pkg/logger"
	"github.com/notewellhq/notewell-backend/pkg/metrics"
	"github.com/notewellhq/notewell-backend/pkg/queue"
)

// MediaStatusUpdater flips media availability on notes.
type MediaStatusUpdater interface {
	UpdateMediaStatus(ctx context.Context, ownerID, noteID string, mediaIDs []string, status enums.MediaStatus) error
}

// NoteCascader is the consistency-layer slice the user delete cascade drives.
type NoteCascader interface {
	ListNotePage(ctx context.Context, ownerID string) ([]notes.Note, error)
	DeleteMultipleNotes(ctx context.Context, ownerID string, noteIDs []string) ([]string, error)
	DeleteDedupIndex(ctx context.Context, ownerID string) error
}

// ObjectStore is the object-store slice the cleanup handlers drive.
type ObjectStore interface {
	DeleteBatch(ctx context.Context, keys []string) ([]string, error)
	DeleteByPrefix(ctx context.Context, prefix string) ([]string, error)
	PublicURL(key string) string
}

// ProfilePhotoUpdater writes the confirmed photo URL onto the user record.
type ProfilePhotoUpdater interface {
	SetProfilePhoto(ctx context.Context, userID, photoURL string) error
}

// Body shapes for self-produced messages.

type DeleteMediasBody struct {
	Keys []string `json:"keys"`
}

type DeleteNotesBody struct {
	Prefixes []string `json:"prefixes"`
}

type DeleteUserBody struct {
	UserID string `json:"user_id"`
}

type DeleteProfilePhotoBody struct {
	Keys []string `json:"keys"`
}

// Policy is the retry/exhaustion behavior every handler shares.
type Policy struct {
	MaxAttempt int
	Log        *logger.Logger
	Metrics    *metrics.WorkerMetrics
}

func NewPolicy(maxAttempt int, log *logger.Logger, m *metrics.WorkerMetrics) (Policy, error) {
	if maxAttempt <= 0 {
		return Policy{}, fmt.Errorf("max attempt must be positive")
	}
	if log == nil {
		return Policy{}, fmt.Errorf("logger is required")
	}
	if m == nil {
		return Policy{}, fmt.Errorf("worker metrics are required")
	}
	return Policy{MaxAttempt: maxAttempt, Log: log, Metrics: m}, nil
}

// dropIfExhausted acknowledges a message that has hit the retry ceiling and
// reports whether it did. The drop is logged at fatal severity so it never
// disappears silently.
func (p Policy) dropIfExhausted(ctx context.Context, msg queue.Message, outcome *worker.Outcome) bool {
	if !msg.ExhaustedAt(p.MaxAttempt) {
		return false
	}
	p.Log.Fatal(p.Log.WithFields(ctx, map[string]any{
		"event_type": msg.Event.String(),
		"attempt":    msg.Attempt,
	}), "retry attempts exhausted, dropping message", nil)
	p.Metrics.IncExhausted(msg.Event.String(), 1)
	outcome.Ack(msg)
	return true
}

// resolveFailure folds a downstream error into the outcome for one message:
// retriable errors requeue, everything else is terminal with a fatal log.
func (p Policy) resolveFailure(ctx context.Context, msg queue.Message, err error, outcome *worker.Outcome) {
	if errors.Retryable(err) {
		outcome.RetryLater(msg)
		return
	}
	p.Log.Fatal(p.Log.WithFields(ctx, map[string]any{
		"event_type": msg.Event.String(),
		"attempt":    msg.Attempt,
	}), "terminal failure, dropping message", err)
	outcome.Ack(msg)
}

// repackage builds a fresh self-produced message carrying leftover work, with
// the attempt counter advanced past the highest contributing attempt.
func repackage(event enums.EventType, attempt int, body any) (queue.Message, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return queue.Message{}, fmt.Errorf("marshalling repackaged body: %w", err)
	}
	return queue.Message{
		Source:  enums.SourceQueueService,
		Event:   event,
		Attempt: attempt + 1,
		Body:    payload,
	}, nil
}

// retriableCascadeError marks incomplete cascade progress as retriable so the
// message requeues instead of dropping.
func retriableCascadeError(msg string) error {
	return errors.New(errors.CodeConflict, msg)
}

func maxAttemptOf(msgs []queue.Message) int {
	highest := 0
	for _, msg := range msgs {
		if msg.Attempt > highest {
			highest = msg.Attempt
		}
	}
	return highest
}
