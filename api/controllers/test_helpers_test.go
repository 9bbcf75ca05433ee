package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/notewellhq/notewell-backend/api/middleware"
	"github.com/notewellhq/notewell-backend/internal/notes"
	"github.com/notewellhq/notewell-backend/pkg/logger"
	"github.com/notewellhq/notewell-backend/pkg/pagination"
	"github.com/notewellhq/notewell-backend/pkg/queue"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

// authedRequest builds a request carrying the owner context and, optionally,
// a chi URL parameter.
func authedRequest(t *testing.T, method, target, ownerID, body string, urlParams map[string]string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req = req.WithContext(middleware.WithOwnerID(req.Context(), ownerID))
	if len(urlParams) > 0 {
		routeCtx := chi.NewRouteContext()
		for key, value := range urlParams {
			routeCtx.URLParams.Add(key, value)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	}
	return req
}

type testNoteService struct {
	createFn func(ctx context.Context, ownerID string, inputs []notes.CreateNoteInput) ([]notes.CreateNoteResult, error)
	getFn    func(ctx context.Context, ownerID string, params pagination.Params) (*notes.NotePage, error)
	updateFn func(ctx context.Context, ownerID, noteID string, fields notes.UpdateNoteFields) (*notes.Note, error)
	deleteFn func(ctx context.Context, ownerID string, noteIDs []string) ([]string, error)
	addFn    func(ctx context.Context, ownerID, noteID string, inputs []notes.MediaInput) (*notes.AddMediasResult, error)
	removeFn func(ctx context.Context, ownerID, noteID string, mediaIDs []string) ([]string, error)
}

func (s *testNoteService) CreateNotes(ctx context.Context, ownerID string, inputs []notes.CreateNoteInput) ([]notes.CreateNoteResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, ownerID, inputs)
	}
	return nil, nil
}

func (s *testNoteService) GetNotes(ctx context.Context, ownerID string, params pagination.Params) (*notes.NotePage, error) {
	if s.getFn != nil {
		return s.getFn(ctx, ownerID, params)
	}
	return &notes.NotePage{}, nil
}

func (s *testNoteService) UpdateSingleNote(ctx context.Context, ownerID, noteID string, fields notes.UpdateNoteFields) (*notes.Note, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, ownerID, noteID, fields)
	}
	return &notes.Note{}, nil
}

func (s *testNoteService) DeleteMultipleNotes(ctx context.Context, ownerID string, noteIDs []string) ([]string, error) {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, ownerID, noteIDs)
	}
	return nil, nil
}

func (s *testNoteService) AddNoteMedias(ctx context.Context, ownerID, noteID string, inputs []notes.MediaInput) (*notes.AddMediasResult, error) {
	if s.addFn != nil {
		return s.addFn(ctx, ownerID, noteID, inputs)
	}
	return &notes.AddMediasResult{}, nil
}

func (s *testNoteService) RemoveNoteMedias(ctx context.Context, ownerID, noteID string, mediaIDs []string) ([]string, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, ownerID, noteID, mediaIDs)
	}
	return nil, nil
}

type testEnqueuer struct {
	msgs []queue.Message
	err  error
}

func (e *testEnqueuer) Enqueue(_ context.Context, msg queue.Message) error {
	if e.err != nil {
		return e.err
	}
	e.msgs = append(e.msgs, msg)
	return nil
}

type testUploads struct {
	issued map[string]string
	err    error
}

func (u *testUploads) IssueUploadURL(_ context.Context, key string, contentType string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	if u.issued == nil {
		u.issued = map[string]string{}
	}
	u.issued[key] = contentType
	return "https://upload.test/" + key, nil
}

type testIdentity struct {
	photoURL string
	cleared  bool
	photoErr error
}

func (i *testIdentity) ProfilePhoto(_ context.Context, _ string) (string, error) {
	if i.photoErr != nil {
		return "", i.photoErr
	}
	return i.photoURL, nil
}

func (i *testIdentity) ClearProfilePhoto(_ context.Context, _ string) error {
	i.cleared = true
	return nil
}
