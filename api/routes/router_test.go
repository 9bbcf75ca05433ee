package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/notewellhq/notewell-backend/internal/notes"
	pkgauth "github.com/notewellhq/notewell-backend/pkg/auth"
	"github.com/notewellhq/notewell-backend/pkg/config"
	"github.com/notewellhq/notewell-backend/pkg/logger"
	"github.com/notewellhq/notewell-backend/pkg/pagination"
	"github.com/notewellhq/notewell-backend/pkg/queue"

	"github.com/google/uuid"
)

type fakeNoteService struct{}

func (fakeNoteService) CreateNotes(_ context.Context, _ string, inputs []notes.CreateNoteInput) ([]notes.CreateNoteResult, error) {
	results := make([]notes.CreateNoteResult, 0, len(inputs))
	for _, input := range inputs {
		results = append(results, notes.CreateNoteResult{GlobalID: input.GlobalID, Note: &notes.Note{NoteID: "n-1"}})
	}
	return results, nil
}

func (fakeNoteService) GetNotes(_ context.Context, _ string, _ pagination.Params) (*notes.NotePage, error) {
	return &notes.NotePage{}, nil
}

func (fakeNoteService) UpdateSingleNote(_ context.Context, _, noteID string, _ notes.UpdateNoteFields) (*notes.Note, error) {
	return &notes.Note{NoteID: noteID}, nil
}

func (fakeNoteService) DeleteMultipleNotes(_ context.Context, _ string, _ []string) ([]string, error) {
	return nil, nil
}

func (fakeNoteService) AddNoteMedias(_ context.Context, _, _ string, _ []notes.MediaInput) (*notes.AddMediasResult, error) {
	return &notes.AddMediasResult{}, nil
}

func (fakeNoteService) RemoveNoteMedias(_ context.Context, _, _ string, _ []string) ([]string, error) {
	return nil, nil
}

type fakeEnqueuer struct{}

func (fakeEnqueuer) Enqueue(_ context.Context, _ queue.Message) error { return nil }

type fakeUploads struct{}

func (fakeUploads) IssueUploadURL(_ context.Context, key string, _ string) (string, error) {
	return "https://upload.test/" + key, nil
}

type fakeIdentity struct{}

func (fakeIdentity) ProfilePhoto(_ context.Context, _ string) (string, error) { return "", nil }
func (fakeIdentity) ClearProfilePhoto(_ context.Context, _ string) error      { return nil }

func testRouter(t *testing.T) (http.Handler, config.JWTConfig) {
	t.Helper()
	jwtCfg := config.JWTConfig{
		Secret:            "router-test-secret",
		Issuer:            "notewell-test",
		ExpirationMinutes: 10,
	}
	cfg := &config.Config{}
	cfg.App.Env = "dev"
	cfg.JWT = jwtCfg
	cfg.AuthRateLimit.Disabled = true

	handler := NewRouter(Deps{
		Config:   cfg,
		Log:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Notes:    fakeNoteService{},
		Uploads:  fakeUploads{},
		Identity: fakeIdentity{},
		Queue:    fakeEnqueuer{},
	})
	return handler, jwtCfg
}

func TestHealthLiveIsPublic(t *testing.T) {
	handler, _ := testRouter(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestHealthReadyWithoutDepsIsReady(t *testing.T) {
	handler, _ := testRouter(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestAPIRoutesRequireAuth(t *testing.T) {
	handler, _ := testRouter(t)

	targets := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/notes"},
		{http.MethodPost, "/api/v1/notes"},
		{http.MethodDelete, "/api/v1/users/me"},
	}
	for _, target := range targets {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(target.method, target.path, nil))
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", target.method, target.path, resp.Code)
		}
	}
}

func TestAuthenticatedListNotes(t *testing.T) {
	handler, jwtCfg := testRouter(t)

	token, err := pkgauth.MintAccessToken(jwtCfg, time.Now(), pkgauth.AccessTokenPayload{OwnerID: uuid.New()})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notes", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
