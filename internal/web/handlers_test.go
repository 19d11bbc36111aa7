package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"StoryLoom/server/internal/config"
	"StoryLoom/server/internal/game"
	"StoryLoom/server/internal/models"
	"StoryLoom/server/internal/storage"
	"StoryLoom/server/internal/tasks"
)

type fakeNarrator struct{}

func (fakeNarrator) OpeningNarration(ctx context.Context, scenario models.ScenarioOption, players map[string]*models.Player) (string, error) {
	return "The story begins.", nil
}

func (fakeNarrator) NextScene(ctx context.Context, nc game.NarrationContext) (*game.NarrationResult, error) {
	return &game.NarrationResult{Narration: "The story continues."}, nil
}

func (fakeNarrator) EpilogueNarrative(ctx context.Context, ec game.EpilogueContext) (string, error) {
	return "The story ends.", nil
}

type fakeScenarios struct{}

func (fakeScenarios) GenerateScenarios(ctx context.Context, req game.ScenarioRequest) ([]models.ScenarioOption, error) {
	return []models.ScenarioOption{
		{
			ID:      "one",
			Title:   "The Only Road",
			Summary: "A single path forward.",
			EndConditions: models.EndConditions{
				PrimaryObjectives:   []string{"walk the road"},
				CompletionThreshold: 0.75,
				MaxRounds:           30,
			},
		},
	}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	queue := tasks.NewQueue(1, 64)
	svc := game.NewService(storage.NewMemoryStore(), fakeNarrator{}, fakeScenarios{}, queue, game.Options{RoomSize: 4})
	auth := NewAuth(config.AuthConfig{Disabled: true})
	hub := NewSessionHub()
	h := NewHandlers(svc, hub, auth, nil)
	return NewRouter(h)
}

func doRequest(t *testing.T, router http.Handler, method, path, playerID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if playerID != "" {
		req.Header.Set("X-Player-ID", playerID)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) *models.Session {
	t.Helper()
	var sess models.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v (body %s)", err, rec.Body.String())
	}
	return &sess
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestCreateAndJoinGame(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/games/", "host", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	sess := decodeSession(t, rec)
	if sess.HostID != "host" || sess.Status != models.StatusLobby {
		t.Fatalf("session = %+v", sess)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/games/join", "p2", map[string]string{"roomId": sess.RoomID})
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d, body %s", rec.Code, rec.Body.String())
	}
	joined := decodeSession(t, rec)
	if len(joined.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(joined.Players))
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/games/join", "p3", map[string]string{"roomId": "000000"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown room status = %d, want 404", rec.Code)
	}
}

func TestAuthRequiredWhenDisabled(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/api/v1/games/", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without player header", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/games/", "host", nil)
	sess := decodeSession(t, rec)

	// Acting in the lobby is a state conflict.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/games/"+sess.ID+"/action", "host", map[string]string{"action": "attack"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("action in lobby status = %d, want 409 (body %s)", rec.Code, rec.Body.String())
	}

	// Non-host starting the vote is forbidden.
	doRequest(t, router, http.MethodPost, "/api/v1/games/join", "p2", map[string]string{"roomId": sess.RoomID})
	rec = doRequest(t, router, http.MethodPost, "/api/v1/games/"+sess.ID+"/start-voting", "p2", map[string]interface{}{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-host start-voting status = %d, want 403", rec.Code)
	}

	// Malformed JSON is a bad request.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/games/"+sess.ID+"/vote", bytes.NewBufferString("{not json"))
	req.Header.Set("X-Player-ID", "host")
	raw := httptest.NewRecorder()
	router.ServeHTTP(raw, req)
	if raw.Code != http.StatusBadRequest {
		t.Fatalf("malformed vote status = %d, want 400", raw.Code)
	}

	// Unknown session is not found.
	rec = doRequest(t, router, http.MethodGet, "/api/v1/games/nope", "host", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session status = %d, want 404", rec.Code)
	}
}

func TestVotingFlowOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/games/", "host", nil)
	sess := decodeSession(t, rec)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/games/"+sess.ID+"/start-voting", "host", map[string]interface{}{
		"difficulty": "normal",
		"theme":      "heist",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("start-voting status = %d, body %s", rec.Code, rec.Body.String())
	}
	voting := decodeSession(t, rec)
	if voting.Status != models.StatusVoting || len(voting.ScenarioOptions) == 0 {
		t.Fatalf("voting session = %+v", voting)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/games/"+sess.ID+"/vote", "host", map[string]string{"scenarioId": voting.ScenarioOptions[0].ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("vote status = %d, body %s", rec.Code, rec.Body.String())
	}
	decided := decodeSession(t, rec)
	if decided.Status != models.StatusCreatingChar {
		t.Fatalf("status after solo vote = %s, want creating_char", decided.Status)
	}
}

func TestDevTokenIssuesUsableJWT(t *testing.T) {
	queue := tasks.NewQueue(1, 64)
	svc := game.NewService(storage.NewMemoryStore(), fakeNarrator{}, fakeScenarios{}, queue, game.Options{RoomSize: 4})
	auth := NewAuth(config.AuthConfig{JWTSecret: "test-secret"})
	h := NewHandlers(svc, NewSessionHub(), auth, nil)
	router := NewRouter(h)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/auth/token", "", map[string]string{"playerId": "alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("token status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	token := body["token"]
	if token == "" {
		t.Fatal("empty token")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/games/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	created := httptest.NewRecorder()
	router.ServeHTTP(created, req)
	if created.Code != http.StatusCreated {
		t.Fatalf("authed create status = %d, body %s", created.Code, created.Body.String())
	}
	sess := decodeSession(t, created)
	if sess.HostID != "alice" {
		t.Fatalf("host = %q, want alice", sess.HostID)
	}

	bad := httptest.NewRequest(http.MethodPost, "/api/v1/games/", nil)
	bad.Header.Set("Authorization", "Bearer not-a-token")
	rejected := httptest.NewRecorder()
	router.ServeHTTP(rejected, bad)
	if rejected.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rejected.Code)
	}
}

func TestEpilogueEndpointBeforeGeneration(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/api/v1/games/", "host", nil)
	sess := decodeSession(t, rec)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/games/"+sess.ID+"/epilogue", "host", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != models.StatusLobby {
		t.Fatalf("body = %v, want lobby status", body)
	}
}

func TestArchivesUnavailableWithoutStore(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/api/v1/archives", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
