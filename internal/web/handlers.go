// Package web exposes the game service over HTTP and WebSocket.
package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"StoryLoom/server/internal/game"
	"StoryLoom/server/internal/models"
	"StoryLoom/server/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Handlers bundles the HTTP layer's dependencies.
type Handlers struct {
	game     *game.Service
	hub      *SessionHub
	auth     *Auth
	archives *storage.MySQLStore
}

// NewHandlers creates the handler set. archives may be nil when MySQL
// is not configured.
func NewHandlers(svc *game.Service, hub *SessionHub, auth *Auth, archives *storage.MySQLStore) *Handlers {
	return &Handlers{game: svc, hub: hub, auth: auth, archives: archives}
}

// NewRouter builds the chi router with all routes mounted.
func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("REQUEST: %s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ws/{sessionID}", h.WatchSession)
	r.Post("/api/v1/auth/token", h.DevToken)

	r.Route("/api/v1/games", func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Post("/", h.CreateGame)
		r.Post("/join", h.JoinGame)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetGame)
			r.Post("/start-voting", h.StartVoting)
			r.Post("/vote", h.Vote)
			r.Post("/character", h.CreateCharacter)
			r.Post("/ready", h.Ready)
			r.Post("/proceed", h.ProceedToReady)
			r.Post("/start", h.StartGame)
			r.Post("/action", h.SubmitAction)
			r.Post("/roll", h.ManualRoll)
			r.Post("/complete", h.ManualComplete)
			r.Post("/epilogue", h.BeginEpilogue)
			r.Get("/epilogue", h.GetEpilogue)
		})
	})

	r.Get("/api/v1/archives", h.RecentArchives)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "storyloom",
	})
}

// DevToken mints a JWT for the requested player id. Only useful in
// development; production deployments issue tokens upstream.
func (h *Handlers) DevToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"playerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "playerId is required"})
		return
	}
	token, err := h.auth.IssueToken(req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handlers) CreateGame(w http.ResponseWriter, r *http.Request) {
	sess, err := h.game.CreateSession(r.Context(), PlayerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handlers) JoinGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "roomId is required"})
		return
	}
	sess, err := h.game.Join(r.Context(), req.RoomID, PlayerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) GetGame(w http.ResponseWriter, r *http.Request) {
	sess, err := h.game.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) StartVoting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Difficulty          string   `json:"difficulty"`
		Keywords            []string `json:"keywords"`
		Theme               string   `json:"theme"`
		OpeningMediaEnabled bool     `json:"openingMediaEnabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	sess, err := h.game.StartVoting(r.Context(), chi.URLParam(r, "sessionID"), PlayerID(r.Context()), game.VotingOptions{
		Difficulty:          req.Difficulty,
		Keywords:            req.Keywords,
		Theme:               req.Theme,
		OpeningMediaEnabled: req.OpeningMediaEnabled,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) Vote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenarioId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ScenarioID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "scenarioId is required"})
		return
	}
	sess, err := h.game.SubmitVote(r.Context(), chi.URLParam(r, "sessionID"), PlayerID(r.Context()), req.ScenarioID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) CreateCharacter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string            `json:"name"`
		Description string            `json:"description"`
		Abilities   *models.Abilities `json:"abilities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	sess, err := h.game.CreateCharacter(r.Context(), chi.URLParam(r, "sessionID"), PlayerID(r.Context()), game.CharacterInput{
		Name:        req.Name,
		Description: req.Description,
		Abilities:   req.Abilities,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	sess, err := h.game.Ready(r.Context(), chi.URLParam(r, "sessionID"), PlayerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) ProceedToReady(w http.ResponseWriter, r *http.Request) {
	sess, err := h.game.ProceedToReady(r.Context(), chi.URLParam(r, "sessionID"), PlayerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) StartGame(w http.ResponseWriter, r *http.Request) {
	sess, err := h.game.StartGame(r.Context(), chi.URLParam(r, "sessionID"), PlayerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	sess, err := h.game.SubmitAction(r.Context(), chi.URLParam(r, "sessionID"), PlayerID(r.Context()), req.Action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) ManualRoll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NumDice     int    `json:"numDice"`
		NumSides    int    `json:"numSides"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	result, err := h.game.ManualRoll(r.Context(), chi.URLParam(r, "sessionID"), PlayerID(r.Context()), req.NumDice, req.NumSides, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"numDice":  result.NumDice,
		"numSides": result.NumSides,
		"rolls":    result.Rolls,
		"total":    result.Total,
	})
}

func (h *Handlers) ManualComplete(w http.ResponseWriter, r *http.Request) {
	sess, err := h.game.ManualComplete(r.Context(), chi.URLParam(r, "sessionID"), PlayerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) BeginEpilogue(w http.ResponseWriter, r *http.Request) {
	sess, err := h.game.BeginEpilogue(r.Context(), chi.URLParam(r, "sessionID"), PlayerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess)
}

func (h *Handlers) GetEpilogue(w http.ResponseWriter, r *http.Request) {
	sess, err := h.game.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if sess.Epilogue == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": sess.Status})
		return
	}
	writeJSON(w, http.StatusOK, sess.Epilogue)
}

func (h *Handlers) RecentArchives(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive store not configured"})
		return
	}
	archives, err := h.archives.RecentArchives(20)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, archives)
}

// WatchSession upgrades to WebSocket and streams session updates.
func (h *Handlers) WatchSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.game.Get(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		ID:        newClientID(),
		SessionID: sessionID,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		Hub:       h.hub,
	}
	h.hub.register <- client

	welcome, _ := json.Marshal(map[string]interface{}{
		"type": "connected",
		"id":   client.ID,
		"time": time.Now().Unix(),
	})
	select {
	case client.Send <- welcome:
	default:
	}

	go client.readPump()
}

func newClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:16]
	}
	return hex.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses: invalid input
// 400, missing documents 404, authority failures 403, state conflicts
// 409, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, game.ErrNotHost), errors.Is(err, game.ErrNotMember):
		status = http.StatusForbidden
	case errors.Is(err, game.ErrEmptyAction),
		errors.Is(err, game.ErrEmptyCharacterName),
		errors.Is(err, game.ErrInvalidScenario):
		status = http.StatusBadRequest
	case game.IsPrecondition(err), errors.Is(err, storage.ErrConflict):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
