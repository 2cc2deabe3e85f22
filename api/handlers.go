// Package api exposes the core skill operations to the (out-of-process)
// chat front-end as a small JSON HTTP surface. All rendering of ratings,
// embeds and messages happens on the front-end side.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"scrim-rating-server/auth"
	"scrim-rating-server/config"
	"scrim-rating-server/skill"
	"scrim-rating-server/skillerrors"
	"scrim-rating-server/ws"
)

const bearerPrefix = "Bearer "

// Handler holds dependencies for API handlers.
type Handler struct {
	Config  *config.Config
	Service *skill.Service
	Hub     *ws.Hub
}

// NewHandler creates a new API handler with the given dependencies.
func NewHandler(cfg *config.Config, svc *skill.Service, hub *ws.Hub) *Handler {
	return &Handler{Config: cfg, Service: svc, Hub: hub}
}

// Register attaches all API routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/rating", h.Rating)
	mux.HandleFunc("/api/ratings", h.Ratings)
	mux.HandleFunc("/api/result", h.RecordResult)
	mux.HandleFunc("/api/teams", h.MakeTeams)
	mux.HandleFunc("/api/leaderboard", h.Leaderboard)
	mux.HandleFunc("/api/ranks", h.Ranks)
	mux.HandleFunc("/api/winloss", h.WinLoss)
	mux.HandleFunc("/api/history", h.History)
	mux.HandleFunc("/api/pastratings", h.PastRatings)
	mux.HandleFunc("/api/undo", h.Undo)
	mux.HandleFunc("/api/guild", h.Guild)
	mux.HandleFunc("/api/guild/dump", h.Dump)
}

// CORS sets CORS headers on the response. Call before writing body.
func CORS(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// authorized validates the bearer token on mutating endpoints. With no
// AUTH_BASE_URL configured, auth is disabled (warned at startup) and every
// caller is allowed.
func (h *Handler) authorized(r *http.Request) bool {
	if h.Config.AuthBaseURL == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	claims, err := auth.ValidateServiceToken(h.Config.AuthBaseURL, token)
	if err != nil {
		slog.Warn("token rejected", "tag", "api", "err", err)
		return false
	}
	return auth.CallerFromClaims(claims) != ""
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "tag", "api", "err", err)
	}
}

// writeError maps core errors onto HTTP statuses: validation errors are
// 400, an explicit absent is 404, storage failures are 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, skillerrors.ErrInvalidScore), errors.Is(err, skillerrors.ErrUnknownMetric):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, skillerrors.ErrNoHistory):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		slog.Error("request failed", "tag", "api", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func requireParams(w http.ResponseWriter, r *http.Request, names ...string) bool {
	for _, name := range names {
		if r.URL.Query().Get(name) == "" {
			http.Error(w, "missing parameter: "+name, http.StatusBadRequest)
			return false
		}
	}
	return true
}

// Rating returns one player's current rating.
// GET /api/rating?guild=&player=
func (h *Handler) Rating(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireParams(w, r, "guild", "player") {
		return
	}
	rt, err := h.Service.GetRating(r.Context(), r.URL.Query().Get("player"), r.URL.Query().Get("guild"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, rt)
}

// Ratings returns current ratings for a comma-separated player list.
// GET /api/ratings?guild=&players=a,b,c
func (h *Handler) Ratings(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireParams(w, r, "guild", "players") {
		return
	}
	players := splitList(r.URL.Query().Get("players"))
	ratings, err := h.Service.GetRatings(r.Context(), players, r.URL.Query().Get("guild"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ratings)
}

type resultRequest struct {
	Guild  string   `json:"guild"`
	TeamA  []string `json:"team_a"`
	TeamB  []string `json:"team_b"`
	ScoreA int      `json:"score_a"`
	ScoreB int      `json:"score_b"`
}

// RecordResult records a finished match and returns the rating movement.
// POST /api/result
func (h *Handler) RecordResult(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}
	var req resultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if req.Guild == "" {
		http.Error(w, "missing guild", http.StatusBadRequest)
		return
	}
	res, err := h.Service.RecordResult(r.Context(), req.TeamA, req.TeamB, req.ScoreA, req.ScoreB, req.Guild)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Hub.Broadcast(ws.Event{Type: ws.EventResultRecorded, Guild: req.Guild, Payload: res.Record})
	writeJSON(w, res)
}

type teamsRequest struct {
	Guild    string   `json:"guild"`
	Players  []string `json:"players"`
	PoolSize int      `json:"pool_size"`
}

// MakeTeams balances a roster into two teams.
// POST /api/teams
func (h *Handler) MakeTeams(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req teamsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if req.Guild == "" || len(req.Players) == 0 {
		http.Error(w, "missing guild or players", http.StatusBadRequest)
		return
	}
	split, err := h.Service.MakeTeams(r.Context(), req.Players, req.Guild, req.PoolSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, split)
}

// Leaderboard returns the guild's ranked players under a metric.
// GET /api/leaderboard?guild=&metric=mean|exposure
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireParams(w, r, "guild") {
		return
	}
	metric, err := skill.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		writeError(w, err)
		return
	}
	board, err := h.Service.Leaderboard(r.Context(), r.URL.Query().Get("guild"), metric)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, board)
}

// Ranks returns competition-style ranks for the requested players.
// GET /api/ranks?guild=&players=a,b&metric=
func (h *Handler) Ranks(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireParams(w, r, "guild", "players") {
		return
	}
	metric, err := skill.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		writeError(w, err)
		return
	}
	ranks, err := h.Service.Ranks(r.Context(), splitList(r.URL.Query().Get("players")), r.URL.Query().Get("guild"), metric)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ranks)
}

// WinLoss returns a player's win and loss counts.
// GET /api/winloss?guild=&player=
func (h *Handler) WinLoss(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireParams(w, r, "guild", "player") {
		return
	}
	wins, losses, err := h.Service.WinLoss(r.Context(), r.URL.Query().Get("player"), r.URL.Query().Get("guild"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]int{"wins": wins, "losses": losses})
}

// History returns the guild's match records, optionally filtered by player.
// GET /api/history?guild=&player=
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireParams(w, r, "guild") {
		return
	}
	records, err := h.Service.History(r.Context(), r.URL.Query().Get("guild"), r.URL.Query().Get("player"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, records)
}

// PastRatings returns a player's historical mu series for charting.
// GET /api/pastratings?guild=&player=&pad=true
func (h *Handler) PastRatings(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireParams(w, r, "guild", "player") {
		return
	}
	pad, _ := strconv.ParseBool(r.URL.Query().Get("pad"))
	series, err := h.Service.PastRatings(r.Context(), r.URL.Query().Get("player"), r.URL.Query().Get("guild"), pad)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, series)
}

type undoRequest struct {
	Guild string `json:"guild"`
}

// Undo rolls back the guild's most recent match. 404 means nothing to
// undo, which callers must distinguish from a real failure.
// POST /api/undo
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}
	var req undoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Guild == "" {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	rec, err := h.Service.UndoLastMatch(r.Context(), req.Guild)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Hub.Broadcast(ws.Event{Type: ws.EventMatchUndone, Guild: req.Guild, Payload: rec})
	writeJSON(w, rec)
}

// Guild deletes all of a guild's rating state.
// DELETE /api/guild?guild=
func (h *Handler) Guild(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}
	if !requireParams(w, r, "guild") {
		return
	}
	guild := r.URL.Query().Get("guild")
	if err := h.Service.DeleteGuild(r.Context(), guild); err != nil {
		writeError(w, err)
		return
	}
	h.Hub.Broadcast(ws.Event{Type: ws.EventGuildDeleted, Guild: guild})
	w.WriteHeader(http.StatusNoContent)
}

// Dump returns the guild's raw stored state for debugging.
// GET /api/guild/dump?guild=
func (h *Handler) Dump(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}
	if !requireParams(w, r, "guild") {
		return
	}
	dump, err := h.Service.Dump(r.Context(), r.URL.Query().Get("guild"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, dump)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
