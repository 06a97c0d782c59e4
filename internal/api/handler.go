package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/havenchat/haven/internal/chat"
	"github.com/havenchat/haven/internal/profile"
	"github.com/havenchat/haven/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// TurnProcessor runs one conversation turn end to end.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, input chat.TurnInput) chat.TurnResult
}

type AppDeps struct {
	Store    *storage.Store
	Profiles *profile.Manager
	Pipeline TurnProcessor
	Token    string
}

// ChatRequest is the POST /chat body. History is the caller's conversation
// so far; the server is stateless between turns.
type ChatRequest struct {
	UserID  string      `json:"user_id"`
	Message string      `json:"message"`
	History []chat.Turn `json:"history"`
}

// ChatResponse is the POST /chat reply.
type ChatResponse struct {
	Response  string           `json:"response"`
	Profile   *profile.Profile `json:"profile"`
	Sensitive bool             `json:"sensitive"`
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	r.Get("/crisis", handleCrisis())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/chat", handleChat(deps))
		r.Get("/users/{id}/profile", handleGetProfile(deps))
		r.Get("/users/{id}/turns", handleListTurns(deps))
		r.Get("/users/{id}/overview", handleOverview(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profiles, err := deps.Store.CountProfiles()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "storage check failed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"profiles": profiles,
		})
	}
}

func handleCrisis() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"resources": CrisisResources})
	}
}

func handleChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		result := deps.Pipeline.ProcessTurn(r.Context(), chat.TurnInput{
			UserID:  req.UserID,
			History: req.History,
			Message: req.Message,
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatResponse{
			Response:  result.Response,
			Profile:   result.Profile,
			Sensitive: result.Sensitive,
		})
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		p, err := deps.Profiles.Get(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p)
	}
}

func handleListTurns(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		turns, err := deps.Store.ListTurns(id, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list turns: %v", err)
			return
		}
		if turns == nil {
			turns = []storage.TurnRecord{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(turns)
	}
}

// Overview aggregates a user's profile with their journal stats.
type Overview struct {
	Profile     *profile.Profile     `json:"profile"`
	TurnCount   int                  `json:"turn_count"`
	RecentTurns []storage.TurnRecord `json:"recent_turns"`
}

func handleOverview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var (
			p     *profile.Profile
			count int
			turns []storage.TurnRecord
		)

		g, _ := errgroup.WithContext(r.Context())
		g.Go(func() error {
			var err error
			p, err = deps.Profiles.Get(id)
			if err != nil {
				return fmt.Errorf("loading profile: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			count, err = deps.Store.CountTurns(id)
			if err != nil {
				return fmt.Errorf("counting turns: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			turns, err = deps.Store.ListTurns(id, 5, 0)
			if err != nil {
				return fmt.Errorf("listing recent turns: %w", err)
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "profile not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build overview: %v", err)
			return
		}
		if turns == nil {
			turns = []storage.TurnRecord{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Overview{Profile: p, TurnCount: count, RecentTurns: turns})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
