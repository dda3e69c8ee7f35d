// Package httpapi exposes the REST and websocket surface of the
// companion backend.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/auth"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/chat"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/companions"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/config"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/memory"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/observability"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/provider"
)

type Server struct {
	cfg      config.Config
	orch     *chat.Orchestrator
	store    memory.Store
	catalog  companions.Store
	verifier auth.Verifier
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(
	cfg config.Config,
	orch *chat.Orchestrator,
	store memory.Store,
	catalog companions.Store,
	verifier auth.Verifier,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		cfg:      cfg,
		orch:     orch,
		store:    store,
		catalog:  catalog,
		verifier: verifier,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Non-browser clients
				// often omit Origin; allow them.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/turns", s.handlePerfTurns)

	r.Post("/api/auth/verify", s.handleAuthVerify)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/api/auth/me", s.handleAuthMe)

		r.Get("/api/categories", s.handleListCategories)
		r.Post("/api/categories", s.handleCreateCategory)

		r.Get("/api/companions", s.handleListCompanions)
		r.Post("/api/companions", s.handleCreateCompanion)
		r.Get("/api/companions/{id}", s.handleGetCompanion)
		r.Put("/api/companions/{id}", s.handleUpdateCompanion)
		r.Delete("/api/companions/{id}", s.handleDeleteCompanion)

		r.Post("/api/chat/send", s.handleChatSend)
		r.Get("/api/chat/{companionID}/history", s.handleChatHistory)
		r.Get("/api/chat/ws", s.handleChatWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": s.storeMode(),
	})
}

func (s *Server) handlePerfTurns(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.StageSnapshot())
}

func (s *Server) storeMode() string {
	if s.cfg.DatabaseURL != "" {
		return "postgres"
	}
	return "in-memory"
}

func (s *Server) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, identityFrom(r.Context()))
}

// handleAuthVerify checks a token without requiring it in the
// Authorization header, for frontends validating stored credentials.
func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Token) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	id, err := s.verifier.Verify(req.Token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_token", "token rejected")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"valid": true, "identity": id})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondTurnError maps orchestrator failures onto HTTP statuses.
func respondTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrCompanionNotFound):
		respondError(w, http.StatusNotFound, "companion_not_found", err.Error())
	case errors.Is(err, provider.ErrTimeout):
		respondError(w, http.StatusGatewayTimeout, "turn_timeout", "the companion took too long to reply")
	case provider.IsRetryable(err):
		respondError(w, http.StatusServiceUnavailable, "provider_unavailable", "the companion is temporarily unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func isNotFound(err error) bool  { return errors.Is(err, chat.ErrCompanionNotFound) }
func isTimeout(err error) bool   { return errors.Is(err, provider.ErrTimeout) }
func isRetryable(err error) bool { return provider.IsRetryable(err) }

func retryAfterHeader(w http.ResponseWriter, res chat.Result) {
	secs := int(res.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}
