package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/chatsync/pkg/backend"
)

const maxBodySize = 16 * 1024 * 1024

type handler struct {
	backend backend.Backend
	logger  zerolog.Logger
}

// NewHandler exposes b over the routes the Client speaks.
func NewHandler(b backend.Backend, logger zerolog.Logger) *chi.Mux {
	h := &handler{backend: b, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get(messagesPath, h.listMessages)
	r.Post(messagesPath, h.sendMessage)
	r.Delete(messagesPath+"/{id}", h.deleteMessage)

	return r
}

func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", chimw.GetReqID(r.Context())).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (h *handler) json(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *handler) error(w http.ResponseWriter, status int, message string) {
	h.json(w, status, map[string]string{"error": message})
}

func (h *handler) backendError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		h.error(w, apiErr.Status, apiErr.Message)
		return
	}
	h.logger.Error().Err(err).Msg("backend failure")
	h.error(w, http.StatusInternalServerError, "internal error")
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		h.error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		h.error(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit <= 0 {
		h.error(w, http.StatusBadRequest, "invalid limit")
		return
	}
	filter := backend.ScopeFilter{
		AgentID:     q.Get("agent_id"),
		ChatboxID:   q.Get("chatbox_id"),
		GeneralOnly: q.Get("general") == "true",
	}

	resp, err := h.backend.FetchMessages(r.Context(), userID, offset, limit, filter)
	if err != nil {
		h.backendError(w, err)
		return
	}
	if resp.Messages == nil {
		resp.Messages = []backend.MessageDTO{}
	}
	h.json(w, http.StatusOK, resp)
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		h.error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	filter := backend.ScopeFilter{AgentID: req.AgentID, ChatboxID: req.ChatboxID}
	if filter.IsAll() {
		filter.GeneralOnly = true
	}

	dto, err := h.backend.SendMessage(r.Context(), req.UserID, req.Message, filter)
	if err != nil {
		h.backendError(w, err)
		return
	}
	h.json(w, http.StatusOK, dto)
}

func (h *handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := h.backend.DeleteMessage(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		h.backendError(w, err)
		return
	}
	h.json(w, http.StatusOK, map[string]bool{"ok": true})
}
