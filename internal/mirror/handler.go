package mirror

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/replication"
)

// maxBatchBytes bounds a single sync request body
const maxBatchBytes = 8 << 20

type batchBody struct {
	Records []json.RawMessage `json:"records"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Handler serves the mirror's sync API
type Handler struct {
	store *Store
	log   zerolog.Logger
}

// NewRouter builds the mirror HTTP API
func NewRouter(store *Store, tokens *TokenIssuer, log zerolog.Logger) http.Handler {
	h := &Handler{store: store, log: log.With().Str("component", "mirror_http").Logger()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/oauth/token", tokens.Token)
	r.Group(func(r chi.Router) {
		r.Use(tokens.Authenticate)
		r.Post("/sync/{entity}", h.Sync)
	})
	return r
}

// Sync handles POST /sync/{entity}. Every record gets a result; only a
// storage failure fails the whole batch.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	entity, err := replication.ParseEntityType(chi.URLParam(r, "entity"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}

	var body batchBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBytes))
	if err := dec.Decode(&body); err != nil || body.Records == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "body must be {\"records\": [...]}"})
		return
	}

	resp := replication.BatchResponse{Results: make([]replication.RecordResult, 0, len(body.Records))}
	for _, raw := range body.Records {
		res, err := h.store.Apply(r.Context(), entity, raw)
		if err != nil {
			h.log.Error().Err(err).Str("entity", string(entity)).Str("natural_key", res.NaturalKey).Msg("failed to apply record")
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "storage failure"})
			return
		}
		resp.Results = append(resp.Results, res)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
