package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
	"github.com/atvirokodosprendimai/mongovalidate/internal/core/usecase"
	"github.com/atvirokodosprendimai/mongovalidate/internal/observability/metrics"
)

type ctxKey string

const (
	timeFormat             = "2006-01-02T15:04:05.999999999Z07:00"
	apiActorCtxKey  ctxKey = "api_actor"
	maxJSONBodySize        = 1 << 20
)

type Handler struct {
	validator   *usecase.DocumentValidator
	history     *usecase.ValidationHistory
	authService *usecase.AuthService
	metrics     *metrics.Collector
	log         zerolog.Logger

	metricsHandler http.Handler
}

type HandlerOption func(*Handler)

// WithHistory records every validation outcome.
func WithHistory(history *usecase.ValidationHistory) HandlerOption {
	return func(h *Handler) { h.history = history }
}

// WithAuth requires an API key on /v1 routes.
func WithAuth(authService *usecase.AuthService) HandlerOption {
	return func(h *Handler) { h.authService = authService }
}

// WithMetrics counts outcomes on collector and serves metricsHandler at /metrics.
func WithMetrics(collector *metrics.Collector, metricsHandler http.Handler) HandlerOption {
	return func(h *Handler) {
		h.metrics = collector
		h.metricsHandler = metricsHandler
	}
}

func WithLogger(log zerolog.Logger) HandlerOption {
	return func(h *Handler) { h.log = log }
}

func NewHandler(validator *usecase.DocumentValidator, opts ...HandlerOption) *Handler {
	h := &Handler{validator: validator, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	r.Get("/healthz", h.healthz)
	if h.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.metricsHandler)
	}

	r.Group(func(pr chi.Router) {
		if h.authService != nil {
			pr.Use(h.requireAPIKey)
		}
		pr.Get("/v1/schemas", h.listSchemas)
		pr.Get("/v1/schemas/{collection}", h.getSchema)
		pr.Post("/v1/collections/{collection}/validate", h.validate)
		pr.Get("/v1/validations", h.listValidations)
	})

	return r
}

type schemaResponse struct {
	Collection string          `json:"collection"`
	Schema     json.RawMessage `json:"schema"`
}

type validationRunResponse struct {
	ID         string               `json:"id"`
	Collection string               `json:"collection"`
	Actor      string               `json:"actor"`
	Valid      bool                 `json:"isValid"`
	Errors     []domain.ErrorDetail `json:"errors,omitempty"`
	ErrorsText string               `json:"errorsText,omitempty"`
	CreatedAt  string               `json:"created_at"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"schemas": len(h.validator.Collections()),
	})
}

func (h *Handler) listSchemas(w http.ResponseWriter, _ *http.Request) {
	names := h.validator.Collections()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": names})
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	collection, err := collectionParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collection")
		return
	}
	raw, err := h.validator.Schema(collection)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schemaResponse{Collection: collection, Schema: raw})
}

// validate checks the request body against the collection schema. A pointer
// query parameter selects a subschema, e.g. ?pointer=/properties/address.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	collection, err := collectionParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collection")
		return
	}
	if err := domain.ValidateCollectionName(collection); err != nil {
		h.handleDomainError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	var data json.RawMessage
	if err := decoder.Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var result domain.ValidationResult
	if pointer := r.URL.Query().Get("pointer"); pointer != "" {
		result, err = h.validator.ValidateRef(domain.SchemaRef{Ref: collection + "#" + pointer}, data)
	} else {
		result, err = h.validator.Validate(collection, data)
	}
	if err != nil {
		h.observeFailure(err)
		h.handleDomainError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveResult(collection, result.Valid)
	}

	if h.history != nil {
		run, err := h.history.Record(r.Context(), collection, actorFromContext(r.Context()), result)
		if err != nil {
			h.log.Warn().Err(err).Str("collection", collection).Msg("record validation run")
		}
		if run.ID != "" {
			w.Header().Set("X-Validation-Run-ID", run.ID)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listValidations(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "validation history disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	runs, err := h.history.List(r.Context(), domain.ValidationRunFilter{
		Collection: r.URL.Query().Get("collection"),
		Limit:      limit,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	result := make([]validationRunResponse, 0, len(runs))
	for _, run := range runs {
		result = append(result, toValidationRunResponse(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		apiKey, err := h.authService.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			h.log.Error().Err(err).Msg("authenticate api key")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), apiActorCtxKey, apiKey.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (h *Handler) observeFailure(err error) {
	if h.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, domain.ErrUnknownSchema):
		h.metrics.ObserveFailure("unknown_schema")
	case errors.Is(err, domain.ErrNotInitialized):
		h.metrics.ObserveFailure("not_initialized")
	default:
		h.metrics.ObserveFailure("engine")
	}
}

func (h *Handler) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCollection):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnknownSchema), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// collectionParam returns the unescaped collection; chi matches on RawPath
// when the request carries escapes such as %2F.
func collectionParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "collection")
	if r.URL.RawPath == "" {
		return raw, nil
	}
	return url.PathUnescape(raw)
}

func toValidationRunResponse(run domain.ValidationRun) validationRunResponse {
	return validationRunResponse{
		ID:         run.ID,
		Collection: run.Collection,
		Actor:      run.Actor,
		Valid:      run.Valid,
		Errors:     run.Errors,
		ErrorsText: run.ErrorsText,
		CreatedAt:  run.CreatedAt.UTC().Format(timeFormat),
	}
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(apiActorCtxKey).(string)
	if actor == "" {
		return "api"
	}
	return actor
}
