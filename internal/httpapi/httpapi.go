// Package httpapi exposes the pipeline over JSON/HTTP and WebSocket. Both
// adapters call the same pipeline.Service.
package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/postforge/internal/apperr"
	"github.com/hyperifyio/postforge/internal/generator"
	"github.com/hyperifyio/postforge/internal/metrics"
	"github.com/hyperifyio/postforge/internal/pipeline"
	"github.com/hyperifyio/postforge/internal/store"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Server holds the HTTP adapter's dependencies.
type Server struct {
	Service      *pipeline.Service
	Registry     *generator.Registry
	Metrics      *metrics.Ring
	Auth         Authenticator
	Validate     *validator.Validate
	CORSOrigins  []string
	MaxBodyBytes int64
	// MaxInFlight caps concurrent requests per WebSocket connection.
	MaxInFlight int
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error struct {
		Kind    apperr.Kind `json:"kind"`
		Message string      `json:"message"`
	} `json:"error"`
}

// Handler returns the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	if s.Validate == nil {
		s.Validate = validator.New(validator.WithRequiredStructEnabled())
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/generate", s.authed(s.handleGenerate))
	mux.HandleFunc("GET /v1/usage", s.authed(s.handleUsage))
	mux.HandleFunc("GET /v1/generations", s.authed(s.handleHistory))
	mux.HandleFunc("POST /v1/generations/{id}/archive", s.authed(s.handleStatus(store.StatusArchived)))
	mux.HandleFunc("DELETE /v1/generations/{id}", s.authed(s.handleStatus(store.StatusDeleted)))
	mux.HandleFunc("GET /v1/platforms", s.handlePlatforms)
	mux.HandleFunc("GET /v1/metrics/recent", s.handleRecentMetrics)
	mux.HandleFunc("GET /v1/ws", s.handleWebSocket)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	origins := s.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", UserHeader},
		AllowCredentials: !containsWildcard(origins),
	})
	return accessLog(c.Handler(mux))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		h(w, r, userID)
	}
}

func (s *Server) authenticate(r *http.Request) (string, error) {
	auth := s.Auth
	if auth == nil {
		auth = HeaderAuthenticator{}
	}
	return auth.Authenticate(r)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, userID string) {
	in, err := s.decodeInput(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.Service.Generate(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) decodeInput(w http.ResponseWriter, r *http.Request) (pipeline.Input, error) {
	limit := s.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	var in pipeline.Input
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return in, apperr.Wrap(apperr.InvalidRequest, err, "invalid JSON payload")
	}
	return in, s.validateInput(in)
}

func (s *Server) validateInput(in pipeline.Input) error {
	if err := s.Validate.Struct(&in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" "+fe.Tag())
			}
			return apperr.E(apperr.InvalidRequest, "validation failed: %s", strings.Join(fields, ", "))
		}
		return apperr.Wrap(apperr.InvalidRequest, err, "validation failed")
	}
	return nil
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request, userID string) {
	u, err := s.Service.Usage(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, userID string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := s.Service.History(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []store.GenerationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"generations": recs})
}

func (s *Server) handleStatus(status store.Status) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, userID string) {
		id := r.PathValue("id")
		if err := s.Service.SetStatus(r.Context(), userID, id, status); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(status)})
	}
}

type platformInfo struct {
	ID           string `json:"id"`
	MaxLength    int    `json:"maxLength"`
	MaxPosts     int    `json:"maxPosts"`
	HashtagCount int    `json:"hashtagCount"`
	Tone         string `json:"tone"`
	Format       string `json:"format"`
}

func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	reg := s.Registry
	if reg == nil {
		reg = generator.DefaultRegistry()
	}
	out := []platformInfo{}
	for _, id := range reg.IDs() {
		g, _ := reg.Get(id)
		c := g.Constraint()
		out = append(out, platformInfo{
			ID: string(id), MaxLength: c.MaxLength, MaxPosts: c.MaxPosts,
			HashtagCount: c.HashtagCount, Tone: string(c.Tone), Format: string(c.Format),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"platforms": out})
}

func (s *Server) handleRecentMetrics(w http.ResponseWriter, r *http.Request) {
	if s.Metrics == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []metrics.Entry{}, "summary": metrics.Summary{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": s.Metrics.Snapshot(),
		"summary": s.Metrics.Summarize(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func errorBody(err error) (int, ErrorBody) {
	kind := apperr.KindOf(err)
	var body ErrorBody
	body.Error.Kind = kind
	body.Error.Message = err.Error()
	status := apperr.HTTPStatus(kind)
	if status >= 500 {
		// Internal details stay in the log.
		body.Error.Message = http.StatusText(status)
	}
	return status, body
}

func writeError(w http.ResponseWriter, err error) {
	status, body := errorBody(err)
	if status >= 500 {
		log.Error().Err(err).Str("kind", string(body.Error.Kind)).Msg("request failed")
	}
	writeJSON(w, status, body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is required by the WebSocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
