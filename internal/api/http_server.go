package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"carebook/internal/config"
	"carebook/internal/dispatcher"
	"carebook/internal/metrics"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	maxBodyBytes     = 1 << 20
	servedByHeader   = "X-Served-By"
	requestIDHeader  = "X-Request-ID"
	statementSuffix  = "/wallet/statement.xlsx"
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	usersRoutePrefix = "/api/users/"
)

// Dispatcher serves engine requests.
type Dispatcher interface {
	Do(ctx context.Context, req dispatcher.Request) (*dispatcher.Response, error)
}

// StatementRenderer builds a wallet statement workbook.
type StatementRenderer interface {
	Statement(ctx context.Context, userID string) (*excelize.File, error)
}

// ReadinessFunc returns an error while the service should not take traffic.
type ReadinessFunc func(ctx context.Context) error

// HTTPServer is the JSON gateway in front of the dispatcher.
type HTTPServer struct {
	cfg        *config.APIConfig
	dispatcher Dispatcher
	statements StatementRenderer
	ready      ReadinessFunc
	server     *http.Server
	auth       *HTTPAuth
	log        zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, d Dispatcher, statements StatementRenderer, ready ReadinessFunc, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:        cfg,
		dispatcher: d,
		statements: statements,
		ready:      ready,
		auth:       NewHTTPAuth(cfg),
		log:        zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/readyz", srv.handleReadyz)
	mux.Handle("/api/", srv.auth.Wrap(http.HandlerFunc(srv.handleAPI)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           corsMiddleware(loggingMiddleware(srv.log, mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleAPI(w http.ResponseWriter, r *http.Request) {
	if userID, ok := statementUser(r.URL.Path); ok {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleStatement(w, r, userID)
		return
	}

	if s.dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "dispatcher is not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	req := dispatcher.Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		UserID: strings.TrimSpace(r.Header.Get(dispatcher.UserIDHeader)),
	}
	if len(body) > 0 {
		req.Body = json.RawMessage(body)
	}

	resp, err := s.dispatcher.Do(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}

	w.Header().Set(servedByHeader, resp.Source)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func (s *HTTPServer) handleStatement(w http.ResponseWriter, r *http.Request, userID string) {
	if s.statements == nil {
		writeError(w, http.StatusServiceUnavailable, "statements are not configured")
		return
	}

	f, err := s.statements.Statement(r.Context(), userID)
	if err != nil {
		writeError(w, dispatcher.StatusFor(err), err.Error())
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "statement_"+userID+".xlsx"))
	if err := f.Write(w); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("write statement")
	}
}

// statementUser extracts the user id from /api/users/{id}/wallet/statement.xlsx.
func statementUser(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, usersRoutePrefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, statementSuffix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-API-Extra, X-User-ID, X-Request-ID")
		h.Set("Access-Control-Expose-Headers", servedByHeader+", "+requestIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := requestIDFromHeader(r.Header.Get(requestIDHeader))
		w.Header().Set(requestIDHeader, requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.IncHTTP(endpointLabel(r.URL.Path))

		ev := logger.Info()
		if recorder.status >= http.StatusInternalServerError {
			ev = logger.Warn()
		}
		ev.Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Str("served_by", recorder.Header().Get(servedByHeader)).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// endpointLabel keeps metric cardinality bounded: /api/appointments/a1 -> /api/appointments.
func endpointLabel(path string) string {
	parts := strings.SplitN(strings.Trim(path, "/"), "/", 3)
	if len(parts) >= 2 && parts[0] == "api" {
		return "/api/" + parts[1]
	}
	return "/" + parts[0]
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
