package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"ingest/internal/api"
	"ingest/internal/config"
	"ingest/internal/logging"
	"ingest/internal/records"
)

const maxJSONBody = 1 << 20

type apiServer struct {
	bind            string
	logger          *slog.Logger
	daemon          *Daemon
	svc             *api.Service
	maxContentBytes int64

	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:            strings.TrimSpace(cfg.API.Bind),
		logger:          logger,
		daemon:          d,
		svc:             d.svc,
		maxContentBytes: cfg.API.MaxContentBytes,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(requestLogger(logger))
	r.Use(d.metrics.Middleware)

	r.Method(http.MethodGet, "/metrics", d.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(cfg.API.Token))

		r.Get("/status", srv.handleStatus)
		r.Post("/queue/poll", srv.handlePoll)
		r.Post("/queue/transactions", srv.handleTransaction)

		r.Post("/records", srv.handleCreate)
		r.Get("/records", srv.handleQuery)
		r.Route("/records/{id}", func(r chi.Router) {
			r.Get("/", srv.handleDescribe)
			r.Delete("/", srv.handleDelete)
			r.Post("/reset", srv.handleReset)
			r.Put("/contents/{fileName}", srv.handlePutContent)
			r.Get("/contents/{fileName}", srv.handleGetContent)
			r.Put("/logs", srv.handlePutLogs)
			r.Get("/logs", srv.handleGetLogs)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		srv.writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "not found", Kind: records.KindNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		srv.writeJSON(w, http.StatusMethodNotAllowed, api.ErrorResponse{Error: "method not allowed", Kind: records.KindValidation})
	})

	srv.handler = r
	timeout := func(seconds, fallback int) time.Duration {
		if seconds <= 0 {
			seconds = fallback
		}
		return time.Duration(seconds) * time.Second
	}
	srv.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout(cfg.API.ReadTimeout, 30),
		WriteTimeout:      timeout(cfg.API.WriteTimeout, 60),
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		Store:        api.FromDatabaseHealth(status.Store),
		Queue:        api.FromHealth(status.Queue),
		SourceTypes:  api.SourceTypeHealthSlice(status.SourceTypes),
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handlePoll(w http.ResponseWriter, r *http.Request) {
	var req api.PollRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Poll(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleTransaction(w http.ResponseWriter, r *http.Request) {
	var req api.TransactionRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Transact(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRecordRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.svc.Create(r.Context(), identityFromRequest(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", api.RecordURL(rec.ID))
	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *apiServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := api.QueryParams{
		ProjectID: q.Get("projectId"),
		UserID:    q.Get("userId"),
		Status:    q.Get("status"),
	}
	var err error
	if params.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		s.writeError(w, r, err)
		return
	}
	lastID, err := intParam(q.Get("lastId"), "lastId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	params.LastID = int64(lastID)

	resp, err := s.svc.Query(r.Context(), identityFromRequest(r), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleDescribe(w http.ResponseWriter, r *http.Request) {
	id, ok := s.recordID(w, r)
	if !ok {
		return
	}
	rec, err := s.svc.Describe(r.Context(), identityFromRequest(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.recordID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Delete(r.Context(), identityFromRequest(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := s.recordID(w, r)
	if !ok {
		return
	}
	rec, err := s.svc.Reset(r.Context(), identityFromRequest(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *apiServer) handlePutContent(w http.ResponseWriter, r *http.Request) {
	id, ok := s.recordID(w, r)
	if !ok {
		return
	}
	var declared *records.Declared
	if raw := strings.TrimSpace(r.Header.Get(headerDeclared)); raw != "" {
		parsed, err := api.ParseDeclared(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		declared = parsed
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxContentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{
				Error: fmt.Sprintf("content exceeds %d bytes", s.maxContentBytes),
				Kind:  records.KindValidation,
			})
			return
		}
		s.writeError(w, r, fmt.Errorf("%w: read content: %v", records.ErrValidation, err))
		return
	}

	content := records.Content{
		ContentInfo: records.ContentInfo{
			FileName:    chi.URLParam(r, "fileName"),
			ContentType: r.Header.Get("Content-Type"),
		},
		Data: data,
	}
	rec, err := s.svc.AttachContent(r.Context(), identityFromRequest(r), id, content, declared)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *apiServer) handleGetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := s.recordID(w, r)
	if !ok {
		return
	}
	content, err := s.svc.Content(r.Context(), identityFromRequest(r), id, chi.URLParam(r, "fileName"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	contentType := content.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content.Data)
}

func (s *apiServer) handlePutLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.recordID(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxContentBytes))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: read logs: %v", records.ErrValidation, err))
		return
	}
	summary, err := s.svc.WriteLogs(r.Context(), identityFromRequest(r), id, string(data))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *apiServer) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.recordID(w, r)
	if !ok {
		return
	}
	resp, err := s.svc.Logs(r.Context(), identityFromRequest(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, fmt.Errorf("%w: invalid record id %q", records.ErrValidation, raw))
		return 0, false
	}
	return id, true
}

func intParam(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", records.ErrValidation, name)
	}
	return v, nil
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid request body: %v", records.ErrValidation, err))
		return false
	}
	return true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := api.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "request failed", "api_error",
			logging.Error(err),
			logging.String("path", r.URL.Path),
		)
	}
	s.writeJSON(w, status, api.NewErrorResponse(err))
}
