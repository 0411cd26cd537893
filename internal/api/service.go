package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ingest/internal/logging"
	"ingest/internal/metrics"
	"ingest/internal/records"
	"ingest/internal/sourcetypes"
)

// defaultQueryLimit applies when a listing does not name a limit.
const defaultQueryLimit = 50

// RecordStore abstracts the persistence operations the API needs.
type RecordStore interface {
	Poll(ctx context.Context, req records.PollRequest) ([]*records.Record, error)
	Transition(ctx context.Context, req records.TransitionRequest) (*records.Record, error)
	Create(ctx context.Context, ident records.Identity, in records.NewRecord) (*records.Record, error)
	AttachContent(ctx context.Context, ident records.Identity, id int64, content records.Content, declared *records.Declared) (*records.Record, error)
	Reset(ctx context.Context, ident records.Identity, id int64) (*records.Record, error)
	Query(ctx context.Context, ident records.Identity, req records.QueryRequest) ([]*records.Record, error)
	Get(ctx context.Context, ident records.Identity, id int64) (*records.Record, error)
	Delete(ctx context.Context, ident records.Identity, id int64) error
	GetContent(ctx context.Context, ident records.Identity, id int64, fileName string) (*records.Content, error)
	GetLogs(ctx context.Context, ident records.Identity, id int64) (*records.Logs, error)
	WriteLogs(ctx context.Context, ident records.Identity, id int64, text string) (*records.LogsInfo, error)
	Health(ctx context.Context) (records.HealthSummary, error)
	CheckHealth(ctx context.Context) (records.DatabaseHealth, error)
}

// Options tunes a Service.
type Options struct {
	DefaultPollLimit int
	Registry         *sourcetypes.Registry
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
}

// Service exposes record operations returning API DTOs.
type Service struct {
	store            RecordStore
	registry         *sourcetypes.Registry
	metrics          *metrics.Metrics
	logger           *slog.Logger
	defaultPollLimit int
}

// NewService constructs a Service around the provided store.
func NewService(store RecordStore, opts Options) *Service {
	if store == nil {
		return nil
	}
	registry := opts.Registry
	if registry == nil {
		registry, _ = sourcetypes.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	limit := opts.DefaultPollLimit
	if limit <= 0 {
		limit = 1
	}
	return &Service{
		store:            store,
		registry:         registry,
		metrics:          opts.Metrics,
		logger:           logging.NewComponentLogger(logger, "api"),
		defaultPollLimit: limit,
	}
}

// Poll claims READY records for a worker.
func (s *Service) Poll(ctx context.Context, req PollRequest) (PollResponse, error) {
	limit := req.Limit
	if limit == 0 {
		limit = s.defaultPollLimit
	}
	filter, err := s.registry.Resolve(req.SupportedSourceTypes)
	if err != nil {
		s.metrics.ObservePoll(0, err)
		return PollResponse{}, err
	}
	claimed, err := s.store.Poll(ctx, records.PollRequest{Limit: limit, SourceTypes: filter})
	s.metrics.ObservePoll(len(claimed), err)
	if err != nil {
		return PollResponse{}, err
	}
	if len(claimed) > 0 {
		logging.WithContext(ctx, s.logger).Debug("records claimed",
			logging.Int("count", len(claimed)),
			logging.Int("limit", limit),
		)
	}
	return PollResponse{Limit: limit, Records: FromRecords(claimed)}, nil
}

// Transact applies a worker status report. Unknown status names are passed
// through so a stale revision still reports a conflict.
func (s *Service) Transact(ctx context.Context, req TransactionRequest) (TransactionResponse, error) {
	raw := strings.TrimSpace(req.Status)
	if raw == "" {
		return TransactionResponse{}, fmt.Errorf("%w: status is required", records.ErrValidation)
	}
	status, ok := records.ParseStatus(raw)
	if !ok {
		status = records.Status(strings.ToUpper(raw))
	}

	updated, err := s.store.Transition(ctx, records.TransitionRequest{
		ID:       req.ID,
		Revision: req.Revision,
		Status:   status,
		Message:  req.Message,
		Logs:     req.Logs,
	})
	s.metrics.ObserveTransition(status, err)

	logger := logging.WithContext(ctx, s.logger)
	if err != nil {
		attrs := append(logging.Record(req.ID, req.Revision, string(status)),
			logging.String("kind", records.ErrorKind(err)),
			logging.Error(err),
		)
		logger.LogAttrs(ctx, slog.LevelInfo, "status report rejected", attrs...)
		return TransactionResponse{}, err
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "status report applied",
		logging.Record(updated.ID, updated.Metadata.Revision, string(updated.Metadata.Status))...)

	resp := TransactionResponse{
		ID:       updated.ID,
		Revision: updated.Metadata.Revision,
		Status:   string(updated.Metadata.Status),
		Message:  updated.Metadata.Message,
	}
	if req.Logs != nil && updated.Logs != nil {
		resp.LogsURL = LogsURL(updated.ID)
	}
	return resp, nil
}

// Create registers a new record under the caller's identity.
func (s *Service) Create(ctx context.Context, ident records.Identity, req CreateRecordRequest) (Record, error) {
	if err := s.registry.Validate(strings.TrimSpace(req.SourceType)); err != nil {
		return Record{}, err
	}
	in := records.NewRecord{
		SourceType: strings.TrimSpace(req.SourceType),
		SourceID:   strings.TrimSpace(req.SourceID),
	}
	if req.DeclaredTime != "" {
		declared, err := ParseDeclared(req.DeclaredTime)
		if err != nil {
			return Record{}, err
		}
		if req.TimeOffset != 0 {
			declared.Offset = req.TimeOffset
		}
		in.Declared = declared
	}
	rec, err := s.store.Create(ctx, ident, in)
	if err != nil {
		return Record{}, err
	}
	logging.WithContext(logging.WithRecordID(ctx, rec.ID), s.logger).Info("record created",
		logging.String("source_type", rec.SourceType),
		logging.String("project_id", rec.ProjectID),
	)
	return FromRecord(rec), nil
}

// ParseDeclared reads an RFC3339 timestamp; its zone offset becomes the
// declared offset.
func ParseDeclared(value string) (*records.Declared, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%w: declared time %q is not RFC3339", records.ErrValidation, value)
	}
	_, offset := t.Zone()
	return &records.Declared{Time: t.UTC(), Offset: offset}, nil
}

// AttachContent stores an uploaded attachment.
func (s *Service) AttachContent(ctx context.Context, ident records.Identity, id int64, content records.Content, declared *records.Declared) (Record, error) {
	rec, err := s.store.AttachContent(ctx, ident, id, content, declared)
	if err != nil {
		return Record{}, err
	}
	logging.WithContext(logging.WithRecordID(ctx, id), s.logger).Debug("content attached",
		logging.String("file_name", content.FileName),
		logging.Int64("size", int64(len(content.Data))),
		logging.String(logging.FieldStatus, string(rec.Metadata.Status)),
	)
	return FromRecord(rec), nil
}

// Reset forces a record back to the start of the lifecycle.
func (s *Service) Reset(ctx context.Context, ident records.Identity, id int64) (Record, error) {
	rec, err := s.store.Reset(ctx, ident, id)
	if err != nil {
		return Record{}, err
	}
	logging.WithContext(logging.WithRecordID(ctx, id), s.logger).Info("record reset",
		logging.String(logging.FieldStatus, string(rec.Metadata.Status)),
		logging.Int64(logging.FieldRevision, rec.Metadata.Revision),
	)
	return FromRecord(rec), nil
}

// Query lists records page by page.
func (s *Service) Query(ctx context.Context, ident records.Identity, params QueryParams) (QueryResponse, error) {
	limit := params.Limit
	if limit == 0 {
		limit = defaultQueryLimit
	}
	req := records.QueryRequest{
		ProjectID: strings.TrimSpace(params.ProjectID),
		UserID:    strings.TrimSpace(params.UserID),
		Limit:     limit,
		LastID:    params.LastID,
	}
	if raw := strings.TrimSpace(params.Status); raw != "" {
		status, ok := records.ParseStatus(raw)
		if !ok {
			return QueryResponse{}, fmt.Errorf("%w: unknown status %q", records.ErrValidation, raw)
		}
		req.Status = status
	}
	recs, err := s.store.Query(ctx, ident, req)
	if err != nil {
		return QueryResponse{}, err
	}
	resp := QueryResponse{Limit: limit, Records: FromRecords(recs)}
	if n := len(recs); n == limit {
		resp.LastID = recs[n-1].ID
	}
	return resp, nil
}

// Describe fetches a single record.
func (s *Service) Describe(ctx context.Context, ident records.Identity, id int64) (Record, error) {
	rec, err := s.store.Get(ctx, ident, id)
	if err != nil {
		return Record{}, err
	}
	return FromRecord(rec), nil
}

// Delete removes a record and everything attached to it.
func (s *Service) Delete(ctx context.Context, ident records.Identity, id int64) error {
	if err := s.store.Delete(ctx, ident, id); err != nil {
		return err
	}
	logging.WithContext(logging.WithRecordID(ctx, id), s.logger).Info("record deleted")
	return nil
}

// Content returns an attachment's bytes.
func (s *Service) Content(ctx context.Context, ident records.Identity, id int64, fileName string) (*records.Content, error) {
	return s.store.GetContent(ctx, ident, id, fileName)
}

// Logs returns a record's log text.
func (s *Service) Logs(ctx context.Context, ident records.Identity, id int64) (LogsResponse, error) {
	logs, err := s.store.GetLogs(ctx, ident, id)
	if err != nil {
		return LogsResponse{}, err
	}
	return LogsResponse{ID: id, Size: logs.Size, ModifiedAt: formatTime(logs.ModifiedAt), Logs: logs.Text}, nil
}

// WriteLogs replaces a record's log text.
func (s *Service) WriteLogs(ctx context.Context, ident records.Identity, id int64, text string) (LogsSummary, error) {
	info, err := s.store.WriteLogs(ctx, ident, id, text)
	if err != nil {
		return LogsSummary{}, err
	}
	return LogsSummary{Size: info.Size, ModifiedAt: formatTime(info.ModifiedAt), URL: LogsURL(id)}, nil
}

// Stats returns per-status counts.
func (s *Service) Stats(ctx context.Context) (QueueStats, error) {
	summary, err := s.store.Health(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	return FromHealth(summary), nil
}

// StoreStatus returns store diagnostics. A failed check is reported in the
// payload, not as an error.
func (s *Service) StoreStatus(ctx context.Context) StoreStatus {
	health, err := s.store.CheckHealth(ctx)
	if err != nil && health.Error == "" {
		health.Error = err.Error()
	}
	return FromDatabaseHealth(health)
}

// SourceTypes reports converter readiness.
func (s *Service) SourceTypes(ctx context.Context) []SourceTypeHealth {
	return SourceTypeHealthSlice(s.registry.HealthCheck(ctx))
}
