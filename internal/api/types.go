package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Record describes a record in a transport-friendly format.
type Record struct {
	ID           int64            `json:"id"`
	ProjectID    string           `json:"projectId"`
	UserID       string           `json:"userId"`
	SourceType   string           `json:"sourceType"`
	SourceID     string           `json:"sourceId"`
	DeclaredTime string           `json:"declaredTime,omitempty"`
	TimeOffset   *int             `json:"timeOffset,omitempty"`
	CreatedAt    string           `json:"createdAt,omitempty"`
	Status       string           `json:"status"`
	Message      string           `json:"message"`
	Revision     int64            `json:"revision"`
	ModifiedAt   string           `json:"modifiedAt,omitempty"`
	Contents     []ContentSummary `json:"contents"`
	Logs         *LogsSummary     `json:"logs,omitempty"`
}

// ContentSummary describes an attachment without its bytes.
type ContentSummary struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
	CreatedAt   string `json:"createdAt,omitempty"`
	URL         string `json:"url"`
}

// LogsSummary describes the log blob of a record.
type LogsSummary struct {
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modifiedAt,omitempty"`
	URL        string `json:"url"`
}

// PollRequest asks for up to Limit READY records.
type PollRequest struct {
	Limit                int      `json:"limit"`
	SupportedSourceTypes []string `json:"supportedSourceTypes"`
}

// PollResponse carries the claimed records.
type PollResponse struct {
	Limit   int      `json:"limit"`
	Records []Record `json:"records"`
}

// TransactionRequest is a worker status report.
type TransactionRequest struct {
	ID       int64   `json:"id"`
	Revision int64   `json:"revision"`
	Status   string  `json:"status"`
	Message  string  `json:"message"`
	Logs     *string `json:"logs,omitempty"`
}

// TransactionResponse echoes the report with the new revision.
type TransactionResponse struct {
	ID       int64  `json:"id"`
	Revision int64  `json:"revision"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	LogsURL  string `json:"logsUrl,omitempty"`
}

// CreateRecordRequest creates a record under the caller's identity.
type CreateRecordRequest struct {
	SourceType   string `json:"sourceType"`
	SourceID     string `json:"sourceId"`
	DeclaredTime string `json:"declaredTime,omitempty"`
	TimeOffset   int    `json:"timeOffset,omitempty"`
}

// QueryParams filters a record listing.
type QueryParams struct {
	ProjectID string
	UserID    string
	Status    string
	Limit     int
	LastID    int64
}

// QueryResponse is one page of a record listing.
type QueryResponse struct {
	Limit   int      `json:"limit"`
	LastID  int64    `json:"lastId,omitempty"`
	Records []Record `json:"records"`
}

// LogsResponse carries a record's log text.
type LogsResponse struct {
	ID         int64  `json:"id"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modifiedAt,omitempty"`
	Logs       string `json:"logs"`
}

// SourceTypeHealth mirrors readiness reporting for converters.
type SourceTypeHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// StoreStatus describes the record store.
type StoreStatus struct {
	Driver         string `json:"driver"`
	Location       string `json:"location"`
	SchemaVersion  uint   `json:"schemaVersion"`
	Reachable      bool   `json:"reachable"`
	IntegrityCheck bool   `json:"integrityCheck"`
	Error          string `json:"error,omitempty"`
}

// QueueStats summarizes record counts per status.
type QueueStats struct {
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StartedAt    string             `json:"startedAt,omitempty"`
	LockFilePath string             `json:"lockFilePath"`
	Store        StoreStatus        `json:"store"`
	Queue        QueueStats         `json:"queue"`
	SourceTypes  []SourceTypeHealth `json:"sourceTypes"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
