package records

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a record.
type Status string

const (
	StatusIncomplete Status = "INCOMPLETE"
	StatusReady      Status = "READY"
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
)

// Messages written by the store itself.
const (
	MessageCreated      = "created"
	MessageUploaded     = "content uploaded"
	MessageQueued       = "queued for processing"
	MessageReset        = "reset"
	MessageReclaimed    = "reclaimed after stale claim"
	initialRevision     = int64(1)
	maxMessageLength    = 4096
	maxIdentifierLength = 255
)

var allStatuses = []Status{
	StatusIncomplete,
	StatusReady,
	StatusQueued,
	StatusProcessing,
	StatusSucceeded,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status. Matching is case-insensitive.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no worker transition leaves the status.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// IsClaimed reports whether a worker currently holds the record.
func (s Status) IsClaimed() bool {
	return s == StatusQueued || s == StatusProcessing
}

// Identity is the caller scope supplied by the transport layer. It is trusted
// as-is. A non-empty ProjectID restricts id-based operations to that project;
// the zero Identity is the administrative scope.
type Identity struct {
	ProjectID string
	UserID    string
}

func (i Identity) allows(r *Record) bool {
	if i.ProjectID == "" {
		return true
	}
	return r.ProjectID == i.ProjectID
}

// Metadata is the mutable lifecycle envelope of a record.
type Metadata struct {
	Status     Status
	Message    string
	CreatedAt  time.Time
	ModifiedAt time.Time
	Revision   int64
}

// ContentInfo summarizes an attachment without its bytes.
type ContentInfo struct {
	FileName    string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// Content is one named attachment including its bytes.
type Content struct {
	ContentInfo
	Data []byte
}

// LogsInfo summarizes the log blob of a record.
type LogsInfo struct {
	Size       int64
	ModifiedAt time.Time
}

// Logs is the free-text log blob of a record.
type Logs struct {
	LogsInfo
	Text string
}

// Record is one uploaded item with its metadata and attachment summaries.
type Record struct {
	ID           int64
	ProjectID    string
	UserID       string
	SourceType   string
	SourceID     string
	DeclaredTime *time.Time
	TimeOffset   *int
	CreatedAt    time.Time
	Metadata     Metadata
	Contents     []ContentInfo
	Logs         *LogsInfo
}

// HasContent reports whether any attachment is present.
func (r *Record) HasContent() bool {
	return r != nil && len(r.Contents) > 0
}

// Declared carries the producer-declared timestamp of an upload. Offset is in
// seconds east of UTC.
type Declared struct {
	Time   time.Time
	Offset int
}

// NewRecord describes a record to create.
type NewRecord struct {
	SourceType string
	SourceID   string
	Declared   *Declared
	Contents   []Content
}

// PollRequest bounds a claim batch.
type PollRequest struct {
	Limit       int
	SourceTypes []string
}

// TransitionRequest is a worker status report.
type TransitionRequest struct {
	ID       int64
	Revision int64
	Status   Status
	Message  string
	// Logs replaces the record's log blob when non-nil. Only honoured when finalizing.
	Logs *string
}

// QueryRequest filters a cursor-paginated listing.
type QueryRequest struct {
	ProjectID string
	UserID    string
	Status    Status
	Limit     int
	LastID    int64
}

// HealthSummary describes record counts per status.
type HealthSummary struct {
	Total  int
	Counts map[Status]int
}
