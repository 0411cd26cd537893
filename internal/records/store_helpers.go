package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const recordColumns = "r.id, r.project_id, r.user_id, r.source_type, r.source_id, r.declared_time, r.time_offset, r.created_at, m.status, m.message, m.created_at, m.modified_at, m.revision"

const recordFrom = " FROM records r JOIN metadata m ON m.record_id = r.id"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec        Record
		declared   dbTime
		offset     sql.NullInt64
		created    dbTime
		statusStr  string
		message    sql.NullString
		metaCreate dbTime
		modified   dbTime
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.ProjectID,
		&rec.UserID,
		&rec.SourceType,
		&rec.SourceID,
		&declared,
		&offset,
		&created,
		&statusStr,
		&message,
		&metaCreate,
		&modified,
		&rec.Metadata.Revision,
	); err != nil {
		return nil, err
	}
	rec.DeclaredTime = declared.ptr()
	if offset.Valid {
		v := int(offset.Int64)
		rec.TimeOffset = &v
	}
	rec.CreatedAt = created.Time
	rec.Metadata.Status = Status(statusStr)
	rec.Metadata.Message = message.String
	rec.Metadata.CreatedAt = metaCreate.Time
	rec.Metadata.ModifiedAt = modified.Time
	return &rec, nil
}

func (s *Store) queryRecords(ctx context.Context, q querier, query string, args ...any) ([]*Record, error) {
	rows, err := q.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// loadRecord reads one record. lock adds the dialect's row lock so the
// caller's transaction holds the metadata row until commit.
func (s *Store) loadRecord(ctx context.Context, q querier, id int64, lock bool) (*Record, error) {
	query := "SELECT " + recordColumns + recordFrom + " WHERE r.id = ?"
	if lock {
		query += s.dialect.rowLock
	}
	rec, err := scanRecord(q.QueryRowContext(ctx, s.dialect.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load record %d: %w", id, err)
	}
	return rec, nil
}

// loadScoped reads a record visible to the identity.
func (s *Store) loadScoped(ctx context.Context, q querier, ident Identity, id int64, lock bool) (*Record, error) {
	rec, err := s.loadRecord(ctx, q, id, lock)
	if err != nil {
		return nil, err
	}
	if !ident.allows(rec) {
		return nil, notFound(id)
	}
	return rec, nil
}

// attachSummaries fills content and logs summaries for the given records.
func (s *Store) attachSummaries(ctx context.Context, q querier, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}
	byID := make(map[int64]*Record, len(recs))
	ids := make([]any, 0, len(recs))
	for _, rec := range recs {
		rec.Contents = nil
		rec.Logs = nil
		byID[rec.ID] = rec
		ids = append(ids, rec.ID)
	}
	in := makePlaceholders(len(ids))

	rows, err := q.QueryContext(ctx, s.dialect.rebind(
		"SELECT record_id, file_name, content_type, size, created_at FROM contents WHERE record_id IN ("+in+") ORDER BY record_id, file_name",
	), ids...)
	if err != nil {
		return fmt.Errorf("load contents: %w", err)
	}
	for rows.Next() {
		var (
			recordID int64
			info     ContentInfo
			created  dbTime
		)
		if err := rows.Scan(&recordID, &info.FileName, &info.ContentType, &info.Size, &created); err != nil {
			rows.Close()
			return fmt.Errorf("scan content: %w", err)
		}
		info.CreatedAt = created.Time
		if rec := byID[recordID]; rec != nil {
			rec.Contents = append(rec.Contents, info)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("load contents: %w", err)
	}
	rows.Close()

	logRows, err := q.QueryContext(ctx, s.dialect.rebind(
		"SELECT record_id, size, modified_at FROM logs WHERE record_id IN ("+in+")",
	), ids...)
	if err != nil {
		return fmt.Errorf("load logs: %w", err)
	}
	defer logRows.Close()
	for logRows.Next() {
		var (
			recordID int64
			info     LogsInfo
			modified dbTime
		)
		if err := logRows.Scan(&recordID, &info.Size, &modified); err != nil {
			return fmt.Errorf("scan logs: %w", err)
		}
		info.ModifiedAt = modified.Time
		if rec := byID[recordID]; rec != nil {
			rec.Logs = &info
		}
	}
	return logRows.Err()
}

func (s *Store) countContents(ctx context.Context, q querier, id int64) (int, error) {
	var count int
	if err := q.QueryRowContext(ctx, s.dialect.rebind("SELECT COUNT(1) FROM contents WHERE record_id = ?"), id).Scan(&count); err != nil {
		return 0, fmt.Errorf("count contents: %w", err)
	}
	return count, nil
}

// updateMetadata writes an advanced metadata row as a compare-and-swap on the
// previous status and revision.
func (s *Store) updateMetadata(ctx context.Context, q querier, id int64, prev, next Metadata) error {
	res, err := q.ExecContext(ctx, s.dialect.rebind(
		`UPDATE metadata SET status = ?, message = ?, revision = ?, modified_at = ?
         WHERE record_id = ? AND status = ? AND revision = ?`,
	),
		string(next.Status),
		next.Message,
		next.Revision,
		s.dialect.timeArg(next.ModifiedAt),
		id,
		string(prev.Status),
		prev.Revision,
	)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("%w: record %d changed concurrently", ErrRevisionConflict, id)
	}
	return nil
}

// upsertLogs creates or replaces the log blob of a record.
func (s *Store) upsertLogs(ctx context.Context, q querier, id int64, text string, now time.Time) error {
	_, err := q.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO logs (record_id, data, size, modified_at) VALUES (?, ?, ?, ?)
         ON CONFLICT (record_id) DO UPDATE SET data = excluded.data, size = excluded.size, modified_at = excluded.modified_at`,
	), id, text, int64(len(text)), s.dialect.timeArg(now))
	if err != nil {
		return fmt.Errorf("write logs: %w", err)
	}
	return nil
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimRight(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func validateIdentifier(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid("%s is required", field)
	}
	if len(value) > maxIdentifierLength {
		return invalid("%s exceeds %d characters", field, maxIdentifierLength)
	}
	return nil
}

func truncateMessage(message string) string {
	if len(message) <= maxMessageLength {
		return message
	}
	n := maxMessageLength
	for n > 0 && !utf8.RuneStart(message[n]) {
		n--
	}
	return message[:n]
}
