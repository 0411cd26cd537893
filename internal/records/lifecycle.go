package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Create inserts a record owned by the identity. The record starts READY when
// contents are supplied and INCOMPLETE otherwise, at revision 1.
func (s *Store) Create(ctx context.Context, ident Identity, in NewRecord) (*Record, error) {
	ctx = ensureContext(ctx)
	if err := validateNewRecord(ident, in); err != nil {
		return nil, err
	}

	var created *Record
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		var declaredTime *time.Time
		var offset any
		if in.Declared != nil {
			t := in.Declared.Time.UTC()
			declaredTime = &t
			offset = in.Declared.Offset
		}

		var id int64
		row := tx.QueryRowContext(ctx, s.dialect.rebind(
			`INSERT INTO records (project_id, user_id, source_type, source_id, declared_time, time_offset, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		),
			ident.ProjectID,
			ident.UserID,
			in.SourceType,
			in.SourceID,
			s.dialect.nullableTimeArg(declaredTime),
			offset,
			s.dialect.timeArg(now),
		)
		if err := row.Scan(&id); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}

		status := initialStatus(len(in.Contents) > 0)
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO metadata (record_id, status, message, created_at, modified_at, revision) VALUES (?, ?, ?, ?, ?, ?)`,
		), id, string(status), MessageCreated, s.dialect.timeArg(now), s.dialect.timeArg(now), initialRevision); err != nil {
			return fmt.Errorf("insert metadata: %w", err)
		}
		for _, content := range in.Contents {
			if err := s.upsertContent(ctx, tx, id, content, now); err != nil {
				return err
			}
		}

		rec, err := s.loadRecord(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if err := s.attachSummaries(ctx, tx, []*Record{rec}); err != nil {
			return err
		}
		created = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	return created, nil
}

func validateNewRecord(ident Identity, in NewRecord) error {
	if err := validateIdentifier("project id", ident.ProjectID); err != nil {
		return err
	}
	if err := validateIdentifier("user id", ident.UserID); err != nil {
		return err
	}
	if err := validateIdentifier("source type", in.SourceType); err != nil {
		return err
	}
	if err := validateIdentifier("source id", in.SourceID); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(in.Contents))
	for _, content := range in.Contents {
		if err := validateFileName(content.FileName); err != nil {
			return err
		}
		if _, dup := seen[content.FileName]; dup {
			return invalid("duplicate content file name %q", content.FileName)
		}
		seen[content.FileName] = struct{}{}
	}
	return nil
}

func validateFileName(name string) error {
	if err := validateIdentifier("file name", name); err != nil {
		return err
	}
	if strings.ContainsAny(name, "/\\") {
		return invalid("file name %q must not contain path separators", name)
	}
	return nil
}

func (s *Store) upsertContent(ctx context.Context, q querier, id int64, content Content, now time.Time) error {
	data := content.Data
	if data == nil {
		data = []byte{}
	}
	_, err := q.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO contents (record_id, file_name, content_type, size, data, created_at) VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (record_id, file_name) DO UPDATE SET content_type = excluded.content_type, size = excluded.size, data = excluded.data, created_at = excluded.created_at`,
	), id, content.FileName, content.ContentType, int64(len(data)), data, s.dialect.timeArg(now))
	if err != nil {
		return fmt.Errorf("write content %q: %w", content.FileName, err)
	}
	return nil
}

// AttachContent adds or replaces a named attachment. An INCOMPLETE record
// becomes READY. declared, when non-nil, assigns the producer timestamp.
// Records held by a worker are refused with ErrRevisionConflict.
func (s *Store) AttachContent(ctx context.Context, ident Identity, id int64, content Content, declared *Declared) (*Record, error) {
	ctx = ensureContext(ctx)
	if err := validateFileName(content.FileName); err != nil {
		return nil, err
	}

	var updated *Record
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := s.loadScoped(ctx, tx, ident, id, true)
		if err != nil {
			return err
		}
		if rec.Metadata.Status.IsClaimed() {
			return claimedConflict(id, rec.Metadata.Status)
		}
		now := s.now()
		if err := s.upsertContent(ctx, tx, id, content, now); err != nil {
			return err
		}
		if declared != nil {
			t := declared.Time.UTC()
			if _, err := tx.ExecContext(ctx, s.dialect.rebind(
				"UPDATE records SET declared_time = ?, time_offset = ? WHERE id = ?",
			), s.dialect.timeArg(t), declared.Offset, id); err != nil {
				return fmt.Errorf("assign declared time: %w", err)
			}
			rec.DeclaredTime = &t
			offset := declared.Offset
			rec.TimeOffset = &offset
		}
		if rec.Metadata.Status == StatusIncomplete {
			next := rec.Metadata.advance(StatusReady, MessageUploaded, now)
			if err := s.updateMetadata(ctx, tx, id, rec.Metadata, next); err != nil {
				return err
			}
			rec.Metadata = next
		}
		if err := s.attachSummaries(ctx, tx, []*Record{rec}); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("attach content to record %d: %w", id, err)
	}
	return updated, nil
}

// Reset forces a record back to READY when it has content, otherwise to
// INCOMPLETE, whatever its current status. Only existence is checked.
func (s *Store) Reset(ctx context.Context, ident Identity, id int64) (*Record, error) {
	ctx = ensureContext(ctx)
	var updated *Record
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := s.loadScoped(ctx, tx, ident, id, true)
		if err != nil {
			return err
		}
		count, err := s.countContents(ctx, tx, id)
		if err != nil {
			return err
		}
		next := rec.Metadata.advance(resetTarget(count > 0), MessageReset, s.now())
		if err := s.updateMetadata(ctx, tx, id, rec.Metadata, next); err != nil {
			return err
		}
		rec.Metadata = next
		if err := s.attachSummaries(ctx, tx, []*Record{rec}); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reset record %d: %w", id, err)
	}
	return updated, nil
}

// Query lists a project's records with id greater than req.LastID, ascending
// by id and capped at req.Limit.
func (s *Store) Query(ctx context.Context, ident Identity, req QueryRequest) ([]*Record, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(req.ProjectID) == "" {
		req.ProjectID = ident.ProjectID
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, invalid("project id is required")
	}
	if ident.ProjectID != "" && req.ProjectID != ident.ProjectID {
		return nil, invalid("project id %q is outside the caller's project", req.ProjectID)
	}
	if req.Limit < 1 {
		return nil, invalid("limit must be at least 1")
	}
	if s.maxQueryLimit > 0 && req.Limit > s.maxQueryLimit {
		return nil, invalid("limit must not exceed %d", s.maxQueryLimit)
	}
	if req.LastID < 0 {
		return nil, invalid("last id must not be negative")
	}
	if req.Status != "" {
		if _, ok := statusSet[req.Status]; !ok {
			return nil, invalid("unknown status %q", req.Status)
		}
	}

	query := "SELECT " + recordColumns + recordFrom + " WHERE r.project_id = ? AND r.id > ?"
	args := []any{req.ProjectID, req.LastID}
	if req.UserID != "" {
		query += " AND r.user_id = ?"
		args = append(args, req.UserID)
	}
	if req.Status != "" {
		query += " AND m.status = ?"
		args = append(args, string(req.Status))
	}
	query += " ORDER BY r.id LIMIT ?"
	args = append(args, req.Limit)

	recs, err := s.queryRecords(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	if err := s.attachSummaries(ctx, s.db, recs); err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return recs, nil
}

// Get returns one record with its attachment summaries.
func (s *Store) Get(ctx context.Context, ident Identity, id int64) (*Record, error) {
	ctx = ensureContext(ctx)
	rec, err := s.loadScoped(ctx, s.db, ident, id, false)
	if err != nil {
		return nil, err
	}
	if err := s.attachSummaries(ctx, s.db, []*Record{rec}); err != nil {
		return nil, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, nil
}

// Delete removes a record together with its metadata, contents and logs.
// QUEUED and PROCESSING records are refused with ErrRevisionConflict; reset
// them first.
func (s *Store) Delete(ctx context.Context, ident Identity, id int64) error {
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := s.loadScoped(ctx, tx, ident, id, true)
		if err != nil {
			return err
		}
		if rec.Metadata.Status.IsClaimed() {
			return claimedConflict(id, rec.Metadata.Status)
		}
		res, err := tx.ExecContext(ctx, s.dialect.rebind("DELETE FROM records WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return notFound(id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	return nil
}

// GetContent returns one attachment including its bytes.
func (s *Store) GetContent(ctx context.Context, ident Identity, id int64, fileName string) (*Content, error) {
	ctx = ensureContext(ctx)
	if _, err := s.loadScoped(ctx, s.db, ident, id, false); err != nil {
		return nil, err
	}
	var (
		content Content
		created dbTime
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		"SELECT file_name, content_type, size, data, created_at FROM contents WHERE record_id = ? AND file_name = ?",
	), id, fileName).Scan(&content.FileName, &content.ContentType, &content.Size, &content.Data, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content %q of record %d: %w", fileName, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read content %q of record %d: %w", fileName, id, err)
	}
	content.CreatedAt = created.Time
	return &content, nil
}

// GetLogs returns the log blob of a record.
func (s *Store) GetLogs(ctx context.Context, ident Identity, id int64) (*Logs, error) {
	ctx = ensureContext(ctx)
	if _, err := s.loadScoped(ctx, s.db, ident, id, false); err != nil {
		return nil, err
	}
	var (
		logs     Logs
		modified dbTime
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		"SELECT data, size, modified_at FROM logs WHERE record_id = ?",
	), id).Scan(&logs.Text, &logs.Size, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("logs of record %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read logs of record %d: %w", id, err)
	}
	logs.ModifiedAt = modified.Time
	return &logs, nil
}

// WriteLogs creates or replaces a record's logs without touching its
// metadata or revision.
func (s *Store) WriteLogs(ctx context.Context, ident Identity, id int64, text string) (*LogsInfo, error) {
	ctx = ensureContext(ctx)
	var info *LogsInfo
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.loadScoped(ctx, tx, ident, id, true); err != nil {
			return err
		}
		now := s.now()
		if err := s.upsertLogs(ctx, tx, id, text, now); err != nil {
			return err
		}
		info = &LogsInfo{Size: int64(len(text)), ModifiedAt: now}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("write logs of record %d: %w", id, err)
	}
	return info, nil
}
