// Package history implements the run ledger: an embedded, file-backed
// record of past assessment/installation runs, queried by the diagnostics
// server (§A.6). It supplements spec.md, which is
// silent on history, the way the original's standalone diagnostics tool
// inspects past runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/status"
)

// Record is one completed run's summary row.
type Record struct {
	ActivityID            string
	SequenceNumber        int
	Operation             models.Operation
	Outcome               status.Status
	StartTime             time.Time
	EndTime                time.Time
	CriticalSecurityCount int
	OtherCount            int
	InstalledCount        int
	FailedCount           int
}

// Store wraps a single-file duckdb database holding the runs table.
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Open opens (creating if absent) the duckdb file at path and ensures the
// runs table exists.
func Open(ctx context.Context, path string, log *zap.SugaredLogger) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	s := &Store{db: db, log: log}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	s.log.Debugw("running history migration")
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS runs (
		activity_id TEXT,
		sequence_number INTEGER,
		operation TEXT,
		outcome TEXT,
		start_time TIMESTAMP,
		end_time TIMESTAMP,
		critical_security_count INTEGER,
		other_count INTEGER,
		installed_count INTEGER,
		failed_count INTEGER
	)`)
	if err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Record inserts one completed run's summary row.
func (s *Store) Record(ctx context.Context, r Record) error {
	s.log.Debugw("recording run history", "activityId", r.ActivityID, "operation", r.Operation, "outcome", r.Outcome)
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (
		activity_id, sequence_number, operation, outcome, start_time, end_time,
		critical_security_count, other_count, installed_count, failed_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ActivityID, r.SequenceNumber, string(r.Operation), string(r.Outcome), r.StartTime, r.EndTime,
		r.CriticalSecurityCount, r.OtherCount, r.InstalledCount, r.FailedCount)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first, bounded by limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.log.Debugw("querying recent run history", "limit", limit)
	rows, err := s.db.QueryContext(ctx, `SELECT
		activity_id, sequence_number, operation, outcome, start_time, end_time,
		critical_security_count, other_count, installed_count, failed_count
		FROM runs ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var operation, outcome string
		if err := rows.Scan(&r.ActivityID, &r.SequenceNumber, &operation, &outcome, &r.StartTime, &r.EndTime,
			&r.CriticalSecurityCount, &r.OtherCount, &r.InstalledCount, &r.FailedCount); err != nil {
			return nil, fmt.Errorf("history: recent: scan: %w", err)
		}
		r.Operation = models.Operation(operation)
		r.Outcome = status.Status(outcome)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	return out, nil
}

// RecordFromSummary builds a Record from a status.Summary plus the
// sequence number and timing the caller tracked, for the common case of
// recording a just-finished core run.
func RecordFromSummary(summary status.Summary, sequenceNumber int, start, end time.Time) Record {
	return Record{
		ActivityID:            summary.ActivityID,
		SequenceNumber:        sequenceNumber,
		Operation:             summary.Operation,
		Outcome:               summary.Outcome,
		StartTime:             start,
		EndTime:               end,
		CriticalSecurityCount: summary.CriticalSecurityCount,
		OtherCount:            summary.OtherCount,
		InstalledCount:        summary.InstalledCount,
		FailedCount:           summary.FailedCount,
	}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
