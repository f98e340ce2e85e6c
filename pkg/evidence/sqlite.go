package evidence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/govlegible/civitas/pkg/core"
	cerr "github.com/govlegible/civitas/pkg/errors"
)

// SQLiteSink persists evidence in SQLite.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink creates a SQLite-backed sink and ensures schema.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureEvidenceSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

// OpenSQLiteSink opens (or creates) a sink at path.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteSink(db)
}

func ensureEvidenceSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trace_events (
			id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL,
			span_id TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			type TEXT NOT NULL,
			payload_json TEXT,
			metadata_json TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_trace_events_trace ON trace_events (trace_id);
		CREATE TABLE IF NOT EXISTS receipts (
			id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL UNIQUE,
			capability_id TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			receipt_json TEXT NOT NULL
		);
	`)
	return err
}

// Append stores the ordered event list.
func (s *SQLiteSink) Append(ctx context.Context, events []core.TraceEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, event := range events {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trace_events (id, trace_id, span_id, timestamp, type, payload_json, metadata_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			event.ID, event.TraceID, event.SpanID, event.Timestamp.UTC(),
			string(event.Type), string(payload), string(metadata),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Record stores a receipt. The unique constraint on trace_id enforces the
// once-per-invocation rule at the storage layer too.
func (s *SQLiteSink) Record(ctx context.Context, receipt core.Receipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO receipts (id, trace_id, capability_id, timestamp, receipt_json)
		VALUES (?, ?, ?, ?, ?)
	`, receipt.ID, receipt.TraceID, receipt.CapabilityID, receipt.Timestamp.UTC(), string(raw))
	if err != nil {
		return cerr.New(cerr.CodeIntegrity, "record receipt", err).
			WithContext("traceId", receipt.TraceID)
	}
	return nil
}

// ByTrace returns the events for one trace in emission order.
func (s *SQLiteSink) ByTrace(ctx context.Context, traceID string) ([]core.TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trace_id, span_id, timestamp, type, payload_json, metadata_json
		FROM trace_events
		WHERE trace_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []core.TraceEvent
	for rows.Next() {
		var (
			event        core.TraceEvent
			eventType    string
			timestamp    time.Time
			payloadJSON  string
			metadataJSON string
		)
		if err := rows.Scan(&event.ID, &event.TraceID, &event.SpanID, &timestamp,
			&eventType, &payloadJSON, &metadataJSON); err != nil {
			return nil, err
		}
		event.Timestamp = timestamp
		event.Type = core.TraceEventType(eventType)
		if payloadJSON != "" {
			if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
				return nil, err
			}
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &event.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// ReceiptByTrace returns the receipt for one trace, or nil when none.
func (s *SQLiteSink) ReceiptByTrace(ctx context.Context, traceID string) (*core.Receipt, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT receipt_json FROM receipts WHERE trace_id = ?`, traceID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var receipt core.Receipt
	if err := json.Unmarshal([]byte(raw), &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
