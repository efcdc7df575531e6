package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ts       TEXT NOT NULL,
	event    TEXT NOT NULL,
	call_id  TEXT NOT NULL,
	tool     TEXT NOT NULL,
	action   TEXT NOT NULL,
	severity TEXT NOT NULL,
	caller   TEXT NOT NULL,
	decision TEXT,
	reason   TEXT,
	actor    TEXT,
	detail   TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_events_call_id ON audit_events(call_id);
`

// SQLite is a durable Sink backed by a local sqlite database.
// Append-only: rows are never updated or deleted by the gateway.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the audit database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) insert(ctx context.Context, e Entry) error {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (ts, event, call_id, tool, action, severity, caller, decision, reason, actor, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp, e.Event, e.CallID, e.Tool, e.Action, e.Severity, e.Caller,
		e.Decision, e.Reason, e.Actor, e.Detail)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// ByCallID returns every recorded event for a call, in insertion order.
func (s *SQLite) ByCallID(ctx context.Context, callID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, event, call_id, tool, action, severity, caller, decision, reason, actor, detail
		 FROM audit_events WHERE call_id = ? ORDER BY id`, callID)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var decision, reason, actor, detail sql.NullString
		if err := rows.Scan(&e.Timestamp, &e.Event, &e.CallID, &e.Tool, &e.Action,
			&e.Severity, &e.Caller, &decision, &reason, &actor, &detail); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.Decision = decision.String
		e.Reason = reason.String
		e.Actor = actor.String
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Sink implementation ---

func (s *SQLite) ToolCall(ctx context.Context, call *model.ToolCallContext, decision *model.Decision) error {
	e := newEntry(EventToolCall, call)
	if decision != nil {
		e.Decision = string(decision.Effect)
		e.Reason = decision.Reason
	}
	return s.insert(ctx, e)
}

func (s *SQLite) ApprovalGranted(ctx context.Context, call *model.ToolCallContext, approver string) error {
	e := newEntry(EventApprovalGranted, call)
	e.Actor = approver
	return s.insert(ctx, e)
}

func (s *SQLite) ApprovalDenied(ctx context.Context, call *model.ToolCallContext, denier string) error {
	e := newEntry(EventApprovalDenied, call)
	e.Actor = denier
	return s.insert(ctx, e)
}

func (s *SQLite) ExecutionSuccess(ctx context.Context, call *model.ToolCallContext, output any) error {
	e := newEntry(EventExecutionSuccess, call)
	e.Detail = detailString(output)
	return s.insert(ctx, e)
}

func (s *SQLite) ExecutionFailure(ctx context.Context, call *model.ToolCallContext, errMsg string) error {
	e := newEntry(EventExecutionFailure, call)
	e.Detail = errMsg
	return s.insert(ctx, e)
}
