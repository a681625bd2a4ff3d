package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zhouzirui/callsim/backend/internal/model/conversation"
)

// SQLiteStore persists transcripts to a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the transcript database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init transcript schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    operator_id TEXT NOT NULL,
    persona_id TEXT NOT NULL,
    status TEXT NOT NULL,
    end_reason TEXT,
    total_turns INTEGER NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL,
    ended_at TEXT
);
CREATE TABLE IF NOT EXISTS turns (
    session_id TEXT NOT NULL,
    turn_number INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (session_id, turn_number),
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StartSession inserts the session row.
func (s *SQLiteStore) StartSession(ctx context.Context, record SessionRecord) error {
	if record.Status == "" {
		record.Status = conversation.StatusActive
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, operator_id, persona_id, status, started_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		record.ID, record.OperatorID, record.PersonaID, string(record.Status), formatTime(record.StartedAt))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionExists
	}
	return nil
}

// AppendTurn writes a turn row.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, turn conversation.Turn) error {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns(session_id, turn_number, role, content, created_at) VALUES(?, ?, ?, ?, ?)`,
		sessionID, turn.Number, turn.Role.String(), turn.Content, formatTime(turn.CreatedAt))
	return err
}

// EndSession closes the session row.
func (s *SQLiteStore) EndSession(ctx context.Context, sessionID, reason string, totalTurns int, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, end_reason = ?, total_turns = ?, ended_at = ? WHERE session_id = ?`,
		string(conversation.StatusEnded), reason, totalTurns, formatTime(endedAt), sessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

const sessionQuery = `SELECT s.session_id, s.operator_id, s.persona_id, s.status, s.end_reason, s.started_at, s.ended_at,
        CASE WHEN s.status = 'ended' THEN s.total_turns
             ELSE (SELECT COUNT(*) FROM turns t WHERE t.session_id = s.session_id) END
 FROM sessions s`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (SessionRecord, error) {
	var (
		record    SessionRecord
		status    string
		endReason sql.NullString
		startedAt string
		endedAt   sql.NullString
	)
	if err := row.Scan(&record.ID, &record.OperatorID, &record.PersonaID, &status, &endReason, &startedAt, &endedAt, &record.TotalTurns); err != nil {
		return SessionRecord{}, err
	}

	record.Status = conversation.Status(status)
	record.EndReason = endReason.String
	record.StartedAt = parseTime(startedAt)
	if endedAt.Valid {
		ts := parseTime(endedAt.String)
		record.EndedAt = &ts
	}
	return record, nil
}

// Session loads a session summary.
func (s *SQLiteStore) Session(ctx context.Context, sessionID string) (SessionRecord, error) {
	record, err := scanSession(s.db.QueryRowContext(ctx, sessionQuery+` WHERE s.session_id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrSessionNotFound
	}
	return record, err
}

// List loads session summaries, most recent first.
func (s *SQLiteStore) List(ctx context.Context, operatorID string) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		sessionQuery+` WHERE ? = '' OR s.operator_id = ? ORDER BY s.started_at DESC, s.session_id ASC`,
		operatorID, operatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]SessionRecord, 0, 16)
	for rows.Next() {
		record, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Transcript loads the ordered turns of a session.
func (s *SQLiteStore) Transcript(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_number, role, content, created_at FROM turns WHERE session_id = ? ORDER BY turn_number ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := make([]conversation.Turn, 0, 16)
	for rows.Next() {
		var (
			turn    conversation.Turn
			role    string
			created string
		)
		if err := rows.Scan(&turn.Number, &role, &turn.Content, &created); err != nil {
			return nil, err
		}
		if turn.Role, err = conversation.ParseRole(role); err != nil {
			return nil, fmt.Errorf("turn %d: %w", turn.Number, err)
		}
		turn.CreatedAt = parseTime(created)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// timeLayout is fixed width so that started_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}
