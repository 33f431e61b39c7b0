package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by an SQLite database file.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) an SQLite audit database at the given
// path. Parent directories are created and WAL mode is enabled for
// concurrent reads.
func Open(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &SQLiteStore{conn: conn, path: path}
	if err := store.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

// migrate creates the schema if it does not exist.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dispatch_audit (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL DEFAULT '',
		agent_id        TEXT NOT NULL,
		mission         TEXT NOT NULL,
		skills          TEXT NOT NULL,
		depends_on      TEXT NOT NULL DEFAULT '[]',
		model           TEXT NOT NULL DEFAULT '',
		max_skill_calls INTEGER NOT NULL,
		created_at      TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dispatch_audit_created
		ON dispatch_audit(created_at);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// Record implements Store.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) (Entry, error) {
	e.ID = uuid.New().String()
	e.CreatedAt = time.Now().UTC()

	skills, err := json.Marshal(e.Skills)
	if err != nil {
		return Entry{}, fmt.Errorf("encode skills: %w", err)
	}
	dependsOn, err := json.Marshal(e.DependsOn)
	if err != nil {
		return Entry{}, fmt.Errorf("encode depends_on: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO dispatch_audit
			(id, conversation_id, agent_id, mission, skills, depends_on, model, max_skill_calls, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ConversationID, e.AgentID, e.Mission, string(skills), string(dependsOn),
		e.Model, e.MaxSkillCalls, e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("insert audit record: %w", err)
	}
	return e, nil
}

// Discard implements Store.
func (s *SQLiteStore) Discard(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM dispatch_audit WHERE id = ?`, id); err != nil {
		return fmt.Errorf("discard audit record: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, conversation_id, agent_id, mission, skills, depends_on, model, max_skill_calls, created_at
		FROM dispatch_audit
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var skills, dependsOn string
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.AgentID, &e.Mission,
			&skills, &dependsOn, &e.Model, &e.MaxSkillCalls, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if err := json.Unmarshal([]byte(skills), &e.Skills); err != nil {
			return nil, fmt.Errorf("decode skills: %w", err)
		}
		if err := json.Unmarshal([]byte(dependsOn), &e.DependsOn); err != nil {
			return nil, fmt.Errorf("decode depends_on: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}
