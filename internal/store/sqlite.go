package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
	"github.com/ashureev/kundali-rag/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes session writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode lets readers proceed while a turn is being saved.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		profile_json TEXT,
		chart_json TEXT,
		messages_json TEXT NOT NULL DEFAULT '[]',
		decision_json TEXT,
		rag_results_json TEXT NOT NULL DEFAULT '[]',
		context_keys_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetSession retrieves session state by id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	query := `
		SELECT session_id, profile_json, chart_json, messages_json, decision_json,
		       rag_results_json, context_keys_json, created_at, updated_at
		FROM sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var state domain.SessionState
	var profileJSON, chartJSON, decisionJSON sql.NullString
	var messagesJSON, resultsJSON, keysJSON string
	var createdAt, updatedAt int64

	err := row.Scan(
		&state.SessionID, &profileJSON, &chartJSON, &messagesJSON, &decisionJSON,
		&resultsJSON, &keysJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if profileJSON.Valid {
		if err := json.Unmarshal([]byte(profileJSON.String), &state.Profile); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
	}
	if chartJSON.Valid {
		if err := json.Unmarshal([]byte(chartJSON.String), &state.Chart); err != nil {
			return nil, fmt.Errorf("decode chart: %w", err)
		}
	}
	if decisionJSON.Valid {
		if err := json.Unmarshal([]byte(decisionJSON.String), &state.LastDecision); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(messagesJSON), &state.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	if err := json.Unmarshal([]byte(resultsJSON), &state.RAGResults); err != nil {
		return nil, fmt.Errorf("decode rag results: %w", err)
	}
	if err := json.Unmarshal([]byte(keysJSON), &state.ContextKeys); err != nil {
		return nil, fmt.Errorf("decode context keys: %w", err)
	}

	state.CreatedAt = time.Unix(createdAt, 0)
	state.UpdatedAt = time.Unix(updatedAt, 0)

	return &state, nil
}

// UpsertSession creates or replaces session state.
func (s *SQLiteStore) UpsertSession(ctx context.Context, state *domain.SessionState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("upsert session: missing session id")
	}

	profileJSON, err := nullableJSON(state.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	chartJSON, err := nullableJSON(state.Chart)
	if err != nil {
		return fmt.Errorf("encode chart: %w", err)
	}
	decisionJSON, err := nullableJSON(state.LastDecision)
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	messagesJSON, err := listJSON(state.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	resultsJSON, err := listJSON(state.RAGResults)
	if err != nil {
		return fmt.Errorf("encode rag results: %w", err)
	}
	keysJSON, err := listJSON(state.ContextKeys)
	if err != nil {
		return fmt.Errorf("encode context keys: %w", err)
	}

	createdAt := state.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The chart is immutable once stored.
	query := `
		INSERT INTO sessions (
			session_id, profile_json, chart_json, messages_json, decision_json,
			rag_results_json, context_keys_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			profile_json = COALESCE(excluded.profile_json, sessions.profile_json),
			chart_json = COALESCE(sessions.chart_json, excluded.chart_json),
			messages_json = excluded.messages_json,
			decision_json = excluded.decision_json,
			rag_results_json = excluded.rag_results_json,
			context_keys_json = excluded.context_keys_json,
			updated_at = excluded.updated_at`

	err = shared.RetryOnConflict(ctx, "upsert_session", 3, 50*time.Millisecond, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			state.SessionID, profileJSON, chartJSON, messagesJSON, decisionJSON,
			resultsJSON, keysJSON, createdAt.Unix(), updatedAt.Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// DeleteSession removes session state.
// Implements retry logic with exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	err := shared.RetryOnConflict(ctx, "delete_session", 3, 100*time.Millisecond, func() error {
		return s.deleteSessionOnce(ctx, sessionID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) deleteSessionOnce(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CleanupExpiredSessions removes sessions older than TTL.
func (s *SQLiteStore) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// ListSessionIDs returns the most recently updated session ids.
func (s *SQLiteStore) ListSessionIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sessions ORDER BY updated_at DESC, session_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query session ids: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session id rows", "error", closeErr)
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session ids: %w", err)
	}
	return ids, nil
}

func nullableJSON(v any) (any, error) {
	switch t := v.(type) {
	case *domain.UserProfile:
		if t == nil {
			return nil, nil
		}
	case *domain.Chart:
		if t == nil {
			return nil, nil
		}
	case *domain.RetrievalDecision:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func listJSON[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
