// Package eventstore keeps a SQLite record of caption sessions and their
// completed lines.
package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-caption/internal/config"
	_ "modernc.org/sqlite"
)

// Session is one start/stop cycle of the pipeline.
type Session struct {
	ID        string    `json:"id"`
	Device    string    `json:"device"`
	Engine    string    `json:"engine"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Reason    string    `json:"reason,omitempty"`
}

// Caption is one completed transcript or translation line.
type Caption struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Stream    string    `json:"stream"`
	Seq       uint64    `json:"seq"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps a SQLite-backed caption store. With retention mode "ephemeral"
// every method is a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the event store according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "eventstore"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) enabled() bool {
	return s.cfg.RetentionMode != "ephemeral" && s.db != nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    device TEXT,
    engine TEXT,
    started_at INTEGER NOT NULL,
    ended_at INTEGER,
    reason TEXT
);
CREATE TABLE IF NOT EXISTS captions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    stream TEXT NOT NULL,
    seq INTEGER NOT NULL,
    text TEXT NOT NULL,
    source TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_captions_session_seq ON captions(session_id, stream, seq);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// OpenSession records a session start.
func (s *Store) OpenSession(ctx context.Context, sess Session) error {
	if !s.enabled() {
		return nil
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, device, engine, started_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET device=excluded.device, engine=excluded.engine`,
		sess.ID, sess.Device, sess.Engine, sess.StartedAt.UnixNano())
	return err
}

// CloseSession stamps the end of a session.
func (s *Store) CloseSession(ctx context.Context, id, reason string, at time.Time) error {
	if !s.enabled() {
		return nil
	}
	if at.IsZero() {
		at = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, reason = ? WHERE session_id = ?`,
		at.UnixNano(), reason, id)
	return err
}

// AppendCaption writes a completed line.
func (s *Store) AppendCaption(ctx context.Context, c Caption) error {
	if !s.enabled() {
		return nil
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO captions(session_id, stream, seq, text, source, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		c.SessionID, c.Stream, int64(c.Seq), c.Text, c.Source, c.CreatedAt.UnixNano())
	return err
}

// ListCaptions returns up to limit lines of one stream ordered by sequence.
func (s *Store) ListCaptions(ctx context.Context, sessionID, stream string, limit int) ([]Caption, error) {
	if !s.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, stream, seq, text, COALESCE(source, ''), created_at
		 FROM captions WHERE session_id = ? AND stream = ? ORDER BY seq ASC, id ASC LIMIT ?`,
		sessionID, stream, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Caption
	for rows.Next() {
		var c Caption
		var seq, created int64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Stream, &seq, &c.Text, &c.Source, &created); err != nil {
			return nil, err
		}
		c.Seq = uint64(seq)
		c.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListSessions returns the most recent sessions first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if !s.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, COALESCE(device, ''), COALESCE(engine, ''), started_at, COALESCE(ended_at, 0), COALESCE(reason, '')
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var started, ended int64
		if err := rows.Scan(&sess.ID, &sess.Device, &sess.Engine, &started, &ended, &sess.Reason); err != nil {
			return nil, err
		}
		sess.StartedAt = time.Unix(0, started).UTC()
		if ended > 0 {
			sess.EndedAt = time.Unix(0, ended).UTC()
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) (err error) {
	if !s.enabled() {
		return nil
	}
	if s.cfg.RetentionMode != "persistent" && s.cfg.RetentionMode != "session" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UnixNano()
		if _, err = tx.ExecContext(ctx, `DELETE FROM captions WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Ensure reports a misconfigured ephemeral store.
func (s *Store) Ensure() error {
	if s.cfg.RetentionMode == "ephemeral" && s.db != nil {
		return errors.New("ephemeral store should not have database connection")
	}
	return nil
}
