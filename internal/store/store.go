package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lumilinkco/mochi/internal/memory"
)

// Engine is the sqlite-backed message log and thread-archive store.
type Engine struct {
	db *sql.DB
	mu sync.Mutex
}

// Message is one logged chat message.
type Message struct {
	ID        int64
	Channel   string
	ChatID    string
	SenderID  string
	Role      string
	Content   string
	CreatedAt string
}

func NewEngine(dbPath string) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	e := &Engine{db: db}
	if err := e.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := e.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := e.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

func (e *Engine) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel TEXT NOT NULL,
			chat_id TEXT NOT NULL DEFAULT '',
			sender_id TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'user',
			content TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel, created_at)`,
		`CREATE TABLE IF NOT EXISTS thread_archives (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			participant TEXT NOT NULL,
			messages TEXT NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			last_activity TEXT NOT NULL,
			evicted_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archives_key ON thread_archives(channel, participant, evicted_at)`,
	}

	for _, stmt := range stmts {
		if _, err := e.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// AppendMessage logs one chat message. Append-only.
func (e *Engine) AppendMessage(msg Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.db.Exec(`
		INSERT INTO messages (channel, chat_id, sender_id, role, content)
		VALUES (?, ?, ?, ?, ?)
	`, strings.TrimSpace(msg.Channel), strings.TrimSpace(msg.ChatID),
		strings.TrimSpace(msg.SenderID), roleOrDefault(msg.Role), msg.Content)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// RecentMessages returns the newest messages for a channel, newest first.
func (e *Engine) RecentMessages(channel string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := e.db.Query(`
		SELECT id, channel, chat_id, sender_id, role, content, created_at
		FROM messages
		WHERE channel = ?
		ORDER BY id DESC
		LIMIT ?
	`, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	result := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Channel, &m.ChatID, &m.SenderID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return result, nil
}

// MessageCount returns the total logged message count.
func (e *Engine) MessageCount() (int, error) {
	row := e.db.QueryRow(`SELECT COUNT(*) FROM messages`)
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("message count: %w", err)
	}
	return total, nil
}

// ArchiveThread persists an evicted conversation thread. Implements
// memory.Archiver; callers treat failures as non-fatal.
func (e *Engine) ArchiveThread(rec memory.ThreadArchive) error {
	payload, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("marshal thread messages: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_, err = e.db.Exec(`
		INSERT INTO thread_archives (thread_id, channel, participant, messages, message_count, last_activity, evicted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ThreadID, rec.Channel, rec.Participant, string(payload), len(rec.Messages),
		rec.LastActivity.UTC().Format(time.RFC3339), rec.EvictedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("archive thread: %w", err)
	}
	return nil
}

// ArchivedThreads returns the archives for one composite thread key,
// newest first.
func (e *Engine) ArchivedThreads(channel, participant string, limit int) ([]memory.ThreadArchive, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := e.db.Query(`
		SELECT thread_id, channel, participant, messages, last_activity, evicted_at
		FROM thread_archives
		WHERE channel = ? AND participant = ?
		ORDER BY id DESC
		LIMIT ?
	`, channel, participant, limit)
	if err != nil {
		return nil, fmt.Errorf("query thread archives: %w", err)
	}
	defer rows.Close()

	result := make([]memory.ThreadArchive, 0, limit)
	for rows.Next() {
		var rec memory.ThreadArchive
		var payload, lastActivity, evictedAt string
		if err := rows.Scan(&rec.ThreadID, &rec.Channel, &rec.Participant, &payload, &lastActivity, &evictedAt); err != nil {
			return nil, fmt.Errorf("scan thread archive: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal thread messages: %w", err)
		}
		rec.LastActivity, _ = time.Parse(time.RFC3339, lastActivity)
		rec.EvictedAt, _ = time.Parse(time.RFC3339, evictedAt)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread archives: %w", err)
	}
	return result, nil
}

// ArchiveCount returns the total archived thread count.
func (e *Engine) ArchiveCount() (int, error) {
	row := e.db.QueryRow(`SELECT COUNT(*) FROM thread_archives`)
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("archive count: %w", err)
	}
	return total, nil
}

func roleOrDefault(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return "user"
	}
	return role
}
