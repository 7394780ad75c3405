package storage

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// CachedResponse is a model answer stored under the hash of its request.
type CachedResponse struct {
	Model     string
	Text      string
	CreatedAt time.Time
}

// UsageEntry records the token usage and cost of a single model call.
type UsageEntry struct {
	ID           string
	TelegramID   int64
	Kind         string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	Cached       bool
	CreatedAt    time.Time
}

// UsageTotals summarizes the usage log of one user.
type UsageTotals struct {
	Calls        int64
	CachedCalls  int64
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// ResponseCache stores model responses keyed by request hash.
type ResponseCache interface {
	GetResponse(key string) (*CachedResponse, error)
	SetResponse(key string, resp *CachedResponse) error
}

// UsageLog stores per-call usage records.
type UsageLog interface {
	RecordUsage(entry *UsageEntry) error
	UsageTotals(telegramID int64) (UsageTotals, error)
}

// SQLiteStore implements ResponseCache and UsageLog using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates the database at dbPath.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Configure SQLite with WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection would otherwise get its own empty database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{db: db}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	if dbPath != ":memory:" {
		if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
			db.Close()
			return nil, fmt.Errorf("failed to set database permissions: %w", err)
		}
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	responseCacheQuery := `
	CREATE TABLE IF NOT EXISTS response_cache (
		request_hash TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(responseCacheQuery); err != nil {
		return fmt.Errorf("failed to create response_cache table: %w", err)
	}

	usageLogQuery := `
	CREATE TABLE IF NOT EXISTS usage_log (
		id TEXT PRIMARY KEY,
		telegram_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		model TEXT NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cost_usd REAL NOT NULL,
		cached INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(usageLogQuery); err != nil {
		return fmt.Errorf("failed to create usage_log table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_usage_log_telegram_id ON usage_log(telegram_id)"); err != nil {
		return fmt.Errorf("failed to create usage_log index: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetResponse retrieves a cached response by request hash.
// Returns nil, nil if no cache entry exists.
func (s *SQLiteStore) GetResponse(key string) (*CachedResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resp CachedResponse
	err := s.db.QueryRow(
		"SELECT model, text, created_at FROM response_cache WHERE request_hash = ?",
		key,
	).Scan(&resp.Model, &resp.Text, &resp.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query response cache: %w", err)
	}

	return &resp, nil
}

// SetResponse stores a response in the cache, replacing any previous entry.
func (s *SQLiteStore) SetResponse(key string, resp *CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO response_cache (request_hash, model, text)
		VALUES (?, ?, ?)
		ON CONFLICT(request_hash) DO UPDATE SET
			model = excluded.model,
			text = excluded.text,
			created_at = CURRENT_TIMESTAMP
	`, key, resp.Model, resp.Text)

	if err != nil {
		return fmt.Errorf("failed to cache response: %w", err)
	}
	return nil
}

// RecordUsage appends an entry to the usage log. ID and CreatedAt are filled
// in when empty.
func (s *SQLiteStore) RecordUsage(entry *UsageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO usage_log (id, telegram_id, kind, model, input_tokens, output_tokens, cost_usd, cached, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.TelegramID, entry.Kind, entry.Model, entry.InputTokens, entry.OutputTokens, entry.CostUSD, entry.Cached, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// UsageTotals sums the usage log of a user.
func (s *SQLiteStore) UsageTotals(telegramID int64) (UsageTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals UsageTotals
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(cached), 0),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cost_usd), 0)
		FROM usage_log WHERE telegram_id = ?
	`, telegramID).Scan(&totals.Calls, &totals.CachedCalls, &totals.InputTokens, &totals.OutputTokens, &totals.CostUSD)
	if err != nil {
		return UsageTotals{}, fmt.Errorf("failed to query usage totals: %w", err)
	}
	return totals, nil
}
