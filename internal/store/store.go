package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/awaistahir/spotswitch/internal/engine"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a key or record does not exist
var ErrNotFound = errors.New("not found")

// Store handles persistent storage using SQLite
type Store struct {
	db *sql.DB
}

// Plan is the outcome of one recompute cycle
type Plan struct {
	ID           int64                 `json:"id"`
	ComputedAt   time.Time             `json:"computed_at"`
	QueryStart   time.Time             `json:"query_start"`
	QueryEnd     time.Time             `json:"query_end"`
	Window       engine.CheapestWindow `json:"window"`
	AveragePrice float64               `json:"average_price"`
	Scheduled    bool                  `json:"scheduled"`
	Message      string                `json:"message"`
}

// NewStore creates a new store and initializes the database
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// initialize creates the database schema
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT
	);

	CREATE TABLE IF NOT EXISTS plans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		computed_at TEXT NOT NULL,
		query_start TEXT NOT NULL,
		query_end TEXT NOT NULL,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		total_cost REAL NOT NULL,
		slot_count INTEGER NOT NULL,
		average_price REAL NOT NULL,
		scheduled INTEGER NOT NULL,
		message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_plans_computed_at ON plans(computed_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Get returns the value stored under key
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("key %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading key %q: %w", key, err)
	}
	return value, nil
}

// Set overwrites the value stored under key
func (s *Store) Set(ctx context.Context, key, value string) error {
	query := `INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	return nil
}

// SavePlan records the outcome of a recompute cycle
func (s *Store) SavePlan(ctx context.Context, p *Plan) error {
	query := `INSERT INTO plans
		(computed_at, query_start, query_end, window_start, window_end, total_cost, slot_count, average_price, scheduled, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query,
		p.ComputedAt.UTC().Format(time.RFC3339), p.QueryStart.UTC().Format(time.RFC3339), p.QueryEnd.UTC().Format(time.RFC3339),
		p.Window.Start.UTC().Format(time.RFC3339), p.Window.End.UTC().Format(time.RFC3339),
		p.Window.TotalCost, p.Window.SlotCount, p.AveragePrice, boolToInt(p.Scheduled), p.Message)
	if err != nil {
		return fmt.Errorf("saving plan: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("saving plan: %w", err)
	}
	p.ID = id
	return nil
}

// LatestPlan retrieves the most recently computed plan
func (s *Store) LatestPlan(ctx context.Context) (*Plan, error) {
	query := `SELECT id, computed_at, query_start, query_end, window_start, window_end,
		total_cost, slot_count, average_price, scheduled, message
		FROM plans ORDER BY computed_at DESC, id DESC LIMIT 1`

	var p Plan
	var computedAt, queryStart, queryEnd, windowStart, windowEnd string
	var scheduledInt int
	var message sql.NullString

	err := s.db.QueryRowContext(ctx, query).Scan(&p.ID, &computedAt, &queryStart, &queryEnd, &windowStart, &windowEnd,
		&p.Window.TotalCost, &p.Window.SlotCount, &p.AveragePrice, &scheduledInt, &message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest plan: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest plan: %w", err)
	}

	for _, f := range []struct {
		src string
		dst *time.Time
	}{
		{computedAt, &p.ComputedAt},
		{queryStart, &p.QueryStart},
		{queryEnd, &p.QueryEnd},
		{windowStart, &p.Window.Start},
		{windowEnd, &p.Window.End},
	} {
		t, err := time.Parse(time.RFC3339, f.src)
		if err != nil {
			return nil, fmt.Errorf("parsing plan %d timestamp %q: %w", p.ID, f.src, err)
		}
		*f.dst = t
	}
	p.Scheduled = scheduledInt == 1
	p.Message = message.String

	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
