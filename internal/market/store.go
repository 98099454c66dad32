package market

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const storeFile = "candles.db"

// Series names one candle history. Interval uses Binance notation and is
// case sensitive ("1m" is a minute, "1M" a month).
type Series struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

func NewSeries(symbol, interval string) Series {
	return Series{
		Symbol:   strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", "")),
		Interval: strings.TrimSpace(interval),
	}
}

func (s Series) String() string { return s.Symbol + "@" + s.Interval }

func (s Series) valid() error {
	if s.Symbol == "" || s.Interval == "" {
		return fmt.Errorf("series %q: symbol and interval are required", s.String())
	}
	return nil
}

// Coverage describes what the store holds for one series. Missing counts the
// bars absent between First and Last; it is -1 when the interval has no fixed
// length.
type Coverage struct {
	Series
	First    int64 `json:"first"`
	Last     int64 `json:"last"`
	Rows     int64 `json:"rows"`
	Missing  int64 `json:"missing"`
	SyncedAt int64 `json:"synced_at"`
}

// Contiguous reports whether the stored bars form one unbroken run.
func (c Coverage) Contiguous() bool { return c.Rows > 0 && c.Missing == 0 }

// Store is the local candle database: every series in one SQLite file under dir.
type Store struct {
	db   *sql.DB
	path string
}

func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("candle store dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, storeFile)
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := migrateStore(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("candle store %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrateStore(db *sql.DB) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS candles (
			symbol     TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			open_time  INTEGER NOT NULL,
			close_time INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL,
			trades     INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, interval, open_time)
		) WITHOUT ROWID`,
		`CREATE TABLE IF NOT EXISTS series (
			symbol    TEXT    NOT NULL,
			interval  TEXT    NOT NULL,
			synced_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, interval)
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Put validates and upserts candles for series. A candle whose high/low does
// not bracket open and close rejects the whole batch.
func (s *Store) Put(ctx context.Context, series Series, candles []Candle) (int, error) {
	if err := series.valid(); err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, nil
	}
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return 0, fmt.Errorf("%s: %w", series, err)
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles
			(symbol, interval, open_time, close_time, open, high, low, close, volume, trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, series.Symbol, series.Interval,
			c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume, c.Trades); err != nil {
			return 0, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO series (symbol, interval, synced_at) VALUES (?, ?, ?)
		ON CONFLICT(symbol, interval) DO UPDATE SET synced_at = excluded.synced_at`,
		series.Symbol, series.Interval, time.Now().UnixMilli()); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(candles), nil
}

// Load returns the candles of series with open_time in [start, end], oldest
// first. A zero bound leaves that side open.
func (s *Store) Load(ctx context.Context, series Series, start, end int64) ([]Candle, error) {
	if err := series.valid(); err != nil {
		return nil, err
	}
	if start > 0 && end > 0 && end < start {
		return nil, fmt.Errorf("%s: end %d before start %d", series, end, start)
	}
	query := `SELECT open_time, close_time, open, high, low, close, volume, trades
		FROM candles WHERE symbol = ? AND interval = ?`
	args := []any{series.Symbol, series.Interval}
	if start > 0 {
		query += ` AND open_time >= ?`
		args = append(args, start)
	}
	if end > 0 {
		query += ` AND open_time <= ?`
		args = append(args, end)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY open_time`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Trades); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Coverage summarises the stored bars of series. A series never written
// returns a zero Coverage with Rows == 0.
func (s *Store) Coverage(ctx context.Context, series Series) (Coverage, error) {
	if err := series.valid(); err != nil {
		return Coverage{}, err
	}
	cov := Coverage{Series: series}
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MIN(open_time), 0), COALESCE(MAX(open_time), 0), COUNT(1),
			COALESCE((SELECT synced_at FROM series WHERE symbol = ? AND interval = ?), 0)
		FROM candles WHERE symbol = ? AND interval = ?`,
		series.Symbol, series.Interval, series.Symbol, series.Interval,
	).Scan(&cov.First, &cov.Last, &cov.Rows, &cov.SyncedAt)
	if err != nil {
		return Coverage{}, err
	}
	cov.Missing = -1
	if step, ok := IntervalDuration(series.Interval); ok {
		cov.Missing = 0
		if cov.Rows > 0 {
			cov.Missing = (cov.Last-cov.First)/step.Milliseconds() + 1 - cov.Rows
		}
	}
	return cov, nil
}

// IntervalDuration maps fixed-length Binance intervals to their bar length.
// Months have no fixed length and report false.
func IntervalDuration(interval string) (time.Duration, bool) {
	if len(interval) < 2 {
		return 0, false
	}
	var unit time.Duration
	switch interval[len(interval)-1] {
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, false
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * unit, true
}
