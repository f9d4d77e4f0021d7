// Package stats keeps a long-term record of player counts in SQLite so
// operators can see activity beyond the current log rotation.
package stats

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("stats path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordPlayerCount appends one sample of the online player count.
func (s *Store) RecordPlayerCount(ctx context.Context, at time.Time, count int) error {
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO player_counts(at, day, count) VALUES(?,?,?)`,
		at.Format(time.RFC3339), at.Format("2006-01-02"), count,
	)
	return err
}

// DailyMax holds the peak sample for one day.
type DailyMax struct {
	Day string
	Max int
}

// RecentDailyMax returns the peak player count per day for the last n days,
// newest first.
func (s *Store) RecentDailyMax(ctx context.Context, n int) ([]DailyMax, error) {
	if n <= 0 {
		n = 7
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, MAX(count) FROM player_counts GROUP BY day ORDER BY day DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyMax
	for rows.Next() {
		var d DailyMax
		if err := rows.Scan(&d.Day, &d.Max); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// FormatDailyMax renders a fixed-width table for chat display.
func FormatDailyMax(days []DailyMax) string {
	if len(days) == 0 {
		return "No player statistics recorded yet."
	}
	var b strings.Builder
	for _, d := range days {
		fmt.Fprintf(&b, "%s  peak %d\n", d.Day, d.Max)
	}
	return strings.TrimRight(b.String(), "\n")
}
