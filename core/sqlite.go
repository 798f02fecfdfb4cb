package core

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"bithopper/model"
)

const memoryDB = ":memory:"

// Sqlite is the default StatStore, one file next to the binary.
type Sqlite struct {
	db *sql.DB
}

func NewSqlite(path string) (*Sqlite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, os.ErrInvalid
	}

	dsn := path
	if path != memoryDB {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if path == memoryDB {
		// 内存库每个连接独立
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureStatsTable(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Sqlite{db: db}, nil
}

func ensureStatsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS stats (
			pool TEXT NOT NULL,
			username TEXT NOT NULL,
			password TEXT NOT NULL,
			difficulty REAL NOT NULL,
			issued INTEGER NOT NULL DEFAULT 0,
			accepted INTEGER NOT NULL DEFAULT 0,
			rejected INTEGER NOT NULL DEFAULT 0,
			updated_at_unix INTEGER NOT NULL,
			PRIMARY KEY (pool, username, password, difficulty)
		)
	`)
	return err
}

func (s *Sqlite) UpsertStat(ctx context.Context, stat *model.Stat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stats (pool, username, password, difficulty, issued, accepted, rejected, updated_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pool, username, password, difficulty) DO UPDATE SET
			issued = excluded.issued,
			accepted = excluded.accepted,
			rejected = excluded.rejected,
			updated_at_unix = excluded.updated_at_unix
	`, stat.Pool, stat.Username, stat.Password, stat.Difficulty,
		int64(stat.Issued), int64(stat.Accepted), int64(stat.Rejected), stat.UpdatedAt.Unix())
	return err
}

func (s *Sqlite) Stats(ctx context.Context) ([]*model.Stat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pool, username, password, difficulty, issued, accepted, rejected, updated_at_unix
		FROM stats
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*model.Stat
	for rows.Next() {
		var (
			stat                       model.Stat
			issued, accepted, rejected int64
			updated                    int64
		)
		if err := rows.Scan(&stat.Pool, &stat.Username, &stat.Password, &stat.Difficulty,
			&issued, &accepted, &rejected, &updated); err != nil {
			return nil, err
		}
		stat.Issued = uint64(issued)
		stat.Accepted = uint64(accepted)
		stat.Rejected = uint64(rejected)
		stat.UpdatedAt = time.Unix(updated, 0)
		stats = append(stats, &stat)
	}
	return stats, rows.Err()
}

func (s *Sqlite) Close() error {
	return s.db.Close()
}
