package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/snapetech/epgnorm/internal/category"
	"github.com/snapetech/epgnorm/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	mode         TEXT NOT NULL,
	generated_at INTEGER NOT NULL,
	stats        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS channels (
	position   INTEGER PRIMARY KEY,
	id         TEXT NOT NULL,
	name       TEXT NOT NULL,
	logo_url   TEXT,
	grp        TEXT NOT NULL DEFAULT '',
	categories TEXT NOT NULL DEFAULT '[]',
	languages  TEXT NOT NULL DEFAULT '[]',
	country    TEXT NOT NULL DEFAULT '',
	stream_url TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS programs (
	position     INTEGER PRIMARY KEY,
	id           TEXT NOT NULL,
	title        TEXT NOT NULL,
	channel_id   TEXT NOT NULL,
	channel_name TEXT NOT NULL,
	category     TEXT NOT NULL,
	start_at     INTEGER NOT NULL,
	end_at       INTEGER NOT NULL,
	duration     INTEGER NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	logo_url     TEXT,
	actors       TEXT NOT NULL DEFAULT '[]',
	date         TEXT NOT NULL DEFAULT '',
	start_time   TEXT NOT NULL DEFAULT '',
	end_time     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS programs_channel ON programs(channel_id);
CREATE INDEX IF NOT EXISTS programs_start ON programs(start_at);
`

// SQLite mirrors the latest published result into a database file.
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// One writer; readers go through the same handle.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// Replace swaps the stored result for res in one transaction. Earlier rows are
// deleted, never merged.
func (s *SQLite) Replace(ctx context.Context, res *pipeline.Result) (err error) {
	if res == nil {
		return fmt.Errorf("store: nil result")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	for _, table := range []string{"runs", "channels", "programs"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("store clear %s: %w", table, err)
		}
	}
	stats, _ := json.Marshal(res.Stats)
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, source, mode, generated_at, stats) VALUES (?, ?, ?, ?, ?)`,
		res.RunID, res.Source, string(res.Mode), res.GeneratedAt.UnixMilli(), string(stats)); err != nil {
		return fmt.Errorf("store insert run: %w", err)
	}

	chStmt, err := tx.PrepareContext(ctx, `INSERT INTO channels
		(position, id, name, logo_url, grp, categories, languages, country, stream_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store prepare channels: %w", err)
	}
	defer chStmt.Close()
	for i, c := range res.Channels {
		if _, err = chStmt.ExecContext(ctx, i, c.ID, c.Name, nullable(c.LogoURL), c.Group,
			jsonList(c.Categories), jsonList(c.Languages), c.Country, c.StreamURL); err != nil {
			return fmt.Errorf("store insert channel %s: %w", c.ID, err)
		}
	}

	pStmt, err := tx.PrepareContext(ctx, `INSERT INTO programs
		(position, id, title, channel_id, channel_name, category, start_at, end_at, duration,
		 description, logo_url, actors, date, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store prepare programs: %w", err)
	}
	defer pStmt.Close()
	for i, p := range res.Programs {
		if _, err = pStmt.ExecContext(ctx, i, p.ID, p.Title, p.ChannelID, p.ChannelName, string(p.Category),
			p.Start.Unix(), p.End.Unix(), p.DurationMinutes, p.Description, nullable(p.LogoURL),
			jsonList(p.Actors), p.Date, p.StartTime, p.EndTime); err != nil {
			return fmt.Errorf("store insert program %s: %w", p.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store commit: %w", err)
	}
	return nil
}

// Load returns the stored result, or ErrNoSnapshot when the database is empty.
// Times come back in UTC.
func (s *SQLite) Load(ctx context.Context) (*pipeline.Result, error) {
	res := &pipeline.Result{Channels: []pipeline.Channel{}, Programs: []pipeline.Program{}}
	var (
		mode, stats string
		generated   int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT run_id, source, mode, generated_at, stats FROM runs LIMIT 1`).
		Scan(&res.RunID, &res.Source, &mode, &generated, &stats)
	if err == sql.ErrNoRows {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("store load run: %w", err)
	}
	res.Mode = pipeline.Mode(mode)
	res.GeneratedAt = time.UnixMilli(generated).UTC()
	if err := json.Unmarshal([]byte(stats), &res.Stats); err != nil {
		return nil, fmt.Errorf("store load stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, logo_url, grp, categories, languages, country, stream_url
		FROM channels ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("store load channels: %w", err)
	}
	for rows.Next() {
		var (
			c          pipeline.Channel
			logo       sql.NullString
			cats, lngs string
		)
		if err := rows.Scan(&c.ID, &c.Name, &logo, &c.Group, &cats, &lngs, &c.Country, &c.StreamURL); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store scan channel: %w", err)
		}
		c.LogoURL = fromNullable(logo)
		c.Categories, c.Languages = parseList(cats), parseList(lngs)
		res.Channels = append(res.Channels, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store load channels: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT id, title, channel_id, channel_name, category, start_at, end_at,
		duration, description, logo_url, actors, date, start_time, end_time FROM programs ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("store load programs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p          pipeline.Program
			cat        string
			start, end int64
			logo       sql.NullString
			actors     string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.ChannelID, &p.ChannelName, &cat, &start, &end,
			&p.DurationMinutes, &p.Description, &logo, &actors, &p.Date, &p.StartTime, &p.EndTime); err != nil {
			return nil, fmt.Errorf("store scan program: %w", err)
		}
		if p.Category = category.Category(cat); !p.Category.Valid() {
			p.Category = category.Default
		}
		p.Start, p.End = time.Unix(start, 0).UTC(), time.Unix(end, 0).UTC()
		p.LogoURL = fromNullable(logo)
		p.Actors = parseList(actors)
		if p.Actors == nil {
			p.Actors = []string{}
		}
		res.Programs = append(res.Programs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store load programs: %w", err)
	}
	return res, nil
}

// Counts returns the number of stored channels and programmes.
func (s *SQLite) Counts(ctx context.Context) (channels, programs int, err error) {
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM channels").Scan(&channels); err != nil {
		return 0, 0, err
	}
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM programs").Scan(&programs)
	return channels, programs, err
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromNullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func jsonList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func parseList(s string) []string {
	var out []string
	if s == "" || s == "[]" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
