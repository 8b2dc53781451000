// Package history records download runs and their per-video outcomes in a
// SQLite database so past runs can be listed and inspected.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Video outcome statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when no run matches an id or prefix.
var ErrNotFound = errors.New("run not found")

// ErrAmbiguous is returned when an id prefix matches several runs.
var ErrAmbiguous = errors.New("run id prefix is ambiguous")

// Run summarizes one download invocation.
type Run struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Sources   []string  `json:"sources"`
	OutputDir string    `json:"output_dir"`
	Format    string    `json:"format"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Files     int       `json:"files"`
	Bytes     int64     `json:"bytes"`
	Languages []string  `json:"languages"`
}

// VideoOutcome is the result for one video within a run.
type VideoOutcome struct {
	RunID    string   `json:"run_id"`
	Position int      `json:"position"`
	VideoID  string   `json:"video_id"`
	Title    string   `json:"title,omitempty"`
	Status   string   `json:"status"`
	Error    string   `json:"error,omitempty"`
	Files    []string `json:"files,omitempty"`
	Bytes    int64    `json:"bytes"`
}

// Store manages run history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun stores a run and its video outcomes in one transaction.
// Recording the same run id again replaces the earlier record.
func (s *Store) RecordRun(ctx context.Context, run Run, videos []VideoOutcome) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	sources, err := encodeList(run.Sources)
	if err != nil {
		return err
	}
	languages, err := encodeList(run.Languages)
	if err != nil {
		return err
	}

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin run tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		// foreign_keys is per connection, so the cascade is not relied on.
		if _, err := tx.ExecContext(ctx, `DELETE FROM run_videos WHERE run_id = ?`, run.ID); err != nil {
			return fmt.Errorf("replace run videos: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
			return fmt.Errorf("replace run: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (
                id, started_at, ended_at, sources, output_dir, format,
                total, succeeded, failed, files, bytes, languages
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID,
			formatTime(run.StartedAt),
			nullableTime(run.EndedAt),
			sources,
			run.OutputDir,
			run.Format,
			run.Total,
			run.Succeeded,
			run.Failed,
			run.Files,
			run.Bytes,
			languages,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for i, video := range videos {
			files, err := encodeList(video.Files)
			if err != nil {
				return err
			}
			position := video.Position
			if position == 0 {
				position = i + 1
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO run_videos (
                    run_id, position, video_id, title, status, error, files, bytes
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID,
				position,
				video.VideoID,
				video.Title,
				video.Status,
				nullableString(video.Error),
				files,
				video.Bytes,
			); err != nil {
				return fmt.Errorf("insert run video %s: %w", video.VideoID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit run: %w", err)
		}
		return nil
	})
}

const runColumns = `id, started_at, ended_at, sources, output_dir, format,
    total, succeeded, failed, files, bytes, languages`

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns the run whose id equals or uniquely starts with idOrPrefix.
func (s *Store) GetRun(ctx context.Context, idOrPrefix string) (Run, error) {
	ctx = ensureContext(ctx)
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return Run{}, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR substr(id, 1, length(?)) = ? ORDER BY id = ? DESC LIMIT 2`,
		idOrPrefix, idOrPrefix, idOrPrefix, idOrPrefix,
	)
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("iterate runs: %w", err)
	}
	switch {
	case len(matches) == 0:
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	case matches[0].ID == idOrPrefix || len(matches) == 1:
		return matches[0], nil
	default:
		return Run{}, fmt.Errorf("%w: %s", ErrAmbiguous, idOrPrefix)
	}
}

// RunVideos returns the video outcomes of a run in submission order.
func (s *Store) RunVideos(ctx context.Context, runID string) ([]VideoOutcome, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, position, video_id, title, status, error, files, bytes
         FROM run_videos WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list run videos: %w", err)
	}
	defer rows.Close()

	var videos []VideoOutcome
	for rows.Next() {
		var (
			video   VideoOutcome
			errText sql.NullString
			files   string
		)
		if err := rows.Scan(&video.RunID, &video.Position, &video.VideoID, &video.Title, &video.Status, &errText, &files, &video.Bytes); err != nil {
			return nil, fmt.Errorf("scan run video: %w", err)
		}
		video.Error = errText.String
		if video.Files, err = decodeList(files); err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run videos: %w", err)
	}
	return videos, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run       Run
		started   string
		ended     sql.NullString
		sources   string
		languages string
	)
	if err := row.Scan(
		&run.ID, &started, &ended, &sources, &run.OutputDir, &run.Format,
		&run.Total, &run.Succeeded, &run.Failed, &run.Files, &run.Bytes, &languages,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = parseTime(started)
	if ended.Valid {
		run.EndedAt = parseTime(ended.String)
	}
	var err error
	if run.Sources, err = decodeList(sources); err != nil {
		return Run{}, err
	}
	if run.Languages, err = decodeList(languages); err != nil {
		return Run{}, err
	}
	return run, nil
}
