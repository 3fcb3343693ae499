package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	site_key TEXT NOT NULL,
	seed_url TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	interrupted INTEGER NOT NULL DEFAULT 0,
	pages_visited INTEGER NOT NULL DEFAULT 0,
	pages_failed INTEGER NOT NULL DEFAULT 0,
	items_queued INTEGER NOT NULL DEFAULT 0,
	succeeded INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	size_rejected INTEGER NOT NULL DEFAULT 0,
	quota_skipped INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	url TEXT NOT NULL,
	type TEXT NOT NULL,
	size_kb INTEGER NOT NULL,
	size_bytes INTEGER NOT NULL,
	filename TEXT NOT NULL,
	source_page TEXT NOT NULL,
	sha256 TEXT,
	content_type TEXT,
	downloaded_at DATETIME,
	UNIQUE(type, filename)
);

CREATE INDEX IF NOT EXISTS idx_downloads_type ON downloads(type);
CREATE INDEX IF NOT EXISTS idx_downloads_sha256 ON downloads(sha256);

CREATE TABLE IF NOT EXISTS exif_tags (
	download_id INTEGER NOT NULL REFERENCES downloads(id),
	tag TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (download_id, tag)
);
`

// openSQLite creates a fresh results database at dbPath, replacing any previous run's file
func openSQLite(ctx context.Context, dbPath string) (*sql.DB, error) {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: removing stale '%s': %w", utils.ErrFilesystem, dbPath+suffix, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", utils.ErrDatabase, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable WAL: %w", utils.ErrDatabase, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %w", utils.ErrDatabase, err)
	}
	return db, nil
}

// writeSQLite stores the session row, every record, and any EXIF tags in one transaction.
// The database is closed before returning so the archive picks up a checkpointed file.
func (w *Writer) writeSQLite(ctx context.Context, records []models.DownloadRecord, summary RunSummary) (err error) {
	// The manifest is written after cancellation too, so the caller's context may already be done
	ctx = context.WithoutCancel(ctx)

	db, err := openSQLite(ctx, w.path(SQLiteFile))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close sqlite: %w", utils.ErrDatabase, cerr)
		}
	}()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", utils.ErrDatabase, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, site_key, seed_url, started_at, finished_at, interrupted,
			pages_visited, pages_failed, items_queued, succeeded, failed, size_rejected, quota_skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.SessionID, summary.SiteKey, summary.SeedURL,
		summary.StartedAt.UTC(), summary.FinishedAt.UTC(), summary.Interrupted,
		summary.PagesVisited, summary.PagesFailed, summary.ItemsQueued,
		summary.Succeeded, summary.Failed, summary.SizeRejected, summary.QuotaSkipped,
	)
	if err != nil {
		return fmt.Errorf("%w: insert session: %w", utils.ErrDatabase, err)
	}

	insertDownload, err := tx.PrepareContext(ctx, `
		INSERT INTO downloads (session_id, url, type, size_kb, size_bytes, filename, source_page,
			sha256, content_type, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare downloads insert: %w", utils.ErrDatabase, err)
	}
	defer insertDownload.Close()

	insertTag, err := tx.PrepareContext(ctx, `INSERT INTO exif_tags (download_id, tag, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare exif insert: %w", utils.ErrDatabase, err)
	}
	defer insertTag.Close()

	for _, rec := range records {
		res, err := insertDownload.ExecContext(ctx,
			summary.SessionID, rec.URL, string(rec.Type), rec.SizeKB, rec.SizeBytes, rec.Filename,
			rec.SourcePage, rec.SHA256, rec.ContentType, rec.DownloadedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("%w: insert download '%s': %w", utils.ErrDatabase, rec.RelPath(), err)
		}
		if len(rec.Exif) == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("%w: download id: %w", utils.ErrDatabase, err)
		}
		for tag, value := range rec.Exif {
			if _, err := insertTag.ExecContext(ctx, id, tag, value); err != nil {
				return fmt.Errorf("%w: insert exif tag '%s': %w", utils.ErrDatabase, tag, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", utils.ErrDatabase, err)
	}
	return nil
}
