package manifest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// Output file names, relative to the site output directory
const (
	JSONFile      = "results.json"
	CSVFile       = "results.csv"
	SQLiteFile    = "results.db"
	ReportFile    = "report.md"
	StructureFile = "structure.txt"
	ArchiveFile   = "media.zip"
)

var csvHeader = []string{"url", "type", "size_kb", "filename", "source_page"}

// RunSummary describes the session the records came from
type RunSummary struct {
	SessionID    string
	SiteKey      string
	SeedURL      string
	StartedAt    time.Time
	FinishedAt   time.Time
	Interrupted  bool
	PagesVisited int
	PagesFailed  int
	ItemsQueued  int

	Succeeded         int64
	Failed            int64
	SizeRejected      int64
	QuotaSkipped      int64
	FailureCategories map[string]int

	MaxPerType map[models.MediaType]int
}

// Writer emits the manifest files for one site output directory
type Writer struct {
	outputDir string
	opts      config.ManifestConfig
	log       *logrus.Entry
}

func NewWriter(outputDir string, opts config.ManifestConfig, log *logrus.Entry) *Writer {
	return &Writer{outputDir: outputDir, opts: opts, log: log}
}

// Write serializes records to every enabled output. The archive is always written last so it
// contains the other outputs. A failing output is logged and does not stop the remaining ones;
// all failures are returned joined.
func (w *Writer) Write(ctx context.Context, records []models.DownloadRecord, summary RunSummary) error {
	if records == nil {
		records = []models.DownloadRecord{}
	}
	w.log.Infof("Writing manifest for %d record(s) to %s", len(records), w.outputDir)

	type step struct {
		name    string
		enabled bool
		run     func() error
	}
	steps := []step{
		{JSONFile, true, func() error { return w.writeJSON(records) }},
		{CSVFile, true, func() error { return w.writeCSV(records) }},
		{SQLiteFile, w.opts.EnableSQLite, func() error { return w.writeSQLite(ctx, records, summary) }},
		{ReportFile, w.opts.EnableReport, func() error { return w.writeReport(records, summary) }},
		{StructureFile, w.opts.EnableStructure, w.writeStructure},
		{ArchiveFile, true, w.writeArchive},
	}

	var errs []error
	for _, s := range steps {
		if !s.enabled {
			continue
		}
		if err := s.run(); err != nil {
			w.log.WithField("file", s.name).Errorf("Manifest output failed: %v", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		w.log.WithField("file", s.name).Debug("Manifest output written")
	}
	return errors.Join(errs...)
}

func (w *Writer) path(name string) string {
	return filepath.Join(w.outputDir, name)
}

// writeJSON writes the records as a 2-space indented array
func (w *Writer) writeJSON(records []models.DownloadRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal records: %w", utils.ErrParsing, err)
	}
	if err := os.WriteFile(w.path(JSONFile), data, 0644); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// writeCSV writes a header row and one row per record in the same field order as the JSON
func (w *Writer) writeCSV(records []models.DownloadRecord) (err error) {
	f, err := os.Create(w.path(CSVFile))
	if err != nil {
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %w", utils.ErrFilesystem, cerr)
		}
	}()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	for _, rec := range records {
		row := []string{rec.URL, string(rec.Type), strconv.FormatInt(rec.SizeKB, 10), rec.Filename, rec.SourcePage}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// writeStructure writes a directory tree of the output directory, leaving out the manifest files that come after it
func (w *Writer) writeStructure() (err error) {
	f, err := os.Create(w.path(StructureFile))
	if err != nil {
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %w", utils.ErrFilesystem, cerr)
		}
	}()
	skip := func(rel string) bool { return rel == StructureFile || rel == ArchiveFile }
	return utils.WriteTreeStructure(f, w.outputDir, skip, w.log)
}
