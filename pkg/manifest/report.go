package manifest

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// largestFilesShown caps the "Largest Files" table
const largestFilesShown = 10

var titleCase = cases.Title(language.English)

type typeTotals struct {
	files   int
	totalKB int64
}

func tallyByType(records []models.DownloadRecord) map[models.MediaType]typeTotals {
	totals := make(map[models.MediaType]typeTotals)
	for _, rec := range records {
		t := totals[rec.Type]
		t.files++
		t.totalKB += rec.SizeKB
		totals[rec.Type] = t
	}
	return totals
}

func (w *Writer) writeReport(records []models.DownloadRecord, summary RunSummary) (err error) {
	f, err := os.Create(w.path(ReportFile))
	if err != nil {
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %w", utils.ErrFilesystem, cerr)
		}
	}()
	if err := renderReport(f, records, summary); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// renderReport writes the Markdown run report to out
func renderReport(out io.Writer, records []models.DownloadRecord, summary RunSummary) error {
	md := markdown.NewMarkdown(out)

	md.H1("Media Scrape Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Session", summary.SessionID},
			{"Site", summary.SiteKey},
			{"Seed URL", summary.SeedURL},
			{"Started", summary.StartedAt.Format(time.RFC3339)},
			{"Duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond).String()},
			{"Status", statusText(summary)},
		},
	})
	md.PlainText("")

	md.H2("Crawl")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Pages visited", strconv.Itoa(summary.PagesVisited)},
			{"Pages failed", strconv.Itoa(summary.PagesFailed)},
			{"Items queued", strconv.Itoa(summary.ItemsQueued)},
			{"Downloaded", strconv.FormatInt(summary.Succeeded, 10)},
			{"Failed", strconv.FormatInt(summary.Failed, 10)},
			{"Size rejected", strconv.FormatInt(summary.SizeRejected, 10)},
			{"Quota skipped", strconv.FormatInt(summary.QuotaSkipped, 10)},
		},
	})
	md.PlainText("")

	writeTypeSection(md, records, summary)
	writeFailureSection(md, summary)
	writeLargestSection(md, records)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated %s*", summary.FinishedAt.Format(time.RFC1123))

	return md.Build()
}

func statusText(summary RunSummary) string {
	if summary.Interrupted {
		return "Interrupted (partial results)"
	}
	return "Complete"
}

func writeTypeSection(md *markdown.Markdown, records []models.DownloadRecord, summary RunSummary) {
	md.H2("Downloads by Type")
	md.PlainText("")

	totals := tallyByType(records)
	rows := make([][]string, 0, len(models.AllMediaTypes))
	for _, t := range models.AllMediaTypes {
		tt, ok := totals[t]
		limit, limited := summary.MaxPerType[t]
		if !ok && !limited {
			continue
		}
		limitText := "unlimited"
		if limited {
			limitText = strconv.Itoa(limit)
		}
		rows = append(rows, []string{
			titleCase.String(string(t)),
			strconv.Itoa(tt.files),
			strconv.FormatInt(tt.totalKB, 10),
			limitText,
		})
	}
	if len(rows) == 0 {
		md.PlainText("No files were downloaded.")
		md.PlainText("")
		return
	}
	md.Table(markdown.TableSet{
		Header: []string{"Type", "Files", "Total KB", "Limit"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(records) == 0 {
		return
	}
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Files by Type"),
		piechart.WithShowData(true),
	)
	for _, t := range models.AllMediaTypes {
		if tt := totals[t]; tt.files > 0 {
			chart.LabelAndIntValue(titleCase.String(string(t)), uint64(tt.files))
		}
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func writeFailureSection(md *markdown.Markdown, summary RunSummary) {
	md.H2("Failures")
	md.PlainText("")

	if len(summary.FailureCategories) == 0 {
		md.Tip("No download failures.")
		md.PlainText("")
		return
	}

	categories := make([]string, 0, len(summary.FailureCategories))
	for c := range summary.FailureCategories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		ci, cj := summary.FailureCategories[categories[i]], summary.FailureCategories[categories[j]]
		if ci != cj {
			return ci > cj
		}
		return categories[i] < categories[j]
	})

	rows := make([][]string, 0, len(categories))
	for _, c := range categories {
		rows = append(rows, []string{c, strconv.Itoa(summary.FailureCategories[c])})
	}
	md.Table(markdown.TableSet{Header: []string{"Category", "Count"}, Rows: rows})
	md.PlainText("")
}

func writeLargestSection(md *markdown.Markdown, records []models.DownloadRecord) {
	if len(records) == 0 {
		return
	}
	sorted := make([]models.DownloadRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SizeBytes > sorted[j].SizeBytes })
	if len(sorted) > largestFilesShown {
		sorted = sorted[:largestFilesShown]
	}

	md.H2("Largest Files")
	md.PlainText("")
	rows := make([][]string, 0, len(sorted))
	for _, rec := range sorted {
		rows = append(rows, []string{rec.RelPath(), strconv.FormatInt(rec.SizeKB, 10), rec.SourcePage})
	}
	md.Table(markdown.TableSet{Header: []string{"File", "Size KB", "Source Page"}, Rows: rows})
	md.PlainText("")
}
