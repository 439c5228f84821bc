// Package pipeline runs the harvesting stages over their table checkpoints.
// Each stage reads the previous stage's table (or the artifact directory) and
// writes its own, so any stage can be rerun or resumed on its own.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/ofsted-harvester/internal/acquire"
	"github.com/JakeFAU/ofsted-harvester/internal/crawler"
	"github.com/JakeFAU/ofsted-harvester/internal/reports"
	"github.com/JakeFAU/ofsted-harvester/internal/scanner"
	"github.com/JakeFAU/ofsted-harvester/internal/search"
	"github.com/JakeFAU/ofsted-harvester/internal/table"
	"github.com/JakeFAU/ofsted-harvester/internal/textextract"
)

// Stage names used in logs, metrics and summaries.
const (
	StageProviders = "providers"
	StageReports   = "reports"
	StageDownload  = "download"
	StageConvert   = "convert"
	StageScan      = "scan"
)

// Tables names the checkpoint file of each stage.
type Tables struct {
	Providers string
	Reports   string
	Downloads string
	Counts    string
}

// Components are the stage workers the pipeline drives.
type Components struct {
	Crawler  *search.Crawler
	Reports  *reports.Extractor
	Acquirer *acquire.Acquirer
	Store    crawler.ArtifactStore
	Scanner  *scanner.Scanner
}

// Summary reports one stage's counters and the file it produced.
type Summary struct {
	Stage    string
	Counters crawler.StageCounters
	Output   string
}

// DownloadOptions narrows the download stage.
type DownloadOptions struct {
	// Year keeps only entries whose inspection date mentions it.
	Year string
}

// RunOptions configures a full run.
type RunOptions struct {
	Pages search.PageRange
	Year  string
	Prune bool
}

// Pipeline sequences the stages.
type Pipeline struct {
	components Components
	tables     Tables
	logger     *zap.Logger
}

// New builds a Pipeline.
func New(components Components, tables Tables, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{components: components, tables: tables, logger: logger}
}

// Providers crawls the search index and writes the providers table. When the
// crawl stops on a failed page, everything gathered so far is still written
// and the returned error names the page to resume from.
func (p *Pipeline) Providers(ctx context.Context, pages search.PageRange) (Summary, error) {
	logger := p.logger.Named(StageProviders)
	summary := Summary{Stage: StageProviders, Output: p.tables.Providers}

	var (
		rows     [][]string
		crawlErr error
	)
	for rec, err := range p.components.Crawler.Crawl(ctx, pages) {
		if err != nil {
			crawlErr = err
			break
		}
		summary.Counters.Processed++
		summary.Counters.Succeeded++
		rows = append(rows, rec.Row())
	}

	if err := table.Write(p.tables.Providers, crawler.ProviderHeader, rows); err != nil {
		return summary, err
	}
	logger.Info("wrote providers table",
		zap.String("path", p.tables.Providers),
		zap.Int("providers", len(rows)),
	)

	if crawlErr != nil {
		summary.Counters.Failed++
		var pageErr *search.PageError
		if errors.As(crawlErr, &pageErr) {
			logger.Error("search crawl stopped early",
				zap.Int("resume_page", pageErr.Page),
				zap.Error(crawlErr),
			)
		}
		return summary, fmt.Errorf("crawl providers: %w", crawlErr)
	}
	return summary, nil
}

// Reports reads the providers table, lists every provider's archived reports
// and writes the reports table. Row and provider failures are logged and
// counted; the stage carries on.
func (p *Pipeline) Reports(ctx context.Context) (Summary, error) {
	logger := p.logger.Named(StageReports)
	summary := Summary{Stage: StageReports, Output: p.tables.Reports}

	providers, err := table.Read(p.tables.Providers)
	if err != nil {
		return summary, err
	}
	if err := providers.Require("name", "detailUrl", "urn"); err != nil {
		return summary, fmt.Errorf("providers table %s: %w", p.tables.Providers, err)
	}

	var rows [][]string
	for i := 0; i < providers.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return summary, p.writeReports(rows, fmt.Errorf("extract reports: %w", err))
		}
		provider := crawler.ProviderFromRow(providers.Lookup(i))
		summary.Counters.Processed++

		links := 0
		for entry, err := range p.components.Reports.ExtractReports(ctx, provider) {
			if err != nil {
				summary.Counters.Failed++
				logger.Warn("report row skipped",
					zap.String("urn", provider.URN),
					zap.String("url", provider.DetailURL),
					zap.Error(err),
				)
				continue
			}
			links++
			summary.Counters.Succeeded++
			rows = append(rows, entry.Row())
		}
		logger.Info(fmt.Sprintf("Logged %d link(s) for %s", links, provider.Name),
			zap.String("urn", provider.URN),
		)
	}

	if err := p.writeReports(rows, nil); err != nil {
		return summary, err
	}
	logger.Info("wrote reports table", zap.String("path", p.tables.Reports), zap.Int("reports", len(rows)))
	return summary, nil
}

func (p *Pipeline) writeReports(rows [][]string, cause error) error {
	if err := table.Write(p.tables.Reports, crawler.ReportHeader, rows); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Download acquires every wanted report listed in the reports table and
// writes the downloads table.
func (p *Pipeline) Download(ctx context.Context, opts DownloadOptions) (Summary, error) {
	logger := p.logger.Named(StageDownload)
	summary := Summary{Stage: StageDownload, Output: p.tables.Downloads}

	reportsTable, err := table.Read(p.tables.Reports)
	if err != nil {
		return summary, err
	}
	if err := reportsTable.Require("reportName", "reportLink", "inspectionDate", "derivedFileName"); err != nil {
		return summary, fmt.Errorf("reports table %s: %w", p.tables.Reports, err)
	}

	entries := make([]crawler.ReportEntry, 0, reportsTable.Len())
	for i := 0; i < reportsTable.Len(); i++ {
		entry := crawler.ReportFromRow(reportsTable.Lookup(i))
		if opts.Year != "" && !strings.Contains(entry.InspectionDate, opts.Year) {
			continue
		}
		entries = append(entries, entry)
	}

	pending := 0
	for _, entry := range entries {
		present, err := p.components.Acquirer.Present(entry)
		if err == nil && !present && p.components.Acquirer.Wanted(entry) {
			pending++
		}
	}
	logger.Info(fmt.Sprintf("%d of %d to download", pending, len(entries)),
		zap.String("path", p.tables.Reports),
		zap.String("year", opts.Year),
	)

	records := make([][]string, 0, len(entries))
	var runErr error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("download reports: %w", err)
			break
		}
		res := p.components.Acquirer.Acquire(ctx, entry)
		summary.Counters.Processed++
		summary.Counters.Retries += res.Retries
		switch res.Outcome {
		case crawler.OutcomeDownloaded:
			summary.Counters.Succeeded++
		case crawler.OutcomeSkipped:
			summary.Counters.Skipped++
		default:
			summary.Counters.Failed++
		}
		records = append(records, res.Record(entry.DerivedFileName).Row())
	}

	if err := table.Write(p.tables.Downloads, crawler.DownloadHeader, records); err != nil {
		return summary, errors.Join(runErr, err)
	}
	logger.Info("wrote downloads table",
		zap.String("path", p.tables.Downloads),
		zap.Int("downloaded", summary.Counters.Succeeded),
		zap.Int("failed", summary.Counters.Failed),
		zap.Int("retries", summary.Counters.Retries),
	)
	return summary, runErr
}

// Convert writes a .txt sibling for every PDF in the artifact directory.
func (p *Pipeline) Convert(ctx context.Context, prune bool) (Summary, error) {
	logger := p.logger.Named(StageConvert)
	extractor := textextract.New(p.components.Store, textextract.Options{Prune: prune}, logger)
	counters, err := extractor.ExtractDir(ctx)
	summary := Summary{Stage: StageConvert, Counters: counters}
	if err != nil {
		return summary, err
	}
	logger.Info("converted pdfs",
		zap.Int("written", counters.Succeeded),
		zap.Int("skipped", counters.Skipped),
		zap.Int("malformed", counters.Failed),
	)
	return summary, nil
}

// Scan counts keyword mentions in every .txt file and rewrites the counts table.
func (p *Pipeline) Scan(ctx context.Context) (Summary, error) {
	logger := p.logger.Named(StageScan)
	summary := Summary{Stage: StageScan, Output: p.tables.Counts}

	records, counters, err := p.components.Scanner.ScanDir(ctx)
	summary.Counters = counters
	if err != nil {
		return summary, err
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.Row())
	}
	if err := table.Write(p.tables.Counts, p.components.Scanner.Header(), rows); err != nil {
		return summary, err
	}
	logger.Info("wrote keyword counts", zap.String("path", p.tables.Counts), zap.Int("files", len(rows)))
	return summary, nil
}

// Run executes every stage in order and stops at the first stage error.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) ([]Summary, error) {
	steps := []func() (Summary, error){
		func() (Summary, error) { return p.Providers(ctx, opts.Pages) },
		func() (Summary, error) { return p.Reports(ctx) },
		func() (Summary, error) { return p.Download(ctx, DownloadOptions{Year: opts.Year}) },
		func() (Summary, error) { return p.Convert(ctx, opts.Prune) },
		func() (Summary, error) { return p.Scan(ctx) },
	}

	summaries := make([]Summary, 0, len(steps))
	for _, step := range steps {
		summary, err := step()
		summaries = append(summaries, summary)
		if err != nil {
			return summaries, fmt.Errorf("%s stage: %w", summary.Stage, err)
		}
	}
	return summaries, nil
}
