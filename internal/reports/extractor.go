// Package reports reads a provider's detail page and lists its archived
// inspection reports.
package reports

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/ofsted-harvester/internal/crawler"
	"github.com/JakeFAU/ofsted-harvester/internal/metrics"
)

const (
	stageName             = "reports"
	effectivenessSelector = "div.download-report-wrapper #overall-effectivness span"
	archiveRowSelector    = "#archive-reports tbody tr"
)

// Config wires the extractor to the remote directory.
type Config struct {
	BaseURL    string
	Politeness crawler.Politeness
}

// Extractor turns provider records into report entries.
type Extractor struct {
	cfg     Config
	fetcher crawler.Fetcher
	retry   crawler.RetryPolicy
	pauser  crawler.Pauser
	logger  *zap.Logger
}

// New builds an Extractor.
func New(
	cfg Config,
	fetcher crawler.Fetcher,
	retry crawler.RetryPolicy,
	pauser crawler.Pauser,
	logger *zap.Logger,
) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		cfg:     cfg,
		fetcher: fetcher,
		retry:   retry,
		pauser:  pauser,
		logger:  logger,
	}
}

// ExtractReports fetches the provider's detail page and yields one entry per
// archive row. A row whose link or date does not have the expected shape
// yields an error wrapping crawler.ErrShapeMismatch and the remaining rows
// still follow. A page that cannot be fetched yields a single error.
func (e *Extractor) ExtractReports(ctx context.Context, provider crawler.ProviderRecord) iter.Seq2[crawler.ReportEntry, error] {
	return func(yield func(crawler.ReportEntry, error) bool) {
		body, err := e.fetchDetail(ctx, provider)
		if err == nil {
			var more bool
			more, err = e.walkRows(body, provider, yield)
			if !more {
				return
			}
		}
		if err != nil && !yield(crawler.ReportEntry{}, err) {
			return
		}

		delay := e.cfg.Politeness.Next()
		metrics.ObservePause(stageName, delay)
		if e.pauser != nil {
			e.pauser.Pause(ctx, delay)
		}
	}
}

func (e *Extractor) fetchDetail(ctx context.Context, provider crawler.ProviderRecord) ([]byte, error) {
	detailURL, err := crawler.ResolveURL(e.cfg.BaseURL, provider.DetailURL)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", provider.URN, err)
	}
	resp, _, err := crawler.FetchWithRetry(ctx, e.fetcher, crawler.FetchRequest{URL: detailURL}, e.retry, e.pauser,
		func(retry int, delay time.Duration, err error) {
			metrics.ObserveRetry(stageName)
			e.logger.Warn("retrying provider page",
				zap.String("url", detailURL),
				zap.String("urn", provider.URN),
				zap.Int("retry", retry),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		})
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", provider.URN, err)
	}
	return resp.Body, nil
}

// walkRows yields entries in table order. It reports false once the consumer
// stops, and an error only when the document cannot be parsed at all.
func (e *Extractor) walkRows(
	body []byte,
	provider crawler.ProviderRecord,
	yield func(crawler.ReportEntry, error) bool,
) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true, fmt.Errorf("provider %s: parse detail page: %w", provider.URN, err)
	}

	effectiveness := ""
	if spans := doc.Find(effectivenessSelector); spans.Length() > 1 {
		effectiveness = strings.TrimSpace(spans.Eq(1).Text())
	}

	more := true
	doc.Find(archiveRowSelector).EachWithBreak(func(i int, row *goquery.Selection) bool {
		entry, err := parseRow(row, provider, effectiveness)
		if err != nil {
			more = yield(crawler.ReportEntry{}, fmt.Errorf("provider %s archive row %d: %w", provider.URN, i, err))
		} else {
			more = yield(entry, nil)
		}
		return more
	})
	return more, nil
}

func parseRow(row *goquery.Selection, provider crawler.ProviderRecord, effectiveness string) (crawler.ReportEntry, error) {
	cells := row.Find("td")
	if cells.Length() < 3 {
		return crawler.ReportEntry{}, &crawler.ShapeMismatchError{
			Field: "archive row",
			Value: strings.Join(strings.Fields(row.Text()), " "),
		}
	}

	anchor := cells.Eq(0).Find("a").First()
	link, _ := anchor.Attr("href")
	link = strings.TrimSpace(link)
	inspectionDate := strings.TrimSpace(cells.Eq(1).Text())

	fileName, err := crawler.DerivedFileName(provider.URN, link, provider.Name, inspectionDate)
	if err != nil {
		return crawler.ReportEntry{}, err
	}

	return crawler.ReportEntry{
		ProviderName:                provider.Name,
		ProviderURL:                 provider.DetailURL,
		ProviderURN:                 provider.URN,
		ProviderLatestEffectiveness: effectiveness,
		ReportName:                  strings.TrimSpace(anchor.Text()),
		ReportLink:                  link,
		InspectionDate:              inspectionDate,
		FirstPublicationDate:        strings.TrimSpace(cells.Eq(2).Text()),
		ProviderType:                provider.ProviderType,
		ProviderRegion:              provider.Region,
		DerivedFileName:             fileName,
	}, nil
}
