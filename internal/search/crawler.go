// Package search walks the paginated provider search index and yields one
// ProviderRecord per listing.
package search

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ofsted-harvester/internal/crawler"
	"github.com/JakeFAU/ofsted-harvester/internal/metrics"
)

const (
	stageName        = "providers"
	progressInterval = 5
)

// PageRange bounds a crawl. A negative Last means "until an empty page".
type PageRange struct {
	First int
	Last  int
}

// Contains reports whether page lies inside the range.
func (r PageRange) Contains(page int) bool {
	return page >= r.First && (r.Last < 0 || page <= r.Last)
}

// Config wires the crawler to the remote index.
type Config struct {
	BaseURL    string
	Path       string
	Politeness crawler.Politeness
	Rules      []FieldRule
}

// PageError reports the page a crawl stopped on so a later run can resume there.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("search page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Crawler fetches search result pages in order.
type Crawler struct {
	cfg     Config
	fetcher crawler.Fetcher
	retry   crawler.RetryPolicy
	pauser  crawler.Pauser
	logger  *zap.Logger
}

// New builds a Crawler. Rules default to DefaultFieldRules.
func New(
	cfg Config,
	fetcher crawler.Fetcher,
	retry crawler.RetryPolicy,
	pauser crawler.Pauser,
	logger *zap.Logger,
) *Crawler {
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultFieldRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		retry:   retry,
		pauser:  pauser,
		logger:  logger,
	}
}

// PageURL builds the absolute URL of a 0-indexed results page.
func (c *Crawler) PageURL(page int) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.Path + "?page=" + strconv.Itoa(page)
}

// Crawl lazily yields provider records page by page. The first page with no
// listings ends the sequence. A page that cannot be fetched yields a
// *PageError and ends the sequence. Each call starts again from r.First.
func (c *Crawler) Crawl(ctx context.Context, r PageRange) iter.Seq2[crawler.ProviderRecord, error] {
	return func(yield func(crawler.ProviderRecord, error) bool) {
		c.logger.Info("crawling search pages",
			zap.Int("first_page", r.First),
			zap.Int("last_page", r.Last),
		)
		for page := r.First; r.Contains(page); page++ {
			if err := ctx.Err(); err != nil {
				yield(crawler.ProviderRecord{}, &PageError{Page: page, Err: err})
				return
			}

			records, err := c.FetchPage(ctx, page)
			if err != nil {
				yield(crawler.ProviderRecord{}, &PageError{Page: page, Err: err})
				return
			}
			if len(records) == 0 {
				c.logger.Info("no results on page, ending search", zap.Int("page", page))
				return
			}
			for _, rec := range records {
				if !yield(rec, nil) {
					return
				}
			}
			if page%progressInterval == 0 {
				c.logger.Info("downloaded search page",
					zap.Int("page", page),
					zap.Int("last_page", r.Last),
				)
			}

			delay := c.cfg.Politeness.Next()
			metrics.ObservePause(stageName, delay)
			if c.pauser != nil {
				c.pauser.Pause(ctx, delay)
			}
		}
	}
}

// FetchPage downloads and parses one results page.
func (c *Crawler) FetchPage(ctx context.Context, page int) ([]crawler.ProviderRecord, error) {
	pageURL := c.PageURL(page)
	req := crawler.FetchRequest{URL: pageURL}
	resp, _, err := crawler.FetchWithRetry(ctx, c.fetcher, req, c.retry, c.pauser,
		func(retry int, delay time.Duration, err error) {
			metrics.ObserveRetry(stageName)
			c.logger.Warn("retrying search page",
				zap.String("url", pageURL),
				zap.Int("retry", retry),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		})
	if err != nil {
		return nil, err
	}
	return ParsePage(resp.Body, c.cfg.Rules)
}
