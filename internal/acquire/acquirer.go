// Package acquire downloads report PDFs into the batch directory, skipping
// anything a previous run already produced.
package acquire

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ofsted-harvester/internal/crawler"
	"github.com/JakeFAU/ofsted-harvester/internal/metrics"
)

const stageName = "download"

// Skip and failure reasons recorded in the downloads table.
const (
	ReasonReportType = "report_type"
	ReasonExists     = "exists"
	ReasonFetch      = "fetch"
	ReasonStore      = "store"
	ReasonInvalid    = "invalid_entry"
)

// Config wires the acquirer to the remote directory.
type Config struct {
	BaseURL     string
	ReportTypes *regexp.Regexp
	Politeness  crawler.Politeness
}

// Result describes what happened to one entry.
type Result struct {
	Outcome  crawler.Outcome
	Reason   string
	Attempts int
	Retries  int
	Digest   string
	Err      error
}

// Requested reports whether the entry reached the network.
func (r Result) Requested() bool {
	return r.Attempts > 0
}

// Record converts the result into a downloads table row.
func (r Result) Record(fileName string) crawler.DownloadRecord {
	rec := crawler.DownloadRecord{
		DerivedFileName: fileName,
		Outcome:         r.Outcome,
		Reason:          r.Reason,
		Attempts:        r.Attempts,
		SHA256:          r.Digest,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// Acquirer fetches report PDFs one at a time.
type Acquirer struct {
	cfg     Config
	store   crawler.BlobStore
	fetcher crawler.Fetcher
	retry   crawler.RetryPolicy
	pauser  crawler.Pauser
	logger  *zap.Logger
}

// New builds an Acquirer.
func New(
	cfg Config,
	store crawler.BlobStore,
	fetcher crawler.Fetcher,
	retry crawler.RetryPolicy,
	pauser crawler.Pauser,
	logger *zap.Logger,
) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		retry:   retry,
		pauser:  pauser,
		logger:  logger,
	}
}

// Wanted reports whether the entry's report name is an accepted report type.
func (a *Acquirer) Wanted(entry crawler.ReportEntry) bool {
	return a.cfg.ReportTypes == nil || a.cfg.ReportTypes.MatchString(entry.ReportName)
}

// Present reports whether the PDF or its text sibling is already stored.
func (a *Acquirer) Present(entry crawler.ReportEntry) (bool, error) {
	for _, name := range []string{entry.DerivedFileName, crawler.TextSibling(entry.DerivedFileName)} {
		ok, err := a.store.Exists(name)
		if err != nil {
			return false, fmt.Errorf("check %s: %w", name, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Acquire downloads one report unless it is filtered out or already present.
// Failures are reported in the Result, never as a panic or abort. When the
// entry issued at least one request a politeness delay follows.
func (a *Acquirer) Acquire(ctx context.Context, entry crawler.ReportEntry) Result {
	res := a.acquire(ctx, entry)
	metrics.ObserveItem(stageName, string(res.Outcome))
	if res.Requested() {
		delay := a.cfg.Politeness.Next()
		metrics.ObservePause(stageName, delay)
		if a.pauser != nil {
			a.pauser.Pause(ctx, delay)
		}
	}
	return res
}

func (a *Acquirer) acquire(ctx context.Context, entry crawler.ReportEntry) Result {
	name := entry.DerivedFileName
	if !a.Wanted(entry) {
		return Result{Outcome: crawler.OutcomeSkipped, Reason: ReasonReportType}
	}
	if name == "" {
		return a.fail(Result{Reason: ReasonInvalid, Err: errors.New("entry has no derived file name")}, entry)
	}

	present, err := a.Present(entry)
	if err != nil {
		return a.fail(Result{Reason: ReasonStore, Err: err}, entry)
	}
	if present {
		return Result{Outcome: crawler.OutcomeSkipped, Reason: ReasonExists}
	}

	reportURL, err := crawler.ResolveURL(a.cfg.BaseURL, entry.ReportLink)
	if err != nil {
		return a.fail(Result{Reason: ReasonInvalid, Err: err}, entry)
	}

	res := Result{}
	resp, attempts, err := crawler.FetchWithRetry(ctx, a.fetcher, crawler.FetchRequest{URL: reportURL}, a.retry, a.pauser,
		func(retry int, delay time.Duration, err error) {
			res.Retries++
			metrics.ObserveRetry(stageName)
			a.logger.Warn("retrying report download",
				zap.String("file", name),
				zap.String("url", reportURL),
				zap.Int("retry", retry),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		})
	res.Attempts = attempts
	if err != nil {
		res.Reason = ReasonFetch
		res.Err = err
		return a.fail(res, entry)
	}

	if _, err := a.store.PutObject(ctx, name, resp.Body); err != nil {
		res.Reason = ReasonStore
		res.Err = err
		return a.fail(res, entry)
	}

	sum := sha256.Sum256(resp.Body)
	res.Outcome = crawler.OutcomeDownloaded
	res.Digest = hex.EncodeToString(sum[:])
	a.logger.Debug("downloaded report",
		zap.String("file", name),
		zap.Int("bytes", len(resp.Body)),
		zap.Int("attempts", attempts),
	)
	return res
}

func (a *Acquirer) fail(res Result, entry crawler.ReportEntry) Result {
	res.Outcome = crawler.OutcomeFailed
	a.logger.Error("report download failed",
		zap.String("file", entry.DerivedFileName),
		zap.String("urn", entry.ProviderURN),
		zap.String("reason", res.Reason),
		zap.Int("attempts", res.Attempts),
		zap.Error(res.Err),
	)
	return res
}
