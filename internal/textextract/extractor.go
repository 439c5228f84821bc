// Package textextract turns downloaded report PDFs into plain-text siblings.
package textextract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/JakeFAU/ofsted-harvester/internal/crawler"
	"github.com/JakeFAU/ofsted-harvester/internal/metrics"
)

const stageName = "convert"

// Options tune batch behavior.
type Options struct {
	// Prune deletes each PDF once its text sibling exists.
	Prune bool
}

// Extractor converts PDFs held in an artifact store.
type Extractor struct {
	store  crawler.ArtifactStore
	opts   Options
	logger *zap.Logger
}

// New builds an Extractor.
func New(store crawler.ArtifactStore, opts Options, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{store: store, opts: opts, logger: logger}
}

// ExtractText writes the text of the named PDF to its .txt sibling. It skips
// PDFs whose sibling already exists and reports malformed documents with an
// error wrapping crawler.ErrMalformedPDF.
func (e *Extractor) ExtractText(ctx context.Context, pdfName string) (crawler.Outcome, error) {
	txtName := crawler.TextSibling(pdfName)
	exists, err := e.store.Exists(txtName)
	if err != nil {
		return crawler.OutcomeFailed, err
	}
	if exists {
		return crawler.OutcomeSkipped, nil
	}

	data, err := e.store.ReadObject(pdfName)
	if err != nil {
		return crawler.OutcomeFailed, err
	}
	text, err := PlainText(data)
	if err != nil {
		return crawler.OutcomeMalformed, fmt.Errorf("%s: %w", pdfName, err)
	}
	if _, err := e.store.PutObject(ctx, txtName, []byte(text)); err != nil {
		return crawler.OutcomeFailed, err
	}
	return crawler.OutcomeWritten, nil
}

// ExtractDir converts every PDF in the store in lexical order. Per-file
// problems are logged and counted; only listing failures and cancellation
// abort the batch.
func (e *Extractor) ExtractDir(ctx context.Context) (crawler.StageCounters, error) {
	var counters crawler.StageCounters
	names, err := e.store.List(".pdf")
	if err != nil {
		return counters, fmt.Errorf("list pdfs: %w", err)
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return counters, fmt.Errorf("convert canceled: %w", err)
		}
		counters.Processed++

		outcome, err := e.ExtractText(ctx, name)
		metrics.ObserveItem(stageName, string(outcome))
		switch outcome {
		case crawler.OutcomeWritten:
			counters.Succeeded++
		case crawler.OutcomeSkipped:
			counters.Skipped++
		case crawler.OutcomeMalformed:
			counters.Failed++
			e.logger.Warn("malformed pdf", zap.String("path", name), zap.Error(err))
			continue
		default:
			counters.Failed++
			e.logger.Error("text extraction failed", zap.String("path", name), zap.Error(err))
			continue
		}

		if e.opts.Prune {
			if err := e.store.Remove(name); err != nil {
				e.logger.Warn("prune failed", zap.String("path", name), zap.Error(err))
			}
		}
	}
	return counters, nil
}

// PlainText concatenates the text of every page in page order. Reader errors,
// page errors and parser panics all surface as crawler.ErrMalformedPDF.
func PlainText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: parser panic: %v", crawler.ErrMalformedPDF, r)
		}
	}()

	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", crawler.ErrMalformedPDF)
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", crawler.ErrMalformedPDF, err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %w", crawler.ErrMalformedPDF, i, err)
		}
		b.WriteString(pageText)
	}
	return b.String(), nil
}
