// Package scanner counts keyword mentions in extracted report text.
package scanner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/ofsted-harvester/internal/crawler"
	"github.com/JakeFAU/ofsted-harvester/internal/metrics"
)

const (
	stageName = "scan"
	// DefaultCorruptRun is the run of '?' that marks mis-encoded text.
	DefaultCorruptRun = 9
	// reflowArtifact is the literal backslash-n some PDF converters leave behind.
	reflowArtifact = `\n`
)

// Matcher is one case-insensitive keyword pattern.
type Matcher struct {
	Pattern string
	re      *regexp.Regexp
}

// Column is the counts table column for the matcher.
func (m Matcher) Column() string {
	return m.Pattern + "_mention"
}

// Count returns the number of non-overlapping matches in text.
func (m Matcher) Count(text string) int {
	return len(m.re.FindAllStringIndex(text, -1))
}

// Scanner applies a fixed matcher set to text files in an artifact store.
type Scanner struct {
	store      crawler.ArtifactStore
	matchers   []Matcher
	corruptRun string
	logger     *zap.Logger
}

// New compiles patterns. corruptRun <= 0 selects DefaultCorruptRun.
func New(store crawler.ArtifactStore, patterns []string, corruptRun int, logger *zap.Logger) (*Scanner, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("at least one keyword pattern is required")
	}
	if corruptRun <= 0 {
		corruptRun = DefaultCorruptRun
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	matchers := make([]Matcher, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile keyword %q: %w", p, err)
		}
		matchers = append(matchers, Matcher{Pattern: p, re: re})
	}
	return &Scanner{
		store:      store,
		matchers:   matchers,
		corruptRun: strings.Repeat("?", corruptRun),
		logger:     logger,
	}, nil
}

// Matchers returns the compiled matchers in column order.
func (s *Scanner) Matchers() []Matcher {
	return append([]Matcher(nil), s.matchers...)
}

// Header returns the counts table header.
func (s *Scanner) Header() []string {
	header := make([]string, 0, len(s.matchers)+2)
	header = append(header, "filename", "corruptFlag")
	for _, m := range s.matchers {
		header = append(header, m.Column())
	}
	return header
}

// ScanText counts matches in text after removing reflow artifacts.
func (s *Scanner) ScanText(filename, text string) crawler.KeywordCountRecord {
	text = strings.ReplaceAll(text, reflowArtifact, "")
	rec := crawler.KeywordCountRecord{
		Filename: filename,
		Corrupt:  strings.Contains(text, s.corruptRun),
		Counts:   make([]int, len(s.matchers)),
	}
	for i, m := range s.matchers {
		rec.Counts[i] = m.Count(text)
	}
	return rec
}

// Scan reads one text file from the store and counts its mentions.
func (s *Scanner) Scan(textName string) (crawler.KeywordCountRecord, error) {
	data, err := s.store.ReadObject(textName)
	if err != nil {
		return crawler.KeywordCountRecord{}, err
	}
	return s.ScanText(textName, string(data)), nil
}

// ScanDir scans every .txt file in lexical order. Unreadable files are
// logged and skipped; corrupt files are logged by name.
func (s *Scanner) ScanDir(ctx context.Context) ([]crawler.KeywordCountRecord, crawler.StageCounters, error) {
	var counters crawler.StageCounters
	names, err := s.store.List(".txt")
	if err != nil {
		return nil, counters, fmt.Errorf("list text files: %w", err)
	}

	records := make([]crawler.KeywordCountRecord, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return records, counters, fmt.Errorf("scan canceled: %w", err)
		}
		counters.Processed++

		rec, err := s.Scan(name)
		if err != nil {
			counters.Failed++
			metrics.ObserveItem(stageName, string(crawler.OutcomeFailed))
			s.logger.Warn("unreadable text file", zap.String("path", name), zap.Error(err))
			continue
		}
		if rec.Corrupt {
			s.logger.Info("corrupt text", zap.String("path", name))
		}
		counters.Succeeded++
		metrics.ObserveItem(stageName, string(crawler.OutcomeWritten))
		records = append(records, rec)
	}
	return records, counters, nil
}
