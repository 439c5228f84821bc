package search

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/ofsted-harvester/internal/crawler"
)

// FieldRule classifies a result paragraph by its label and captures the value
// that follows it. Paragraph order varies between listings; labels do not.
type FieldRule struct {
	Label   string
	Pattern *regexp.Regexp
	Assign  func(rec *crawler.ProviderRecord, value string)
}

// Matches reports whether the paragraph text carries the rule's label.
func (r FieldRule) Matches(text string) bool {
	return strings.Contains(text, r.Label)
}

// Capture extracts the labelled value from text, or "" when the pattern fails.
func (r FieldRule) Capture(text string) string {
	m := r.Pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// DefaultFieldRules returns the labels used by the public report directory.
func DefaultFieldRules() []FieldRule {
	return []FieldRule{
		labelRule("URN:", func(rec *crawler.ProviderRecord, v string) { rec.URN = v }),
		labelRule("Provider type:", func(rec *crawler.ProviderRecord, v string) { rec.ProviderType = v }),
		labelRule("Local authority:", func(rec *crawler.ProviderRecord, v string) { rec.LocalAuthority = v }),
		labelRule("Region:", func(rec *crawler.ProviderRecord, v string) { rec.Region = v }),
		labelRule("Latest report:", func(rec *crawler.ProviderRecord, v string) { rec.LatestReportSummary = v }),
	}
}

func labelRule(label string, assign func(*crawler.ProviderRecord, string)) FieldRule {
	return FieldRule{
		Label:   label,
		Pattern: regexp.MustCompile(regexp.QuoteMeta(label) + `\s*(.+)`),
		Assign:  assign,
	}
}
