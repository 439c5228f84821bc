package crawler

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	reportSequencePattern = regexp.MustCompile(`/files/(\d+)/urn/\d+\.pdf$`)
	inspectionDatePattern = regexp.MustCompile(`(\d\d?) (\w{3}) (\d{4})`)
	nonLetters            = regexp.MustCompile(`[^A-Za-z]`)
)

// ParseReportSequence captures the report number from a link shaped like
// /files/<digits>/urn/<digits>.pdf.
func ParseReportSequence(link string) (string, error) {
	m := reportSequencePattern.FindStringSubmatch(link)
	if m == nil {
		return "", &ShapeMismatchError{Field: "report link", Value: link}
	}
	return m[1], nil
}

// NormalizeInspectionDate turns "<day> <Mon> <year>" into year_Mon_day.
// The day keeps the width it had in the source text.
func NormalizeInspectionDate(raw string) (string, error) {
	m := inspectionDatePattern.FindStringSubmatch(raw)
	if m == nil {
		return "", &ShapeMismatchError{Field: "inspection date", Value: raw}
	}
	return m[3] + "_" + m[2] + "_" + m[1], nil
}

// SanitizeName keeps ASCII letters only.
func SanitizeName(name string) string {
	return nonLetters.ReplaceAllString(name, "")
}

// DerivedFileName computes <urn>-<reportSeq>-<name>-<date>.pdf. It depends on
// nothing but its arguments, so separate runs agree on every file name.
func DerivedFileName(urn, reportLink, providerName, inspectionDate string) (string, error) {
	seq, err := ParseReportSequence(reportLink)
	if err != nil {
		return "", err
	}
	date, err := NormalizeInspectionDate(inspectionDate)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s-%s.pdf", urn, seq, SanitizeName(providerName), date), nil
}

// TextSibling returns the .txt path sharing the PDF's stem.
func TextSibling(pdfPath string) string {
	return strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath)) + ".txt"
}
