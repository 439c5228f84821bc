// Package crawler defines core types shared across the harvesting stages.
package crawler

import (
	"net/http"
	"strconv"
	"time"
)

// ProviderRecord is one provider listing parsed from a search results page.
// Only URN is expected to be stable; every other field is best-effort.
type ProviderRecord struct {
	Name                string `json:"name"`
	DetailURL           string `json:"detailUrl"`
	Address             string `json:"address"`
	URN                 string `json:"urn"`
	ProviderType        string `json:"providerType"`
	LocalAuthority      string `json:"localAuthority"`
	Region              string `json:"region"`
	LatestReportSummary string `json:"latestReportSummary"`
}

// ProviderHeader is the fixed column order of the providers table.
var ProviderHeader = []string{
	"name",
	"detailUrl",
	"address",
	"urn",
	"providerType",
	"localAuthority",
	"region",
	"latestReportSummary",
}

// Row returns the record's values in ProviderHeader order.
func (p ProviderRecord) Row() []string {
	return []string{
		p.Name,
		p.DetailURL,
		p.Address,
		p.URN,
		p.ProviderType,
		p.LocalAuthority,
		p.Region,
		p.LatestReportSummary,
	}
}

// ProviderFromRow rebuilds a ProviderRecord from a row read with the given lookup.
func ProviderFromRow(get func(column string) string) ProviderRecord {
	return ProviderRecord{
		Name:                get("name"),
		DetailURL:           get("detailUrl"),
		Address:             get("address"),
		URN:                 get("urn"),
		ProviderType:        get("providerType"),
		LocalAuthority:      get("localAuthority"),
		Region:              get("region"),
		LatestReportSummary: get("latestReportSummary"),
	}
}

// ReportEntry is one archived inspection report listed on a provider page.
// DerivedFileName is the content-addressing key for every later stage.
type ReportEntry struct {
	ProviderName                string `json:"providerName"`
	ProviderURL                 string `json:"providerUrl"`
	ProviderURN                 string `json:"providerUrn"`
	ProviderLatestEffectiveness string `json:"providerLatestEffectiveness"`
	ReportName                  string `json:"reportName"`
	ReportLink                  string `json:"reportLink"`
	InspectionDate              string `json:"inspectionDate"`
	FirstPublicationDate        string `json:"firstPublicationDate"`
	ProviderType                string `json:"providerType"`
	ProviderRegion              string `json:"providerRegion"`
	DerivedFileName             string `json:"derivedFileName"`
}

// ReportHeader is the fixed column order of the reports table.
var ReportHeader = []string{
	"providerName",
	"providerUrl",
	"providerUrn",
	"providerLatestEffectiveness",
	"reportName",
	"reportLink",
	"inspectionDate",
	"firstPublicationDate",
	"providerType",
	"providerRegion",
	"derivedFileName",
}

// Row returns the entry's values in ReportHeader order.
func (r ReportEntry) Row() []string {
	return []string{
		r.ProviderName,
		r.ProviderURL,
		r.ProviderURN,
		r.ProviderLatestEffectiveness,
		r.ReportName,
		r.ReportLink,
		r.InspectionDate,
		r.FirstPublicationDate,
		r.ProviderType,
		r.ProviderRegion,
		r.DerivedFileName,
	}
}

// ReportFromRow rebuilds a ReportEntry from a row read with the given lookup.
func ReportFromRow(get func(column string) string) ReportEntry {
	return ReportEntry{
		ProviderName:                get("providerName"),
		ProviderURL:                 get("providerUrl"),
		ProviderURN:                 get("providerUrn"),
		ProviderLatestEffectiveness: get("providerLatestEffectiveness"),
		ReportName:                  get("reportName"),
		ReportLink:                  get("reportLink"),
		InspectionDate:              get("inspectionDate"),
		FirstPublicationDate:        get("firstPublicationDate"),
		ProviderType:                get("providerType"),
		ProviderRegion:              get("providerRegion"),
		DerivedFileName:             get("derivedFileName"),
	}
}

// Outcome tags the result of a per-item stage operation.
type Outcome string

// Outcome values recorded by the acquire and extract stages.
const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
	OutcomeWritten    Outcome = "written"
	OutcomeMalformed  Outcome = "malformed"
)

// DownloadRecord is the acquire stage's per-entry output row.
type DownloadRecord struct {
	DerivedFileName string
	Outcome         Outcome
	Reason          string
	Attempts        int
	SHA256          string
	Error           string
}

// DownloadHeader is the fixed column order of the downloads table.
var DownloadHeader = []string{"derivedFileName", "outcome", "reason", "attempts", "sha256", "error"}

// Row returns the record's values in DownloadHeader order.
func (d DownloadRecord) Row() []string {
	return []string{
		d.DerivedFileName,
		string(d.Outcome),
		d.Reason,
		strconv.Itoa(d.Attempts),
		d.SHA256,
		d.Error,
	}
}

// KeywordCountRecord holds the per-matcher mention counts for one text file.
type KeywordCountRecord struct {
	Filename string
	Corrupt  bool
	// Counts is aligned with the scanner's matcher order.
	Counts []int
}

// Row returns filename, corrupt flag, then counts.
func (k KeywordCountRecord) Row() []string {
	row := make([]string, 0, len(k.Counts)+2)
	row = append(row, k.Filename, strconv.FormatBool(k.Corrupt))
	for _, c := range k.Counts {
		row = append(row, strconv.Itoa(c))
	}
	return row
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// StageCounters tracks success/failure stats for one stage run.
type StageCounters struct {
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
	Retries   int
}
