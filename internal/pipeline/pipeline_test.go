package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/ofsted-harvester/internal/acquire"
	"github.com/JakeFAU/ofsted-harvester/internal/crawler"
	collyfetcher "github.com/JakeFAU/ofsted-harvester/internal/fetcher/colly"
	restyfetcher "github.com/JakeFAU/ofsted-harvester/internal/fetcher/resty"
	"github.com/JakeFAU/ofsted-harvester/internal/pdffixture"
	"github.com/JakeFAU/ofsted-harvester/internal/reports"
	"github.com/JakeFAU/ofsted-harvester/internal/scanner"
	"github.com/JakeFAU/ofsted-harvester/internal/search"
	"github.com/JakeFAU/ofsted-harvester/internal/storage/local"
	"github.com/JakeFAU/ofsted-harvester/internal/table"
)

type site struct {
	server   *httptest.Server
	pdfHits  atomic.Int32
	failPage int
}

func newSite(t *testing.T, failPage int) *site {
	t.Helper()
	s := &site{failPage: failPage}
	mux := http.NewServeMux()
	mux.HandleFunc("/results/", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == fmt.Sprint(s.failPage) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		switch page {
		case "0":
			fmt.Fprint(w, `<ul class="resultsList">
<li><h2><a href="/provider/100">Alpha Primary</a></h2><p>1 Road</p><p>URN: 100</p><p>Region: North</p></li>
</ul>`)
		case "1":
			fmt.Fprint(w, `<ul class="resultsList">
<li><h2><a href="/provider/200">Beta Infants</a></h2><p>Region: South</p><p>URN: 200</p></li>
</ul>`)
		default:
			fmt.Fprint(w, `<ul class="resultsList"></ul>`)
		}
	})
	mux.HandleFunc("/provider/100", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<div class="download-report-wrapper"><div id="overall-effectivness"><span>Overall</span><span>Good</span></div></div>
<table id="archive-reports"><tbody>
<tr><td><a href="/provider/files/11/urn/100.pdf">School inspection report</a></td><td>5 Mar 2015</td><td>20 Mar 2015</td></tr>
<tr><td><a href="/provider/files/12/urn/100.pdf">Monitoring letter</a></td><td>6 Jan 2016</td><td>9 Jan 2016</td></tr>
</tbody></table>`)
	})
	mux.HandleFunc("/provider/200", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<table id="archive-reports"><tbody>
<tr><td><a href="/provider/files/21/urn/200.pdf">School inspection short report</a></td><td>14 Nov 2019</td><td>2 Dec 2019</td></tr>
<tr><td><a href="/broken-link">School inspection report</a></td><td>1 Jan 2018</td><td>2 Jan 2018</td></tr>
</tbody></table>`)
	})
	mux.HandleFunc("/provider/files/11/urn/100.pdf", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/blob/11.pdf", http.StatusFound)
	})
	mux.HandleFunc("/blob/11.pdf", func(w http.ResponseWriter, _ *http.Request) {
		s.pdfHits.Add(1)
		_, _ = w.Write(pdffixture.Build("Science lessons and science clubs. Maths is strong."))
	})
	mux.HandleFunc("/provider/files/21/urn/200.pdf", func(w http.ResponseWriter, _ *http.Request) {
		s.pdfHits.Add(1)
		_, _ = w.Write(pdffixture.Build("Investigation and experiment work"))
	})
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) {}

func newPipeline(t *testing.T, s *site, logger *zap.Logger) (*Pipeline, Tables, string) {
	t.Helper()
	out := t.TempDir()
	pdfDir := filepath.Join(out, "pdfs")
	store, err := local.New(local.Config{BaseDir: pdfDir})
	require.NoError(t, err)

	pages := collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second})
	pdfs := restyfetcher.New(restyfetcher.Config{Timeout: 5 * time.Second})
	retry := crawler.NewLinearRetryPolicy(1, 0, 0)

	scan, err := scanner.New(store, []string{"scien", "math", "investigation|experiment"}, 9, logger)
	require.NoError(t, err)

	components := Components{
		Crawler: search.New(search.Config{BaseURL: s.server.URL, Path: "/results/1/21"},
			pages, retry, noPause{}, logger),
		Reports: reports.New(reports.Config{BaseURL: s.server.URL}, pages, retry, noPause{}, logger),
		Acquirer: acquire.New(acquire.Config{
			BaseURL:     s.server.URL,
			ReportTypes: regexp.MustCompile(`(?i)School inspection report|School inspection short report`),
		}, store, pdfs, retry, noPause{}, logger),
		Store:   store,
		Scanner: scan,
	}
	tables := Tables{
		Providers: filepath.Join(out, "providers.csv"),
		Reports:   filepath.Join(out, "reports.csv"),
		Downloads: filepath.Join(out, "downloads.csv"),
		Counts:    filepath.Join(out, "keyword_counts.csv"),
	}
	return New(components, tables, logger), tables, pdfDir
}

func TestRunEndToEnd(t *testing.T) {
	s := newSite(t, -1)
	core, logs := observer.New(zap.InfoLevel)
	p, tables, pdfDir := newPipeline(t, s, zap.New(core))

	summaries, err := p.Run(context.Background(), RunOptions{Pages: search.PageRange{First: 0, Last: -1}})
	require.NoError(t, err)
	require.Len(t, summaries, 5)

	providers, err := table.Read(tables.Providers)
	require.NoError(t, err)
	assert.Equal(t, crawler.ProviderHeader, providers.Header)
	require.Equal(t, 2, providers.Len())
	assert.Equal(t, "1 Road", providers.Get(0, "address"))
	assert.Equal(t, "South", providers.Get(1, "region"))

	reportsTable, err := table.Read(tables.Reports)
	require.NoError(t, err)
	require.Equal(t, 3, reportsTable.Len(), "the broken link row is dropped")
	assert.Equal(t, "100-11-AlphaPrimary-2015_Mar_5.pdf", reportsTable.Get(0, "derivedFileName"))
	assert.Equal(t, "Good", reportsTable.Get(0, "providerLatestEffectiveness"))
	assert.Equal(t, "200-21-BetaInfants-2019_Nov_14.pdf", reportsTable.Get(2, "derivedFileName"))
	assert.Equal(t, 1, summaries[1].Counters.Failed)
	assert.Equal(t, 1, logs.FilterMessage("Logged 2 link(s) for Alpha Primary").Len())
	assert.Equal(t, 1, logs.FilterMessage("Logged 1 link(s) for Beta Infants").Len())

	downloads, err := table.Read(tables.Downloads)
	require.NoError(t, err)
	require.Equal(t, 3, downloads.Len())
	assert.Equal(t, "downloaded", downloads.Get(0, "outcome"))
	assert.Equal(t, "skipped", downloads.Get(1, "outcome"))
	assert.Equal(t, "report_type", downloads.Get(1, "reason"))
	assert.Equal(t, "downloaded", downloads.Get(2, "outcome"))
	assert.Len(t, downloads.Get(0, "sha256"), 64)
	assert.Equal(t, 1, logs.FilterMessage("2 of 3 to download").Len())

	for _, name := range []string{"100-11-AlphaPrimary-2015_Mar_5.txt", "200-21-BetaInfants-2019_Nov_14.txt"} {
		_, err := os.Stat(filepath.Join(pdfDir, name))
		require.NoError(t, err, name)
	}

	counts, err := table.Read(tables.Counts)
	require.NoError(t, err)
	assert.Equal(t, []string{"filename", "corruptFlag", "scien_mention", "math_mention", "investigation|experiment_mention"}, counts.Header)
	require.Equal(t, 2, counts.Len())
	assert.Equal(t, "2", counts.Get(0, "scien_mention"))
	assert.Equal(t, "1", counts.Get(0, "math_mention"))
	assert.Equal(t, "2", counts.Get(1, "investigation|experiment_mention"))
	assert.Equal(t, "false", counts.Get(0, "corruptFlag"))
}

func TestRunTwiceDownloadsNothingNew(t *testing.T) {
	s := newSite(t, -1)
	p, tables, _ := newPipeline(t, s, zap.NewNop())
	opts := RunOptions{Pages: search.PageRange{First: 0, Last: -1}, Prune: true}

	_, err := p.Run(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, int32(2), s.pdfHits.Load())

	summaries, err := p.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), s.pdfHits.Load(), "pruned pdfs count as present through their text")
	assert.Zero(t, summaries[2].Counters.Succeeded)
	assert.Equal(t, 3, summaries[2].Counters.Skipped)

	downloads, err := table.Read(tables.Downloads)
	require.NoError(t, err)
	assert.Equal(t, "exists", downloads.Get(0, "reason"))
}

func TestDownloadYearFilter(t *testing.T) {
	s := newSite(t, -1)
	p, tables, _ := newPipeline(t, s, zap.NewNop())
	_, err := p.Providers(context.Background(), search.PageRange{First: 0, Last: -1})
	require.NoError(t, err)
	_, err = p.Reports(context.Background())
	require.NoError(t, err)

	summary, err := p.Download(context.Background(), DownloadOptions{Year: "2019"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Counters.Processed)
	assert.Equal(t, int32(1), s.pdfHits.Load())

	downloads, err := table.Read(tables.Downloads)
	require.NoError(t, err)
	require.Equal(t, 1, downloads.Len())
	assert.True(t, strings.HasPrefix(downloads.Get(0, "derivedFileName"), "200-21-"))
}

func TestProvidersKeepsPartialOutputOnFailedPage(t *testing.T) {
	s := newSite(t, 1)
	p, tables, _ := newPipeline(t, s, zap.NewNop())

	summary, err := p.Providers(context.Background(), search.PageRange{First: 0, Last: -1})
	var pageErr *search.PageError
	require.ErrorAs(t, err, &pageErr)
	assert.Equal(t, 1, pageErr.Page)
	assert.Equal(t, 1, summary.Counters.Succeeded)

	providers, err := table.Read(tables.Providers)
	require.NoError(t, err)
	require.Equal(t, 1, providers.Len())
	assert.Equal(t, "100", providers.Get(0, "urn"))
}

func TestReportsRequiresProvidersTable(t *testing.T) {
	s := newSite(t, -1)
	p, tables, _ := newPipeline(t, s, zap.NewNop())
	require.NoError(t, os.WriteFile(tables.Providers, []byte("foo,bar\n1,2\n"), 0o600))

	_, err := p.Reports(context.Background())
	require.ErrorIs(t, err, table.ErrMissingColumn)
}
