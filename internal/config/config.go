// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Search   SearchConfig   `mapstructure:"search"`
	Reports  ReportsConfig  `mapstructure:"reports"`
	Download DownloadConfig `mapstructure:"download"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Output   OutputConfig   `mapstructure:"output"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// SourceConfig describes the remote report directory.
type SourceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SearchConfig governs the paginated search crawl.
type SearchConfig struct {
	Preset    string            `mapstructure:"preset"`
	Presets   map[string]string `mapstructure:"presets"`
	Path      string            `mapstructure:"path"`
	FirstPage int               `mapstructure:"first_page"`
	LastPage  int               `mapstructure:"last_page"`
	Delay     time.Duration     `mapstructure:"delay"`
	Jitter    time.Duration     `mapstructure:"jitter"`
}

// ReportsConfig governs provider detail page scraping.
type ReportsConfig struct {
	Delay  time.Duration `mapstructure:"delay"`
	Jitter time.Duration `mapstructure:"jitter"`
}

// DownloadConfig governs PDF acquisition.
type DownloadConfig struct {
	ReportTypes   []string      `mapstructure:"report_types"`
	MaxRetries    int           `mapstructure:"max_retries"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffJitter time.Duration `mapstructure:"backoff_jitter"`
	Delay         time.Duration `mapstructure:"delay"`
	Jitter        time.Duration `mapstructure:"jitter"`
}

// ScanConfig holds the keyword matchers and the corruption heuristic.
type ScanConfig struct {
	Keywords   []string `mapstructure:"keywords"`
	CorruptRun int      `mapstructure:"corrupt_run"`
}

// OutputConfig names the per-stage tables and the artifact directory.
type OutputConfig struct {
	Dir           string `mapstructure:"dir"`
	ProvidersFile string `mapstructure:"providers_file"`
	ReportsFile   string `mapstructure:"reports_file"`
	DownloadsFile string `mapstructure:"downloads_file"`
	CountsFile    string `mapstructure:"counts_file"`
	PDFDir        string `mapstructure:"pdf_dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig optionally exposes Prometheus metrics during a run.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://reports.ofsted.gov.uk")
	v.SetDefault("source.user_agent", "ofsted-harvester/0.1")
	v.SetDefault("source.timeout_seconds", 60)
	v.SetDefault("search.preset", "primary_schools")
	v.SetDefault("search.presets", map[string]string{
		"all_schools":     "1/any/any/any/any/any/any/any/any/any/0/0",
		"primary_schools": "1/21/any/any/any/any/any/any/any/any/0/0",
	})
	v.SetDefault("search.path", "")
	v.SetDefault("search.first_page", 0)
	v.SetDefault("search.last_page", -1)
	v.SetDefault("search.delay", "100ms")
	v.SetDefault("search.jitter", "500ms")
	v.SetDefault("reports.delay", "100ms")
	v.SetDefault("reports.jitter", "500ms")
	v.SetDefault("download.report_types", []string{
		"School inspection report",
		"School inspection short report",
	})
	v.SetDefault("download.max_retries", 5)
	v.SetDefault("download.backoff_base", "5s")
	v.SetDefault("download.backoff_jitter", "5s")
	v.SetDefault("download.delay", "1s")
	v.SetDefault("download.jitter", "1s")
	v.SetDefault("scan.keywords", []string{
		"scien",
		"math",
		"investigation|experiment",
		"CPD|professional development",
	})
	v.SetDefault("scan.corrupt_run", 9)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.providers_file", "providers.csv")
	v.SetDefault("output.reports_file", "reports.csv")
	v.SetDefault("output.downloads_file", "downloads.csv")
	v.SetDefault("output.counts_file", "keyword_counts.csv")
	v.SetDefault("output.pdf_dir", "pdfs")
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.Source.BaseURL, "http://") && !strings.HasPrefix(c.Source.BaseURL, "https://") {
		return fmt.Errorf("source.base_url must be an absolute http(s) URL")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if _, err := c.SearchPath(); err != nil {
		return err
	}
	if c.Search.FirstPage < 0 {
		return fmt.Errorf("search.first_page must be >= 0")
	}
	if c.Search.LastPage >= 0 && c.Search.LastPage < c.Search.FirstPage {
		return fmt.Errorf("search.last_page must be >= search.first_page or negative for unbounded")
	}
	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("download.max_retries must be >= 0")
	}
	if c.Download.BackoffBase < 0 || c.Download.BackoffJitter < 0 {
		return fmt.Errorf("download backoff durations must be >= 0")
	}
	if len(c.Download.ReportTypes) == 0 {
		return fmt.Errorf("download.report_types must list at least one label")
	}
	if _, err := c.ReportTypePattern(); err != nil {
		return err
	}
	if len(c.Scan.Keywords) == 0 {
		return fmt.Errorf("scan.keywords must list at least one pattern")
	}
	for _, kw := range c.Scan.Keywords {
		if _, err := regexp.Compile("(?i)" + kw); err != nil {
			return fmt.Errorf("scan.keywords entry %q: %w", kw, err)
		}
	}
	if c.Scan.CorruptRun <= 0 {
		return fmt.Errorf("scan.corrupt_run must be > 0")
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("output.dir must be set")
	}
	return nil
}

// SearchPath resolves the search results path from an explicit path or the preset.
func (c Config) SearchPath() (string, error) {
	if p := strings.TrimSpace(c.Search.Path); p != "" {
		return p, nil
	}
	filters, ok := c.Search.Presets[c.Search.Preset]
	if !ok || filters == "" {
		return "", fmt.Errorf("search.preset %q is not defined in search.presets", c.Search.Preset)
	}
	return "/inspection-reports/find-inspection-report/results/" + strings.Trim(filters, "/"), nil
}

// ReportTypePattern joins the accepted report labels into one case-insensitive
// alternation.
func (c Config) ReportTypePattern() (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(c.Download.ReportTypes))
	for _, label := range c.Download.ReportTypes {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(label))
	}
	if len(quoted) == 0 {
		return nil, fmt.Errorf("download.report_types must list at least one label")
	}
	re, err := regexp.Compile("(?i)" + strings.Join(quoted, "|"))
	if err != nil {
		return nil, fmt.Errorf("compile report types: %w", err)
	}
	return re, nil
}

// Timeout converts the source timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// OutputPath joins a configured file name under output.dir.
func (c Config) OutputPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Output.Dir, name)
}
