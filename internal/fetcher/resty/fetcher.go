// Package restyfetcher implements crawler.Fetcher for binary report downloads
// using go-resty.
package restyfetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/ofsted-harvester/internal/crawler"
	"github.com/JakeFAU/ofsted-harvester/internal/metrics"
)

const defaultMaxRedirects = 10

// Config controls the underlying resty client.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
}

// Fetcher downloads whole response bodies into memory, following redirects.
type Fetcher struct {
	client *resty.Client
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	redirects := cfg.MaxRedirects
	if redirects <= 0 {
		redirects = defaultMaxRedirects
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(redirects))
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Fetcher{client: client}
}

// Fetch issues a GET and returns the final response. Non-2xx statuses come
// back as *crawler.StatusError.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	req := f.client.R().SetContext(ctx)
	if request.Headers != nil {
		req.SetHeaderMultiValues(request.Headers)
	}

	res, err := req.Get(request.URL)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("resty get %s: %w", request.URL, err)
	}
	metrics.ObserveFetch(request.URL, res.StatusCode(), len(res.Body()), res.Time())
	if !res.IsSuccess() {
		return crawler.FetchResponse{}, &crawler.StatusError{URL: request.URL, Code: res.StatusCode()}
	}

	finalURL := request.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil && res.RawResponse.Request.URL != nil {
		finalURL = res.RawResponse.Request.URL.String()
	}
	return crawler.FetchResponse{
		URL:        finalURL,
		StatusCode: res.StatusCode(),
		Headers:    res.Header().Clone(),
		Body:       res.Body(),
		Duration:   res.Time(),
	}, nil
}
