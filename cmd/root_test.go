package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ofsted-harvester/internal/config"
	"github.com/JakeFAU/ofsted-harvester/internal/crawler"
	"github.com/JakeFAU/ofsted-harvester/internal/pipeline"
	"github.com/JakeFAU/ofsted-harvester/internal/search"
)

type mockStages struct {
	mock.Mock
}

func (m *mockStages) Providers(ctx context.Context, pages search.PageRange) (pipeline.Summary, error) {
	args := m.Called(ctx, pages)
	return args.Get(0).(pipeline.Summary), args.Error(1)
}

func (m *mockStages) Reports(ctx context.Context) (pipeline.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(pipeline.Summary), args.Error(1)
}

func (m *mockStages) Download(ctx context.Context, opts pipeline.DownloadOptions) (pipeline.Summary, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).(pipeline.Summary), args.Error(1)
}

func (m *mockStages) Convert(ctx context.Context, prune bool) (pipeline.Summary, error) {
	args := m.Called(ctx, prune)
	return args.Get(0).(pipeline.Summary), args.Error(1)
}

func (m *mockStages) Scan(ctx context.Context) (pipeline.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(pipeline.Summary), args.Error(1)
}

func (m *mockStages) Run(ctx context.Context, opts pipeline.RunOptions) ([]pipeline.Summary, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).([]pipeline.Summary), args.Error(1)
}

type fakeApp struct {
	cfg    config.Config
	stages *mockStages
	closed bool
}

func (f *fakeApp) Close()                { f.closed = true }
func (f *fakeApp) Logger() *zap.Logger   { return zap.NewNop() }
func (f *fakeApp) Config() config.Config { return f.cfg }
func (f *fakeApp) Stages() Stages        { return f.stages }

func withFakeApp(t *testing.T, cfg config.Config) *fakeApp {
	t.Helper()
	fake := &fakeApp{cfg: cfg, stages: &mockStages{}}

	origApp, origLoad := newApp, loadConfig
	t.Cleanup(func() {
		newApp, loadConfig = origApp, origLoad
		cfgFile = ""
	})
	loadConfig = func(string) (config.Config, error) { return cfg, nil }
	newApp = func(config.Config, *zap.Logger) (App, error) { return fake, nil }
	return fake
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestProvidersUsesConfiguredPages(t *testing.T) {
	cfg := config.Config{}
	cfg.Search.FirstPage = 2
	cfg.Search.LastPage = 9
	fake := withFakeApp(t, cfg)
	fake.stages.On("Providers", mock.Anything, search.PageRange{First: 2, Last: 7}).
		Return(pipeline.Summary{
			Stage:    pipeline.StageProviders,
			Counters: crawler.StageCounters{Processed: 12, Succeeded: 12},
			Output:   "out/providers.csv",
		}, nil).Once()

	out, err := execute(t, "providers", "--last-page", "7")
	require.NoError(t, err)

	fake.stages.AssertExpectations(t)
	assert.True(t, fake.closed)
	assert.Contains(t, out, "providers")
	assert.Contains(t, out, "out/providers.csv")
}

func TestRunPassesFlags(t *testing.T) {
	cfg := config.Config{}
	cfg.Search.LastPage = -1
	fake := withFakeApp(t, cfg)
	fake.stages.On("Run", mock.Anything, pipeline.RunOptions{
		Pages: search.PageRange{First: 0, Last: -1},
		Year:  "2023",
		Prune: true,
	}).Return([]pipeline.Summary{
		{Stage: pipeline.StageProviders},
		{Stage: pipeline.StageScan, Output: "out/counts.csv"},
	}, nil).Once()

	out, err := execute(t, "run", "--year", "2023", "--prune")
	require.NoError(t, err)

	fake.stages.AssertExpectations(t)
	assert.Contains(t, out, "out/counts.csv")
}

func TestStageErrorStillRendersSummary(t *testing.T) {
	fake := withFakeApp(t, config.Config{})
	fake.stages.On("Download", mock.Anything, pipeline.DownloadOptions{Year: "2019"}).
		Return(pipeline.Summary{
			Stage:    pipeline.StageDownload,
			Counters: crawler.StageCounters{Processed: 3, Failed: 3},
		}, errors.New("boom")).Once()

	out, err := execute(t, "download", "--year", "2019")
	require.EqualError(t, err, "boom")
	assert.Contains(t, out, "download")
}

func TestConvertAndScan(t *testing.T) {
	fake := withFakeApp(t, config.Config{})
	fake.stages.On("Convert", mock.Anything, true).Return(pipeline.Summary{Stage: pipeline.StageConvert}, nil).Once()
	fake.stages.On("Scan", mock.Anything).Return(pipeline.Summary{Stage: pipeline.StageScan}, nil).Once()
	fake.stages.On("Reports", mock.Anything).Return(pipeline.Summary{Stage: pipeline.StageReports}, nil).Once()

	_, err := execute(t, "convert", "--prune")
	require.NoError(t, err)
	_, err = execute(t, "scan")
	require.NoError(t, err)
	_, err = execute(t, "reports")
	require.NoError(t, err)

	fake.stages.AssertExpectations(t)
}

func TestAppFactoryErrorIsReturned(t *testing.T) {
	withFakeApp(t, config.Config{})
	newApp = func(config.Config, *zap.Logger) (App, error) { return nil, errors.New("no disk") }

	_, err := execute(t, "scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no disk")
}

func TestConfigErrorIsReturned(t *testing.T) {
	withFakeApp(t, config.Config{})
	loadConfig = func(string) (config.Config, error) { return config.Config{}, errors.New("bad config") }

	_, err := execute(t, "scan")
	require.EqualError(t, err, "bad config")
}
