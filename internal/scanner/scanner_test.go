package scanner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/ofsted-harvester/internal/crawler"
	"github.com/JakeFAU/ofsted-harvester/internal/storage/memory"
)

var defaultKeywords = []string{"scien", "math", "investigation|experiment", "CPD|professional development"}

func TestScanTextCountsNonOverlappingMatches(t *testing.T) {
	s, err := New(memory.NewBlobStore(), []string{"science|scientific", "math"}, 0, nil)
	require.NoError(t, err)

	rec := s.ScanText("a.txt", "We discussed science and math in science club")
	assert.Equal(t, []int{2, 1}, rec.Counts)
	assert.False(t, rec.Corrupt)
	assert.Equal(t, []string{"filename", "corruptFlag", "science|scientific_mention", "math_mention"}, s.Header())
}

func TestScanTextIsCaseInsensitive(t *testing.T) {
	s, err := New(memory.NewBlobStore(), defaultKeywords, 0, nil)
	require.NoError(t, err)

	rec := s.ScanText("a.txt", "SCIENCE, Scientific, Mathematics. An Experiment and an investigation. Professional Development and CPD.")
	assert.Equal(t, []int{2, 1, 2, 2}, rec.Counts)
}

func TestScanTextStripsReflowArtifacts(t *testing.T) {
	s, err := New(memory.NewBlobStore(), []string{"science"}, 0, nil)
	require.NoError(t, err)

	rec := s.ScanText("a.txt", `sci\nence lessons`)
	assert.Equal(t, []int{1}, rec.Counts)
}

func TestScanTextCorruptFlag(t *testing.T) {
	s, err := New(memory.NewBlobStore(), []string{"math"}, 9, nil)
	require.NoError(t, err)

	assert.True(t, s.ScanText("a.txt", "ok "+strings.Repeat("?", 9)+" ok").Corrupt)
	assert.False(t, s.ScanText("a.txt", "what?? really????????").Corrupt, "eight in a row is not enough")
}

func TestNewRejectsBadPatterns(t *testing.T) {
	_, err := New(memory.NewBlobStore(), []string{"("}, 0, nil)
	require.Error(t, err)
	_, err = New(memory.NewBlobStore(), nil, 0, nil)
	require.Error(t, err)
}

type failingStore struct {
	*memory.BlobStore
	broken string
}

func (f failingStore) ReadObject(name string) ([]byte, error) {
	if name == f.broken {
		return nil, errors.New("permission denied")
	}
	return f.BlobStore.ReadObject(name)
}

func TestScanDirOrdersAndSkipsUnreadable(t *testing.T) {
	mem := memory.NewBlobStore()
	ctx := context.Background()
	for name, text := range map[string]string{
		"b.txt": "math math",
		"a.txt": "science " + strings.Repeat("?", 12),
		"c.txt": "unreadable",
		"d.pdf": "not scanned",
	} {
		_, err := mem.PutObject(ctx, name, []byte(text))
		require.NoError(t, err)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	s, err := New(failingStore{BlobStore: mem, broken: "c.txt"}, defaultKeywords, 9, zap.New(core))
	require.NoError(t, err)

	records, counters, err := s.ScanDir(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a.txt", records[0].Filename)
	assert.True(t, records[0].Corrupt)
	assert.Equal(t, "b.txt", records[1].Filename)
	assert.Equal(t, []int{0, 2, 0, 0}, records[1].Counts)
	assert.Equal(t, crawler.StageCounters{Processed: 3, Succeeded: 2, Failed: 1}, counters)

	assert.Equal(t, 1, logs.FilterMessage("corrupt text").Len())
	assert.Equal(t, 1, logs.FilterMessage("unreadable text file").Len())
}

func TestScanDirRegeneratesEveryRun(t *testing.T) {
	mem := memory.NewBlobStore()
	ctx := context.Background()
	_, err := mem.PutObject(ctx, "a.txt", []byte("math"))
	require.NoError(t, err)
	s, err := New(mem, []string{"math"}, 0, nil)
	require.NoError(t, err)

	first, _, err := s.ScanDir(ctx)
	require.NoError(t, err)
	_, err = mem.PutObject(ctx, "a.txt", []byte("math math math"))
	require.NoError(t, err)
	second, _, err := s.ScanDir(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, first[0].Counts)
	assert.Equal(t, []int{3}, second[0].Counts)
}
