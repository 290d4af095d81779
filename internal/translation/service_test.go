package translation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falazar/bookworm-languages/internal/epub"
)

// gatedProvider tracks how many Translate calls are in flight at once.
type gatedProvider struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (g *gatedProvider) Translate(_ context.Context, text, _, _ string) (string, error) {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	g.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return "T:" + text, nil
}

func waitForStatus(t *testing.T, svc *Service, book, status string) *RunProgress {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p := svc.Progress(book); p != nil && p.Status == status {
			return p
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("book %s never reached status %s", book, status)
	return nil
}

func TestServiceSerializesRunsAcrossBooks(t *testing.T) {
	tempDir := t.TempDir()
	outputDir := t.TempDir()
	logger := testLogger()

	parser := epub.NewParser(logger, tempDir)
	chapters := map[string]string{
		"ch1.xhtml": chapterMarkup("First one.", "First two."),
		"ch2.xhtml": chapterMarkup("Second one.", "Second two."),
		"ch3.xhtml": chapterMarkup("Third one.", "Third two."),
	}
	bookA := writeTestBook(t, parser, tempDir, "booka", chapters)
	bookB := writeTestBook(t, parser, tempDir, "bookb", chapters)

	provider := &gatedProvider{}
	ct := NewChunkTranslator(provider, newTestCache(t), PairBestEffort, logger)
	pipeline := NewChapterPipeline(ct, 0, 0, logger)
	orch := NewOrchestrator(parser, epub.NewBuilder(logger), pipeline, logger)
	svc := NewService(orch, logger, nil)

	require.NoError(t, svc.Start(bookA, "en", "es", outputDir))
	require.NoError(t, svc.Start(bookB, "en", "es", outputDir))

	progressA := waitForStatus(t, svc, "booka", "completed")
	progressB := waitForStatus(t, svc, "bookb", "completed")

	// One run at a time means the provider never saw overlapping calls.
	assert.Equal(t, 1, provider.peak)

	assert.Equal(t, "booka", progressA.Book)
	assert.Equal(t, "bookb", progressB.Book)
	assert.Equal(t, 3, progressA.CompletedFiles)
	assert.Equal(t, 3, progressB.CompletedFiles)
	assert.Equal(t, 3, progressA.TotalFiles)
	assert.Equal(t, 3, progressB.TotalFiles)
}

func TestServiceRejectsSecondStartForSameBook(t *testing.T) {
	tempDir := t.TempDir()
	outputDir := t.TempDir()
	logger := testLogger()

	parser := epub.NewParser(logger, tempDir)
	book := writeTestBook(t, parser, tempDir, "mybook", map[string]string{
		"ch1.xhtml": chapterMarkup("First one.", "First two."),
		"ch2.xhtml": chapterMarkup("Second one.", "Second two."),
		"ch3.xhtml": chapterMarkup("Third one.", "Third two."),
	})

	provider := &gatedProvider{}
	ct := NewChunkTranslator(provider, newTestCache(t), PairBestEffort, logger)
	pipeline := NewChapterPipeline(ct, 0, 0, logger)
	orch := NewOrchestrator(parser, epub.NewBuilder(logger), pipeline, logger)
	svc := NewService(orch, logger, nil)

	require.NoError(t, svc.Start(book, "en", "es", outputDir))
	err := svc.Start(book, "en", "es", outputDir)
	assert.Error(t, err)

	waitForStatus(t, svc, "mybook", "completed")
}
