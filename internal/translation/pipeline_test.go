package translation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falazar/bookworm-languages/internal/epub"
)

func writeChapter(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestTranslateFileWritesInPlaceWithMarker(t *testing.T) {
	provider := &fakeProvider{}
	ct := NewChunkTranslator(provider, newTestCache(t), PairBestEffort, testLogger())
	pipeline := NewChapterPipeline(ct, 0, 0, testLogger())

	path := writeChapter(t, t.TempDir(), "ch1.xhtml",
		"<html><body>\n<p>Hello.</p>\n<p>World.</p>\n</body></html>")

	result, err := pipeline.TranslateFile(context.Background(), path, "en", "es")
	require.NoError(t, err)
	assert.Equal(t, FileTranslated, result)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, epub.TranslatedMarker)
	assert.Contains(t, content, "T:Hello.")
	assert.Contains(t, content, "</body>")
	assert.Contains(t, content, "</html>")
}

func TestTranslateFileIdempotent(t *testing.T) {
	provider := &fakeProvider{}
	ct := NewChunkTranslator(provider, newTestCache(t), PairBestEffort, testLogger())
	pipeline := NewChapterPipeline(ct, 0, 0, testLogger())

	path := writeChapter(t, t.TempDir(), "ch1.xhtml",
		"<html><body>\n<p>Hello.</p>\n<p>World.</p>\n</body></html>")

	_, err := pipeline.TranslateFile(context.Background(), path, "en", "es")
	require.NoError(t, err)
	afterFirst, err := os.ReadFile(path)
	require.NoError(t, err)
	callsAfterFirst := len(provider.calls)

	result, err := pipeline.TranslateFile(context.Background(), path, "en", "es")
	require.NoError(t, err)
	assert.Equal(t, FileSkipped, result)

	afterSecond, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, afterFirst, afterSecond, "second run must leave the file byte-identical")
	assert.Len(t, provider.calls, callsAfterFirst, "second run must not call the provider")
}

func TestTranslateFileChunkBoundaryForcesSeparateCalls(t *testing.T) {
	provider := &fakeProvider{}
	ct := NewChunkTranslator(provider, newTestCache(t), PairBestEffort, testLogger())

	// Four paragraphs with a limit that forces a boundary after the
	// second line, so two two-paragraph chunks each make their own
	// provider call.
	content := "<p>Hello there.</p>\n<p>World here.</p>\n<p>Goodbye now.</p>\n<p>Farewell all.</p>\n</body></html>"
	pipeline := NewChapterPipeline(ct, 45, 0, testLogger())

	path := writeChapter(t, t.TempDir(), "ch1.xhtml", content)
	_, err := pipeline.TranslateFile(context.Background(), path, "en", "es")
	require.NoError(t, err)

	require.Len(t, provider.calls, 2, "each chunk makes its own provider call")
	assert.Equal(t, "Hello there.\n\nWorld here.", provider.calls[0])
	assert.Equal(t, "Goodbye now.\n\nFarewell all.", provider.calls[1])
}

func TestTranslateFilePairStreamOrder(t *testing.T) {
	provider := &fakeProvider{}
	ct := NewChunkTranslator(provider, newTestCache(t), PairBestEffort, testLogger())
	pipeline := NewChapterPipeline(ct, 0, 0, testLogger())

	dir := t.TempDir()
	path := writeChapter(t, dir, "ch1.xhtml",
		"<html><body>\n<p>Hello.</p>\n<p>World.</p>\n<p>Bye.</p>\n</body></html>")

	_, err := pipeline.TranslateFile(context.Background(), path, "en", "es")
	require.NoError(t, err)

	parser := epub.NewParser(testLogger(), dir)
	records, err := parser.Paragraphs(path)
	require.NoError(t, err)

	// 3 originals in, 6 paragraphs out, in pair order t1,o1,t2,o2,t3,o3.
	require.Len(t, records, 6)
	wantTexts := []string{"T:Hello.", "Hello.", "T:World.", "World.", "T:Bye.", "Bye."}
	wantLangs := []string{
		epub.LangTarget, epub.LangSource,
		epub.LangTarget, epub.LangSource,
		epub.LangTarget, epub.LangSource,
	}
	for i, rec := range records {
		assert.Equal(t, wantTexts[i], rec.Text)
		assert.Equal(t, wantLangs[i], rec.Lang)
		assert.Equal(t, i, rec.Index)
	}
}

func TestTranslateFileCooldownAfterSuccess(t *testing.T) {
	provider := &fakeProvider{}
	ct := NewChunkTranslator(provider, newTestCache(t), PairBestEffort, testLogger())
	pipeline := NewChapterPipeline(ct, 0, 5*time.Second, testLogger())

	var slept []time.Duration
	pipeline.sleep = func(d time.Duration) { slept = append(slept, d) }

	path := writeChapter(t, t.TempDir(), "ch1.xhtml", "<p>Hello.</p>\n<p>World.</p>")
	_, err := pipeline.TranslateFile(context.Background(), path, "en", "es")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, slept)

	// A skipped file does not pay the cooldown.
	slept = nil
	_, err = pipeline.TranslateFile(context.Background(), path, "en", "es")
	require.NoError(t, err)
	assert.Empty(t, slept)
}
