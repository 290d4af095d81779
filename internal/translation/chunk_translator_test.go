package translation

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falazar/bookworm-languages/internal/storage"
)

// fakeProvider translates each paragraph to "T:<text>" and records
// every call. A paragraph containing "boom" fails the whole request.
type fakeProvider struct {
	calls []string
	reply func(text string) string
}

func (f *fakeProvider) Translate(_ context.Context, text, _, _ string) (string, error) {
	if strings.Contains(text, "boom") {
		return "", fmt.Errorf("provider exploded")
	}
	f.calls = append(f.calls, text)
	if f.reply != nil {
		return f.reply(text), nil
	}
	parts := strings.Split(text, "\n\n")
	for i, p := range parts {
		parts[i] = "T:" + p
	}
	return strings.Join(parts, "\n\n"), nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cache, err := NewCache(context.Background(), store, testLogger())
	require.NoError(t, err)
	return cache
}

func TestTranslateChunkPairingOrder(t *testing.T) {
	provider := &fakeProvider{}
	ct := NewChunkTranslator(provider, newTestCache(t), PairBestEffort, testLogger())

	fragment := "<h1>Chapter One</h1>\n<p>Hello.</p>\n<p>World.</p>\n<p>Bye.</p>"
	out, err := ct.Translate(context.Background(), fragment, "en", "es")
	require.NoError(t, err)

	// Header carried over, then translated-then-original pairs in
	// original paragraph order.
	assert.True(t, strings.HasPrefix(out, "<h1>Chapter One</h1>"))
	wantOrder := []string{
		`class="bw-trans"`, "T:Hello.",
		`class="bw-orig"`, "Hello.",
		"T:World.", "World.",
		"T:Bye.", "Bye.",
	}
	pos := 0
	for _, want := range wantOrder {
		idx := strings.Index(out[pos:], want)
		require.GreaterOrEqual(t, idx, 0, "expected %q after position %d in %q", want, pos, out)
		pos += idx + len(want)
	}

	assert.Equal(t, 3, strings.Count(out, `class="bw-trans"`))
	assert.Equal(t, 3, strings.Count(out, `class="bw-orig"`))
	assert.Equal(t, 3, strings.Count(out, `lang="es"`))
	assert.Equal(t, 3, strings.Count(out, `lang="en"`))
}

func TestTranslateChunkSingleCallPerChunk(t *testing.T) {
	provider := &fakeProvider{}
	ct := NewChunkTranslator(provider, newTestCache(t), PairBestEffort, testLogger())

	fragment := "<p>One.</p>\n<p>Two.</p>\n<p>Three.</p>"
	_, err := ct.Translate(context.Background(), fragment, "en", "es")
	require.NoError(t, err)

	require.Len(t, provider.calls, 1)
	assert.Equal(t, "One.\n\nTwo.\n\nThree.", provider.calls[0])
}

func TestTranslateChunkPassThrough(t *testing.T) {
	provider := &fakeProvider{}
	ct := NewChunkTranslator(provider, newTestCache(t), PairBestEffort, testLogger())

	cases := []string{
		"<html><head><title>x</title></head><body>",
		"<h2>Header only</h2>",
		"<p>Lone paragraph.</p>",
	}
	for _, fragment := range cases {
		out, err := ct.Translate(context.Background(), fragment, "en", "es")
		require.NoError(t, err)
		assert.Equal(t, fragment, out)
	}
	assert.Empty(t, provider.calls)
}

func TestTranslateChunkCacheHitSkipsProvider(t *testing.T) {
	provider := &fakeProvider{}
	ct := NewChunkTranslator(provider, newTestCache(t), PairBestEffort, testLogger())

	fragment := "<p>Alpha.</p>\n<p>Beta.</p>"
	first, err := ct.Translate(context.Background(), fragment, "en", "es")
	require.NoError(t, err)
	second, err := ct.Translate(context.Background(), fragment, "en", "es")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, provider.calls, 1)
}

func TestTranslateChunkCountMismatchBestEffort(t *testing.T) {
	provider := &fakeProvider{reply: func(string) string { return "only one back" }}
	ct := NewChunkTranslator(provider, newTestCache(t), PairBestEffort, testLogger())

	fragment := "<p>Alpha.</p>\n<p>Beta.</p>\n<p>Gamma.</p>"
	out, err := ct.Translate(context.Background(), fragment, "en", "es")
	require.NoError(t, err)

	// Positional pairing: one translated paragraph, all originals kept.
	assert.Equal(t, 1, strings.Count(out, `class="bw-trans"`))
	assert.Equal(t, 3, strings.Count(out, `class="bw-orig"`))
}

func TestTranslateChunkCountMismatchStrict(t *testing.T) {
	provider := &fakeProvider{reply: func(string) string { return "only one back" }}
	ct := NewChunkTranslator(provider, newTestCache(t), PairStrict, testLogger())

	fragment := "<p>Alpha.</p>\n<p>Beta.</p>"
	_, err := ct.Translate(context.Background(), fragment, "en", "es")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paragraph count mismatch")
}

func TestTranslateChunkProviderErrorPropagates(t *testing.T) {
	provider := &fakeProvider{}
	ct := NewChunkTranslator(provider, newTestCache(t), PairBestEffort, testLogger())

	fragment := "<p>this will boom</p>\n<p>second</p>"
	_, err := ct.Translate(context.Background(), fragment, "en", "es")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider call failed")
}
