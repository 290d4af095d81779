package translation

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/falazar/bookworm-languages/internal/epub"
)

// paragraphDelimiter joins the paragraphs of one chunk into a single
// provider request and splits the reply back apart.
const paragraphDelimiter = "\n\n"

// PairingPolicy decides what happens when the provider returns a
// different paragraph count than it was sent.
type PairingPolicy string

const (
	// PairBestEffort pairs by position and drops the remainder. This
	// can misalign sentences; it is a documented fidelity risk, not an
	// error.
	PairBestEffort PairingPolicy = "best-effort"
	// PairStrict fails the chunk instead.
	PairStrict PairingPolicy = "strict"
)

// ChunkTranslator turns one chunk of chapter markup into an
// interleaved bilingual fragment: for each original paragraph, the
// translation first, then the original.
type ChunkTranslator struct {
	provider Provider
	cache    *Cache
	policy   PairingPolicy
	logger   *logrus.Logger
}

func NewChunkTranslator(provider Provider, cache *Cache, policy PairingPolicy, logger *logrus.Logger) *ChunkTranslator {
	if policy == "" {
		policy = PairBestEffort
	}
	return &ChunkTranslator{
		provider: provider,
		cache:    cache,
		policy:   policy,
		logger:   logger,
	}
}

// Translate processes one chunk fragment. Chunks with fewer than two
// paragraphs pass through unchanged: they are header-only or boundary
// fragments that the provider would mangle. One provider call is made
// per chunk, never per paragraph.
func (t *ChunkTranslator) Translate(ctx context.Context, fragment, sourceLang, targetLang string) (string, error) {
	headerEnd := paragraphStart(fragment)
	if headerEnd < 0 {
		return fragment, nil
	}

	header := fragment[:headerEnd]
	body := fragment[headerEnd:]

	texts, err := paragraphTexts(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse chunk markup: %w", err)
	}
	if len(texts) < 2 {
		return fragment, nil
	}

	joined := strings.Join(texts, paragraphDelimiter)

	key := CacheKey(joined, sourceLang, targetLang)
	translated, cached := t.cache.Get(key)
	if !cached {
		translated, err = t.provider.Translate(ctx, joined, sourceLang, targetLang)
		if err != nil {
			return "", fmt.Errorf("provider call failed: %w", err)
		}
		t.cache.Put(ctx, key, translated)
	}

	parts := strings.Split(translated, paragraphDelimiter)
	if len(parts) != len(texts) {
		if t.policy == PairStrict {
			return "", fmt.Errorf("paragraph count mismatch: sent %d, received %d", len(texts), len(parts))
		}
		t.logger.Warnf("Paragraph count mismatch (sent %d, received %d), pairing by position", len(texts), len(parts))
	}

	var b strings.Builder
	b.WriteString(header)
	for i, original := range texts {
		if i < len(parts) {
			b.WriteString(fmt.Sprintf("<p class=\"%s\" lang=\"%s\">%s</p>\n",
				epub.TransClass, targetLang, html.EscapeString(strings.TrimSpace(parts[i]))))
		}
		b.WriteString(fmt.Sprintf("<p class=\"%s\" lang=\"%s\">%s</p>\n",
			epub.OrigClass, sourceLang, html.EscapeString(original)))
	}

	return b.String(), nil
}

// paragraphStart returns the offset of the first <p> tag, or -1. Text
// before it is the chunk's structural header and is carried over
// verbatim.
func paragraphStart(fragment string) int {
	lower := strings.ToLower(fragment)
	from := 0
	for {
		idx := strings.Index(lower[from:], "<p")
		if idx < 0 {
			return -1
		}
		idx += from
		rest := lower[idx+2:]
		if rest == "" || rest[0] == '>' || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\n' || rest[0] == '/' {
			return idx
		}
		from = idx + 2
	}
}

func paragraphTexts(body string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	var texts []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		texts = append(texts, text)
	})
	return texts, nil
}
