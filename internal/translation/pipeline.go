package translation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/falazar/bookworm-languages/internal/epub"
)

// DefaultCooldown is how long the pipeline blocks after each
// successfully translated file, to stay under the provider's radar.
const DefaultCooldown = 120 * time.Second

// FileResult reports what the pipeline did with one chapter file.
type FileResult string

const (
	FileTranslated FileResult = "translated"
	FileSkipped    FileResult = "skipped"
)

// ChapterPipeline rewrites one chapter file in place into its
// bilingual form. It is idempotent: a file carrying the translated
// marker is left untouched.
type ChapterPipeline struct {
	translator *ChunkTranslator
	chunkLimit int
	cooldown   time.Duration
	logger     *logrus.Logger

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

func NewChapterPipeline(translator *ChunkTranslator, chunkLimit int, cooldown time.Duration, logger *logrus.Logger) *ChapterPipeline {
	if chunkLimit <= 0 {
		chunkLimit = DefaultChunkLimit
	}
	if cooldown < 0 {
		cooldown = DefaultCooldown
	}
	return &ChapterPipeline{
		translator: translator,
		chunkLimit: chunkLimit,
		cooldown:   cooldown,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// TranslateFile runs chunking and chunk translation over a chapter
// file in order and writes the result back in place, overwriting the
// working copy. A failed file propagates its error; files already
// rewritten by earlier calls are not reverted.
func (p *ChapterPipeline) TranslateFile(ctx context.Context, path, sourceLang, targetLang string) (FileResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read chapter file: %w", err)
	}
	content := string(data)

	if strings.Contains(content, epub.TranslatedMarker) {
		p.logger.Debugf("Already translated, skipping: %s", path)
		return FileSkipped, nil
	}

	// Closing structural tags are stripped before chunking and
	// re-appended once, after the last chunk.
	body, hadClosing := splitClosingTags(content)

	chunks := SplitLines(body, p.chunkLimit)
	p.logger.Debugf("Translating %s in %d chunks", path, len(chunks))

	var out strings.Builder
	for i, chunk := range chunks {
		translated, err := p.translator.Translate(ctx, chunk.Text(), sourceLang, targetLang)
		if err != nil {
			return "", fmt.Errorf("chunk %d (lines %d-%d): %w", i, chunk.StartLine, chunk.EndLine, err)
		}
		out.WriteString(translated)
		if !strings.HasSuffix(translated, "\n") {
			out.WriteString("\n")
		}
	}

	out.WriteString(epub.TranslatedMarker)
	out.WriteString("\n")
	if hadClosing {
		out.WriteString("</body>\n</html>\n")
	}

	if err := os.WriteFile(path, []byte(out.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write translated chapter: %w", err)
	}

	if p.cooldown > 0 {
		p.logger.Debugf("Cooling down %s after %s", p.cooldown, path)
		p.sleep(p.cooldown)
	}

	return FileTranslated, nil
}

// splitClosingTags cuts the trailing </body></html> scaffold off a
// chapter document so chunk output can be concatenated cleanly.
func splitClosingTags(content string) (body string, hadClosing bool) {
	lower := strings.ToLower(content)
	idx := strings.LastIndex(lower, "</body>")
	if idx < 0 {
		return content, false
	}
	return content[:idx], true
}
