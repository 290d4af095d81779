package translation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/falazar/bookworm-languages/internal/epub"
)

// nonContentFiles are spine-adjacent markup files that are navigation,
// not prose, and must never be sent to the provider.
var nonContentFiles = map[string]bool{
	"nav.xhtml":       true,
	"toc.xhtml":       true,
	"titlepage.xhtml": true,
}

// contentDirConventions is the ordered list of directory names known
// EPUB layouts use for chapter markup.
var contentDirConventions = []string{"OEBPS", "OPS", "EBOOK", "text"}

// maxContentSearchDepth bounds the fallback traversal when no
// convention matches.
const maxContentSearchDepth = 6

// Orchestrator drives a whole-book translation: working-copy reuse,
// content discovery, sequential chapter pipeline runs, and
// unconditional repackaging. Chapters run strictly in sequence; the
// provider is rate sensitive and parallel requests get a session
// banned.
type Orchestrator struct {
	parser   *epub.Parser
	builder  *epub.Builder
	pipeline *ChapterPipeline
	logger   *logrus.Logger

	onFileDone func(book, file string, index, total int, result FileResult)
}

func NewOrchestrator(parser *epub.Parser, builder *epub.Builder, pipeline *ChapterPipeline, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		parser:   parser,
		builder:  builder,
		pipeline: pipeline,
		logger:   logger,
	}
}

// SetFileCallback registers a per-file progress callback.
func (o *Orchestrator) SetFileCallback(fn func(book, file string, index, total int, result FileResult)) {
	o.onFileDone = fn
}

// Run translates every chapter file of the book and repackages the
// working copy into a bilingual EPUB. A per-file failure is recorded
// and the remaining files still run; repackaging happens regardless,
// so a best-effort partial artifact always exists. The recorded error
// is raised only after the artifact is written.
func (o *Orchestrator) Run(ctx context.Context, book *epub.Book, sourceLang, targetLang, outputDir string) (string, error) {
	workDir, err := o.parser.EnsureWorkingCopy(book.ID, targetLang)
	if err != nil {
		return "", fmt.Errorf("failed to prepare working copy: %w", err)
	}

	contentDir, err := findContentDir(workDir, book.Package.OriginalPath)
	if err != nil {
		return "", err
	}
	o.logger.Debugf("Content directory: %s", contentDir)

	files, err := listChapterFiles(contentDir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no chapter files found under %s", contentDir)
	}

	var runErr error
	for i, file := range files {
		o.logger.Infof("Translating chapter file %d/%d: %s", i+1, len(files), filepath.Base(file))

		result, err := o.pipeline.TranslateFile(ctx, file, sourceLang, targetLang)
		if err != nil {
			o.logger.Errorf("Chapter file %s failed: %v", filepath.Base(file), err)
			if runErr == nil {
				runErr = fmt.Errorf("chapter file %s: %w", filepath.Base(file), err)
			}
			continue
		}

		if o.onFileDone != nil {
			o.onFileDone(book.ID, filepath.Base(file), i+1, len(files), result)
		}
	}

	outputPath, packErr := o.builder.Pack(book, workDir, targetLang, outputDir)
	if packErr != nil {
		if runErr != nil {
			return "", fmt.Errorf("repackaging failed after translation error (%v): %w", runErr, packErr)
		}
		return "", fmt.Errorf("repackaging failed: %w", packErr)
	}

	if runErr != nil {
		return outputPath, runErr
	}
	return outputPath, nil
}

// findContentDir locates the directory holding chapter markup: known
// layout conventions first, then the package document's own directory,
// then a breadth-first sweep for the first directory containing markup
// files. The sweep is an explicit worklist with a depth bound, so a
// hostile directory tree cannot blow the stack.
func findContentDir(workDir, packagePath string) (string, error) {
	for _, name := range contentDirConventions {
		candidate := filepath.Join(workDir, name)
		if hasMarkupFiles(candidate) {
			return candidate, nil
		}
	}

	if packagePath != "" {
		candidate := filepath.Join(workDir, filepath.Dir(packagePath))
		if hasMarkupFiles(candidate) {
			return candidate, nil
		}
	}

	type entry struct {
		path  string
		depth int
	}
	worklist := []entry{{workDir, 0}}
	for len(worklist) > 0 {
		current := worklist[0]
		worklist = worklist[1:]

		if hasMarkupFiles(current.path) {
			return current.path, nil
		}
		if current.depth >= maxContentSearchDepth {
			continue
		}

		entries, err := os.ReadDir(current.path)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				worklist = append(worklist, entry{filepath.Join(current.path, e.Name()), current.depth + 1})
			}
		}
	}

	return "", fmt.Errorf("no content directory with markup files found under %s", workDir)
}

func hasMarkupFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && isMarkupFile(e.Name()) {
			return true
		}
	}
	return false
}

func listChapterFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read content directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !isMarkupFile(e.Name()) {
			continue
		}
		if nonContentFiles[strings.ToLower(e.Name())] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}

	sort.Strings(files)
	return files, nil
}

func isMarkupFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".xhtml", ".htm":
		return true
	}
	return false
}
