package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"encoding/xml"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// TranslatedMarker is stamped into a chapter file once its bilingual
// rewrite has been written back. The chapter pipeline keys idempotence
// off this string.
const TranslatedMarker = "<!-- bookworm:translated -->"

type Parser struct {
	logger  *logrus.Logger
	tempDir string
}

func NewParser(logger *logrus.Logger, tempDir string) *Parser {
	return &Parser{
		logger:  logger,
		tempDir: tempDir,
	}
}

// Extract unpacks an EPUB into the temp directory and reads its spine.
func (p *Parser) Extract(epubPath string) (*Book, error) {
	p.logger.Debugf("Extracting EPUB: %s", epubPath)

	bookID := IDFromFilename(epubPath)
	extractDir := filepath.Join(p.tempDir, bookID)

	if err := os.MkdirAll(extractDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create extraction directory: %w", err)
	}

	book := &Book{
		ID:        bookID,
		FilePath:  epubPath,
		TempDir:   extractDir,
		CreatedAt: time.Now(),
	}

	if err := p.extractZip(epubPath, extractDir); err != nil {
		return nil, fmt.Errorf("failed to extract ZIP: %w", err)
	}

	if err := p.parseContainer(book); err != nil {
		return nil, fmt.Errorf("failed to parse container: %w", err)
	}

	if err := p.parsePackage(book); err != nil {
		return nil, fmt.Errorf("failed to parse package: %w", err)
	}

	if err := p.enumerateChapters(book); err != nil {
		return nil, fmt.Errorf("failed to enumerate chapters: %w", err)
	}

	book.ProcessedAt = time.Now()
	p.logger.Debugf("Extracted EPUB %s with %d chapters", bookID, len(book.Chapters))

	return book, nil
}

// LoadFromDirectory loads a book from an already extracted directory.
// Used on restart so an interrupted run never re-extracts.
func (p *Parser) LoadFromDirectory(bookID string) (*Book, error) {
	extractDir := filepath.Join(p.tempDir, bookID)

	if _, err := os.Stat(extractDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("book directory not found: %s", extractDir)
	}

	book := &Book{
		ID:        bookID,
		TempDir:   extractDir,
		CreatedAt: time.Now(),
	}

	if err := p.parseContainer(book); err != nil {
		return nil, fmt.Errorf("failed to parse container: %w", err)
	}

	if err := p.parsePackage(book); err != nil {
		return nil, fmt.Errorf("failed to parse package: %w", err)
	}

	if err := p.enumerateChapters(book); err != nil {
		return nil, fmt.Errorf("failed to enumerate chapters: %w", err)
	}

	book.ProcessedAt = time.Now()
	return book, nil
}

func (p *Parser) extractZip(src, dest string) error {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, file := range reader.File {
		if err := p.extractFile(file, dest); err != nil {
			return err
		}
	}

	return nil
}

func (p *Parser) extractFile(file *zip.File, dest string) error {
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	path := filepath.Join(dest, file.Name)
	if !strings.HasPrefix(path, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("illegal file path in archive: %s", file.Name)
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(path, file.FileInfo().Mode())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	outFile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, file.FileInfo().Mode())
	if err != nil {
		return err
	}
	defer outFile.Close()

	_, err = io.Copy(outFile, rc)
	return err
}

func (p *Parser) parseContainer(book *Book) error {
	containerPath := filepath.Join(book.TempDir, "META-INF", "container.xml")

	data, err := os.ReadFile(containerPath)
	if err != nil {
		return fmt.Errorf("failed to read container.xml: %w", err)
	}

	if err := xml.Unmarshal(data, &book.Container); err != nil {
		return fmt.Errorf("failed to parse container.xml: %w", err)
	}

	if len(book.Container.Rootfiles) == 0 {
		return fmt.Errorf("no rootfiles found in container.xml")
	}

	return nil
}

func (p *Parser) parsePackage(book *Book) error {
	packagePath := filepath.Join(book.TempDir, book.Container.Rootfiles[0].FullPath)
	book.Package.OriginalPath = book.Container.Rootfiles[0].FullPath

	data, err := os.ReadFile(packagePath)
	if err != nil {
		return fmt.Errorf("failed to read package file: %w", err)
	}

	if err := xml.Unmarshal(data, &book.Package); err != nil {
		return fmt.Errorf("failed to parse package file: %w", err)
	}

	return nil
}

func (p *Parser) enumerateChapters(book *Book) error {
	packageDir := filepath.Dir(filepath.Join(book.TempDir, book.Package.OriginalPath))

	itemMap := make(map[string]Item)
	for _, item := range book.Package.Manifest.Items {
		itemMap[item.ID] = item
	}

	for order, itemRef := range book.Package.Spine.ItemRefs {
		item, exists := itemMap[itemRef.IDRef]
		if !exists {
			p.logger.Warnf("Item not found in manifest: %s", itemRef.IDRef)
			continue
		}

		if !isTextContent(item.MediaType) {
			continue
		}

		chapterPath := filepath.Join(packageDir, item.Href)
		data, err := os.ReadFile(chapterPath)
		if err != nil {
			p.logger.Warnf("Failed to read chapter %s: %v", chapterPath, err)
			continue
		}
		content := string(data)

		book.Chapters = append(book.Chapters, ChapterRef{
			ID:           fmt.Sprintf("%s_%d", book.ID, order),
			Title:        extractTitle(content),
			FilePath:     chapterPath,
			RelativePath: item.Href,
			Order:        order,
			WordCount:    countWords(content),
			IsTranslated: strings.Contains(content, TranslatedMarker),
		})
	}

	return nil
}

// Paragraphs reads a chapter file and returns its paragraph stream in
// document order. Paragraphs carrying the translated class are tagged
// target, everything else source. Index is the dense position in the
// stream, which the playback queue refers back to.
func (p *Parser) Paragraphs(chapterPath string) ([]ParagraphRecord, error) {
	data, err := os.ReadFile(chapterPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read chapter file: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse chapter markup: %w", err)
	}

	var records []ParagraphRecord
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		lang := LangSource
		if sel.HasClass(TransClass) {
			lang = LangTarget
		}
		records = append(records, ParagraphRecord{
			Text:  text,
			Lang:  lang,
			Index: len(records),
		})
	})

	return records, nil
}

// PlainTextSample returns up to maxLen plain-text characters from a
// chapter, for language detection.
func (p *Parser) PlainTextSample(chapterPath string, maxLen int) (string, error) {
	data, err := os.ReadFile(chapterPath)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(doc.Text())
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return text, nil
}

// EnsureWorkingCopy copies the extracted book into a per-language
// working directory. An existing copy is reused as-is, which is what
// makes an interrupted translation run resumable.
func (p *Parser) EnsureWorkingCopy(bookID, targetLang string) (string, error) {
	sourceDir := filepath.Join(p.tempDir, bookID)
	workDir := filepath.Join(p.tempDir, fmt.Sprintf("%s_translated_%s", bookID, targetLang))

	if _, err := os.Stat(sourceDir); os.IsNotExist(err) {
		return "", fmt.Errorf("source book directory not found: %s", sourceDir)
	}

	if _, err := os.Stat(workDir); err == nil {
		p.logger.Debugf("Reusing working copy: %s", workDir)
		return workDir, nil
	}

	p.logger.Debugf("Creating working copy: %s -> %s", sourceDir, workDir)
	if err := copyDir(sourceDir, workDir); err != nil {
		return "", fmt.Errorf("failed to copy book directory: %w", err)
	}

	return workDir, nil
}

func (p *Parser) Validate(book *Book) error {
	if book == nil {
		return fmt.Errorf("book is nil")
	}

	if book.ID == "" {
		return fmt.Errorf("book ID is empty")
	}

	if len(book.Container.Rootfiles) == 0 {
		return fmt.Errorf("no rootfiles found")
	}

	if len(book.Package.Manifest.Items) == 0 {
		return fmt.Errorf("no manifest items found")
	}

	if len(book.Package.Spine.ItemRefs) == 0 {
		return fmt.Errorf("no spine items found")
	}

	if len(book.Chapters) == 0 {
		return fmt.Errorf("no chapters found")
	}

	return nil
}

// IDFromFilename derives a stable book handle from an uploaded file
// name. The handle doubles as the extraction directory name, so it is
// restricted to a filesystem-safe alphabet.
func IDFromFilename(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "book"
	}
	return b.String()
}

func isTextContent(mediaType string) bool {
	return strings.Contains(mediaType, "html") || strings.Contains(mediaType, "xhtml")
}

func extractTitle(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "Untitled"
	}

	title := doc.Find("h1, h2, h3, title").First().Text()
	if title == "" {
		title = "Untitled"
	}

	return strings.TrimSpace(title)
}

func countWords(content string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return 0
	}

	return len(strings.Fields(doc.Text()))
}

func copyDir(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
		} else {
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	return os.Chmod(dst, srcInfo.Mode())
}
