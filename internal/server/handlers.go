package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/falazar/bookworm-languages/internal/epub"
	"github.com/falazar/bookworm-languages/internal/storage"
	"github.com/falazar/bookworm-languages/internal/translation"
)

func (s *Server) handleHome(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title":              "Bookworm Languages",
		"Books":              s.listLibrary(),
		"SupportedLanguages": s.config.Translation.SupportedLangs,
	})
}

// listLibrary merges books loaded in memory with extracted directories
// left over from earlier runs.
func (s *Server) listLibrary() []gin.H {
	seen := make(map[string]bool)
	var library []gin.H

	add := func(book *epub.Book) {
		if seen[book.ID] {
			return
		}
		seen[book.ID] = true
		library = append(library, gin.H{
			"ID":       book.ID,
			"Title":    book.Package.Metadata.Title,
			"Language": book.SourceLang,
			"Chapters": len(book.Chapters),
		})
	}

	s.booksMu.RLock()
	inMemory := make([]*epub.Book, 0, len(s.books))
	for _, book := range s.books {
		inMemory = append(inMemory, book)
	}
	s.booksMu.RUnlock()
	for _, book := range inMemory {
		add(book)
	}

	entries, err := os.ReadDir(s.config.App.TempDir)
	if err != nil {
		return library
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.Contains(entry.Name(), "_translated_") {
			continue
		}
		if seen[entry.Name()] {
			continue
		}
		if book, ok := s.book(entry.Name()); ok {
			add(book)
		}
	}

	sort.Slice(library, func(i, j int) bool {
		return library[i]["ID"].(string) < library[j]["ID"].(string)
	})
	return library
}

func (s *Server) handleUpload(c *gin.Context) {
	file, err := c.FormFile("epub")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	if filepath.Ext(file.Filename) != ".epub" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File must be an EPUB"})
		return
	}

	if file.Size > 50*1024*1024 { // 50MB limit
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large (max 50MB)"})
		return
	}

	if err := os.MkdirAll(s.config.App.UploadDir, 0755); err != nil {
		s.logger.Errorf("Failed to create upload directory: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	uploadPath := filepath.Join(s.config.App.UploadDir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, uploadPath); err != nil {
		s.logger.Errorf("Failed to save uploaded file: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	book, err := s.epubParser.Extract(uploadPath)
	if err != nil {
		s.logger.Errorf("Failed to extract EPUB: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process EPUB file"})
		return
	}

	if err := s.epubParser.Validate(book); err != nil {
		s.logger.Errorf("EPUB validation failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid EPUB file"})
		return
	}

	book.SourceLang = s.detectSourceLanguage(book)
	s.rememberBook(book)

	s.logger.Infof("Uploaded EPUB %s (ID: %s, %d chapters)", file.Filename, book.ID, len(book.Chapters))

	c.JSON(http.StatusOK, gin.H{
		"id":           book.ID,
		"title":        book.Package.Metadata.Title,
		"language":     book.SourceLang,
		"chapters":     len(book.Chapters),
		"redirect_url": fmt.Sprintf("/read/%s", book.ID),
	})
}

// detectSourceLanguage samples the first substantial chapter. Falls
// back to the package metadata, then "unknown".
func (s *Server) detectSourceLanguage(book *epub.Book) string {
	for _, chapter := range book.Chapters {
		sample, err := s.epubParser.PlainTextSample(chapter.FilePath, 2000)
		if err != nil {
			continue
		}
		lang, err := translation.DetectLanguage(sample)
		if err != nil {
			continue
		}
		return lang
	}
	if book.Package.Metadata.Language != "" {
		return book.Package.Metadata.Language
	}
	return "unknown"
}

func (s *Server) handleTranslate(c *gin.Context) {
	var request struct {
		Book       string `json:"book" binding:"required"`
		TargetLang string `json:"target_lang" binding:"required"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, exists := s.book(request.Book)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}

	sourceLang := book.SourceLang
	if sourceLang == "" {
		sourceLang = s.detectSourceLanguage(book)
		book.SourceLang = sourceLang
	}
	if sourceLang == "" || sourceLang == "unknown" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Source language not detected. Please try uploading the file again."})
		return
	}

	if err := s.translationSvc.Start(book, sourceLang, request.TargetLang, s.config.App.OutputDir); err != nil {
		s.logger.Errorf("Failed to start translation: %v", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Translation started",
		"status_url":      fmt.Sprintf("/status/%s", book.ID),
		"source_language": sourceLang,
		"target_language": request.TargetLang,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	book := c.Param("book")

	progress := s.translationSvc.Progress(book)
	if progress == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Translation not found"})
		return
	}

	response := gin.H{
		"book":            progress.Book,
		"status":          progress.Status,
		"source_language": progress.SourceLanguage,
		"target_language": progress.TargetLanguage,
		"total_files":     progress.TotalFiles,
		"completed_files": progress.CompletedFiles,
		"current_file":    progress.CurrentFile,
		"started_at":      progress.StartedAt,
	}

	if progress.Status == "completed" {
		response["completed_at"] = progress.CompletedAt
		response["download_url"] = fmt.Sprintf("/download/%s?lang=%s", book, progress.TargetLanguage)
	}
	if progress.Status == "failed" {
		response["error_message"] = progress.ErrorMessage
	}
	if progress.TotalFiles > 0 {
		response["progress_percentage"] = (float64(progress.CompletedFiles) / float64(progress.TotalFiles)) * 100
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleDownload(c *gin.Context) {
	id := c.Param("book")
	lang := c.Query("lang")

	// The book ID acts as the allow-list: anything not loaded from the
	// temp directory is rejected, which blocks path traversal through
	// the filename.
	book, exists := s.book(id)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}
	if err := translation.ValidateLanguageCode(lang); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid language code"})
		return
	}

	outputPath := filepath.Join(s.config.App.OutputDir, fmt.Sprintf("%s_%s.epub", book.ID, lang))
	if _, err := os.Stat(outputPath); os.IsNotExist(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Translated EPUB not found"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_%s.epub", book.ID, lang))
	c.Header("Content-Type", "application/epub+zip")
	c.File(outputPath)
}

func (s *Server) handleDeleteBook(c *gin.Context) {
	id := c.Param("book")

	book, exists := s.book(id)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}

	if p := s.translationSvc.Progress(book.ID); p != nil && (p.Status == "queued" || p.Status == "in_progress") {
		c.JSON(http.StatusConflict, gin.H{"error": "Translation in progress"})
		return
	}

	// The book ID came from the parser, so the paths below stay inside
	// the temp and output directories.
	if err := os.RemoveAll(filepath.Join(s.config.App.TempDir, book.ID)); err != nil {
		s.logger.Errorf("Failed to remove extracted book %s: %v", book.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete book"})
		return
	}

	entries, err := os.ReadDir(s.config.App.TempDir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() && strings.HasPrefix(entry.Name(), book.ID+"_translated_") {
				os.RemoveAll(filepath.Join(s.config.App.TempDir, entry.Name()))
			}
		}
	}
	if outputs, err := filepath.Glob(filepath.Join(s.config.App.OutputDir, book.ID+"_*.epub")); err == nil {
		for _, output := range outputs {
			os.Remove(output)
		}
	}

	s.booksMu.Lock()
	delete(s.books, book.ID)
	s.booksMu.Unlock()
	s.translationSvc.ClearProgress(book.ID)

	s.logger.Infof("Deleted book %s", book.ID)
	c.JSON(http.StatusOK, gin.H{"deleted": book.ID})
}

// chapterByPath validates a chapter reference against the book's spine.
// Anything not in the spine is rejected, never resolved on disk.
func chapterByPath(book *epub.Book, relativePath string) (*epub.ChapterRef, bool) {
	for i := range book.Chapters {
		if book.Chapters[i].RelativePath == relativePath {
			return &book.Chapters[i], true
		}
	}
	return nil, false
}

// chapterFilePath resolves the on-disk file backing a chapter: the
// bilingual working copy when one exists for the language, otherwise
// the original extraction.
func (s *Server) chapterFilePath(book *epub.Book, chapter *epub.ChapterRef, lang string) string {
	if lang != "" {
		workDir := filepath.Join(s.config.App.TempDir, fmt.Sprintf("%s_translated_%s", book.ID, lang))
		packageDir := filepath.Dir(book.Package.OriginalPath)
		candidate := filepath.Join(workDir, packageDir, chapter.RelativePath)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return chapter.FilePath
}

func (s *Server) handleReader(c *gin.Context) {
	id := c.Param("book")
	book, exists := s.book(id)
	if !exists {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"Error": "Book not found"})
		return
	}

	progress, err := s.store.GetProgress(c.Request.Context(), book.ID)
	if err != nil {
		s.logger.Errorf("Failed to load progress for %s: %v", book.ID, err)
		progress = nil
	}

	chapterPath := c.Query("chapter")
	if chapterPath == "" && len(book.Chapters) > 0 {
		// Resume where the reader left off.
		if progress != nil {
			if _, ok := chapterByPath(book, progress.LastChapter); ok {
				chapterPath = progress.LastChapter
			}
		}
		if chapterPath == "" {
			chapterPath = book.Chapters[0].RelativePath
		}
	}

	chapter, ok := chapterByPath(book, chapterPath)
	if !ok {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"Error": "Chapter not found"})
		return
	}

	// The saved paragraph index only applies to the chapter it was
	// saved in.
	resumeIndex := 0
	if progress != nil && progress.LastChapter == chapter.RelativePath {
		resumeIndex = progress.LastParagraph
	}

	lang := c.Query("lang")
	if lang != "" {
		if err := translation.ValidateLanguageCode(lang); err != nil {
			c.HTML(http.StatusBadRequest, "error.html", gin.H{"Error": "Invalid language code"})
			return
		}
	}
	records, err := s.epubParser.Paragraphs(s.chapterFilePath(book, chapter, lang))
	if err != nil {
		s.logger.Errorf("Failed to read chapter %s: %v", chapter.RelativePath, err)
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{"Error": "Failed to read chapter"})
		return
	}

	c.HTML(http.StatusOK, "reader.html", gin.H{
		"Title":       book.Package.Metadata.Title,
		"Book":        book.ID,
		"Chapter":     chapter.RelativePath,
		"ChapterID":   chapter.ID,
		"Lang":        lang,
		"Paragraphs":  records,
		"Chapters":    book.Chapters,
		"ResumeIndex": resumeIndex,
	})
}

func (s *Server) handleGetChapters(c *gin.Context) {
	id := c.Param("book")
	book, exists := s.book(id)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}

	var chapters []gin.H
	for _, chapter := range book.Chapters {
		chapters = append(chapters, gin.H{
			"id":            chapter.ID,
			"title":         chapter.Title,
			"relative_path": chapter.RelativePath,
			"order":         chapter.Order,
			"word_count":    chapter.WordCount,
			"is_translated": chapter.IsTranslated,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"book":     book.ID,
		"title":    book.Package.Metadata.Title,
		"language": book.SourceLang,
		"chapters": chapters,
	})
}

func (s *Server) handleGetParagraphs(c *gin.Context) {
	id := c.Param("book")
	book, exists := s.book(id)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}

	chapter, ok := chapterByPath(book, c.Query("chapter"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Chapter not found"})
		return
	}

	lang := c.Query("lang")
	if lang != "" {
		if err := translation.ValidateLanguageCode(lang); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid language code"})
			return
		}
	}
	records, err := s.epubParser.Paragraphs(s.chapterFilePath(book, chapter, lang))
	if err != nil {
		s.logger.Errorf("Failed to read chapter %s: %v", chapter.RelativePath, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read chapter"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"book":       book.ID,
		"chapter":    chapter.RelativePath,
		"paragraphs": records,
	})
}

func (s *Server) handleGetProgress(c *gin.Context) {
	id := c.Param("book")
	if _, exists := s.book(id); !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}

	progress, err := s.store.GetProgress(c.Request.Context(), id)
	if err != nil {
		s.logger.Errorf("Failed to load progress for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load progress"})
		return
	}
	if progress == nil {
		c.JSON(http.StatusOK, gin.H{"book": id, "last_chapter": "", "last_paragraph": 0})
		return
	}

	c.JSON(http.StatusOK, progress)
}

func (s *Server) handleSaveProgress(c *gin.Context) {
	var request struct {
		Book         string `json:"book" binding:"required"`
		Chapter      string `json:"chapter" binding:"required"`
		ParagraphIdx *int   `json:"paragraph_index" binding:"required"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, exists := s.book(request.Book)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}
	if _, ok := chapterByPath(book, request.Chapter); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Chapter not found"})
		return
	}
	if *request.ParagraphIdx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Paragraph index must not be negative"})
		return
	}

	err := s.store.SetProgress(c.Request.Context(), storage.Progress{
		Book:          request.Book,
		LastChapter:   request.Chapter,
		LastParagraph: *request.ParagraphIdx,
	})
	if err != nil {
		s.logger.Errorf("Failed to save progress for %s: %v", request.Book, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save progress"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Progress saved"})
}
