package translation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/falazar/bookworm-languages/internal/epub"
)

// WebSocketBroadcaster pushes run progress to connected clients.
type WebSocketBroadcaster interface {
	BroadcastMessage(msgType interface{}, data interface{})
	BroadcastLog(level, message, module string)
}

// RunProgress is the externally visible state of a book translation
// run.
type RunProgress struct {
	RunID          string    `json:"run_id"`
	Book           string    `json:"book"`
	SourceLanguage string    `json:"source_language"`
	TargetLanguage string    `json:"target_language"`
	TotalFiles     int       `json:"total_files"`
	CompletedFiles int       `json:"completed_files"`
	CurrentFile    string    `json:"current_file"`
	Status         string    `json:"status"`
	OutputPath     string    `json:"output_path,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// Service owns translation runs: one at a time across all books (the
// provider is rate sensitive, so queued books wait their turn),
// progress queryable and broadcast over the websocket hub.
type Service struct {
	orchestrator *Orchestrator
	logger       *logrus.Logger
	wsHub        WebSocketBroadcaster

	// runMu serializes orchestrator runs across books.
	runMu sync.Mutex

	progressMu sync.RWMutex
	progress   map[string]*RunProgress
}

func NewService(orchestrator *Orchestrator, logger *logrus.Logger, wsHub WebSocketBroadcaster) *Service {
	s := &Service{
		orchestrator: orchestrator,
		logger:       logger,
		wsHub:        wsHub,
		progress:     make(map[string]*RunProgress),
	}

	orchestrator.SetFileCallback(func(book, file string, index, total int, result FileResult) {
		s.progressMu.Lock()
		if p, exists := s.progress[book]; exists {
			p.CurrentFile = file
			p.CompletedFiles = index
			p.TotalFiles = total
		}
		s.progressMu.Unlock()
		s.broadcastRunning(book, file, index, total, result)
	})

	return s
}

// Start launches a translation run for the book. A second Start while
// a run is in progress for the same book is rejected.
func (s *Service) Start(book *epub.Book, sourceLang, targetLang, outputDir string) error {
	if err := ValidateLanguageCode(targetLang); err != nil {
		return err
	}
	if sourceLang == targetLang {
		return fmt.Errorf("source and target languages are the same")
	}

	s.progressMu.Lock()
	if p, exists := s.progress[book.ID]; exists && (p.Status == "queued" || p.Status == "in_progress") {
		s.progressMu.Unlock()
		return fmt.Errorf("translation already in progress for %s", book.ID)
	}
	progress := &RunProgress{
		RunID:          uuid.NewString(),
		Book:           book.ID,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		Status:         "queued",
		StartedAt:      time.Now(),
	}
	s.progress[book.ID] = progress
	s.progressMu.Unlock()

	go func() {
		// One orchestrator run at a time, across all books. The
		// provider bans sessions that issue parallel requests.
		s.runMu.Lock()
		defer s.runMu.Unlock()

		s.progressMu.Lock()
		progress.Status = "in_progress"
		s.progressMu.Unlock()

		outputPath, err := s.orchestrator.Run(context.Background(), book, sourceLang, targetLang, outputDir)

		s.progressMu.Lock()
		progress.CompletedAt = time.Now()
		progress.OutputPath = outputPath
		if err != nil {
			// A partial artifact may still exist: repackaging always
			// runs before the error is raised.
			s.logger.Errorf("Translation run for %s failed: %v", book.ID, err)
			progress.Status = "failed"
			progress.ErrorMessage = err.Error()
		} else {
			s.logger.Infof("Translation run for %s completed", book.ID)
			progress.Status = "completed"
		}
		snapshot := *progress
		s.progressMu.Unlock()

		s.broadcastFinished(snapshot)
	}()

	return nil
}

func (s *Service) Progress(book string) *RunProgress {
	s.progressMu.RLock()
	defer s.progressMu.RUnlock()

	if p, exists := s.progress[book]; exists {
		snapshot := *p
		return &snapshot
	}
	return nil
}

func (s *Service) ClearProgress(book string) {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	delete(s.progress, book)
}

func (s *Service) broadcastRunning(book, file string, index, total int, result FileResult) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.BroadcastMessage("translation_progress", map[string]interface{}{
		"book":            book,
		"current_file":    file,
		"completed_files": index,
		"total_files":     total,
		"result":          string(result),
	})
	s.wsHub.BroadcastLog("info", fmt.Sprintf("Chapter file %s %s (%d/%d)", file, result, index, total), "translation")
}

func (s *Service) broadcastFinished(p RunProgress) {
	if s.wsHub == nil {
		return
	}
	if p.Status == "completed" {
		s.wsHub.BroadcastMessage("translation_complete", p)
		s.wsHub.BroadcastLog("info", fmt.Sprintf("Bilingual EPUB ready for %s", p.Book), "translation")
		return
	}
	s.wsHub.BroadcastMessage("translation_error", p)
	s.wsHub.BroadcastLog("error", fmt.Sprintf("Translation failed for %s: %s", p.Book, p.ErrorMessage), "translation")
}
