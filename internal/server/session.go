package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/falazar/bookworm-languages/internal/player"
	"github.com/falazar/bookworm-languages/internal/storage"
	"github.com/falazar/bookworm-languages/internal/translation"
)

// playerCommand goes to the reader page. The page is a dumb speech
// terminal: it synthesizes what it is told and reports back; all
// playback state lives server-side in the controller.
type playerCommand struct {
	Type      string            `json:"type"`
	Utterance *player.Utterance `json:"utterance,omitempty"`
	Index     int               `json:"index,omitempty"`
	Status    *player.Snapshot  `json:"status,omitempty"`
}

// playerAction comes from the reader page: user actions, engine
// events, and engine state reports.
type playerAction struct {
	Type     string  `json:"type"`
	Index    int     `json:"index"`
	QueuePos int     `json:"queue_pos"`
	Event    string  `json:"event"`
	Value    string  `json:"value"`
	Lang     string  `json:"lang"`
	Rate     float64 `json:"rate"`
	Speaking bool    `json:"speaking"`
	Paused   bool    `json:"paused"`
}

// wsEngine drives the page's speech synthesis over the session socket.
// Speaking/Paused reflect the page's latest state report, which is what
// the resume verification checks.
type wsEngine struct {
	session *playerSession

	mu       sync.Mutex
	speaking bool
	paused   bool
}

func (e *wsEngine) Speak(u player.Utterance) {
	e.mu.Lock()
	e.speaking = true
	e.paused = false
	e.mu.Unlock()
	e.session.send(playerCommand{Type: "speak", Utterance: &u})
}

func (e *wsEngine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.session.send(playerCommand{Type: "pause"})
}

func (e *wsEngine) Resume() {
	e.session.send(playerCommand{Type: "resume"})
}

func (e *wsEngine) Cancel() {
	e.mu.Lock()
	e.speaking = false
	e.paused = false
	e.mu.Unlock()
	e.session.send(playerCommand{Type: "cancel"})
}

func (e *wsEngine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

func (e *wsEngine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *wsEngine) report(speaking, paused bool) {
	e.mu.Lock()
	e.speaking = speaking
	e.paused = paused
	e.mu.Unlock()
}

// wsWakeLock asks the page to hold a screen wake lock. The page
// swallows denial; the server never learns whether it held.
type wsWakeLock struct {
	session *playerSession
}

func (w *wsWakeLock) Acquire() error {
	w.session.send(playerCommand{Type: "wake_lock_acquire"})
	return nil
}

func (w *wsWakeLock) Release() {
	w.session.send(playerCommand{Type: "wake_lock_release"})
}

// playerSession is one reader page's playback connection. It owns a
// controller for the chapter being read and relays between the page
// and the controller until the socket closes.
type playerSession struct {
	conn    *websocket.Conn
	ctrl    *player.Controller
	engine  *wsEngine
	logger  *logrus.Logger
	book    string
	chapter string

	writeMu sync.Mutex
}

func (ps *playerSession) send(cmd playerCommand) {
	ps.writeMu.Lock()
	defer ps.writeMu.Unlock()
	if err := ps.conn.WriteJSON(cmd); err != nil {
		ps.logger.Debugf("Player session write failed: %v", err)
	}
}

func (ps *playerSession) sendStatus() {
	status := ps.ctrl.Status()
	ps.send(playerCommand{Type: "status", Status: &status})
}

func (s *Server) handlePlayerSocket(c *gin.Context) {
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

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Errorf("Failed to upgrade player socket: %v", err)
		return
	}

	session := &playerSession{
		conn:    conn,
		logger:  s.logger,
		book:    book.ID,
		chapter: chapter.RelativePath,
	}
	session.engine = &wsEngine{session: session}
	session.ctrl = player.NewController(session.engine, &wsWakeLock{session: session}, s.logger)
	session.ctrl.SetRecords(records)

	session.ctrl.OnPersist(func(nextIndex int) {
		err := s.store.SetProgress(context.Background(), storage.Progress{
			Book:          session.book,
			LastChapter:   session.chapter,
			LastParagraph: nextIndex,
		})
		if err != nil {
			s.logger.Errorf("Failed to persist progress for %s: %v", session.book, err)
		}
	})
	session.ctrl.OnHighlight(func(originalIndex int) {
		session.send(playerCommand{Type: "highlight", Index: originalIndex})
	})
	session.ctrl.OnClearHighlight(func() {
		session.send(playerCommand{Type: "clear_highlight"})
	})

	s.logger.Debugf("Player session opened: %s / %s", session.book, session.chapter)
	go session.readLoop()
}

func (ps *playerSession) readLoop() {
	defer func() {
		ps.ctrl.Stop()
		_ = ps.conn.Close()
		ps.logger.Debugf("Player session closed: %s / %s", ps.book, ps.chapter)
	}()

	for {
		_, data, err := ps.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ps.logger.Debugf("Player session error: %v", err)
			}
			return
		}

		var action playerAction
		if err := json.Unmarshal(data, &action); err != nil {
			ps.logger.Warnf("Bad player action: %v", err)
			continue
		}

		ps.dispatch(action)
	}
}

func (ps *playerSession) dispatch(action playerAction) {
	switch action.Type {
	case "play":
		ps.ctrl.Play(action.Index)
	case "pause":
		ps.ctrl.Pause()
	case "resume":
		ps.ctrl.Resume()
	case "stop":
		ps.ctrl.Stop()
	case "click":
		ps.ctrl.Click(action.Index)
	case "filter":
		ps.ctrl.SetFilter(player.Filter(action.Value))
	case "rate":
		ps.ctrl.SetRate(action.Lang, action.Rate)
	case "visible":
		ps.ctrl.Reacquire()
	case "engine":
		ps.engine.report(action.Speaking, action.Paused)
		return
	case "event":
		ps.engine.report(action.Speaking, action.Paused)
		ps.ctrl.HandleEvent(player.Event{
			Type:     player.EventType(action.Event),
			QueuePos: action.QueuePos,
		})
	default:
		ps.logger.Warnf("Unknown player action: %s", action.Type)
		return
	}
	ps.sendStatus()
}

var _ player.SpeechEngine = (*wsEngine)(nil)
var _ player.WakeLock = (*wsWakeLock)(nil)
