package player

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/falazar/bookworm-languages/internal/epub"
)

// State of the playback controller.
type State string

const (
	StateIdle     State = "idle"
	StateSpeaking State = "speaking"
	StatePaused   State = "paused"
)

// ResumeGrace is how long after a resume request the controller waits
// before checking that the engine actually resumed. Some hosts silently
// drop a paused utterance; the check compensates with a restart.
const ResumeGrace = 180 * time.Millisecond

// maxAdvanceDepth bounds synchronous re-entry of the advance path. An
// engine that fires completion callbacks synchronously in a tight loop
// trips this instead of blowing the stack.
const maxAdvanceDepth = 100

// Controller owns all playback state: the queue, the cursor, and the
// pause flag. Every mutation goes through its methods; the speech
// engine only ever reports back through HandleEvent. Engine calls are
// made outside the lock, so an engine that calls back synchronously
// re-enters cleanly.
type Controller struct {
	engine SpeechEngine
	wake   WakeLock
	logger *logrus.Logger

	mu         sync.Mutex
	records    []epub.ParagraphRecord
	filter     Filter
	queue      []QueueItem
	cursor     int
	state      State
	userPaused bool
	depth      int
	rates      map[string]float64

	persist   func(originalIndex int)
	highlight func(originalIndex int)
	clear     func()

	// after schedules the resume verification; swapped out in tests.
	after func(d time.Duration, fn func())
}

func NewController(engine SpeechEngine, wake WakeLock, logger *logrus.Logger) *Controller {
	if wake == nil {
		wake = NoopWakeLock{}
	}
	return &Controller{
		engine: engine,
		wake:   wake,
		logger: logger,
		filter: FilterBoth,
		cursor: -1,
		state:  StateIdle,
		rates: map[string]float64{
			epub.LangSource: 1.0,
			epub.LangTarget: 1.0,
		},
		after: func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

// OnPersist registers the progress callback, invoked with the next
// paragraph to resume from after each utterance completes.
func (c *Controller) OnPersist(fn func(originalIndex int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persist = fn
}

// OnHighlight registers the highlight callback. Only target-language
// paragraphs ever trigger it.
func (c *Controller) OnHighlight(fn func(originalIndex int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.highlight = fn
}

// OnClearHighlight registers the callback run when playback goes idle.
func (c *Controller) OnClearHighlight(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear = fn
}

// SetRate sets the speech rate used for paragraphs of one language.
func (c *Controller) SetRate(lang string, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rate > 0 {
		c.rates[lang] = rate
	}
}

// SetRecords replaces the chapter's paragraph stream. Navigation stops
// playback: the old queue no longer describes the page.
func (c *Controller) SetRecords(records []epub.ParagraphRecord) {
	c.mu.Lock()
	c.records = records
	c.mu.Unlock()
	c.Stop()
}

// SetFilter changes the visibility filter. The queue structure changes
// underneath the cursor, so playback is cancelled outright rather than
// translating the position.
func (c *Controller) SetFilter(f Filter) {
	if !ValidFilter(f) {
		return
	}
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
	c.Stop()
}

// Play starts speaking at the paragraph with the given original index.
// Any in-flight utterance is cancelled, the queue is rebuilt under the
// current filter, and if the requested paragraph was filtered out
// playback falls back to the top of the queue.
func (c *Controller) Play(fromIndex int) {
	c.engine.Cancel()

	c.mu.Lock()
	c.queue = BuildQueue(c.records, c.filter)
	if len(c.queue) == 0 {
		c.cursor = -1
		c.state = StateIdle
		c.mu.Unlock()
		return
	}
	c.cursor = queuePosition(c.queue, fromIndex)
	c.state = StateSpeaking
	c.userPaused = false
	c.depth = 0
	c.mu.Unlock()

	c.acquireWakeLock()
	c.speakCurrent()
}

// Pause requests an engine pause without touching the cursor. The
// user-initiated flag is what later distinguishes resume from restart.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.state != StateSpeaking {
		c.mu.Unlock()
		return
	}
	c.state = StatePaused
	c.userPaused = true
	c.mu.Unlock()

	c.engine.Pause()
}

// Resume asks the engine to continue and verifies after a grace delay
// that it actually did. A resume the engine silently dropped is
// compensated with a cancel and a replay of the same paragraph.
func (c *Controller) Resume() {
	c.mu.Lock()
	if c.state != StatePaused {
		c.mu.Unlock()
		return
	}
	c.state = StateSpeaking
	c.userPaused = false
	c.mu.Unlock()

	c.acquireWakeLock()
	c.engine.Resume()
	c.after(ResumeGrace, c.verifyResume)
}

func (c *Controller) verifyResume() {
	c.mu.Lock()
	if c.state != StateSpeaking || c.cursor < 0 || c.cursor >= len(c.queue) {
		c.mu.Unlock()
		return
	}
	index := c.queue[c.cursor].OriginalIndex
	c.mu.Unlock()

	if c.engine.Speaking() && !c.engine.Paused() {
		return
	}

	c.logger.Debugf("Resume did not take effect, restarting at paragraph %d", index)
	c.Play(index)
}

// Stop cancels the engine, resets the cursor to idle, clears
// highlighting, and releases the wake lock.
func (c *Controller) Stop() {
	c.engine.Cancel()

	c.mu.Lock()
	c.cursor = -1
	c.state = StateIdle
	c.userPaused = false
	c.depth = 0
	clearFn := c.clear
	c.mu.Unlock()

	if clearFn != nil {
		clearFn()
	}
	c.wake.Release()
}

// Click handles a tap on the paragraph with the given original index:
// on the currently speaking paragraph it toggles pause/resume,
// anywhere else it restarts playback from that paragraph.
func (c *Controller) Click(originalIndex int) {
	c.mu.Lock()
	current := -1
	if c.cursor >= 0 && c.cursor < len(c.queue) {
		current = c.queue[c.cursor].OriginalIndex
	}
	state := c.state
	c.mu.Unlock()

	if current == originalIndex {
		switch state {
		case StateSpeaking:
			c.Pause()
			return
		case StatePaused:
			c.Resume()
			return
		}
	}
	c.Play(originalIndex)
}

// HandleEvent is the engine's report channel. Events carrying a queue
// position other than the cursor come from a cancelled utterance and
// are dropped.
func (c *Controller) HandleEvent(ev Event) {
	c.mu.Lock()
	if c.cursor < 0 || c.cursor >= len(c.queue) || ev.QueuePos != c.cursor {
		c.mu.Unlock()
		return
	}

	switch ev.Type {
	case EventStarted:
		c.mu.Unlock()
		return
	case EventEnded:
		item := c.queue[c.cursor]
		persist := c.persist
		c.mu.Unlock()
		// Progress is written after the paragraph finishes, never
		// before, and points at the next paragraph to resume from.
		if persist != nil {
			persist(item.OriginalIndex + 1)
		}
		c.advance()
	case EventFailed:
		// Advance like a completion but keep the persisted position:
		// a paragraph that failed to render must not become the
		// resume point.
		c.mu.Unlock()
		c.advance()
	default:
		c.mu.Unlock()
	}
}

func (c *Controller) advance() {
	c.mu.Lock()
	c.depth++
	if c.depth > maxAdvanceDepth {
		c.depth = 0
		c.mu.Unlock()
		c.logger.Errorf("Playback advance re-entered more than %d times, halting", maxAdvanceDepth)
		c.Stop()
		return
	}
	c.cursor++
	atEnd := c.cursor >= len(c.queue)
	c.mu.Unlock()

	if atEnd {
		c.Stop()
		return
	}

	c.speakCurrent()

	c.mu.Lock()
	if c.depth > 0 {
		c.depth--
	}
	c.mu.Unlock()
}

func (c *Controller) speakCurrent() {
	c.mu.Lock()
	if c.cursor < 0 || c.cursor >= len(c.queue) {
		c.mu.Unlock()
		return
	}
	item := c.queue[c.cursor]
	pos := c.cursor
	rate := c.rates[item.Lang]
	if rate == 0 {
		rate = 1.0
	}
	highlight := c.highlight
	c.mu.Unlock()

	// Source paragraphs are spoken but never highlighted: they echo
	// content the previous highlight already showed.
	if item.Lang == epub.LangTarget && highlight != nil {
		highlight(item.OriginalIndex)
	}

	c.engine.Speak(Utterance{
		QueuePos: pos,
		Text:     item.Text,
		Lang:     item.Lang,
		Rate:     rate,
	})
}

func (c *Controller) acquireWakeLock() {
	if err := c.wake.Acquire(); err != nil {
		c.logger.Debugf("Wake lock unavailable: %v", err)
	}
}

// Reacquire restores the wake lock after the host revoked it, typically
// on a visibility change. Best effort, and only while playing.
func (c *Controller) Reacquire() {
	c.mu.Lock()
	active := c.state == StateSpeaking
	c.mu.Unlock()
	if active {
		c.acquireWakeLock()
	}
}

// Snapshot is the controller's externally visible position.
type Snapshot struct {
	State         State  `json:"state"`
	Filter        Filter `json:"filter"`
	QueueLength   int    `json:"queue_length"`
	QueuePos      int    `json:"queue_pos"`
	OriginalIndex int    `json:"original_index"`
}

// Status reports the current playback position. OriginalIndex is -1
// when idle.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:         c.state,
		Filter:        c.filter,
		QueueLength:   len(c.queue),
		QueuePos:      c.cursor,
		OriginalIndex: -1,
	}
	if c.cursor >= 0 && c.cursor < len(c.queue) {
		snap.OriginalIndex = c.queue[c.cursor].OriginalIndex
	}
	return snap
}
