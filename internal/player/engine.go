package player

// Utterance is one queue item handed to the speech engine. QueuePos
// tags the utterance so completion events can be matched against the
// cursor; a stale event from a cancelled utterance is ignored.
type Utterance struct {
	QueuePos int     `json:"queue_pos"`
	Text     string  `json:"text"`
	Lang     string  `json:"lang"`
	Rate     float64 `json:"rate"`
}

// SpeechEngine is the host synthesis surface the controller drives.
// Speak is asynchronous: the engine reports back through the
// controller's HandleEvent with the utterance's queue position.
type SpeechEngine interface {
	Speak(u Utterance)
	Pause()
	Resume()
	Cancel()
	Speaking() bool
	Paused() bool
}

// WakeLock keeps the host display awake during playback. It is a
// best-effort resource: acquisition failures are logged and swallowed,
// never surfaced.
type WakeLock interface {
	Acquire() error
	Release()
}

// NoopWakeLock is the fallback when the host offers no wake lock.
type NoopWakeLock struct{}

func (NoopWakeLock) Acquire() error { return nil }
func (NoopWakeLock) Release()       {}
