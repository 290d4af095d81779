package player

import "github.com/falazar/bookworm-languages/internal/epub"

// Filter selects which language's paragraphs are eligible for speech.
type Filter string

const (
	FilterBoth   Filter = "both"
	FilterSource Filter = "source"
	FilterTarget Filter = "target"
)

// ValidFilter reports whether f is one of the known visibility filters.
func ValidFilter(f Filter) bool {
	switch f {
	case FilterBoth, FilterSource, FilterTarget:
		return true
	}
	return false
}

// QueueItem is one speakable paragraph. OriginalIndex refers back to
// the unfiltered paragraph stream, so progress persistence and
// highlighting stay correct under any filter.
type QueueItem struct {
	Text          string `json:"text"`
	Lang          string `json:"lang"`
	OriginalIndex int    `json:"original_index"`
}

// BuildQueue flattens a chapter's paragraph stream into the playback
// queue under the given filter. The queue is rebuilt on every play
// action and never mutated mid-playback.
func BuildQueue(records []epub.ParagraphRecord, filter Filter) []QueueItem {
	var queue []QueueItem
	for _, rec := range records {
		switch filter {
		case FilterSource:
			if rec.Lang != epub.LangSource {
				continue
			}
		case FilterTarget:
			if rec.Lang != epub.LangTarget {
				continue
			}
		}
		queue = append(queue, QueueItem{
			Text:          rec.Text,
			Lang:          rec.Lang,
			OriginalIndex: rec.Index,
		})
	}
	return queue
}

// queuePosition returns the queue position whose OriginalIndex matches,
// falling back to 0 when the paragraph was filtered out.
func queuePosition(queue []QueueItem, originalIndex int) int {
	for i, item := range queue {
		if item.OriginalIndex == originalIndex {
			return i
		}
	}
	return 0
}
