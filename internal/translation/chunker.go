package translation

import "strings"

// DefaultChunkLimit is the byte ceiling for one translation request.
// The web provider carries the whole request in the URL, so this
// tracks the longest URL the endpoint reliably accepts.
const DefaultChunkLimit = 4700

// Chunk is a line-bounded slice of a chapter's markup. Lines are held
// verbatim; joining all chunks' lines in order reproduces the input.
type Chunk struct {
	Lines     []string
	StartLine int
	EndLine   int // exclusive
}

// Text returns the chunk's markup fragment.
func (c Chunk) Text() string {
	return strings.Join(c.Lines, "\n")
}

// ByteSize is the chunk's request cost: each line plus its newline.
func (c Chunk) ByteSize() int {
	n := 0
	for _, line := range c.Lines {
		n += len(line) + 1
	}
	return n
}

// SplitLines greedily packs whole lines into chunks of at most limit
// bytes. A chunk is closed as soon as the next line would not fit, even
// if under-full. A single line longer than limit is never split: it
// goes whole into its own chunk, which then exceeds the limit. Strictly
// one pass, no lookahead. Empty input yields no chunks.
func SplitLines(markup string, limit int) []Chunk {
	if markup == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultChunkLimit
	}

	lines := strings.Split(markup, "\n")

	var chunks []Chunk
	var current []string
	currentSize := 0
	start := 0

	flush := func(end int) {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk{Lines: current, StartLine: start, EndLine: end})
		current = nil
		currentSize = 0
	}

	for i, line := range lines {
		cost := len(line) + 1
		if currentSize > 0 && currentSize+cost > limit {
			flush(i)
			start = i
		}
		current = append(current, line)
		currentSize += cost
	}
	flush(len(lines))

	return chunks
}
