// Package chunker splits document text into overlapping passages sized for
// an embedding model.
//
// Text is first cut into sections at heading lines, then each section's
// words are windowed with a fixed overlap. Windows end on the best natural
// break found near the preferred end: a paragraph boundary, then a sentence
// end followed by a capitalised word, then a list introducer, then a heading
// token. A final validation pass drops fragments and folds small chunks into
// their predecessor.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/bull/knowledge-rag/internal/storage"
)

const (
	DefaultMaxChunkSize     = 1000 // words per window
	DefaultMinChunkSize     = 200  // words below which a chunk is merged
	DefaultOverlapSize      = 100  // words shared by consecutive windows
	DefaultMinContentLength = 50   // characters below which a chunk is dropped

	// minBreakWords bounds how far back the natural break search may go.
	minBreakWords = 50
	// mergeFloorWords is the size at or below which small chunks stay standalone.
	mergeFloorWords = 10
)

// Chunk is one passage of a document.
type Chunk struct {
	ID         string // "<documentID>_chunk_<index>"
	DocumentID string
	Index      int    // Ordinal across the whole document
	Section    string // Title of the section, empty if untitled
	Content    string // "<section>\n\n<words>" or just the words
	WordCount  int

	start, end int // word offsets inside the section
}

// Chunker is safe for concurrent use; it holds configuration only.
type Chunker struct {
	maxChunkSize     int
	minChunkSize     int
	overlapSize      int
	minContentLength int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxChunkSize sets the window size in words.
func WithMaxChunkSize(n int) Option {
	return func(c *Chunker) { c.maxChunkSize = n }
}

// WithMinChunkSize sets the word count below which chunks are merged.
func WithMinChunkSize(n int) Option {
	return func(c *Chunker) { c.minChunkSize = n }
}

// WithOverlap sets the number of words shared by consecutive windows.
func WithOverlap(n int) Option {
	return func(c *Chunker) { c.overlapSize = n }
}

// WithMinContentLength sets the character count below which chunks are
// dropped. Zero keeps every chunk.
func WithMinContentLength(n int) Option {
	return func(c *Chunker) { c.minContentLength = n }
}

// New creates a Chunker with the defaults overridden by opts.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxChunkSize:     DefaultMaxChunkSize,
		minChunkSize:     DefaultMinChunkSize,
		overlapSize:      DefaultOverlapSize,
		minContentLength: DefaultMinContentLength,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.maxChunkSize < 1 {
		c.maxChunkSize = DefaultMaxChunkSize
	}
	if c.overlapSize < 0 {
		c.overlapSize = 0
	}
	if c.overlapSize >= c.maxChunkSize {
		c.overlapSize = c.maxChunkSize - 1
	}
	if c.minChunkSize < 0 {
		c.minChunkSize = 0
	}
	if c.minContentLength < 0 {
		c.minContentLength = 0
	}
	return c
}

// MaxChunkSize returns the configured window size in words.
func (c *Chunker) MaxChunkSize() int { return c.maxChunkSize }

// Chunk splits text into validated chunks. The result is deterministic and
// empty for blank text.
func (c *Chunker) Chunk(text, documentID string) []Chunk {
	return c.validate(c.Windows(text, documentID))
}

// Windows runs sectioning and windowing without the validation pass.
func (c *Chunker) Windows(text, documentID string) []Chunk {
	var (
		chunks []Chunk
		index  int
	)
	for _, sec := range splitSections(text) {
		words, paraEnd := tokenize(sec.lines)
		for _, span := range c.window(words, paraEnd) {
			body := strings.Join(words[span[0]:span[1]], " ")
			content := body
			if sec.title != "" {
				content = sec.title + "\n\n" + body
			}
			chunks = append(chunks, Chunk{
				ID:         storage.ChunkID(documentID, index),
				DocumentID: documentID,
				Index:      index,
				Section:    sec.title,
				Content:    content,
				WordCount:  span[1] - span[0],
				start:      span[0],
				end:        span[1],
			})
			index++
		}
	}
	return chunks
}

// window returns [start, end) word spans covering words.
func (c *Chunker) window(words []string, paraEnd []bool) [][2]int {
	n := len(words)
	var spans [][2]int
	for start := 0; start < n; {
		end := start + c.maxChunkSize
		if end >= n {
			end = n
		} else {
			end = c.findBreak(words, paraEnd, start, end)
		}
		spans = append(spans, [2]int{start, end})
		if end >= n {
			break
		}
		start = max(start+1, end-c.overlapSize)
	}
	return spans
}

// findBreak searches backward from preferred for the end of a window
// starting at start. The search never goes below the point where the next
// window would lose its overlap.
func (c *Chunker) findBreak(words []string, paraEnd []bool, start, preferred int) int {
	floor := start + max(minBreakWords, c.overlapSize+1)
	if floor >= preferred {
		return preferred
	}

	scan := func(match func(e int) bool) (int, bool) {
		for e := preferred; e >= floor; e-- {
			if match(e) {
				return e, true
			}
		}
		return 0, false
	}

	candidates := []func(e int) bool{
		func(e int) bool { return paraEnd[e-1] },
		func(e int) bool { return isSentenceEnd(words[e-1]) && startsUpper(words[e]) },
		func(e int) bool { return isListIntroducer(words[e-1], words[e]) },
		func(e int) bool { return isHeadingToken(words[e], nextWord(words, e)) },
		func(e int) bool { return isSentenceEnd(words[e-1]) },
	}
	for _, match := range candidates {
		if e, ok := scan(match); ok {
			return e
		}
	}
	return preferred
}

func nextWord(words []string, i int) string {
	if i+1 < len(words) {
		return words[i+1]
	}
	return ""
}

// validate drops short chunks and folds small ones into the previous kept
// chunk when the combined word count stays within the window size.
func (c *Chunker) validate(chunks []Chunk) []Chunk {
	out := make([]Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if utf8.RuneCountInString(strings.TrimSpace(ch.Content)) < c.minContentLength {
			continue
		}
		if ch.WordCount > mergeFloorWords && ch.WordCount < c.minChunkSize && len(out) > 0 {
			prev := &out[len(out)-1]
			if prev.WordCount+ch.WordCount <= c.maxChunkSize {
				prev.Content += "\n\n" + ch.Content
				prev.WordCount += ch.WordCount
				continue
			}
		}
		out = append(out, ch)
	}
	return out
}

type section struct {
	title string
	lines []string
}

// splitSections cuts text at heading lines. Sections without body text are
// dropped.
func splitSections(text string) []section {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var (
		sections []section
		current  section
	)
	flush := func() {
		for _, l := range current.lines {
			if strings.TrimSpace(l) != "" {
				sections = append(sections, current)
				break
			}
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if title, ok := headingTitle(line); ok {
			flush()
			current = section{title: title}
			continue
		}
		current.lines = append(current.lines, line)
	}
	flush()
	return sections
}

// tokenize splits lines into words and flags the last word of every
// blank-line separated paragraph.
func tokenize(lines []string) ([]string, []bool) {
	var (
		words   []string
		paraEnd []bool
	)
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			if len(paraEnd) > 0 {
				paraEnd[len(paraEnd)-1] = true
			}
			continue
		}
		for _, w := range fields {
			words = append(words, w)
			paraEnd = append(paraEnd, false)
		}
	}
	return words, paraEnd
}
