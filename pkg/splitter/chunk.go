package splitter

import (
	"regexp"
)

// ChunkSplitter divides one chapter's text into embedding-sized chunks.
// Chunking a chapter at or under the single-chunk threshold is the
// orchestrator's decision, not this splitter's.
type ChunkSplitter struct {
	counter TokenCounter
}

// NewChunkSplitter creates a chunk splitter.
func NewChunkSplitter(counter TokenCounter) *ChunkSplitter {
	return &ChunkSplitter{counter: counter}
}

var chunkHeadingRE = regexp.MustCompile(`(?m)^#{2,3}\s+.+$`)

// SplitChapter cuts chapter text into chunks of 300-2048 tokens, ideally
// around 512. Subheadings guide the cut when present; otherwise the text
// splits at paragraph boundaries.
func (s *ChunkSplitter) SplitChapter(text string) []Chunk {
	var pieces []string

	if sections := splitAtPattern("", text, chunkHeadingRE); len(sections) > 1 {
		merged := packChunkSections(sections, s.counter)
		pieces = merged
	} else {
		pieces = splitBySize(text, ChunkIdealTokens, ChunkMaxTokens, s.counter)
	}

	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, Chunk{Texto: p, Ordinal: i})
	}
	return chunks
}

// packChunkSections merges heading sections toward the ideal chunk size
// and resplits any section above the maximum.
func packChunkSections(sections []section, counter TokenCounter) []string {
	bodies := make([]string, 0, len(sections))

	var cur string
	var curTokens int
	flush := func() {
		if cur != "" {
			bodies = append(bodies, cur)
			cur = ""
			curTokens = 0
		}
	}

	for _, s := range sections {
		tokens := counter.TokenCount(s.body, "fast")

		if tokens > ChunkMaxTokens {
			flush()
			bodies = append(bodies, splitBySize(s.body, ChunkIdealTokens, ChunkMaxTokens, counter)...)
			continue
		}

		if curTokens > 0 && curTokens+tokens > ChunkIdealTokens {
			flush()
		}
		if cur != "" {
			cur += "\n\n"
		}
		cur += s.body
		curTokens += tokens
	}
	flush()

	return bodies
}
