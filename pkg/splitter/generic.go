package splitter

import (
	"fmt"
)

// GenericSplitter handles documents with no known structure. It tries a
// heading-based split first and falls back to size-based splitting when
// headings are too sparse to divide the document.
type GenericSplitter struct {
	counter TokenCounter
}

// Split divides the document at headings when at least two exist,
// otherwise cuts it into chapter-sized pieces at paragraph boundaries.
func (s *GenericSplitter) Split(title, markdown string) ([]Chapter, error) {
	if markdown == "" {
		return nil, fmt.Errorf("empty document content")
	}

	if sections := splitAtPattern(title, markdown, wikiHeadingRE); len(sections) > 1 {
		return packSections(sections, s.counter), nil
	}

	pieces := splitBySize(markdown, ChapterIdealTokens, ChapterMaxTokens, s.counter)
	chapters := make([]Chapter, 0, len(pieces))
	for i, piece := range pieces {
		chapters = append(chapters, Chapter{
			Title:       title,
			Conteudo:    piece,
			OrdemDoc:    i,
			TokensTotal: s.counter.TokenCount(piece, "fast"),
		})
	}
	return chapters, nil
}
