package splitter

import (
	"fmt"
	"regexp"
)

// WikiSplitter splits wiki-style documents at top-level Markdown headings.
type WikiSplitter struct {
	counter TokenCounter
}

var wikiHeadingRE = regexp.MustCompile(`(?m)^#{1,2}\s+.+$`)

// Split divides the document at # and ## headings, then packs the
// resulting sections into chapter-sized pieces.
func (s *WikiSplitter) Split(title, markdown string) ([]Chapter, error) {
	if markdown == "" {
		return nil, fmt.Errorf("empty document content")
	}

	sections := splitAtPattern(title, markdown, wikiHeadingRE)
	return packSections(sections, s.counter), nil
}
