package splitter

import (
	"fmt"
	"regexp"
)

// NormativeSplitter splits legal documents (laws, decrees, normative
// instructions) at their structural markers. Higher-level divisions win:
// a document organized in capítulos splits there, not at every artigo.
type NormativeSplitter struct {
	counter TokenCounter
}

var normativeLevels = []*regexp.Regexp{
	regexp.MustCompile(`(?mi)^(?:#{1,3}\s*)?t[íi]tulo\s+[IVXLC\d]+.*$`),
	regexp.MustCompile(`(?mi)^(?:#{1,3}\s*)?cap[íi]tulo\s+[IVXLC\d]+.*$`),
	regexp.MustCompile(`(?mi)^(?:#{1,3}\s*)?se[çc][ãa]o\s+[IVXLC\d]+.*$`),
	regexp.MustCompile(`(?mi)^(?:#{1,3}\s*)?art(?:igo)?\.?\s+\d+.*$`),
}

// Split divides the document at the highest structural level that yields
// more than one section, then packs sections into chapter-sized pieces.
func (s *NormativeSplitter) Split(title, markdown string) ([]Chapter, error) {
	if markdown == "" {
		return nil, fmt.Errorf("empty document content")
	}

	sections := []section{{title: title, body: markdown}}
	for _, re := range normativeLevels {
		if cand := splitAtPattern(title, markdown, re); len(cand) > 1 {
			sections = cand
			break
		}
	}

	return packSections(sections, s.counter), nil
}
