// Package splitter divides normalized Markdown documents into chapters and
// chapters into chunks. Splitters are selected per content type; chapter
// sizes target 4096-16384 tokens and chunk sizes 300-2048 tokens.
package splitter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/acervo-ai/acervo/pkg/models"
)

// Chapter size targets in tokens.
const (
	ChapterMinTokens   = 4096
	ChapterIdealTokens = 8192
	ChapterMaxTokens   = 16384
)

// Chunk size targets in tokens.
const (
	ChunkMinTokens   = 300
	ChunkIdealTokens = 512
	ChunkMaxTokens   = 2048
)

// TokenCounter counts tokens in text for a tokenizer tier. Satisfied by
// the provider pool.
type TokenCounter interface {
	TokenCount(text, tier string) int
}

// Chapter is a split-out section of a document, not yet persisted.
type Chapter struct {
	Title       string
	Conteudo    string
	OrdemDoc    int
	TokensTotal int
}

// Chunk is a split-out piece of one chapter.
type Chunk struct {
	Texto   string
	Ordinal int
}

// Splitter divides a document's Markdown into chapters.
type Splitter interface {
	Split(title, markdown string) ([]Chapter, error)
}

// ForContentType selects the splitter variant for a document's content
// type. Normative types (laws, decrees) split at legal-structural markers,
// wikis at Markdown headings, everything else by the generic strategy.
func ForContentType(ct models.ContentType, counter TokenCounter) Splitter {
	switch {
	case ct.IsNormative():
		return &NormativeSplitter{counter: counter}
	case ct == models.ContentTypeWiki:
		return &WikiSplitter{counter: counter}
	default:
		return &GenericSplitter{counter: counter}
	}
}

var (
	normativeMarkerRE = regexp.MustCompile(`(?mi)^(?:#{1,3}\s*)?(art(?:igo)?\.?\s+\d+|cap[íi]tulo\s+[IVXLC\d]+|t[íi]tulo\s+[IVXLC\d]+|se[çc][ãa]o\s+[IVXLC\d]+|anexo\s+[IVXLC\d]*)`)
	headingRE         = regexp.MustCompile(`(?m)^#{1,2}\s+\S`)
)

// DetectContentType classifies Markdown structure when the uploader did not
// tag the document. Legal-structural markers win over headings.
func DetectContentType(markdown string) models.ContentType {
	if len(normativeMarkerRE.FindAllStringIndex(markdown, 3)) >= 3 {
		return models.ContentTypeLei
	}
	if len(headingRE.FindAllStringIndex(markdown, 2)) >= 2 {
		return models.ContentTypeWiki
	}
	return models.ContentTypeOutros
}

// section is one marker-delimited region of the source document.
type section struct {
	title string
	body  string
}

// splitAtPattern cuts markdown at every line matching re. Content before
// the first match becomes a preamble section with the document title.
func splitAtPattern(title, markdown string, re *regexp.Regexp) []section {
	locs := re.FindAllStringIndex(markdown, -1)
	if len(locs) == 0 {
		return []section{{title: title, body: markdown}}
	}

	sections := make([]section, 0, len(locs)+1)
	if pre := strings.TrimSpace(markdown[:locs[0][0]]); pre != "" {
		sections = append(sections, section{title: title, body: pre})
	}

	for i, loc := range locs {
		end := len(markdown)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(markdown[loc[0]:end])
		if body == "" {
			continue
		}
		sections = append(sections, section{
			title: sectionTitle(markdown[loc[0]:loc[1]]),
			body:  body,
		})
	}

	return sections
}

// sectionTitle normalizes a matched marker line into a chapter title.
func sectionTitle(marker string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(marker), "# "))
}

// packSections merges adjacent sections into chapters targeting the ideal
// token size, and splits any single section that exceeds the maximum.
func packSections(sections []section, counter TokenCounter) []Chapter {
	chapters := make([]Chapter, 0, len(sections))

	var curTitle string
	var curBody strings.Builder
	var curTokens int

	flush := func() {
		body := strings.TrimSpace(curBody.String())
		if body == "" {
			return
		}
		chapters = append(chapters, Chapter{
			Title:       curTitle,
			Conteudo:    body,
			OrdemDoc:    len(chapters),
			TokensTotal: counter.TokenCount(body, "fast"),
		})
		curBody.Reset()
		curTokens = 0
	}

	for _, s := range sections {
		tokens := counter.TokenCount(s.body, "fast")

		if tokens > ChapterMaxTokens {
			flush()
			for _, piece := range splitBySize(s.body, ChapterIdealTokens, ChapterMaxTokens, counter) {
				chapters = append(chapters, Chapter{
					Title:       s.title,
					Conteudo:    piece,
					OrdemDoc:    len(chapters),
					TokensTotal: counter.TokenCount(piece, "fast"),
				})
			}
			continue
		}

		if curTokens > 0 && curTokens+tokens > ChapterIdealTokens {
			flush()
		}
		if curTokens == 0 {
			curTitle = s.title
		} else {
			curBody.WriteString("\n\n")
		}
		curBody.WriteString(s.body)
		curTokens += tokens
	}
	flush()

	return chapters
}

// splitBySize cuts text at paragraph boundaries into pieces near the ideal
// token count, never exceeding max. A single paragraph larger than max is
// cut at the character level as a last resort.
func splitBySize(text string, ideal, max int, counter TokenCounter) []string {
	paragraphs := strings.Split(text, "\n\n")

	var pieces []string
	var cur strings.Builder
	var curTokens int

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			pieces = append(pieces, s)
		}
		cur.Reset()
		curTokens = 0
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tokens := counter.TokenCount(p, "fast")

		if tokens > max {
			flush()
			// ~4 chars per token keeps hard cuts under the cap.
			limit := max * 4
			for len(p) > limit {
				cut := runeBoundary(p, limit)
				pieces = append(pieces, strings.TrimSpace(p[:cut]))
				p = p[cut:]
			}
			if s := strings.TrimSpace(p); s != "" {
				pieces = append(pieces, s)
			}
			continue
		}

		if curTokens > 0 && curTokens+tokens > ideal {
			flush()
		}
		if curTokens > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
		curTokens += tokens
	}
	flush()

	return pieces
}

// runeBoundary backs a byte offset off to the start of the rune it lands
// in, so a hard cut never splits a multi-byte character.
func runeBoundary(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return limit
	}
	return cut
}
