// Package search implements hybrid retrieval: semantic ranking over
// pgvector distances, textual ranking over tsvector matches, and
// reciprocal-rank fusion of the two.
package search

import (
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"
)

// tsqueryLanguage is the text-search configuration for this deployment.
const tsqueryLanguage = "portuguese"

var unsupportedPunctRE = regexp.MustCompile(`[&|!()<>:*\\]`)

// NormalizeQuery maps user-visible operators onto websearch syntax and
// strips punctuation that would break tsquery parsing. Phrase quotes and
// exclusion prefixes are preserved.
func NormalizeQuery(query string) string {
	q := unsupportedPunctRE.ReplaceAllString(query, " ")

	// Word operators: AND is websearch's implicit conjunction, NOT becomes
	// the exclusion prefix.
	fields := strings.Fields(q)
	out := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "AND":
			// implicit
		case "NOT":
			if i+1 < len(fields) {
				out = append(out, "-"+fields[i+1])
				i++
			}
		default:
			out = append(out, fields[i])
		}
	}
	return strings.Join(out, " ")
}

// PrepareTsquery turns a raw user query into the final tsquery string: the
// database's websearch parser produces a conjunctive tsquery, then the
// conjunctions are relaxed into disjunctions for recall. The result must
// be bound as `?::tsquery` in SQL and never reparsed by to_tsquery.
func PrepareTsquery(db *gorm.DB, query string) (string, error) {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return "", fmt.Errorf("empty query after normalization")
	}

	var tsquery string
	err := db.Raw(
		"SELECT websearch_to_tsquery(?, ?)::text",
		tsqueryLanguage, normalized,
	).Scan(&tsquery).Error
	if err != nil {
		return "", fmt.Errorf("tsquery parsing failed: %w", err)
	}
	if tsquery == "" {
		return "", fmt.Errorf("query %q produced an empty tsquery", query)
	}

	return ExpandToOr(tsquery), nil
}

// orPlaceholder temporarily protects exclusion conjunctions during the
// global AND-to-OR rewrite. The rune cannot appear in tsquery output.
const orPlaceholder = "\x00&!\x00"

// ExpandToOr relaxes a conjunctive tsquery into a disjunctive one:
// every ` & ` becomes ` | `, except conjunctions that introduce an
// exclusion (` & !`), which keep their meaning. The phrase operator `<->`
// is untouched. ts_rank_cd still ranks rows matching more terms higher.
func ExpandToOr(tsquery string) string {
	protected := strings.ReplaceAll(tsquery, " & !", orPlaceholder)
	expanded := strings.ReplaceAll(protected, " & ", " | ")
	return strings.ReplaceAll(expanded, orPlaceholder, " & !")
}
