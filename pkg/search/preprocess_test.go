package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "plain terms untouched",
			query: "licitação pregão eletrônico",
			want:  "licitação pregão eletrônico",
		},
		{
			name:  "AND collapses to implicit conjunction",
			query: "licitação AND pregão",
			want:  "licitação pregão",
		},
		{
			name:  "NOT becomes exclusion prefix",
			query: "contrato NOT aditivo",
			want:  "contrato -aditivo",
		},
		{
			name:  "phrase quotes preserved",
			query: `"dispensa de licitação" valor`,
			want:  `"dispensa de licitação" valor`,
		},
		{
			name:  "tsquery punctuation stripped",
			query: "cafe & leite | (acucar) !sal",
			want:  "cafe leite acucar sal",
		},
		{
			name:  "trailing NOT dropped",
			query: "contrato NOT",
			want:  "contrato",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuery(tt.query))
		})
	}
}

func TestExpandToOr(t *testing.T) {
	tests := []struct {
		name    string
		tsquery string
		want    string
	}{
		{
			name:    "conjunctions relax to disjunctions",
			tsquery: "'cafe' & 'leit'",
			want:    "'cafe' | 'leit'",
		},
		{
			name:    "exclusions keep their conjunction",
			tsquery: "'contrat' & !'aditiv'",
			want:    "'contrat' & !'aditiv'",
		},
		{
			name:    "mixed expansion",
			tsquery: "'cafe' & 'leit' & !'sal' & 'acucar'",
			want:    "'cafe' | 'leit' & !'sal' | 'acucar'",
		},
		{
			name:    "phrase operator preserved",
			tsquery: "'dispens' <-> 'licitac' & 'valor'",
			want:    "'dispens' <-> 'licitac' | 'valor'",
		},
		{
			name:    "single term untouched",
			tsquery: "'pregao'",
			want:    "'pregao'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandToOr(tt.tsquery))
		})
	}
}

func TestCheckWeights(t *testing.T) {
	assert.NoError(t, checkWeights(0.5, 0.5))
	assert.NoError(t, checkWeights(0.7, 0.3))
	assert.NoError(t, checkWeights(1.0, 0.0))
	assert.Error(t, checkWeights(0.5, 0.6))
	assert.Error(t, checkWeights(0.0, 0.0))
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, normalizeLimit(0))
	assert.Equal(t, DefaultLimit, normalizeLimit(-1))
	assert.Equal(t, 25, normalizeLimit(25))
}
