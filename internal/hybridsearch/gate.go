package hybridsearch

import "strings"

// knowledgeGapPhrases are the fixed English phrases spec.md §4.6's
// should_retrieve gate treats as evidence the query is asking about past
// context rather than something answerable from the model's own knowledge.
var knowledgeGapPhrases = []string{
	"what did",
	"when did",
	"previously",
	"last time",
	"recall",
	"we discussed",
	"session:",
	"project",
	"memory",
	"context",
}

// ShouldRetrieve is the Self-RAG gate: true when query matches a
// knowledge-gap phrase, or is a sufficiently long question. Deterministic on
// the input.
func ShouldRetrieve(query string) bool {
	lower := strings.ToLower(query)
	for _, phrase := range knowledgeGapPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return strings.HasSuffix(strings.TrimSpace(query), "?") && len(query) > 20
}
