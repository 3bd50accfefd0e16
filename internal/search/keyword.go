package search

import (
	"strings"
)

// Keyword returns the rows whose text contains every query token,
// case-insensitively (AND semantics), in row order.
func Keyword(texts []string, query string, limit int) []Result {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return []Result{}
	}

	out := []Result{}
	for i, s := range texts {
		blob := strings.ToLower(s)
		ok := true
		for _, tok := range tokens {
			if !strings.Contains(blob, tok) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		out = append(out, Result{Index: i, Score: 1, Why: "keyword"})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func tokenize(q string) []string {
	parts := strings.Fields(q)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.ToLower(p))
	}
	return out
}
