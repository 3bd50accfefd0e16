package search

import "sort"

// SortResults sorts results by score (descending), then by row index (ascending).
func SortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].Index < results[j].Index
		}
		return results[i].Score > results[j].Score
	})
}
