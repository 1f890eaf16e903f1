package research

import "strings"

// MergeSections folds section updates into an existing ordered collection.
// An update whose title matches an existing section replaces that entry in
// place, preserving the original position; unknown titles are appended in
// update order. The operation is idempotent and last-applied-wins by title,
// so concurrent researcher outputs can be folded in any arrival order as
// long as the caller serializes the fold itself (the workflow goroutine is
// the single writer).
func MergeSections(existing []Section, updates []Section) []Section {
	if len(updates) == 0 {
		return existing
	}

	index := make(map[string]int, len(existing))
	for i, s := range existing {
		index[s.Title] = i
	}

	out := make([]Section, len(existing))
	copy(out, existing)

	for _, u := range updates {
		if i, ok := index[u.Title]; ok {
			out[i] = u
			continue
		}
		index[u.Title] = len(out)
		out = append(out, u)
	}
	return out
}

// ConsolidateSources flattens every section's source list into one deduplicated
// list ordered by first appearance. Comparison is case-insensitive on the
// trimmed value; the first spelling seen is the one kept.
func ConsolidateSources(sections []Section) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range sections {
		for _, src := range s.Sources {
			key := strings.ToLower(strings.TrimSpace(src))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, strings.TrimSpace(src))
		}
	}
	return out
}

// DedupeStrings removes duplicates while preserving first-appearance order.
// Used for per-section source lists as researchers append citations.
func DedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
