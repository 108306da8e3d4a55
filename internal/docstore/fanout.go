package docstore

import "context"

// Chunk de-duplicates ids (keeping first-seen order) and splits them into
// groups of at most size. A nil or empty input yields no groups.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxDisjunctions
	}
	seen := make(map[string]struct{}, len(ids))
	var out [][]string
	var cur []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		cur = append(cur, id)
		if len(cur) == size {
			out = append(out, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// QueryInChunks fans one "in" / "array-contains-any" predicate out over as
// many bounded sub-queries as the id list needs and merges the results.
// An empty id list is an empty result; no query is ever issued with zero
// predicates. Results carry no ordering guarantee across chunk boundaries.
// A failing sub-query aborts the fan-out and propagates its error; callers
// decide whether to fall back to an unfiltered scan.
func QueryInChunks(ctx context.Context, s Store, collection, field string, op Op, ids []string) ([]Doc, error) {
	if op != OpIn && op != OpArrayContainsAny {
		return nil, ErrBadPredicate
	}
	var out []Doc
	seen := map[string]struct{}{}
	for _, group := range Chunk(ids, MaxDisjunctions) {
		docs, err := s.Run(ctx, NewQuery(collection).Where(field, op, group))
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			// array-contains-any chunks can return the same document twice
			if _, dup := seen[d.ID]; dup {
				continue
			}
			seen[d.ID] = struct{}{}
			out = append(out, d)
		}
	}
	return out, nil
}
