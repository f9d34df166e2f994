package dedup

import "quilt.news/quilt/internal/globaltime"

// Merge folds a duplicate incoming record into its canonical match and
// returns the new canonical value. Canonical fields are preserved except
// where the incoming record strictly improves them; the canonical id never
// changes. Unioned fields only ever grow, and re-merging the same incoming
// record is a no-op apart from the timestamps, which both follow the
// merge's execution time.
func Merge(canonical, incoming Record) Record {
	merged := canonical

	if len(incoming.Description) > len(canonical.Description) {
		merged.Description = incoming.Description
	}

	alternates := NewSet(canonical.AlternativeLinks.Values()...)
	if incoming.Link != canonical.Link {
		alternates.Add(incoming.Link)
	}
	merged.AlternativeLinks = alternates

	sources := canonical.Sources
	if sources.Len() == 0 {
		sources = NewSet(canonical.Source)
	}
	merged.Sources = sources.Union(NewSet(incoming.Source))

	merged.Tags = canonical.Tags.Union(incoming.Tags)

	now := globaltime.UTC()
	merged.UpdatedAt = now
	merged.LastDuplicateFound = now

	return merged
}
