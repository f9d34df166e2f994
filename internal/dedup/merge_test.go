package dedup

import (
	"reflect"
	"testing"
	"time"

	"quilt.news/quilt/internal/globaltime"
)

func TestMerge_UnionsMetadataAndKeepsIdentity(t *testing.T) {
	mergedAt := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	globaltime.Freeze(mergedAt)
	defer globaltime.Reset()

	canonical := newRecord(
		"Toyota Launches New Electric Vehicle in 2025",
		"Short summary.",
		"https://news.example.com/toyota-ev",
		time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		"feed-a",
	)
	canonical.Tags = NewSet("electric")

	incoming := newRecord(
		"Toyota Unveils Electric Vehicle for 2025 Market",
		"A much longer and more detailed description of the launch event.",
		"https://beta.example.org/story/toyota",
		time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
		"feed-b",
	)
	incoming.Tags = NewSet("electric", "battery")

	merged := Merge(canonical, incoming)

	if merged.ID != canonical.ID {
		t.Fatalf("canonical id must never change across merges")
	}
	if merged.Description != incoming.Description {
		t.Fatalf("expected the longer description to win")
	}
	if got, want := merged.Tags.Values(), []string{"electric", "battery"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected tags: got %v want %v", got, want)
	}
	if got, want := merged.Sources.Values(), []string{"feed-a", "feed-b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected sources: got %v want %v", got, want)
	}
	if got, want := merged.AlternativeLinks.Values(), []string{"https://beta.example.org/story/toyota"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected alternative links: got %v want %v", got, want)
	}
	if merged.AlternativeLinks.Contains(canonical.Link) {
		t.Fatalf("canonical primary link must never appear in its own alternates")
	}
	if !merged.UpdatedAt.Equal(mergedAt) || !merged.LastDuplicateFound.Equal(mergedAt) {
		t.Fatalf("expected merge timestamps at %v, got %v / %v", mergedAt, merged.UpdatedAt, merged.LastDuplicateFound)
	}
}

func TestMerge_UnionMonotonicity(t *testing.T) {
	globaltime.Freeze(time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC))
	defer globaltime.Reset()

	canonical := newRecord("A story", "desc", "https://a.example.com/1", time.Time{}, "feed-a")
	canonical.Tags = NewSet("politics", "europe")
	canonical.Sources = NewSet("feed-a", "feed-z")
	canonical.AlternativeLinks = NewSet("https://mirror.example.com/1")

	incoming := newRecord("A story again", "d", "https://b.example.com/2", time.Time{}, "feed-b")
	incoming.Tags = NewSet("economy")

	merged := Merge(canonical, incoming)

	for _, tag := range canonical.Tags.Values() {
		if !merged.Tags.Contains(tag) {
			t.Fatalf("merge dropped tag %q", tag)
		}
	}
	for _, source := range canonical.Sources.Values() {
		if !merged.Sources.Contains(source) {
			t.Fatalf("merge dropped source %q", source)
		}
	}
	for _, link := range canonical.AlternativeLinks.Values() {
		if !merged.AlternativeLinks.Contains(link) {
			t.Fatalf("merge dropped alternative link %q", link)
		}
	}
}

func TestMerge_IdempotentRemerge(t *testing.T) {
	globaltime.Freeze(time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC))
	defer globaltime.Reset()

	canonical := newRecord(
		"Toyota Launches New Electric Vehicle in 2025",
		"Short summary.",
		"https://news.example.com/toyota-ev",
		time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		"feed-a",
	)
	incoming := newRecord(
		"Toyota Unveils Electric Vehicle for 2025 Market",
		"A longer description.",
		"https://beta.example.org/story/toyota",
		time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
		"feed-b",
	)
	incoming.Tags = NewSet("electric", "battery")

	once := Merge(canonical, incoming)
	twice := Merge(once, incoming)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("re-merging the same incoming record changed the result:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestMerge_EmptySourcesDefaultsToOwnSource(t *testing.T) {
	globaltime.Freeze(time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC))
	defer globaltime.Reset()

	canonical := newRecord("A story", "desc", "https://a.example.com/1", time.Time{}, "feed-a")
	incoming := newRecord("A story again", "d", "https://b.example.com/2", time.Time{}, "feed-a")

	merged := Merge(canonical, incoming)
	if got, want := merged.Sources.Values(), []string{"feed-a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected sources: got %v want %v", got, want)
	}
}
