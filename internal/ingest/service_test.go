package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quilt.news/quilt/internal/config"
	payloadschema "quilt.news/quilt/schema"
)

func strPtr(s string) *string { return &s }

func TestBuildRecordNormalizesFields(t *testing.T) {
	t.Parallel()

	item := &payloadschema.NewsItem{
		PayloadVersion: "v1",
		Source:         "  reuters ",
		Title:          "  Port authority expands container capacity  ",
		Link:           " https://example.com/news/port?utm_source=feed#frag ",
		Description:    strPtr("  Container throughput is expected to double.  "),
		PublishedAt:    strPtr("2026-03-01T08:00:00+02:00"),
		Tags:           []string{" shipping ", "", "infrastructure"},
	}

	record := BuildRecord(item)

	if record.Title != "Port authority expands container capacity" {
		t.Fatalf("unexpected title: %q", record.Title)
	}
	if record.Source != "reuters" {
		t.Fatalf("unexpected source: %q", record.Source)
	}
	if record.CanonicalLink != "https://example.com/news/port" {
		t.Fatalf("unexpected canonical link: %q", record.CanonicalLink)
	}
	if record.Description != "Container throughput is expected to double." {
		t.Fatalf("unexpected description: %q", record.Description)
	}
	if record.ID == "" {
		t.Fatal("expected non-empty record id")
	}

	want := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	if !record.PublishedAt.Equal(want) {
		t.Fatalf("expected published_at %v, got %v", want, record.PublishedAt)
	}
	if record.PublishedAt.Location() != time.UTC {
		t.Fatalf("expected UTC published_at, got %v", record.PublishedAt.Location())
	}

	tags := record.Tags.Values()
	if len(tags) != 2 || tags[0] != "shipping" || tags[1] != "infrastructure" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestBuildRecordIDStableAcrossQueryStrings(t *testing.T) {
	t.Parallel()

	a := BuildRecord(&payloadschema.NewsItem{
		PayloadVersion: "v1",
		Source:         "reuters",
		Title:          "Refinery fire contained",
		Link:           "https://example.com/news/fire?utm_source=a",
	})
	b := BuildRecord(&payloadschema.NewsItem{
		PayloadVersion: "v1",
		Source:         "ap",
		Title:          "Refinery fire contained",
		Link:           "https://example.com/news/fire?utm_source=b",
	})

	if a.ID != b.ID {
		t.Fatalf("expected identical ids for same title and canonical link, got %s vs %s", a.ID, b.ID)
	}
}

func TestBuildRecordOptionalFieldsAbsent(t *testing.T) {
	t.Parallel()

	record := BuildRecord(&payloadschema.NewsItem{
		PayloadVersion: "v1",
		Source:         "reuters",
		Title:          "Refinery fire contained",
		Link:           "https://example.com/news/fire",
	})

	if record.Description != "" {
		t.Fatalf("expected empty description, got %q", record.Description)
	}
	if !record.PublishedAt.IsZero() {
		t.Fatalf("expected zero published_at, got %v", record.PublishedAt)
	}
	if record.Tags.Len() != 0 {
		t.Fatalf("expected no tags, got %v", record.Tags.Values())
	}
}

func TestCandidateWindowOrdersByPublishedAtThenPK(t *testing.T) {
	t.Parallel()

	// The first match in the window is the canonical merge target, so the
	// window must be ordered by publication time with the row id as the
	// tiebreaker, not by insertion order alone.
	if !strings.Contains(candidateWindowQuery, "ORDER BY published_at ASC NULLS LAST, record_pk ASC") {
		t.Fatalf("candidate window query lost its ordering contract:\n%s", candidateWindowQuery)
	}
}

func TestNewServiceAppliesConfigAndDefaults(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, zerolog.Nop(), nil)
	if svc.windowDays != 7 || svc.windowCap != 500 {
		t.Fatalf("unexpected defaults: days=%d cap=%d", svc.windowDays, svc.windowCap)
	}
	if svc.classifier.SimilarityThreshold != 0.8 {
		t.Fatalf("unexpected default similarity threshold: %v", svc.classifier.SimilarityThreshold)
	}

	cfg := &config.Config{
		SimilarityThreshold:      0.9,
		TitleSimilarityThreshold: 0.6,
		TimeProximityHours:       24,
		WindowDays:               3,
		WindowLimit:              100,
	}
	svc = NewService(nil, zerolog.Nop(), cfg)
	if svc.windowDays != 3 || svc.windowCap != 100 {
		t.Fatalf("config window bounds not applied: days=%d cap=%d", svc.windowDays, svc.windowCap)
	}
	if svc.classifier.SimilarityThreshold != 0.9 || svc.classifier.TimeProximityHours != 24 {
		t.Fatalf("config thresholds not applied: %+v", svc.classifier)
	}
}
