package dedup

import (
	"testing"
	"time"
)

func newRecord(title, description, link string, publishedAt time.Time, source string) Record {
	canonical := CanonicalizeLink(link)
	return Record{
		ID:            RecordID(title, canonical),
		Title:         title,
		Description:   description,
		Link:          link,
		CanonicalLink: canonical,
		PublishedAt:   publishedAt,
		Source:        source,
	}
}

func TestClassify_IdenticalURLAfterCanonicalization(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	candidate := newRecord(
		"Toyota Launches New Electric Vehicle in 2025",
		"The automaker presented its new EV lineup.",
		"https://news.example.com/toyota-ev?utm_source=feedly",
		base,
		"feed-a",
	)
	existing := newRecord(
		"Toyota Unveils Electric Vehicle for 2025 Market",
		"Toyota presented an EV lineup for next year.",
		"https://news.example.com/toyota-ev",
		base.Add(90*time.Minute),
		"feed-b",
	)

	result := Classify(candidate, existing, DefaultClassifierConfig())
	if !result.URLExactMatch {
		t.Fatalf("expected canonical links to match exactly")
	}
	if !result.IsDuplicate {
		t.Fatalf("expected duplicate verdict for identical canonical URL")
	}
	if !containsReason(result.Reasons, ReasonIdenticalURL) {
		t.Fatalf("expected reasons to include %q, got %v", ReasonIdenticalURL, result.Reasons)
	}
}

func TestClassify_URLRuleDominance(t *testing.T) {
	t.Parallel()

	// Same canonical link, nothing else in common, published a week apart:
	// the URL rule must still fire on its own.
	candidate := newRecord(
		"Completely unrelated headline about gardening",
		"Tips for tomato growers.",
		"https://news.example.com/shared",
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		"feed-a",
	)
	existing := newRecord(
		"Quarterly smartphone shipments decline",
		"Analysts expected a stronger quarter.",
		"https://news.example.com/shared",
		time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC),
		"feed-b",
	)

	result := Classify(candidate, existing, DefaultClassifierConfig())
	if !result.IsDuplicate {
		t.Fatalf("expected duplicate verdict on URL equality alone")
	}
	if !containsReason(result.Reasons, ReasonIdenticalURL) {
		t.Fatalf("expected %q reason, got %v", ReasonIdenticalURL, result.Reasons)
	}
	if result.TimeProximate {
		t.Fatalf("expected records a week apart to not be time-proximate")
	}
}

func TestClassify_TitleMatchTimeProximate(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	candidate := newRecord(
		"Toyota Launches New Electric Vehicle in 2025",
		"The automaker presented its new EV lineup at a press event.",
		"https://alpha.example.com/articles/9912",
		base,
		"feed-a",
	)
	existing := newRecord(
		"Toyota Unveils Electric Vehicle for 2025 Market",
		"A fresh battery platform underpins the announcement.",
		"https://beta.example.org/story/toyota",
		base.Add(30*time.Hour),
		"feed-b",
	)

	result := Classify(candidate, existing, DefaultClassifierConfig())
	if result.URLExactMatch {
		t.Fatalf("links are distinct, expected no URL match")
	}
	if result.TitleSimilarity < 0.7 {
		t.Fatalf("expected title similarity >= 0.7, got %f", result.TitleSimilarity)
	}
	if !result.TimeProximate {
		t.Fatalf("expected 30h apart to be within the 48h window")
	}
	if !result.IsDuplicate {
		t.Fatalf("expected duplicate verdict")
	}
	if !containsReason(result.Reasons, ReasonTitleMatchTimeProximal) {
		t.Fatalf("expected %q reason, got %v", ReasonTitleMatchTimeProximal, result.Reasons)
	}
}

func TestClassify_UnrelatedStoriesNotDuplicate(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	candidate := newRecord(
		"Toyota Reports Strong Financial Results for Q2",
		"Revenue and operating profit both beat expectations.",
		"https://finance.example.com/toyota-q2",
		base,
		"feed-a",
	)
	existing := newRecord(
		"Toyota Launches New Electric Vehicle in 2025",
		"The automaker presented its new EV lineup at a press event.",
		"https://alpha.example.com/articles/9912",
		base.Add(2*time.Hour),
		"feed-b",
	)

	result := Classify(candidate, existing, DefaultClassifierConfig())
	if result.IsDuplicate {
		t.Fatalf("expected unrelated stories to not be duplicates, reasons=%v", result.Reasons)
	}
	if result.TitleSimilarity >= 0.7 {
		t.Fatalf("expected low title similarity, got %f", result.TitleSimilarity)
	}
	if result.ContentJaccard >= 0.8 {
		t.Fatalf("expected low content similarity, got %f", result.ContentJaccard)
	}
	if len(result.Reasons) != 0 {
		t.Fatalf("expected no reasons, got %v", result.Reasons)
	}
}

func TestClassify_ContentMatchDespiteDivergentTitles(t *testing.T) {
	t.Parallel()

	body := "Prosecutors filed criminal charges against the shipping company " +
		"on Tuesday after federal inspectors documented repeated safety " +
		"violations aboard several vessels, according to court records made " +
		"public this week."
	candidate := newRecord(
		"Shipping giant charged",
		body,
		"https://alpha.example.com/shipping",
		time.Time{},
		"feed-a",
	)
	existing := newRecord(
		"Carrier faces charges",
		body,
		"https://beta.example.org/carrier",
		time.Time{},
		"feed-b",
	)

	result := Classify(candidate, existing, DefaultClassifierConfig())
	if !result.IsDuplicate {
		t.Fatalf("expected verbatim body copy to trigger the content rule")
	}
	if !containsReason(result.Reasons, ReasonContentMatch) {
		t.Fatalf("expected %q reason, got %v", ReasonContentMatch, result.Reasons)
	}
}

func TestClassify_MissingTimestampsNotProximate(t *testing.T) {
	t.Parallel()

	candidate := newRecord("Toyota Launches New Electric Vehicle in 2025", "", "https://a.example.com/1", time.Time{}, "feed-a")
	existing := newRecord("Toyota Unveils Electric Vehicle for 2025 Market", "", "https://b.example.com/2", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), "feed-b")

	result := Classify(candidate, existing, DefaultClassifierConfig())
	if result.TimeProximate {
		t.Fatalf("expected missing timestamp to be treated as not time-proximate")
	}
	if containsReason(result.Reasons, ReasonTitleMatchTimeProximal) {
		t.Fatalf("title+time rule must not fire without timestamps, got %v", result.Reasons)
	}
}

func TestClassify_ZeroConfigUsesDefaults(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	candidate := newRecord("Toyota Launches New Electric Vehicle in 2025", "x", "https://a.example.com/1", base, "feed-a")
	existing := newRecord("Toyota Unveils Electric Vehicle for 2025 Market", "y", "https://b.example.com/2", base.Add(30*time.Hour), "feed-b")

	result := Classify(candidate, existing, ClassifierConfig{})
	if !result.IsDuplicate || !containsReason(result.Reasons, ReasonTitleMatchTimeProximal) {
		t.Fatalf("expected zero-valued config to apply documented defaults, got %+v", result)
	}
}

func TestFindDuplicates_WindowOrderDeterministic(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	candidate := newRecord(
		"Toyota Launches New Electric Vehicle in 2025",
		"The automaker presented its new EV lineup.",
		"https://news.example.com/toyota-ev?utm_source=feedly",
		base,
		"feed-a",
	)

	window := []Record{
		newRecord(
			"Toyota Unveils Electric Vehicle for 2025 Market",
			"A fresh battery platform underpins the announcement.",
			"https://beta.example.org/story/toyota",
			base.Add(3*time.Hour),
			"feed-b",
		),
		newRecord(
			"Quarterly smartphone shipments decline",
			"Analysts expected a stronger quarter.",
			"https://gamma.example.net/phones",
			base.Add(1*time.Hour),
			"feed-c",
		),
		newRecord(
			"Toyota electric vehicle debut",
			"Same story, same link.",
			"https://news.example.com/toyota-ev",
			base.Add(5*time.Hour),
			"feed-d",
		),
	}

	matches := FindDuplicates(candidate, window, DefaultClassifierConfig())
	if len(matches) != 2 {
		t.Fatalf("expected records #1 and #3 to match, got %d matches", len(matches))
	}
	if matches[0].RecordID != window[0].ID {
		t.Fatalf("expected earliest window record as canonical target, got %s", matches[0].RecordID)
	}
	if matches[1].RecordID != window[2].ID {
		t.Fatalf("expected second match to be window record #3, got %s", matches[1].RecordID)
	}
}

func TestFindDuplicates_EmptyWindow(t *testing.T) {
	t.Parallel()

	candidate := newRecord("Anything", "", "https://a.example.com/1", time.Time{}, "feed-a")
	if matches := FindDuplicates(candidate, nil, DefaultClassifierConfig()); matches != nil {
		t.Fatalf("expected no matches for empty window, got %v", matches)
	}
}

func containsReason(reasons []string, want string) bool {
	for _, reason := range reasons {
		if reason == want {
			return true
		}
	}
	return false
}
