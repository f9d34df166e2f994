package dedup

import (
	"math"
	"runtime"
	"sync"
)

const (
	DefaultSimilarityThreshold      = 0.8
	DefaultTitleSimilarityThreshold = 0.7
	DefaultTimeProximityHours       = 48
)

// Matched-rule labels, in rule evaluation order.
const (
	ReasonIdenticalURL           = "identical-url"
	ReasonTitleMatchTimeProximal = "title-match-time-proximate"
	ReasonContentMatch           = "content-match"
)

// ClassifierConfig holds the duplicate-rule thresholds. Zero or negative
// fields fall back to the documented defaults.
type ClassifierConfig struct {
	SimilarityThreshold      float64
	TitleSimilarityThreshold float64
	TimeProximityHours       float64
}

// DefaultClassifierConfig returns the documented default thresholds.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		SimilarityThreshold:      DefaultSimilarityThreshold,
		TitleSimilarityThreshold: DefaultTitleSimilarityThreshold,
		TimeProximityHours:       DefaultTimeProximityHours,
	}
}

func (c ClassifierConfig) withDefaults() ClassifierConfig {
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.TitleSimilarityThreshold <= 0 {
		c.TitleSimilarityThreshold = DefaultTitleSimilarityThreshold
	}
	if c.TimeProximityHours <= 0 {
		c.TimeProximityHours = DefaultTimeProximityHours
	}
	return c
}

// SimilarityResult is the classifier output for one record pair. It is
// created fresh per comparison and never mutated after return.
type SimilarityResult struct {
	TitleSimilarity float64  `json:"title_similarity"`
	ContentJaccard  float64  `json:"content_jaccard"`
	ContentCosine   float64  `json:"content_cosine"`
	URLExactMatch   bool     `json:"url_exact_match"`
	TimeProximate   bool     `json:"time_proximate"`
	IsDuplicate     bool     `json:"is_duplicate"`
	Reasons         []string `json:"reasons,omitempty"`
}

// Match pairs a SimilarityResult with the existing record it was scored
// against.
type Match struct {
	RecordID string           `json:"record_id"`
	Result   SimilarityResult `json:"result"`
}

// Classify scores a candidate record against one existing record. All
// rules are evaluated independently; the verdict is their logical OR and
// reasons accumulate, so a pair can match several rules at once.
// Classification never fails: missing timestamps are treated as not
// time-proximate and empty text degrades to zero similarity.
//
// Content cosine is computed for observability and tuning only; it never
// gates the verdict.
func Classify(candidate, existing Record, cfg ClassifierConfig) SimilarityResult {
	cfg = cfg.withDefaults()

	candidateTitle := Tokenize(candidate.Title)
	existingTitle := Tokenize(existing.Title)
	candidateContent := Tokenize(candidate.Title + " " + candidate.Description)
	existingContent := Tokenize(existing.Title + " " + existing.Description)

	result := SimilarityResult{
		TitleSimilarity: Jaccard(candidateTitle, existingTitle),
		ContentJaccard:  Jaccard(candidateContent, existingContent),
		ContentCosine:   Cosine(candidateContent, existingContent),
		URLExactMatch:   candidate.CanonicalLink == existing.CanonicalLink && candidate.CanonicalLink != "",
		TimeProximate:   timeProximate(candidate, existing, cfg.TimeProximityHours),
	}

	if result.URLExactMatch {
		result.IsDuplicate = true
		result.Reasons = append(result.Reasons, ReasonIdenticalURL)
	}
	if result.TitleSimilarity >= cfg.TitleSimilarityThreshold && result.TimeProximate {
		result.IsDuplicate = true
		result.Reasons = append(result.Reasons, ReasonTitleMatchTimeProximal)
	}
	if result.ContentJaccard >= cfg.SimilarityThreshold {
		result.IsDuplicate = true
		result.Reasons = append(result.Reasons, ReasonContentMatch)
	}

	return result
}

func timeProximate(candidate, existing Record, maxHours float64) bool {
	if candidate.PublishedAt.IsZero() || existing.PublishedAt.IsZero() {
		return false
	}
	diff := math.Abs(candidate.PublishedAt.Sub(existing.PublishedAt).Hours())
	return diff <= maxHours
}

// FindDuplicates classifies the candidate against every record in the
// window and returns the duplicates in window order, so the first match is
// always the canonical merge target regardless of how the comparisons were
// scheduled. Comparisons are independent and run on a bounded worker pool.
func FindDuplicates(candidate Record, window []Record, cfg ClassifierConfig) []Match {
	if len(window) == 0 {
		return nil
	}
	cfg = cfg.withDefaults()

	results := make([]SimilarityResult, len(window))

	workers := runtime.GOMAXPROCS(0)
	if workers > len(window) {
		workers = len(window)
	}

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = Classify(candidate, window[i], cfg)
			}
		}()
	}
	for i := range window {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var matches []Match
	for i, result := range results {
		if !result.IsDuplicate {
			continue
		}
		matches = append(matches, Match{
			RecordID: window[i].ID,
			Result:   result,
		})
	}
	return matches
}
