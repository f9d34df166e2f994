package dedup

import "math"

// ReportDetail summarizes one duplicate match.
type ReportDetail struct {
	MatchedID         string   `json:"matched_id"`
	SimilarityPercent int      `json:"similarity_percent"`
	Reasons           []string `json:"reasons"`
}

// Report aggregates the classifier outputs for one candidate.
type Report struct {
	HasDuplicates bool           `json:"has_duplicates"`
	Count         int            `json:"count,omitempty"`
	Details       []ReportDetail `json:"details,omitempty"`
}

// BuildReport turns a batch of duplicate matches into a report. An empty
// batch yields {HasDuplicates: false}.
func BuildReport(matches []Match) Report {
	if len(matches) == 0 {
		return Report{}
	}

	details := make([]ReportDetail, 0, len(matches))
	for _, match := range matches {
		details = append(details, ReportDetail{
			MatchedID:         match.RecordID,
			SimilarityPercent: int(math.Round(match.Result.ContentJaccard * 100)),
			Reasons:           match.Result.Reasons,
		})
	}

	return Report{
		HasDuplicates: true,
		Count:         len(matches),
		Details:       details,
	}
}
