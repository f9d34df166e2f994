package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Record is a single ingested news item. The core never owns persisted
// records; callers pass values in and receive fresh values back.
type Record struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Link               string    `json:"link"`
	CanonicalLink      string    `json:"canonical_link"`
	PublishedAt        time.Time `json:"published_at"`
	Source             string    `json:"source"`
	Tags               Set       `json:"tags"`
	AlternativeLinks   Set       `json:"alternative_links"`
	Sources            Set       `json:"sources"`
	UpdatedAt          time.Time `json:"updated_at"`
	LastDuplicateFound time.Time `json:"last_duplicate_found"`
}

// RecordID derives the stable record identifier from the title and the
// canonical link. Two records with identical title and canonical URL
// always produce the same id.
func RecordID(title, canonicalLink string) string {
	sum := sha256.Sum256([]byte(title + "\n" + canonicalLink))
	return hex.EncodeToString(sum[:])
}

// Set is an ordered string set: membership is unique, iteration order is
// order of first insertion. The zero value is an empty set ready for use.
type Set struct {
	values []string
	index  map[string]struct{}
}

// NewSet returns a set seeded with the given values, duplicates dropped.
func NewSet(values ...string) Set {
	var s Set
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts value unless it is empty or already present. It reports
// whether the set grew.
func (s *Set) Add(value string) bool {
	if value == "" {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, exists := s.index[value]; exists {
		return false
	}
	s.index[value] = struct{}{}
	s.values = append(s.values, value)
	return true
}

// Contains reports membership.
func (s Set) Contains(value string) bool {
	_, ok := s.index[value]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s.values)
}

// Values returns the members in first-insertion order. The returned slice
// is a copy.
func (s Set) Values() []string {
	if len(s.values) == 0 {
		return nil
	}
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// Union returns a new set holding this set's members followed by the
// members of other that are not already present.
func (s Set) Union(other Set) Set {
	merged := NewSet(s.values...)
	for _, v := range other.values {
		merged.Add(v)
	}
	return merged
}

// Equal reports whether both sets hold the same members in the same order.
func (s Set) Equal(other Set) bool {
	if len(s.values) != len(other.values) {
		return false
	}
	for i, v := range s.values {
		if other.values[i] != v {
			return false
		}
	}
	return true
}

// MarshalJSON serializes the set as a JSON array in insertion order.
func (s Set) MarshalJSON() ([]byte, error) {
	if len(s.values) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(s.values)
}

// UnmarshalJSON rebuilds the set from a JSON array, deduplicating members.
func (s *Set) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewSet(values...)
	return nil
}
