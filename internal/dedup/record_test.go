package dedup

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRecordID_PureFunctionOfTitleAndCanonicalLink(t *testing.T) {
	t.Parallel()

	a := RecordID("Toyota Launches New Electric Vehicle in 2025", "https://news.example.com/toyota-ev")
	b := RecordID("Toyota Launches New Electric Vehicle in 2025", "https://news.example.com/toyota-ev")
	if a != b {
		t.Fatalf("identical inputs must yield the same id: %s vs %s", a, b)
	}

	c := RecordID("Toyota Launches New Electric Vehicle in 2025", "https://other.example.com/toyota-ev")
	if a == c {
		t.Fatalf("different canonical links must yield different ids")
	}

	if len(a) != 64 {
		t.Fatalf("expected sha256 hex id, got %q", a)
	}
}

func TestSet_AddDeduplicatesAndKeepsOrder(t *testing.T) {
	t.Parallel()

	s := NewSet("electric", "battery", "electric", "", "range")
	if got, want := s.Values(), []string{"electric", "battery", "range"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected members: got %v want %v", got, want)
	}
	if s.Len() != 3 {
		t.Fatalf("unexpected length: %d", s.Len())
	}
	if s.Add("battery") {
		t.Fatalf("re-adding an existing member must report false")
	}
	if !s.Contains("range") || s.Contains("missing") {
		t.Fatalf("unexpected membership results")
	}
}

func TestSet_UnionPreservesFirstOccurrenceOrder(t *testing.T) {
	t.Parallel()

	left := NewSet("electric")
	right := NewSet("electric", "battery")
	if got, want := left.Union(right).Values(), []string{"electric", "battery"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected union: got %v want %v", got, want)
	}
}

func TestSet_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(NewSet("a", "b"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(raw) != `["a","b"]` {
		t.Fatalf("unexpected JSON: %s", raw)
	}

	var s Set
	if err := json.Unmarshal([]byte(`["x","x","y"]`), &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got, want := s.Values(), []string{"x", "y"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected members after unmarshal: got %v want %v", got, want)
	}

	var empty Set
	raw, err = json.Marshal(empty)
	if err != nil {
		t.Fatalf("marshal of empty set failed: %v", err)
	}
	if string(raw) != "[]" {
		t.Fatalf("expected empty set to serialize as [], got %s", raw)
	}
}
