package dedup

import (
	"reflect"
	"testing"
)

func TestNormalizeText_StripsPunctuationAndCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	got := NormalizeText("  Hello,   World! (Again)\t-- ok_underscore ")
	want := "hello world again ok_underscore"
	if got != want {
		t.Fatalf("unexpected normalized text: got %q want %q", got, want)
	}
}

func TestNormalizeText_Empty(t *testing.T) {
	t.Parallel()

	if got := NormalizeText("!!! ... ---"); got != "" {
		t.Fatalf("expected punctuation-only input to normalize to empty, got %q", got)
	}
	if got := NormalizeText(""); got != "" {
		t.Fatalf("expected empty input to stay empty, got %q", got)
	}
}

func TestTokenize_DropsShortTokensAndStopWords(t *testing.T) {
	t.Parallel()

	got := Tokenize("Toyota Launches New Electric Vehicle in 2025")
	want := []string{"toyota", "electric", "vehicle", "2025"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected tokens: got %v want %v", got, want)
	}
}

func TestTokenize_PreservesOrderAndRepeats(t *testing.T) {
	t.Parallel()

	got := Tokenize("battery battery range battery")
	want := []string{"battery", "battery", "range", "battery"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected repeats preserved for term frequency, got %v", got)
	}
}

func TestTokenize_Empty(t *testing.T) {
	t.Parallel()

	if got := Tokenize("the a an in of"); got != nil {
		t.Fatalf("expected stop-word-only input to yield no tokens, got %v", got)
	}
	if got := Tokenize("a b cd ef"); got != nil {
		t.Fatalf("expected short-token-only input to yield no tokens, got %v", got)
	}
	if got := Tokenize(""); got != nil {
		t.Fatalf("expected empty input to yield no tokens, got %v", got)
	}
}

func TestCanonicalizeLink_StripsQueryAndFragment(t *testing.T) {
	t.Parallel()

	got := CanonicalizeLink("https://news.example.com/cars/toyota-ev?utm_source=feedly&ref=home#section-2")
	want := "https://news.example.com/cars/toyota-ev"
	if got != want {
		t.Fatalf("unexpected canonical link: got %q want %q", got, want)
	}
}

func TestCanonicalizeLink_MalformedReturnsInput(t *testing.T) {
	t.Parallel()

	cases := []string{
		"not a url",
		":missing-scheme",
		"/relative/path?x=1",
		"",
	}
	for _, raw := range cases {
		if got := CanonicalizeLink(raw); got != raw {
			t.Fatalf("expected malformed input %q returned unchanged, got %q", raw, got)
		}
	}
}
