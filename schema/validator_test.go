package payloadschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateNewsItemPayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"wire-alpha",
		"title":"Toyota Launches New Electric Vehicle in 2025",
		"link":"https://news.example.com/toyota-ev?utm_source=feedly",
		"description":"The automaker presented its new EV lineup.",
		"published_at":"2025-03-10T08:00:00Z",
		"tags":["electric","cars"]
	}`)

	item, err := ValidateNewsItemPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if item.Source != "wire-alpha" {
		t.Fatalf("expected source=wire-alpha, got %q", item.Source)
	}
	if item.PayloadVersion != "v1" {
		t.Fatalf("expected payload_version=v1, got %q", item.PayloadVersion)
	}
	if len(item.Tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", item.Tags)
	}
}

func TestValidateNewsItemPayload_MissingLink(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"wire-alpha",
		"title":"Missing link"
	}`)

	if _, err := ValidateNewsItemPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for missing link")
	}
}

func TestValidateNewsItemPayload_WhitespaceTitle(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"wire-alpha",
		"title":"   ",
		"link":"https://news.example.com/x"
	}`)

	_, err := ValidateNewsItemPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for whitespace-only title")
	}
	if !strings.Contains(err.Error(), "title must not be empty") {
		t.Fatalf("expected title semantic error, got: %v", err)
	}
}

func TestValidateNewsItemPayload_BadPublishedAt(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"wire-alpha",
		"title":"Bad timestamp",
		"link":"https://news.example.com/x",
		"published_at":"yesterday"
	}`)

	if _, err := ValidateNewsItemPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for non-RFC3339 published_at")
	}
}

func TestValidateNewsItemPayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","source":"a","title":"t","link":"https://x.example.com/1"} {}`)

	if _, err := ValidateNewsItemPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for trailing JSON content")
	}
}

func TestValidateNewsItemPayload_UnknownField(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"wire-alpha",
		"title":"Extra field",
		"link":"https://news.example.com/x",
		"surprise":true
	}`)

	if _, err := ValidateNewsItemPayload(payload); err == nil {
		t.Fatalf("expected schema to reject unknown fields")
	}
}
