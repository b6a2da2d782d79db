package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStoryValidate(t *testing.T) {
	s := &Story{Title: "", Story: "text"}
	if err := s.Validate(); err != ErrMissingTitle {
		t.Errorf("Expected ErrMissingTitle, got %v", err)
	}

	s = &Story{Title: "Great Wall", Story: "   "}
	if err := s.Validate(); err != ErrMissingStory {
		t.Errorf("Expected ErrMissingStory, got %v", err)
	}

	s = &Story{Title: "Great Wall", Story: "Long walk"}
	if err := s.Validate(); err != nil {
		t.Errorf("Expected valid story, got %v", err)
	}
}

func TestParseLocations(t *testing.T) {
	got := ParseLocations(" Paris, Lyon ,,paris, Nice ")
	want := []string{"Paris", "Lyon", "Nice"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %q at %d, got %q", want[i], i, got[i])
		}
	}

	if got := ParseLocations("  "); got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", got)
	}
}

func TestEpochMillisDecode(t *testing.T) {
	want := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC).UnixMilli()

	cases := map[string]string{
		"number":         `1714559400000`,
		"numeric string": `"1714559400000"`,
		"rfc3339":        `"2024-05-01T10:30:00.000Z"`,
	}
	for name, raw := range cases {
		var e EpochMillis
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			t.Errorf("%s: unmarshal failed: %v", name, err)
			continue
		}
		if e.Int64() != want {
			t.Errorf("%s: expected %d, got %d", name, want, e.Int64())
		}
	}

	var e EpochMillis
	if err := json.Unmarshal([]byte(`null`), &e); err != nil || !e.IsZero() {
		t.Errorf("Expected zero time for null, got %v (err %v)", e, err)
	}
	if err := json.Unmarshal([]byte(`"yesterday"`), &e); err == nil {
		t.Error("Expected error for unparseable date")
	}
}

func TestEpochMillisEncode(t *testing.T) {
	in := StoryInput{
		Title:       "t",
		Story:       "s",
		VisitedDate: FromMillis(1714559400000),
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if raw["visitedDate"] != float64(1714559400000) {
		t.Errorf("Expected integer visitedDate, got %v", raw["visitedDate"])
	}
	if raw["imageUrl"] != "" {
		t.Errorf("Expected empty imageUrl to be sent, got %v", raw["imageUrl"])
	}
}

func TestValidateStoryID(t *testing.T) {
	valid := []string{"65f1c2a9e4b0a1b2c3d4e5f6", "abc_123", "a-b"}
	for _, id := range valid {
		if !ValidateStoryID(id) {
			t.Errorf("Expected %q to be valid", id)
		}
	}
	invalid := []string{"", "../etc", "a b", "-rf", "id?x=1"}
	for _, id := range invalid {
		if ValidateStoryID(id) {
			t.Errorf("Expected %q to be invalid", id)
		}
	}
}
