package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Story is a travel journal entry as stored by the backend.
type Story struct {
	ID              string      `json:"_id"`
	Title           string      `json:"title"`
	Story           string      `json:"story"`
	ImageURL        string      `json:"imageUrl,omitempty"`
	VisitedLocation []string    `json:"visitedLocation"`
	VisitedDate     EpochMillis `json:"visitedDate"`
	IsFavourite     bool        `json:"isFavourite"`
	UserID          string      `json:"userId,omitempty"`
	CreatedOn       EpochMillis `json:"createdOn"`
}

// Validate checks the fields the backend requires before a submit.
func (s *Story) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return ErrMissingTitle
	}
	if strings.TrimSpace(s.Story) == "" {
		return ErrMissingStory
	}
	return nil
}

// HasImage reports whether the story references a stored image.
func (s *Story) HasImage() bool {
	return s.ImageURL != ""
}

// Locations returns the visited locations joined for display.
func (s *Story) Locations() string {
	return strings.Join(s.VisitedLocation, ", ")
}

// ParseLocations splits a comma-separated list into location tags,
// dropping blanks and case-insensitive duplicates while keeping order.
func ParseLocations(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	seen := make(map[string]bool, len(parts))
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := strings.ToLower(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, p)
	}
	return result
}

// StoryInput is the payload for the create and update endpoints.
type StoryInput struct {
	Title           string      `json:"title"`
	Story           string      `json:"story"`
	ImageURL        string      `json:"imageUrl"`
	VisitedLocation []string    `json:"visitedLocation"`
	VisitedDate     EpochMillis `json:"visitedDate"`
}

// User is the profile returned by the backend for the session token.
type User struct {
	ID       string `json:"_id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// EpochMillis is a point in time encoded as milliseconds since the Unix epoch.
type EpochMillis struct {
	time.Time
}

// Millis wraps t.
func Millis(t time.Time) EpochMillis {
	return EpochMillis{Time: t}
}

// FromMillis converts an epoch-millisecond value.
func FromMillis(ms int64) EpochMillis {
	return EpochMillis{Time: time.UnixMilli(ms)}
}

// Int64 returns the value in milliseconds, or 0 for the zero time.
func (e EpochMillis) Int64() int64 {
	if e.IsZero() {
		return 0
	}
	return e.UnixMilli()
}

// MarshalJSON encodes the time as an integer. The zero time encodes as null.
func (e EpochMillis) MarshalJSON() ([]byte, error) {
	if e.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(e.UnixMilli(), 10)), nil
}

// UnmarshalJSON accepts integer milliseconds, numeric strings and RFC 3339
// strings. The backend echoes stored dates as ISO strings.
func (e *EpochMillis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		e.Time = time.Time{}
		return nil
	}
	if data[0] != '"' {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("decode epoch millis: %w", err)
		}
		e.Time = time.UnixMilli(int64(f))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode epoch millis: %w", err)
	}
	if s == "" {
		e.Time = time.Time{}
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		e.Time = time.UnixMilli(ms)
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("decode epoch millis %q: %w", s, err)
	}
	e.Time = t
	return nil
}
