package listing

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects which fetch supplies the displayed list.
type Mode int

const (
	ModeAll Mode = iota
	ModeSearch
	ModeDateRange
)

func (m Mode) String() string {
	switch m {
	case ModeSearch:
		return "search"
	case ModeDateRange:
		return "date"
	default:
		return "all"
	}
}

// View is the active view mode with its parameters. Query is only set for
// ModeSearch and From/To only for ModeDateRange.
type View struct {
	Mode  Mode
	Query string
	From  time.Time
	To    time.Time
}

// All is the unfiltered view.
func All() View {
	return View{Mode: ModeAll}
}

// Search is the free-text search view.
func Search(query string) View {
	return View{Mode: ModeSearch, Query: query}
}

// DateRange is the visited-date filter view. The range is normalised so
// From is the start of the earlier day and To the end of the later day.
func DateRange(from, to time.Time) View {
	if to.Before(from) {
		from, to = to, from
	}
	return View{Mode: ModeDateRange, From: startOfDay(from), To: endOfDay(to)}
}

// Equal reports whether two views select the same stories.
func (v View) Equal(o View) bool {
	return v.Mode == o.Mode && v.Query == o.Query && v.From.Equal(o.From) && v.To.Equal(o.To)
}

// Title describes the view for headers.
func (v View) Title() string {
	switch v.Mode {
	case ModeSearch:
		return fmt.Sprintf("Search results for %q", v.Query)
	case ModeDateRange:
		return fmt.Sprintf("Travel stories from %s to %s", v.From.Format("02 Jan 2006"), v.To.Format("02 Jan 2006"))
	default:
		return "All stories"
	}
}

// EmptyMessage is shown when the view has no stories.
func (v View) EmptyMessage() string {
	switch v.Mode {
	case ModeSearch:
		return "Oops! No stories found matching your search."
	case ModeDateRange:
		return "No stories found in the given date range."
	default:
		return "Start creating your first travel story! Press 'a' to jot down your thoughts, ideas and memories."
	}
}

func (v View) String() string {
	var b strings.Builder
	b.WriteString(v.Mode.String())
	switch v.Mode {
	case ModeSearch:
		fmt.Fprintf(&b, "(%q)", v.Query)
	case ModeDateRange:
		fmt.Fprintf(&b, "(%s..%s)", v.From.Format(time.DateOnly), v.To.Format(time.DateOnly))
	}
	return b.String()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}
