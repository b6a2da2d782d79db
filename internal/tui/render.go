package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bunchhieng/travelog/internal/editor"
	"github.com/bunchhieng/travelog/internal/listing"
	"github.com/bunchhieng/travelog/internal/model"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	favouriteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("204"))

	locationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	searchStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)
)

func (m appModel) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.overlay {
	case overlaySearch:
		b.WriteString(m.renderSearchBar())
		b.WriteString("\n")
	case overlayDate:
		b.WriteString(m.renderDatePrompt())
		b.WriteString("\n")
	}

	switch m.overlay {
	case overlayConfirm:
		b.WriteString(m.renderDeleteConfirmation())
	case overlayViewer:
		b.WriteString(m.renderViewer())
	case overlayEditor:
		b.WriteString(m.renderEditor())
	default:
		b.WriteString(m.renderList())
	}
	b.WriteString("\n")

	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m appModel) renderHeader() string {
	header := fmt.Sprintf("travelog  [%s]  [%d stories]", m.snap.View.Title(), len(m.snap.Stories))
	if m.snap.User != nil {
		header += "  " + m.snap.User.FullName
	}
	if pending := pendingRange(m.snap); pending != "" {
		header += "  " + pending
	}
	return headerStyle.Render(header)
}

// pendingRange describes a half-picked date range that has not been fetched.
func pendingRange(snap listing.Snapshot) string {
	if snap.PendingFrom.IsZero() == snap.PendingTo.IsZero() {
		return ""
	}
	if snap.PendingFrom.IsZero() {
		return "(until " + formatDate(snap.PendingTo) + ", pick a start date)"
	}
	return "(from " + formatDate(snap.PendingFrom) + ", pick an end date)"
}

func (m appModel) renderSearchBar() string {
	return searchStyle.Width(m.width - 2).Render(m.search.View())
}

func (m appModel) renderDatePrompt() string {
	return searchStyle.Width(m.width - 2).Render(m.dateFrom.View() + "\n" + m.dateTo.View())
}

func (m appModel) renderList() string {
	if len(m.snap.Stories) == 0 {
		return m.snap.View.EmptyMessage()
	}

	var b strings.Builder
	listHeight := m.height - 6 // Reserve space for header, search, status

	start := 0
	if m.selected >= listHeight && listHeight > 0 {
		start = m.selected - listHeight + 1
	}
	for i := start; i < len(m.snap.Stories); i++ {
		if i-start >= listHeight {
			break
		}
		b.WriteString(m.renderStory(m.snap.Stories[i], i == m.selected))
		b.WriteString("\n")
	}
	return b.String()
}

func (m appModel) renderStory(st model.Story, selected bool) string {
	icon := " "
	if st.IsFavourite {
		icon = favouriteStyle.Render("♥")
	}

	title := st.Title
	if len(title) > 50 {
		title = title[:47] + "..."
	}

	locations := ""
	if len(st.VisitedLocation) > 0 {
		locations = " [" + st.Locations() + "]"
	}

	line := fmt.Sprintf("%s %s %s%s",
		icon,
		titleStyle.Render(title),
		dimStyle.Render(formatDate(st.VisitedDate.Time)),
		locationStyle.Render(locations),
	)

	if selected {
		return selectedStyle.Render(line)
	}
	return " " + line
}

func (m appModel) renderViewer() string {
	st := m.snap.Viewing
	if st == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(st.Title))
	if st.IsFavourite {
		b.WriteString(" " + favouriteStyle.Render("♥"))
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Visited %s (%s)", formatDate(st.VisitedDate.Time), relative(st.VisitedDate.Time))))
	b.WriteString("\n")
	if len(st.VisitedLocation) > 0 {
		b.WriteString(locationStyle.Render(st.Locations()))
		b.WriteString("\n")
	}
	if st.HasImage() {
		b.WriteString(dimStyle.Render("Image: " + st.ImageURL))
		b.WriteString("\n")
	}
	if !st.CreatedOn.IsZero() {
		b.WriteString(dimStyle.Render("Added " + relative(st.CreatedOn.Time)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(st.Story)
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("[e]dit  [f]avourite  [r]emove  [esc] close"))
	return panelStyle.Width(m.width - 4).Render(b.String())
}

func (m appModel) renderEditor() string {
	f := m.form
	if f == nil {
		return ""
	}
	heading := "Add story"
	if f.editor.Kind() == editor.KindEdit {
		heading = "Edit story"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(heading))
	b.WriteString("\n\n")
	for _, field := range []struct {
		label string
		view  string
	}{
		{"Title", f.title.View()},
		{"Story", f.story.View()},
		{"Locations", f.locations.View()},
		{"Visited", f.date.View()},
		{"Image", f.image.View()},
	} {
		b.WriteString(dimStyle.Render(field.label))
		b.WriteString("\n")
		b.WriteString(field.view)
		b.WriteString("\n")
	}

	msg := f.err
	if msg == "" {
		msg = f.editor.Message()
	}
	if msg != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(msg))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("[tab] next field  [ctrl+s] save  [ctrl+x] remove image  [esc] cancel"))
	return panelStyle.Width(m.width - 4).Render(b.String())
}

func (m appModel) renderStatusBar() string {
	var parts []string

	if m.statusMsg != "" {
		parts = append(parts, m.statusMsg)
	} else if len(m.snap.Stories) > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d", m.selected+1, len(m.snap.Stories)))
	}

	parts = append(parts, "[a]dd [e]dit [f]av [r]emove [/]search [d]ates [c]lear [q]uit")

	return statusBarStyle.Width(m.width).Render(strings.Join(parts, "  |  "))
}

func (m appModel) renderDeleteConfirmation() string {
	title := m.deleteTarget.Title
	if len(title) > 50 {
		title = title[:47] + "..."
	}
	confirmText := fmt.Sprintf("Delete story: %s?\n\n[y]es / [n]o", title)
	return selectedStyle.Width(m.width-4).Padding(1, 2).Render(confirmText)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("02 Jan 2006")
}

func relative(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return humanize.Time(t)
}
