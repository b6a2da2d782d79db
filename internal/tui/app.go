package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bunchhieng/travelog/internal/api"
	"github.com/bunchhieng/travelog/internal/editor"
	"github.com/bunchhieng/travelog/internal/listing"
	"github.com/bunchhieng/travelog/internal/model"
	"github.com/bunchhieng/travelog/internal/storage"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
)

// Backend is the story API the screen and editors use.
type Backend interface {
	listing.StoryAPI
	editor.StoryAPI
}

type overlay int

const (
	overlayNone overlay = iota
	overlaySearch
	overlayDate
	overlayConfirm
	overlayViewer
	overlayEditor
)

const recentLimit = 10

type appModel struct {
	screen     *listing.Screen
	api        Backend
	storage    storage.Storage
	log        logrus.FieldLogger
	editorOpts []editor.Option

	snap     listing.Snapshot
	selected int
	overlay  overlay
	back     overlay // where the editor or delete prompt returns to

	search    textinput.Model
	recent    []string
	recentIdx int

	dateFrom  textinput.Model
	dateTo    textinput.Model
	dateFocus int

	form         *storyForm
	deleteTarget model.Story

	width     int
	height    int
	statusMsg string
	statusSeq int
	loggedOut bool
	busy      bool
}

// screenMsg reports a finished list operation.
type screenMsg struct {
	action string
	err    error
}

// editorMsg reports a finished editor submit or image removal.
type editorMsg struct {
	action string
	err    error
}

type recentMsg struct {
	queries []string
}

type unauthorizedMsg struct{}

type statusMsg struct {
	message string
}

type clearStatusMsg struct {
	seq int
}

func initialModel(b Backend, s storage.Storage, log logrus.FieldLogger, screen *listing.Screen, editorOpts []editor.Option) appModel {
	search := textinput.New()
	search.Placeholder = "Search stories"
	search.Prompt = "/"
	search.CharLimit = 200

	from := textinput.New()
	from.Placeholder = "YYYY-MM-DD"
	from.Prompt = "From: "
	from.CharLimit = 10
	to := textinput.New()
	to.Placeholder = "YYYY-MM-DD"
	to.Prompt = "To:   "
	to.CharLimit = 10

	return appModel{
		screen:     screen,
		api:        b,
		storage:    s,
		log:        log,
		editorOpts: editorOpts,
		snap:       screen.Snapshot(),
		search:     search,
		dateFrom:   from,
		dateTo:     to,
		recentIdx:  -1,
		width:      80,
		height:     24,
	}
}

func (m appModel) Init() tea.Cmd {
	return m.screenCmd("", m.screen.Mount)
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeForm()
		return m, nil

	case unauthorizedMsg:
		m.loggedOut = true
		return m, tea.Quit

	case screenMsg:
		m.busy = false
		m.snap = m.screen.Snapshot()
		m.clampSelection()
		if m.overlay == overlayViewer && m.snap.Viewing == nil {
			m.overlay = overlayNone
		}
		return m.handleResult(msg.action, msg.err)

	case editorMsg:
		m.busy = false
		m.snap = m.screen.Snapshot()
		m.clampSelection()
		if m.form != nil {
			if m.form.editor.Closed() {
				m.closeForm()
			} else {
				m.form.syncImage()
			}
		}
		return m.handleResult(msg.action, msg.err)

	case recentMsg:
		m.recent = msg.queries
		m.recentIdx = -1
		return m, nil

	case statusMsg:
		return m.setStatus(msg.message)

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.statusMsg = ""
		}
		return m, nil

	case tea.KeyMsg:
		switch m.overlay {
		case overlaySearch:
			return m.handleSearchKey(msg)
		case overlayDate:
			return m.handleDateKey(msg)
		case overlayConfirm:
			return m.handleDeleteConfirmation(msg)
		case overlayViewer:
			return m.handleViewerKey(msg)
		case overlayEditor:
			return m.handleEditorKey(msg)
		}
		return m.handleListKey(msg)
	}

	if m.overlay == overlayEditor && m.form != nil {
		return m, m.form.update(msg)
	}
	return m, nil
}

func (m appModel) handleResult(action string, err error) (tea.Model, tea.Cmd) {
	switch {
	case err == nil:
		if action == "" {
			return m, nil
		}
		return m.setStatus(action)
	case errors.Is(err, model.ErrUnauthorized):
		m.loggedOut = true
		return m, tea.Quit
	case errors.Is(err, listing.ErrStale):
		// A newer fetch already owns the list.
		return m, nil
	case errors.Is(err, model.ErrBusy):
		return m.setStatus("Still working on the previous request")
	}
	m.log.WithError(err).WithField("action", action).Warn("request failed")
	if m.overlay == overlayEditor {
		// The editor shows its own message.
		return m, nil
	}
	return m.setStatus("Error: " + api.UserMessage(err))
}

func (m appModel) setStatus(message string) (tea.Model, tea.Cmd) {
	m.statusSeq++
	m.statusMsg = message
	if message == "" {
		return m, nil
	}
	seq := m.statusSeq
	return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}

// screenCmd runs op off the UI goroutine and reports it as a screenMsg.
func (m appModel) screenCmd(action string, op func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return screenMsg{action: action, err: op(context.Background())}
	}
}

func (m appModel) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "j", "down":
		if m.selected < len(m.snap.Stories)-1 {
			m.selected++
		}
		return m, nil

	case "k", "up":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case "g", "home":
		m.selected = 0
		return m, nil

	case "G", "end":
		m.selected = max(len(m.snap.Stories)-1, 0)
		return m, nil

	case "enter":
		story, ok := m.current()
		if !ok {
			return m, nil
		}
		m.screen.OpenViewer(story)
		m.snap = m.screen.Snapshot()
		m.overlay = overlayViewer
		return m, nil

	case "f":
		story, ok := m.current()
		if !ok {
			return m, nil
		}
		return m, m.toggleFavourite(story)

	case "e":
		story, ok := m.current()
		if !ok {
			return m, nil
		}
		return m.openEditor(editor.KindEdit, &story, overlayNone)

	case "a":
		return m.openEditor(editor.KindAdd, nil, overlayNone)

	case "r", "delete":
		story, ok := m.current()
		if !ok {
			return m, nil
		}
		return m.promptDelete(story, overlayNone)

	case "/":
		m.overlay = overlaySearch
		m.search.SetValue(m.snap.View.Query)
		m.search.CursorEnd()
		focus := m.search.Focus()
		return m, tea.Batch(focus, m.loadRecent())

	case "d":
		m.overlay = overlayDate
		m.dateFrom.SetValue(formatInputDate(m.snap.PendingFrom))
		m.dateTo.SetValue(formatInputDate(m.snap.PendingTo))
		m.dateFocus = 0
		m.dateTo.Blur()
		focus := m.dateFrom.Focus()
		return m, focus

	case "c", "esc":
		if m.snap.View.Mode == listing.ModeAll && m.snap.PendingFrom.IsZero() && m.snap.PendingTo.IsZero() {
			return m, nil
		}
		m.selected = 0
		return m, m.screenCmd("", m.screen.ClearFilters)

	case "ctrl+l":
		return m, m.screenCmd("", m.screen.Refresh)

	case "?":
		return m.setStatus("j/k move  enter view  a add  e edit  f favourite  r remove  / search  d dates  c clear  q quit")
	}
	return m, nil
}

func (m appModel) current() (model.Story, bool) {
	if m.selected < 0 || m.selected >= len(m.snap.Stories) {
		return model.Story{}, false
	}
	return m.snap.Stories[m.selected], true
}

func (m *appModel) clampSelection() {
	if m.selected >= len(m.snap.Stories) {
		m.selected = len(m.snap.Stories) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m appModel) toggleFavourite(story model.Story) tea.Cmd {
	action := "Added to favourites"
	if story.IsFavourite {
		action = "Removed from favourites"
	}
	return m.screenCmd(action, func(ctx context.Context) error {
		return m.screen.ToggleFavourite(ctx, story)
	})
}

func (m appModel) loadRecent() tea.Cmd {
	return func() tea.Msg {
		queries, err := m.storage.RecentSearches(context.Background(), recentLimit)
		if err != nil {
			m.log.WithError(err).Debug("load recent searches")
		}
		return recentMsg{queries: queries}
	}
}

func (m appModel) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.overlay = overlayNone
		m.search.Blur()
		return m, nil

	case "enter":
		m.overlay = overlayNone
		m.search.Blur()
		query := m.search.Value()
		m.selected = 0
		return m, m.screenCmd("", func(ctx context.Context) error {
			return m.screen.Search(ctx, query)
		})

	case "up":
		if len(m.recent) == 0 {
			return m, nil
		}
		if m.recentIdx < len(m.recent)-1 {
			m.recentIdx++
		}
		m.search.SetValue(m.recent[m.recentIdx])
		m.search.CursorEnd()
		return m, nil

	case "down":
		if m.recentIdx <= 0 {
			m.recentIdx = -1
			m.search.SetValue("")
			return m, nil
		}
		m.recentIdx--
		m.search.SetValue(m.recent[m.recentIdx])
		m.search.CursorEnd()
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m appModel) handleDateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.overlay = overlayNone
		m.dateFrom.Blur()
		m.dateTo.Blur()
		return m, nil

	case "tab", "shift+tab", "up", "down":
		m.dateFocus = 1 - m.dateFocus
		var focus tea.Cmd
		if m.dateFocus == 0 {
			m.dateTo.Blur()
			focus = m.dateFrom.Focus()
		} else {
			m.dateFrom.Blur()
			focus = m.dateTo.Focus()
		}
		return m, focus

	case "enter":
		from, err := parseInputDate(m.dateFrom.Value())
		if err != nil {
			return m.setStatus(err.Error())
		}
		to, err := parseInputDate(m.dateTo.Value())
		if err != nil {
			return m.setStatus(err.Error())
		}
		m.overlay = overlayNone
		m.dateFrom.Blur()
		m.dateTo.Blur()
		m.selected = 0
		if from.IsZero() != to.IsZero() {
			// Stored locally only; nothing is fetched.
			if err := m.screen.SelectDateRange(context.Background(), from, to); err != nil {
				return m.handleResult("", err)
			}
			m.snap = m.screen.Snapshot()
			return m.setStatus("Pick both dates to filter")
		}
		return m, m.screenCmd("", func(ctx context.Context) error {
			return m.screen.SelectDateRange(ctx, from, to)
		})
	}

	var cmd tea.Cmd
	if m.dateFocus == 0 {
		m.dateFrom, cmd = m.dateFrom.Update(msg)
	} else {
		m.dateTo, cmd = m.dateTo.Update(msg)
	}
	return m, cmd
}

func (m appModel) handleViewerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	story := m.snap.Viewing
	if story == nil {
		m.overlay = overlayNone
		return m, nil
	}
	switch msg.String() {
	case "esc", "q", "enter":
		m.screen.CloseViewer()
		m.snap = m.screen.Snapshot()
		m.overlay = overlayNone
		return m, nil
	case "f":
		return m, m.toggleFavourite(*story)
	case "e":
		st := *story
		return m.openEditor(editor.KindEdit, &st, overlayViewer)
	case "r", "delete":
		return m.promptDelete(*story, overlayViewer)
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m appModel) promptDelete(story model.Story, back overlay) (tea.Model, tea.Cmd) {
	m.deleteTarget = story
	m.back = back
	m.overlay = overlayConfirm
	return m, nil
}

func (m appModel) handleDeleteConfirmation(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		story := m.deleteTarget
		m.deleteTarget = model.Story{}
		m.overlay = overlayNone
		m.selected = 0
		return m, m.screenCmd("Story deleted", func(ctx context.Context) error {
			return m.screen.DeleteStory(ctx, story)
		})

	case "n", "N", "esc":
		m.deleteTarget = model.Story{}
		m.overlay = m.back
		return m, nil
	}
	return m, nil
}

func (m appModel) openEditor(kind editor.Kind, story *model.Story, back overlay) (tea.Model, tea.Cmd) {
	opts := append([]editor.Option{
		editor.WithLogger(m.log),
		editor.OnSaved(m.afterSave),
	}, m.editorOpts...)
	ed, err := editor.New(m.api, kind, story, opts...)
	if err != nil {
		return m.setStatus(fmt.Sprintf("Error: %v", err))
	}
	m.form = newStoryForm(ed, m.width)
	m.back = back
	m.overlay = overlayEditor
	return m, m.form.focus()
}

// afterSave keeps an open viewer on the saved story and re-derives the list.
func (m appModel) afterSave(ctx context.Context, saved *model.Story) error {
	if v := m.screen.Snapshot().Viewing; v != nil && v.ID == saved.ID {
		m.screen.OpenViewer(*saved)
	}
	return m.screen.Refresh(ctx)
}

func (m *appModel) closeForm() {
	m.form = nil
	m.overlay = m.back
	if m.overlay == overlayViewer && m.snap.Viewing == nil {
		m.overlay = overlayNone
	}
}

func (m *appModel) resizeForm() {
	if m.form != nil {
		m.form.resize(m.width)
	}
}

func (m appModel) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeForm()
		return m, nil

	case "ctrl+c":
		return m, tea.Quit

	case "ctrl+s":
		if m.busy {
			return m.setStatus("Saving…")
		}
		if err := m.form.apply(); err != nil {
			m.form.err = err.Error()
			return m, nil
		}
		m.form.err = ""
		m.busy = true
		ed := m.form.editor
		action := "Story added"
		if ed.Kind() == editor.KindEdit {
			action = "Story updated"
		}
		return m, func() tea.Msg {
			return editorMsg{action: action, err: ed.Submit(context.Background())}
		}

	case "ctrl+x":
		if m.busy {
			return m, nil
		}
		if err := m.form.apply(); err != nil {
			m.form.err = err.Error()
			return m, nil
		}
		m.busy = true
		ed := m.form.editor
		return m, func() tea.Msg {
			return editorMsg{err: ed.RemoveImage(context.Background())}
		}

	case "tab":
		return m, m.form.next(1)

	case "shift+tab":
		return m, m.form.next(-1)
	}
	return m, m.form.update(msg)
}

func formatInputDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func parseInputDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// Run starts the TUI application.
func Run(b Backend, s storage.Storage, log logrus.FieldLogger, editorOpts ...editor.Option) (loggedOut bool, err error) {
	var p *tea.Program
	screen := listing.NewScreen(b, s,
		listing.WithLogger(log),
		listing.OnUnauthorized(func() {
			if p != nil {
				go p.Send(unauthorizedMsg{})
			}
		}),
	)
	p = tea.NewProgram(initialModel(b, s, log, screen, editorOpts), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	if fm, ok := final.(appModel); ok {
		return fm.loggedOut, nil
	}
	return false, nil
}
