package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/bunchhieng/travelog/internal/api"
	"github.com/bunchhieng/travelog/internal/editor"
	"github.com/bunchhieng/travelog/internal/listing"
	"github.com/bunchhieng/travelog/internal/model"
	"github.com/bunchhieng/travelog/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// Backend is the story API the commands drive.
type Backend interface {
	listing.StoryAPI
	editor.StoryAPI
	SetToken(token string)
}

// Commands handles all CLI command execution.
type Commands struct {
	api        Backend
	storage    storage.Storage
	out        io.Writer
	log        logrus.FieldLogger
	editorOpts []editor.Option
}

// Option configures Commands.
type Option func(*Commands)

// WithLogger sets the logger passed down to screens and editors.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Commands) { c.log = l }
}

// WithEditorOptions adds options to every editor the commands open.
func WithEditorOptions(opts ...editor.Option) Option {
	return func(c *Commands) { c.editorOpts = append(c.editorOpts, opts...) }
}

// NewCommands creates a new Commands instance writing to out.
func NewCommands(b Backend, s storage.Storage, out io.Writer, opts ...Option) *Commands {
	c := &Commands{api: b, storage: s, out: out, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Commands) screen() *listing.Screen {
	return listing.NewScreen(c.api, c.storage, listing.WithLogger(c.log))
}

func (c *Commands) newEditor(kind editor.Kind, story *model.Story) (*editor.Editor, error) {
	opts := append([]editor.Option{editor.WithLogger(c.log)}, c.editorOpts...)
	return editor.New(c.api, kind, story, opts...)
}

// Login stores token after the backend accepts it.
func (c *Commands) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token required")
	}
	c.api.SetToken(token)
	user, err := c.api.GetUser(ctx)
	if err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			return fmt.Errorf("token rejected by server")
		}
		return fmt.Errorf("login: %w", err)
	}
	session := &model.Session{Token: token, User: user, SavedAt: time.Now()}
	if err := c.storage.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Fprintf(c.out, "%sLogged in%s as %s%s%s\n", colorGreen, colorReset, colorBold, displayName(user), colorReset)
	return nil
}

// Logout forgets the local session.
func (c *Commands) Logout(ctx context.Context) error {
	if err := c.storage.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	fmt.Fprintln(c.out, "Logged out.")
	return nil
}

// Whoami prints the profile of the logged-in user.
func (c *Commands) Whoami(ctx context.Context) error {
	user, err := c.api.GetUser(ctx)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if err := c.storage.SaveUser(ctx, user); err != nil {
		c.log.WithError(err).Debug("cache user")
	}
	fmt.Fprintf(c.out, "%s%s%s <%s>\n", colorBold, displayName(user), colorReset, user.Email)
	return nil
}

func displayName(u *model.User) string {
	if u == nil {
		return "-"
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

// List prints every story, loading the profile alongside.
func (c *Commands) List(ctx context.Context) error {
	sc := c.screen()
	if err := sc.Mount(ctx); err != nil {
		return err
	}
	return c.printSnapshot(sc.Snapshot())
}

// Search prints the stories matching query.
func (c *Commands) Search(ctx context.Context, query string) error {
	sc := c.screen()
	if err := sc.Search(ctx, query); err != nil {
		return err
	}
	return c.printSnapshot(sc.Snapshot())
}

// Filter prints the stories visited between from and to, inclusive of both days.
func (c *Commands) Filter(ctx context.Context, from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("both --from and --to are required")
	}
	sc := c.screen()
	if err := sc.SelectDateRange(ctx, from, to); err != nil {
		return err
	}
	return c.printSnapshot(sc.Snapshot())
}

// Show prints one story in full.
func (c *Commands) Show(ctx context.Context, id string) error {
	story, err := c.find(ctx, id)
	if err != nil {
		return err
	}
	printStory(c.out, story)
	return nil
}

// StoryFlags are the editable fields given on the command line. Nil
// pointers leave the field untouched when editing.
type StoryFlags struct {
	Title     *string
	Story     *string
	Locations *string
	Date      *string
	Image     *string
}

func (f StoryFlags) apply(form *editor.Form) error {
	if f.Title != nil {
		form.Title = *f.Title
	}
	if f.Story != nil {
		form.Story = *f.Story
	}
	if f.Locations != nil {
		form.Locations = model.ParseLocations(*f.Locations)
	}
	if f.Date != nil && *f.Date != "" {
		d, err := ParseDate(*f.Date)
		if err != nil {
			return err
		}
		form.VisitedDate = d
	}
	if f.Image != nil && *f.Image != "" {
		form.Image = editor.Image{Path: *f.Image}
	}
	return nil
}

// Add creates a story.
func (c *Commands) Add(ctx context.Context, flags StoryFlags) error {
	ed, err := c.newEditor(editor.KindAdd, nil)
	if err != nil {
		return err
	}
	return c.submit(ctx, ed, flags, "Added")
}

// Edit updates the fields of story id that were given.
func (c *Commands) Edit(ctx context.Context, id string, flags StoryFlags) error {
	story, err := c.find(ctx, id)
	if err != nil {
		return err
	}
	ed, err := c.newEditor(editor.KindEdit, story)
	if err != nil {
		return err
	}
	return c.submit(ctx, ed, flags, "Updated")
}

func (c *Commands) submit(ctx context.Context, ed *editor.Editor, flags StoryFlags, verb string) error {
	form := ed.Form()
	if err := flags.apply(&form); err != nil {
		return err
	}
	ed.SetForm(form)
	if err := ed.Submit(ctx); err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			return err
		}
		return errors.New(ed.Message())
	}
	saved := ed.Story()
	fmt.Fprintf(c.out, "%s%s%s story %s%s%s: %s\n", colorGreen, verb, colorReset, colorBold, saved.ID, colorReset, saved.Title)
	return nil
}

// Fav flips the favourite flag of story id.
func (c *Commands) Fav(ctx context.Context, id string) error {
	story, err := c.find(ctx, id)
	if err != nil {
		return err
	}
	if err := c.screen().ToggleFavourite(ctx, *story); err != nil {
		return err
	}
	if story.IsFavourite {
		fmt.Fprintf(c.out, "%sUnmarked%s story %s%s%s as favourite.\n", colorYellow, colorReset, colorBold, id, colorReset)
	} else {
		fmt.Fprintf(c.out, "%sMarked%s story %s%s%s as favourite.\n", colorGreen, colorReset, colorBold, id, colorReset)
	}
	return nil
}

// Remove deletes one or more stories.
func (c *Commands) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return fmt.Errorf("at least one ID required")
	}

	var deleted []string
	var failed []string
	var known []model.Story

	for _, id := range ids {
		if !model.ValidateStoryID(id) {
			failed = append(failed, fmt.Sprintf("%s (invalid format)", id))
			continue
		}
		err := c.api.DeleteStory(ctx, id)
		switch {
		case err == nil:
			deleted = append(deleted, id)
		case errors.Is(err, model.ErrUnauthorized):
			return err
		case errors.Is(err, model.ErrNotFound):
			if known == nil {
				known, _ = c.api.ListStories(ctx)
			}
			msg := fmt.Sprintf("%s (not found)", id)
			if suggestion := suggestID(id, known); suggestion != "" {
				msg += fmt.Sprintf(" - %sDid you mean:%s %s%s%s?", colorYellow, colorReset, colorBold, suggestion, colorReset)
			}
			failed = append(failed, msg)
		default:
			failed = append(failed, fmt.Sprintf("%s (%s)", id, api.UserMessage(err)))
		}
	}

	if len(deleted) == 1 {
		fmt.Fprintf(c.out, "%sDeleted%s story %s%s%s.\n", colorRed, colorReset, colorBold, deleted[0], colorReset)
	} else if len(deleted) > 1 {
		fmt.Fprintf(c.out, "%sDeleted%s %d stories: %s%s%s\n", colorRed, colorReset, len(deleted), colorBold, strings.Join(deleted, ", "), colorReset)
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to delete: %s", strings.Join(failed, ", "))
	}
	return nil
}

// RemoveImage deletes the image of story id and saves the story without it.
func (c *Commands) RemoveImage(ctx context.Context, id string) error {
	story, err := c.find(ctx, id)
	if err != nil {
		return err
	}
	if !story.HasImage() {
		return fmt.Errorf("story %s has no image", id)
	}
	ed, err := c.newEditor(editor.KindEdit, story)
	if err != nil {
		return err
	}
	if err := ed.RemoveImage(ctx); err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			return err
		}
		return errors.New(ed.Message())
	}
	fmt.Fprintf(c.out, "%sRemoved%s image from story %s%s%s.\n", colorRed, colorReset, colorBold, id, colorReset)
	return nil
}

// History prints recently submitted search queries.
func (c *Commands) History(ctx context.Context, limit int) error {
	queries, err := c.storage.RecentSearches(ctx, limit)
	if err != nil {
		return fmt.Errorf("recent searches: %w", err)
	}
	if len(queries) == 0 {
		fmt.Fprintln(c.out, "No recent searches.")
		return nil
	}
	for _, q := range queries {
		fmt.Fprintln(c.out, q)
	}
	return nil
}

// find looks story id up in the full list. The backend has no single-story read.
func (c *Commands) find(ctx context.Context, id string) (*model.Story, error) {
	if !model.ValidateStoryID(id) {
		return nil, fmt.Errorf("invalid ID format: %s", id)
	}
	stories, err := c.api.ListStories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	for i := range stories {
		if stories[i].ID == id {
			return &stories[i], nil
		}
	}
	msg := fmt.Sprintf("story %s%s%s not found", colorBold, id, colorReset)
	if suggestion := suggestID(id, stories); suggestion != "" {
		msg += fmt.Sprintf("\n\n%sDid you mean:%s %s%s%s?", colorYellow, colorReset, colorBold, suggestion, colorReset)
	}
	return nil, fmt.Errorf("%s: %w", msg, model.ErrNotFound)
}

// suggestID returns the closest known ID within a few edits of id.
func suggestID(id string, stories []model.Story) string {
	bestMatch := ""
	minDistance := len(id) + 1
	for _, st := range stories {
		distance := levenshtein.ComputeDistance(id, st.ID)
		if distance < minDistance && distance <= 3 {
			minDistance = distance
			bestMatch = st.ID
		}
	}
	return bestMatch
}

func (c *Commands) printSnapshot(snap listing.Snapshot) error {
	if snap.User != nil {
		fmt.Fprintf(c.out, "%s%s%s\n", colorDim, displayName(snap.User), colorReset)
	}
	fmt.Fprintf(c.out, "%s%s%s\n", colorBold, snap.View.Title(), colorReset)
	if len(snap.Stories) == 0 {
		fmt.Fprintln(c.out, snap.View.EmptyMessage())
		return nil
	}
	printStoriesTable(c.out, snap.Stories)
	return nil
}

func printStory(w io.Writer, st *model.Story) {
	fav := ""
	if st.IsFavourite {
		fav = colorRed + " ♥" + colorReset
	}
	fmt.Fprintf(w, "%s%s%s%s\n", colorBold, st.Title, colorReset, fav)
	fmt.Fprintf(w, "%s%s · visited %s (%s)%s\n", colorDim, st.ID, formatDate(st.VisitedDate.Time), humanize.Time(st.VisitedDate.Time), colorReset)
	if len(st.VisitedLocation) > 0 {
		fmt.Fprintf(w, "%s%s%s\n", colorCyan, st.Locations(), colorReset)
	}
	if st.HasImage() {
		fmt.Fprintf(w, "image: %s\n", st.ImageURL)
	}
	if !st.CreatedOn.IsZero() {
		fmt.Fprintf(w, "%sadded %s%s\n", colorDim, humanize.Time(st.CreatedOn.Time), colorReset)
	}
	fmt.Fprintf(w, "\n%s\n", st.Story)
}

const (
	maxTitleLen     = 40
	maxLocationsLen = 30
	ellipsisLen     = 3
)

func printStoriesTable(w io.Writer, stories []model.Story) {
	// Calculate column widths based on header and content
	colIDLen := len("ID")
	colTitleLen := len("TITLE")
	colVisitedLen := len("VISITED")
	colLocationsLen := len("LOCATIONS")
	colFavLen := len("FAV")

	for _, st := range stories {
		if idLen := len(st.ID); idLen > colIDLen {
			colIDLen = idLen
		}
		if n := truncateLen(len(st.Title), maxTitleLen); n > colTitleLen {
			colTitleLen = n
		}
		if n := len(formatDate(st.VisitedDate.Time)); n > colVisitedLen {
			colVisitedLen = n
		}
		if n := truncateLen(len(st.Locations()), maxLocationsLen); n > colLocationsLen {
			colLocationsLen = n
		}
	}

	// Add padding (2 spaces: one before, one after)
	colIDLen += 2
	colTitleLen += 2
	colVisitedLen += 2
	colLocationsLen += 2
	colFavLen += 2

	totalWidth := colIDLen + colTitleLen + colVisitedLen + colLocationsLen + colFavLen + 4

	header := fmt.Sprintf("%s│%s %s%-*s%s │ %s%-*s%s │ %s%-*s%s │ %s%-*s%s │ %s%-*s%s %s│%s",
		colorDim, colorReset,
		colorBold, colIDLen-2, "ID", colorReset,
		colorBold, colTitleLen-2, "TITLE", colorReset,
		colorBold, colVisitedLen-2, "VISITED", colorReset,
		colorBold, colLocationsLen-2, "LOCATIONS", colorReset,
		colorBold, colFavLen-2, "FAV", colorReset,
		colorDim, colorReset)

	separator := fmt.Sprintf("%s├%s┼%s┼%s┼%s┼%s┤%s",
		colorDim,
		strings.Repeat("─", colIDLen),
		strings.Repeat("─", colTitleLen),
		strings.Repeat("─", colVisitedLen),
		strings.Repeat("─", colLocationsLen),
		strings.Repeat("─", colFavLen),
		colorReset)

	fmt.Fprintf(w, "%s┌%s┐%s\n", colorDim, strings.Repeat("─", totalWidth), colorReset)
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, separator)

	for _, st := range stories {
		fav := ""
		if st.IsFavourite {
			fav = "♥"
		}
		row := fmt.Sprintf("%s│%s %s%-*s%s │ %-*s │ %s%-*s%s │ %s%-*s%s │ %s%-*s%s %s│%s",
			colorDim, colorReset,
			colorBold+colorCyan, colIDLen-2, st.ID, colorReset,
			colTitleLen-2, truncateString(st.Title, colTitleLen-2),
			colorDim, colVisitedLen-2, formatDate(st.VisitedDate.Time), colorReset,
			colorYellow, colLocationsLen-2, truncateString(st.Locations(), colLocationsLen-2), colorReset,
			colorRed, colFavLen-2, fav, colorReset,
			colorDim, colorReset)
		fmt.Fprintln(w, row)
	}

	fmt.Fprintf(w, "%s└%s┘%s\n", colorDim, strings.Repeat("─", totalWidth), colorReset)
}

func truncateLen(n, max int) int {
	if n > max {
		return max
	}
	return n
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-ellipsisLen] + "..."
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("02 Jan 2006")
}

// ParseID validates an ID string format.
func ParseID(s string) (string, error) {
	if !model.ValidateStoryID(s) {
		return "", fmt.Errorf("invalid ID format: %s", s)
	}
	return s, nil
}

// ParseDate parses a YYYY-MM-DD date in local time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
