// Package listing keeps the story list consistent with the active view mode.
//
// Every fetch takes a sequence number; only the response to the latest
// issued fetch may replace the list. Mutations re-derive the list through
// the view the user last asked for.
package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bunchhieng/travelog/internal/model"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrStale is returned when a response arrived after a newer fetch was issued
// and was discarded.
var ErrStale = errors.New("stale response discarded")

// StoryAPI is the part of the backend the list screen uses.
type StoryAPI interface {
	GetUser(ctx context.Context) (*model.User, error)
	ListStories(ctx context.Context) ([]model.Story, error)
	SearchStories(ctx context.Context, query string) ([]model.Story, error)
	FilterStories(ctx context.Context, from, to time.Time) ([]model.Story, error)
	SetFavourite(ctx context.Context, id string, favourite bool) (*model.Story, error)
	DeleteStory(ctx context.Context, id string) error
}

// SessionStore is the local session state the screen may update or wipe.
type SessionStore interface {
	SaveUser(ctx context.Context, user *model.User) error
	RecordSearch(ctx context.Context, query string) error
	Clear(ctx context.Context) error
}

// Snapshot is a copy of the screen state for rendering.
type Snapshot struct {
	View        View
	Stories     []model.Story
	User        *model.User
	Viewing     *model.Story
	PendingFrom time.Time
	PendingTo   time.Time
}

// Screen owns the displayed story list.
type Screen struct {
	api            StoryAPI
	session        SessionStore
	log            logrus.FieldLogger
	onUnauthorized func()

	mu          sync.Mutex
	view        View // view that produced the displayed list
	requested   View // view of the latest issued mode change
	pendingFrom time.Time
	pendingTo   time.Time
	stories     []model.Story
	user        *model.User
	viewing     *model.Story
	seq         uint64
	inflight    map[string]bool
	rejected    bool // set by a 401 until the next Mount
}

// Option configures a Screen.
type Option func(*Screen)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Screen) { s.log = l }
}

// OnUnauthorized registers the redirect run after the session is wiped.
func OnUnauthorized(fn func()) Option {
	return func(s *Screen) { s.onUnauthorized = fn }
}

// NewScreen creates a list screen in the unfiltered view.
func NewScreen(api StoryAPI, session SessionStore, opts ...Option) *Screen {
	s := &Screen{
		api:       api,
		session:   session,
		log:       logrus.StandardLogger(),
		view:      All(),
		requested: All(),
		stories:   []model.Story{},
		inflight:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Screen) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		View:        s.view,
		Stories:     append([]model.Story(nil), s.stories...),
		PendingFrom: s.pendingFrom,
		PendingTo:   s.pendingTo,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	if s.viewing != nil {
		v := *s.viewing
		snap.Viewing = &v
	}
	return snap
}

// Mount loads the user profile and the full list in parallel. A 401 on the
// profile wipes the session whatever the list fetch does.
// Both errors are reported; callers check for model.ErrUnauthorized first.
func (s *Screen) Mount(ctx context.Context) error {
	s.mu.Lock()
	s.rejected = false
	s.mu.Unlock()

	var userErr, listErr error
	var g errgroup.Group
	g.Go(func() error {
		userErr = s.loadUser(ctx)
		return userErr
	})
	g.Go(func() error {
		listErr = s.LoadAll(ctx)
		return listErr
	})
	_ = g.Wait()
	return errors.Join(userErr, listErr)
}

func (s *Screen) loadUser(ctx context.Context) error {
	user, err := s.api.GetUser(ctx)
	if errors.Is(err, model.ErrUnauthorized) {
		s.log.Warn("session rejected, clearing local state")
		s.mu.Lock()
		s.user = nil
		s.stories = []model.Story{}
		s.viewing = nil
		s.view, s.requested = All(), All()
		s.pendingFrom, s.pendingTo = time.Time{}, time.Time{}
		s.seq++
		s.rejected = true
		s.mu.Unlock()
		if cerr := s.session.Clear(ctx); cerr != nil {
			s.log.WithError(cerr).Error("clear session")
		}
		if s.onUnauthorized != nil {
			s.onUnauthorized()
		}
		return fmt.Errorf("load user: %w", err)
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	if err := s.session.SaveUser(ctx, user); err != nil {
		s.log.WithError(err).Debug("cache user")
	}
	return nil
}

// LoadAll replaces the list with every story. The view mode flag is left alone.
func (s *Screen) LoadAll(ctx context.Context) error {
	return s.apply(ctx, All(), false)
}

// Refresh re-derives the list through the latest requested view.
func (s *Screen) Refresh(ctx context.Context) error {
	s.mu.Lock()
	v := s.requested
	s.mu.Unlock()
	return s.apply(ctx, v, true)
}

// Search switches to the search view for query. A blank query clears filters.
func (s *Screen) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ClearFilters(ctx)
	}
	if err := s.apply(ctx, Search(query), true); err != nil {
		return err
	}
	if err := s.session.RecordSearch(ctx, query); err != nil {
		s.log.WithError(err).Debug("record search")
	}
	return nil
}

// SelectDateRange records the picked range. The filter is only fetched once
// both ends are set; a single-ended range stays local.
func (s *Screen) SelectDateRange(ctx context.Context, from, to time.Time) error {
	s.mu.Lock()
	s.pendingFrom, s.pendingTo = from, to
	s.mu.Unlock()

	if from.IsZero() || to.IsZero() {
		return nil
	}
	return s.apply(ctx, DateRange(from, to), true)
}

// ClearFilters returns to the unfiltered view and reloads the list. If the
// reload fails the previous view stays active.
func (s *Screen) ClearFilters(ctx context.Context) error {
	s.mu.Lock()
	s.pendingFrom, s.pendingTo = time.Time{}, time.Time{}
	s.mu.Unlock()
	return s.apply(ctx, All(), true)
}

// ToggleFavourite flips the favourite flag of story, then re-applies the
// current view so a filtered list stays filtered.
func (s *Screen) ToggleFavourite(ctx context.Context, story model.Story) error {
	key := "favourite:" + story.ID
	if !s.begin(key) {
		return model.ErrBusy
	}
	defer s.end(key)

	if _, err := s.api.SetFavourite(ctx, story.ID, !story.IsFavourite); err != nil {
		return fmt.Errorf("toggle favourite: %w", err)
	}
	s.log.WithFields(logrus.Fields{"story": story.ID, "favourite": !story.IsFavourite}).Info("favourite updated")

	s.mu.Lock()
	if s.viewing != nil && s.viewing.ID == story.ID {
		s.viewing.IsFavourite = !story.IsFavourite
	}
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// DeleteStory removes story, closes its viewer and returns to the unfiltered
// list. Deleting ends any active search or date filter.
func (s *Screen) DeleteStory(ctx context.Context, story model.Story) error {
	key := "delete:" + story.ID
	if !s.begin(key) {
		return model.ErrBusy
	}
	defer s.end(key)

	if err := s.api.DeleteStory(ctx, story.ID); err != nil {
		return fmt.Errorf("delete story: %w", err)
	}
	s.log.WithField("story", story.ID).Info("story deleted")

	s.mu.Lock()
	if s.viewing != nil && s.viewing.ID == story.ID {
		s.viewing = nil
	}
	s.mu.Unlock()

	return s.ClearFilters(ctx)
}

// OpenViewer shows story in the read-only viewer.
func (s *Screen) OpenViewer(story model.Story) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewing = &story
}

// CloseViewer hides the viewer.
func (s *Screen) CloseViewer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewing = nil
}

func (s *Screen) fetch(ctx context.Context, v View) ([]model.Story, error) {
	switch v.Mode {
	case ModeSearch:
		return s.api.SearchStories(ctx, v.Query)
	case ModeDateRange:
		return s.api.FilterStories(ctx, v.From, v.To)
	default:
		return s.api.ListStories(ctx)
	}
}

// apply fetches v and replaces the list if no newer fetch was issued
// meanwhile. setMode makes v the active view on success.
func (s *Screen) apply(ctx context.Context, v View, setMode bool) error {
	s.mu.Lock()
	if s.rejected {
		s.mu.Unlock()
		return fmt.Errorf("fetch %s: %w", v.Mode, model.ErrUnauthorized)
	}
	s.seq++
	seq := s.seq
	if setMode {
		s.requested = v
	}
	s.mu.Unlock()

	stories, err := s.fetch(ctx, v)

	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.log.WithFields(logrus.Fields{"view": v.String(), "seq": seq})
	if seq != s.seq {
		log.WithField("latest", s.seq).Debug("discarding stale response")
		return ErrStale
	}
	if err != nil {
		if setMode {
			s.requested = s.view
		}
		return fmt.Errorf("fetch %s: %w", v.Mode, err)
	}
	if stories == nil {
		stories = []model.Story{}
	}
	s.stories = stories
	if setMode {
		s.view = v
	}
	log.WithField("count", len(stories)).Debug("list replaced")
	return nil
}

func (s *Screen) begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[key] {
		return false
	}
	s.inflight[key] = true
	return true
}

func (s *Screen) end(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}
