// Package editor creates and updates stories, including image upload,
// replacement and removal.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bunchhieng/travelog/internal/api"
	"github.com/bunchhieng/travelog/internal/model"
	"github.com/sirupsen/logrus"
)

// ErrPartialImageRemoval means the stored image was deleted but the story
// still references it. The next submit sends an empty image reference.
var ErrPartialImageRemoval = errors.New("image removed but story not updated")

// StoryAPI is the part of the backend the editor uses.
type StoryAPI interface {
	CreateStory(ctx context.Context, in model.StoryInput) (*model.Story, error)
	UpdateStory(ctx context.Context, id string, in model.StoryInput) (*model.Story, error)
	UploadImage(ctx context.Context, path string) (string, error)
	DeleteImage(ctx context.Context, imageURL string) error
}

// Kind selects between creating and updating.
type Kind int

const (
	KindAdd Kind = iota
	KindEdit
)

func (k Kind) String() string {
	if k == KindEdit {
		return "edit"
	}
	return "add"
}

// ParseKind parses "add" or "edit".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "add", "":
		return KindAdd, nil
	case "edit":
		return KindEdit, nil
	}
	return KindAdd, fmt.Errorf("unknown editor type %q", s)
}

// Image is the image selection. Path is a local file not yet uploaded;
// URL is an image already stored by the backend.
type Image struct {
	URL  string
	Path string
}

// IsLocal reports whether the selection is an unsaved local file.
func (i Image) IsLocal() bool {
	return i.Path != ""
}

// IsEmpty reports whether no image is selected.
func (i Image) IsEmpty() bool {
	return i.URL == "" && i.Path == ""
}

// Form holds the editable fields. A zero VisitedDate means "now" at submit.
type Form struct {
	Title       string
	Story       string
	Locations   []string
	VisitedDate time.Time
	Image       Image
}

// Editor is one open editor panel.
type Editor struct {
	kind         Kind
	api          StoryAPI
	log          logrus.FieldLogger
	now          func() time.Time
	imageRetries int
	retryDelay   time.Duration
	onSaved      func(ctx context.Context, story *model.Story) error
	onClose      func()

	mu       sync.Mutex
	form     Form
	story    *model.Story
	message  string
	busy     bool
	orphaned bool
	closed   bool
}

// Option configures an Editor.
type Option func(*Editor)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Editor) { e.log = l }
}

// WithClock sets the source of "now" for default visited dates.
func WithClock(now func() time.Time) Option {
	return func(e *Editor) { e.now = now }
}

// WithImageRetries sets how many times the story update after an image
// removal is retried, and the pause between attempts.
func WithImageRetries(n int, delay time.Duration) Option {
	return func(e *Editor) {
		if n < 0 {
			n = 0
		}
		e.imageRetries = n
		e.retryDelay = delay
	}
}

// OnSaved registers the parent refresh run after a successful save.
func OnSaved(fn func(ctx context.Context, story *model.Story) error) Option {
	return func(e *Editor) { e.onSaved = fn }
}

// OnClose registers the callback that closes the editor panel.
func OnClose(fn func()) Option {
	return func(e *Editor) { e.onClose = fn }
}

// New opens an editor. story is nil in add mode.
func New(client StoryAPI, kind Kind, story *model.Story, opts ...Option) (*Editor, error) {
	if kind == KindEdit && story == nil {
		return nil, fmt.Errorf("edit needs a story")
	}
	e := &Editor{
		kind:         kind,
		api:          client,
		log:          logrus.StandardLogger(),
		now:          time.Now,
		imageRetries: 2,
		retryDelay:   300 * time.Millisecond,
		form:         Form{Locations: []string{}},
	}
	if story != nil {
		st := *story
		e.story = &st
		e.form = Form{
			Title:       st.Title,
			Story:       st.Story,
			Locations:   append([]string{}, st.VisitedLocation...),
			VisitedDate: st.VisitedDate.Time,
			Image:       Image{URL: st.ImageURL},
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Kind returns whether the editor adds or edits.
func (e *Editor) Kind() Kind {
	return e.kind
}

// Form returns a copy of the fields.
func (e *Editor) Form() Form {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.form
	f.Locations = append([]string{}, e.form.Locations...)
	return f
}

// SetForm replaces the fields.
func (e *Editor) SetForm(f Form) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f.Locations == nil {
		f.Locations = []string{}
	}
	e.form = f
}

// Story returns the story being edited, as last confirmed by the server.
func (e *Editor) Story() *model.Story {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.story == nil {
		return nil
	}
	st := *e.story
	return &st
}

// Message is the error text to show next to the form, if any.
func (e *Editor) Message() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.message
}

// Closed reports whether a save closed the editor.
func (e *Editor) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Submit validates the form and creates or updates the story.
// Validation failures never reach the network.
func (e *Editor) Submit(ctx context.Context) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return model.ErrBusy
	}
	form := e.form
	draft := model.Story{Title: form.Title, Story: form.Story}
	if err := draft.Validate(); err != nil {
		e.message = api.UserMessage(err)
		e.mu.Unlock()
		return err
	}
	e.message = ""
	e.busy = true
	e.mu.Unlock()

	var saved *model.Story
	var err error
	if e.kind == KindEdit {
		saved, err = e.update(ctx, form)
	} else {
		saved, err = e.create(ctx, form)
	}

	e.mu.Lock()
	e.busy = false
	if err != nil {
		e.message = api.UserMessage(err)
		e.mu.Unlock()
		e.log.WithError(err).WithField("kind", e.kind).Warn("save story failed")
		return err
	}
	e.story = saved
	e.orphaned = false
	e.closed = true
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{"kind": e.kind, "story": saved.ID}).Info("story saved")
	if e.onSaved != nil {
		if rerr := e.onSaved(ctx, saved); rerr != nil {
			e.log.WithError(rerr).Warn("refresh after save")
		}
	}
	if e.onClose != nil {
		e.onClose()
	}
	return nil
}

func (e *Editor) visitedDate(f Form) model.EpochMillis {
	if f.VisitedDate.IsZero() {
		return model.Millis(e.now())
	}
	return model.Millis(f.VisitedDate)
}

func (e *Editor) create(ctx context.Context, f Form) (*model.Story, error) {
	imageURL := ""
	if f.Image.IsLocal() {
		uploaded, err := e.api.UploadImage(ctx, f.Image.Path)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		imageURL = uploaded
	}

	return e.api.CreateStory(ctx, model.StoryInput{
		Title:           f.Title,
		Story:           f.Story,
		ImageURL:        imageURL,
		VisitedLocation: f.Locations,
		VisitedDate:     e.visitedDate(f),
	})
}

func (e *Editor) update(ctx context.Context, f Form) (*model.Story, error) {
	e.mu.Lock()
	id := e.story.ID
	imageURL := e.story.ImageURL
	if e.orphaned {
		imageURL = ""
	}
	e.mu.Unlock()

	if f.Image.IsLocal() {
		uploaded, err := e.api.UploadImage(ctx, f.Image.Path)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		if uploaded != "" {
			imageURL = uploaded
		}
	}

	return e.api.UpdateStory(ctx, id, model.StoryInput{
		Title:           f.Title,
		Story:           f.Story,
		ImageURL:        imageURL,
		VisitedLocation: f.Locations,
		VisitedDate:     e.visitedDate(f),
	})
}

// RemoveImage deletes the stored image and saves the story without it.
// An unsaved local selection is simply dropped.
func (e *Editor) RemoveImage(ctx context.Context) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return model.ErrBusy
	}
	form := e.form
	if e.story == nil || form.Image.IsLocal() || e.story.ImageURL == "" || e.orphaned {
		e.form.Image = Image{}
		e.mu.Unlock()
		return nil
	}
	id := e.story.ID
	imageURL := e.story.ImageURL
	e.busy = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.busy = false
		e.mu.Unlock()
	}()

	log := e.log.WithFields(logrus.Fields{"story": id, "image": imageURL})
	if err := e.api.DeleteImage(ctx, imageURL); err != nil {
		e.setMessage(api.UserMessage(err))
		log.WithError(err).Warn("delete image failed")
		return fmt.Errorf("delete image: %w", err)
	}

	e.mu.Lock()
	e.orphaned = true
	e.mu.Unlock()

	in := model.StoryInput{
		Title:           form.Title,
		Story:           form.Story,
		ImageURL:        "",
		VisitedLocation: form.Locations,
		VisitedDate:     model.Millis(e.now()),
	}

	var saved *model.Story
	var err error
	for attempt := 0; attempt <= e.imageRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.retryDelay):
			}
			if ctx.Err() != nil {
				err = ctx.Err()
				break
			}
		}
		saved, err = e.api.UpdateStory(ctx, id, in)
		if err == nil {
			break
		}
		log.WithError(err).WithField("attempt", attempt+1).Warn("update after image removal failed")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.form.Image = Image{}
	if err != nil {
		e.message = "Image was removed but the story could not be updated: " + api.UserMessage(err)
		return fmt.Errorf("%w: %w", ErrPartialImageRemoval, err)
	}
	e.story = saved
	e.orphaned = false
	e.message = ""
	log.Info("image removed")
	return nil
}

func (e *Editor) setMessage(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.message = msg
}
