package editor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bunchhieng/travelog/internal/api"
	"github.com/bunchhieng/travelog/internal/apitest"
	"github.com/bunchhieng/travelog/internal/model"
)

var fixedNow = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	srv     *apitest.Server
	client  *api.Client
	saved   []*model.Story
	closed  int
	options []Option
}

func setup(t *testing.T) *harness {
	h := &harness{srv: apitest.NewServer(t)}
	h.client = api.NewClient(h.srv.URL, api.WithToken(h.srv.Token))
	h.options = []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithImageRetries(2, 0),
		OnSaved(func(ctx context.Context, st *model.Story) error {
			h.saved = append(h.saved, st)
			return nil
		}),
		OnClose(func() { h.closed++ }),
	}
	return h
}

func (h *harness) open(t *testing.T, kind Kind, story *model.Story) *Editor {
	e, err := New(h.client, kind, story, h.options...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func writeImage(t *testing.T, name string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("image-bytes"), 0644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func decodeInput(t *testing.T, body []byte) model.StoryInput {
	var in model.StoryInput
	if err := json.Unmarshal(body, &in); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return in
}

func TestSubmitMissingTitle(t *testing.T) {
	h := setup(t)
	e := h.open(t, KindAdd, nil)
	e.SetForm(Form{Story: "Walked for hours"})

	err := e.Submit(context.Background())
	if !errors.Is(err, model.ErrMissingTitle) {
		t.Fatalf("Expected ErrMissingTitle, got %v", err)
	}
	if e.Message() != model.ErrMissingTitle.Error() {
		t.Errorf("Expected title message, got %q", e.Message())
	}
	if n := len(h.srv.Calls("")); n != 0 {
		t.Errorf("Expected no requests, got %d", n)
	}
}

func TestSubmitMissingStory(t *testing.T) {
	h := setup(t)
	e := h.open(t, KindAdd, nil)
	e.SetForm(Form{Title: "Great Wall"})

	if err := e.Submit(context.Background()); !errors.Is(err, model.ErrMissingStory) {
		t.Fatalf("Expected ErrMissingStory, got %v", err)
	}
	if n := len(h.srv.Calls("")); n != 0 {
		t.Errorf("Expected no requests, got %d", n)
	}
	if h.closed != 0 {
		t.Error("Expected editor to stay open")
	}
}

func TestCreateWithoutImage(t *testing.T) {
	h := setup(t)
	e := h.open(t, KindAdd, nil)
	e.SetForm(Form{Title: "Great Wall", Story: "Walked", Locations: []string{"Beijing"}})

	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if n := len(h.srv.Calls("POST /image-upload")); n != 0 {
		t.Errorf("Expected no upload, got %d", n)
	}
	calls := h.srv.Calls("POST /add-travel-story")
	if len(calls) != 1 {
		t.Fatalf("Expected 1 create call, got %d", len(calls))
	}
	in := decodeInput(t, calls[0].Body)
	if in.ImageURL != "" {
		t.Errorf("Expected empty image reference, got %q", in.ImageURL)
	}
	if in.VisitedDate.Int64() != fixedNow.UnixMilli() {
		t.Errorf("Expected visited date to default to now, got %d", in.VisitedDate.Int64())
	}
	if len(h.saved) != 1 || h.closed != 1 {
		t.Errorf("Expected refresh and close, got saved=%d closed=%d", len(h.saved), h.closed)
	}
	if e.Message() != "" {
		t.Errorf("Expected no message, got %q", e.Message())
	}
}

func TestCreateWithLocalImage(t *testing.T) {
	h := setup(t)
	e := h.open(t, KindAdd, nil)
	visited := time.Date(2023, 10, 5, 0, 0, 0, 0, time.UTC)
	e.SetForm(Form{
		Title:       "Great Wall",
		Story:       "Walked",
		VisitedDate: visited,
		Image:       Image{Path: writeImage(t, "wall.jpg")},
	})

	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	calls := h.srv.Calls("")
	if len(calls) != 2 || calls[0].Route != "POST /image-upload" || calls[1].Route != "POST /add-travel-story" {
		t.Fatalf("Expected upload then create, got %+v", calls)
	}
	want := h.srv.URL + "/uploads/wall.jpg"
	in := decodeInput(t, calls[1].Body)
	if in.ImageURL != want {
		t.Errorf("Expected image %s, got %s", want, in.ImageURL)
	}
	if in.VisitedDate.Int64() != visited.UnixMilli() {
		t.Errorf("Expected chosen visited date, got %d", in.VisitedDate.Int64())
	}
	if h.saved[0].ImageURL != want {
		t.Errorf("Expected created story to reference %s, got %s", want, h.saved[0].ImageURL)
	}
}

func TestEditKeepsExistingImage(t *testing.T) {
	h := setup(t)
	story := h.srv.Seed(model.Story{
		Title:       "Oslo",
		Story:       "Cold",
		ImageURL:    "http://img/oslo.jpg",
		VisitedDate: model.Millis(fixedNow.AddDate(0, -1, 0)),
	})[0]
	e := h.open(t, KindEdit, &story)

	f := e.Form()
	f.Story = "Very cold"
	e.SetForm(f)
	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if n := len(h.srv.Calls("POST /image-upload")); n != 0 {
		t.Errorf("Expected no upload, got %d", n)
	}
	calls := h.srv.Calls("PUT /edit-story/{id}")
	if len(calls) != 1 || calls[0].Path != "/edit-story/"+story.ID {
		t.Fatalf("Expected update of %s, got %+v", story.ID, calls)
	}
	in := decodeInput(t, calls[0].Body)
	if in.ImageURL != "http://img/oslo.jpg" {
		t.Errorf("Expected existing image to be reused, got %q", in.ImageURL)
	}
	if in.VisitedDate.Int64() != story.VisitedDate.Int64() {
		t.Errorf("Expected original visited date, got %d", in.VisitedDate.Int64())
	}
	stored, _ := h.srv.Story(story.ID)
	if stored.Story != "Very cold" {
		t.Errorf("Expected story text updated, got %q", stored.Story)
	}
}

func TestEditWithNewImage(t *testing.T) {
	h := setup(t)
	story := h.srv.Seed(model.Story{Title: "Oslo", Story: "Cold", ImageURL: "http://img/oslo.jpg", VisitedDate: model.Millis(fixedNow)})[0]
	e := h.open(t, KindEdit, &story)

	f := e.Form()
	f.Image = Image{Path: writeImage(t, "fjord.jpg")}
	e.SetForm(f)
	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	calls := h.srv.Calls("")
	if len(calls) != 2 || calls[0].Route != "POST /image-upload" {
		t.Fatalf("Expected upload before update, got %+v", calls)
	}
	in := decodeInput(t, calls[1].Body)
	if in.ImageURL != h.srv.URL+"/uploads/fjord.jpg" {
		t.Errorf("Expected new image reference, got %q", in.ImageURL)
	}
}

func TestSubmitServerMessage(t *testing.T) {
	h := setup(t)
	h.srv.Fail("POST /add-travel-story", http.StatusBadRequest, "Invalid date provided", 1)
	e := h.open(t, KindAdd, nil)
	form := Form{Title: "Great Wall", Story: "Walked", Locations: []string{"Beijing"}}
	e.SetForm(form)

	if err := e.Submit(context.Background()); err == nil {
		t.Fatal("Expected error")
	}
	if e.Message() != "Invalid date provided" {
		t.Errorf("Expected server message, got %q", e.Message())
	}
	if h.closed != 0 || len(h.saved) != 0 {
		t.Error("Expected editor to stay open without refresh")
	}
	if got := e.Form(); got.Title != form.Title || got.Story != form.Story || len(got.Locations) != 1 {
		t.Errorf("Expected fields intact, got %+v", got)
	}
}

func TestSubmitGenericFailure(t *testing.T) {
	h := setup(t)
	h.srv.Fail("POST /add-travel-story", http.StatusInternalServerError, "", 1)
	e := h.open(t, KindAdd, nil)
	e.SetForm(Form{Title: "Great Wall", Story: "Walked"})

	if err := e.Submit(context.Background()); err == nil {
		t.Fatal("Expected error")
	}
	if e.Message() != api.GenericMessage {
		t.Errorf("Expected generic message, got %q", e.Message())
	}
}

func TestRemoveImage(t *testing.T) {
	h := setup(t)
	story := h.srv.Seed(model.Story{
		Title:           "Oslo",
		Story:           "Cold",
		ImageURL:        "http://img/oslo.jpg",
		VisitedLocation: []string{"Norway"},
		VisitedDate:     model.Millis(fixedNow.AddDate(-1, 0, 0)),
	})[0]
	e := h.open(t, KindEdit, &story)

	if err := e.RemoveImage(context.Background()); err != nil {
		t.Fatalf("RemoveImage failed: %v", err)
	}

	calls := h.srv.Calls("")
	if len(calls) != 2 || calls[0].Route != "DELETE /delete-image" || calls[1].Route != "PUT /edit-story/{id}" {
		t.Fatalf("Expected delete then update, got %+v", calls)
	}
	if calls[0].Query.Get("imageUrl") != "http://img/oslo.jpg" {
		t.Errorf("Expected image URL param, got %v", calls[0].Query)
	}
	in := decodeInput(t, calls[1].Body)
	if in.ImageURL != "" || in.VisitedDate.Int64() != fixedNow.UnixMilli() {
		t.Errorf("Expected cleared image and visited date now, got %+v", in)
	}
	if in.Title != "Oslo" || len(in.VisitedLocation) != 1 {
		t.Errorf("Expected other fields unchanged, got %+v", in)
	}
	if !e.Form().Image.IsEmpty() {
		t.Error("Expected local image selection cleared")
	}
	if h.closed != 0 {
		t.Error("Expected editor to stay open after image removal")
	}
}

func TestRemoveImageRetries(t *testing.T) {
	h := setup(t)
	story := h.srv.Seed(model.Story{Title: "Oslo", Story: "Cold", ImageURL: "http://img/oslo.jpg", VisitedDate: model.Millis(fixedNow)})[0]
	h.srv.Fail("PUT /edit-story/{id}", http.StatusServiceUnavailable, "", 1)
	e := h.open(t, KindEdit, &story)

	if err := e.RemoveImage(context.Background()); err != nil {
		t.Fatalf("RemoveImage failed: %v", err)
	}
	if n := len(h.srv.Calls("PUT /edit-story/{id}")); n != 2 {
		t.Errorf("Expected 2 update attempts, got %d", n)
	}
	stored, _ := h.srv.Story(story.ID)
	if stored.ImageURL != "" {
		t.Errorf("Expected stored image reference cleared, got %q", stored.ImageURL)
	}
}

func TestRemoveImagePartialFailure(t *testing.T) {
	h := setup(t)
	story := h.srv.Seed(model.Story{Title: "Oslo", Story: "Cold", ImageURL: "http://img/oslo.jpg", VisitedDate: model.Millis(fixedNow)})[0]
	h.srv.Fail("PUT /edit-story/{id}", http.StatusServiceUnavailable, "", 3)
	e := h.open(t, KindEdit, &story)

	err := e.RemoveImage(context.Background())
	if !errors.Is(err, ErrPartialImageRemoval) {
		t.Fatalf("Expected ErrPartialImageRemoval, got %v", err)
	}
	if h.srv.HasImage("http://img/oslo.jpg") {
		t.Error("Expected stored image to be gone")
	}
	if e.Message() == "" {
		t.Error("Expected partial failure to be surfaced")
	}

	// The next save reconciles the dangling reference
	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	calls := h.srv.Calls("PUT /edit-story/{id}")
	in := decodeInput(t, calls[len(calls)-1].Body)
	if in.ImageURL != "" {
		t.Errorf("Expected empty image reference after partial removal, got %q", in.ImageURL)
	}
}

func TestRemoveImageDeleteFails(t *testing.T) {
	h := setup(t)
	story := h.srv.Seed(model.Story{Title: "Oslo", Story: "Cold", ImageURL: "http://img/oslo.jpg", VisitedDate: model.Millis(fixedNow)})[0]
	h.srv.Fail("DELETE /delete-image", http.StatusInternalServerError, "Storage offline", 1)
	e := h.open(t, KindEdit, &story)

	if err := e.RemoveImage(context.Background()); err == nil {
		t.Fatal("Expected error")
	}
	if n := len(h.srv.Calls("PUT /edit-story/{id}")); n != 0 {
		t.Errorf("Expected no update after failed delete, got %d", n)
	}
	if e.Form().Image.URL != "http://img/oslo.jpg" {
		t.Error("Expected image selection to be kept")
	}
	if e.Message() != "Storage offline" {
		t.Errorf("Expected server message, got %q", e.Message())
	}
}

func TestRemoveLocalImage(t *testing.T) {
	h := setup(t)
	e := h.open(t, KindAdd, nil)
	e.SetForm(Form{Title: "x", Story: "y", Image: Image{Path: "/tmp/a.jpg"}})

	if err := e.RemoveImage(context.Background()); err != nil {
		t.Fatalf("RemoveImage failed: %v", err)
	}
	if !e.Form().Image.IsEmpty() {
		t.Error("Expected local selection cleared")
	}
	if n := len(h.srv.Calls("")); n != 0 {
		t.Errorf("Expected no requests, got %d", n)
	}
}

type blockingAPI struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAPI) CreateStory(ctx context.Context, in model.StoryInput) (*model.Story, error) {
	b.entered <- struct{}{}
	<-b.release
	return &model.Story{ID: "new", Title: in.Title, Story: in.Story}, nil
}

func (b *blockingAPI) UpdateStory(ctx context.Context, id string, in model.StoryInput) (*model.Story, error) {
	return nil, errors.New("not used")
}

func (b *blockingAPI) UploadImage(ctx context.Context, path string) (string, error) {
	return "", errors.New("not used")
}

func (b *blockingAPI) DeleteImage(ctx context.Context, imageURL string) error {
	return errors.New("not used")
}

func TestSubmitSingleFlight(t *testing.T) {
	b := &blockingAPI{entered: make(chan struct{}, 1), release: make(chan struct{})}
	e, err := New(b, KindAdd, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	e.SetForm(Form{Title: "x", Story: "y"})

	done := make(chan error, 1)
	go func() { done <- e.Submit(context.Background()) }()
	<-b.entered

	if err := e.Submit(context.Background()); !errors.Is(err, model.ErrBusy) {
		t.Errorf("Expected ErrBusy for double submit, got %v", err)
	}
	close(b.release)
	if err := <-done; err != nil {
		t.Fatalf("First submit failed: %v", err)
	}
	if !e.Closed() {
		t.Error("Expected editor closed after save")
	}
}

func TestNewEditWithoutStory(t *testing.T) {
	if _, err := New(&blockingAPI{}, KindEdit, nil); err == nil {
		t.Error("Expected error opening edit without a story")
	}
}
