package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bunchhieng/travelog/internal/apitest"
	"github.com/bunchhieng/travelog/internal/model"
)

func setupClient(t *testing.T) (*Client, *apitest.Server) {
	srv := apitest.NewServer(t)
	return NewClient(srv.URL, WithToken(srv.Token), WithTimeout(5*time.Second)), srv
}

func TestGetUser(t *testing.T) {
	c, srv := setupClient(t)

	user, err := c.GetUser(context.Background())
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.Email != srv.User.Email {
		t.Errorf("Expected email %s, got %s", srv.User.Email, user.Email)
	}

	calls := srv.Calls("GET /get-user")
	if len(calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(calls))
	}
}

func TestUnauthorized(t *testing.T) {
	srv := apitest.NewServer(t)
	c := NewClient(srv.URL, WithToken("stale"))

	_, err := c.GetUser(context.Background())
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestCreateAndListStories(t *testing.T) {
	c, _ := setupClient(t)
	ctx := context.Background()

	visited := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	created, err := c.CreateStory(ctx, model.StoryInput{
		Title:           "A Day at the Great Wall",
		Story:           "Walked for hours.",
		VisitedLocation: []string{"Beijing"},
		VisitedDate:     model.Millis(visited),
	})
	if err != nil {
		t.Fatalf("CreateStory failed: %v", err)
	}
	if created.ID == "" {
		t.Error("Expected non-empty ID")
	}
	if !created.VisitedDate.Equal(visited) {
		t.Errorf("Expected visited date %v, got %v", visited, created.VisitedDate.Time)
	}

	stories, err := c.ListStories(ctx)
	if err != nil {
		t.Fatalf("ListStories failed: %v", err)
	}
	if len(stories) != 1 || stories[0].ID != created.ID {
		t.Errorf("Expected the created story, got %+v", stories)
	}
}

func TestSearchAndFilterQuery(t *testing.T) {
	c, srv := setupClient(t)
	ctx := context.Background()
	srv.Seed(
		model.Story{Title: "Paris", Story: "Louvre", VisitedDate: model.FromMillis(1000)},
		model.Story{Title: "Rome", Story: "Forum", VisitedDate: model.FromMillis(5000)},
	)

	found, err := c.SearchStories(ctx, "paris")
	if err != nil {
		t.Fatalf("SearchStories failed: %v", err)
	}
	if len(found) != 1 || found[0].Title != "Paris" {
		t.Errorf("Expected Paris, got %+v", found)
	}
	if q := srv.Calls("GET /search")[0].Query.Get("query"); q != "paris" {
		t.Errorf("Expected query param paris, got %q", q)
	}

	inRange, err := c.FilterStories(ctx, time.UnixMilli(4000), time.UnixMilli(6000))
	if err != nil {
		t.Fatalf("FilterStories failed: %v", err)
	}
	if len(inRange) != 1 || inRange[0].Title != "Rome" {
		t.Errorf("Expected Rome, got %+v", inRange)
	}
	call := srv.Calls("GET /travel-stories/filter")[0]
	if call.Query.Get("startDate") != "4000" || call.Query.Get("endDate") != "6000" {
		t.Errorf("Expected epoch-ms params, got %v", call.Query)
	}
}

func TestSetFavouriteAndDelete(t *testing.T) {
	c, srv := setupClient(t)
	ctx := context.Background()
	seeded := srv.Seed(model.Story{Title: "Oslo", Story: "Cold", VisitedDate: model.FromMillis(1)})
	id := seeded[0].ID

	st, err := c.SetFavourite(ctx, id, true)
	if err != nil {
		t.Fatalf("SetFavourite failed: %v", err)
	}
	if !st.IsFavourite {
		t.Error("Expected story to be favourite")
	}

	var body map[string]bool
	if err := json.Unmarshal(srv.Calls("PUT /update-is-favourite/{id}")[0].Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body["isFavourite"] {
		t.Errorf("Expected isFavourite=true in body, got %v", body)
	}

	if err := c.DeleteStory(ctx, id); err != nil {
		t.Fatalf("DeleteStory failed: %v", err)
	}
	if _, ok := srv.Story(id); ok {
		t.Error("Expected story to be gone")
	}

	err = c.DeleteStory(ctx, id)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestInvalidIDNeverSent(t *testing.T) {
	c, srv := setupClient(t)

	if err := c.DeleteStory(context.Background(), "../get-user"); !errors.Is(err, model.ErrInvalidID) {
		t.Errorf("Expected ErrInvalidID, got %v", err)
	}
	if n := len(srv.Calls("")); n != 0 {
		t.Errorf("Expected no requests, got %d", n)
	}
}

func TestServerMessagePassedThrough(t *testing.T) {
	c, srv := setupClient(t)
	srv.Fail("POST /add-travel-story", http.StatusBadRequest, "All fields are required", 1)

	_, err := c.CreateStory(context.Background(), model.StoryInput{Title: "x", Story: "y", VisitedDate: model.FromMillis(1)})
	if err == nil {
		t.Fatal("Expected error")
	}
	if msg := UserMessage(err); msg != "All fields are required" {
		t.Errorf("Expected server message, got %q", msg)
	}

	srv.Fail("POST /add-travel-story", http.StatusInternalServerError, "", 1)
	_, err = c.CreateStory(context.Background(), model.StoryInput{Title: "x", Story: "y", VisitedDate: model.FromMillis(1)})
	if msg := UserMessage(err); msg != GenericMessage {
		t.Errorf("Expected generic message, got %q", msg)
	}
}

func TestUploadAndDeleteImage(t *testing.T) {
	c, srv := setupClient(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "wall.jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	imageURL, err := c.UploadImage(ctx, path)
	if err != nil {
		t.Fatalf("UploadImage failed: %v", err)
	}
	if imageURL != srv.URL+"/uploads/wall.jpg" {
		t.Errorf("Unexpected image URL %s", imageURL)
	}

	if err := c.DeleteImage(ctx, imageURL); err != nil {
		t.Fatalf("DeleteImage failed: %v", err)
	}
	if srv.HasImage(imageURL) {
		t.Error("Expected image to be removed")
	}
}

func TestUploadMissingFile(t *testing.T) {
	c, srv := setupClient(t)

	if _, err := c.UploadImage(context.Background(), filepath.Join(t.TempDir(), "nope.jpg")); err == nil {
		t.Error("Expected error for missing file")
	}
	if n := len(srv.Calls("")); n != 0 {
		t.Errorf("Expected no requests, got %d", n)
	}
}
