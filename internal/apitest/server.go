// Package apitest serves an in-memory travel story backend for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bunchhieng/travelog/internal/model"
	"github.com/gorilla/mux"
)

// Call records one request received by the server.
type Call struct {
	Method string
	Route  string
	Path   string
	Query  url.Values
	Body   []byte
}

type failure struct {
	status  int
	message string
	times   int
}

// Server is a fake backend. Routes mirror the real API.
type Server struct {
	*httptest.Server

	Token string
	User  model.User

	mu       sync.Mutex
	stories  map[string]*model.Story
	nextID   int
	images   map[string]bool
	calls    []Call
	failures map[string]*failure
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		Token:    "test-token",
		User:     model.User{ID: "u1", FullName: "Test Traveller", Email: "test@example.com"},
		stories:  make(map[string]*model.Story),
		images:   make(map[string]bool),
		failures: make(map[string]*failure),
	}

	r := mux.NewRouter()
	r.HandleFunc("/get-user", s.getUser).Methods(http.MethodGet)
	r.HandleFunc("/get-all-stories", s.listStories).Methods(http.MethodGet)
	r.HandleFunc("/add-travel-story", s.addStory).Methods(http.MethodPost)
	r.HandleFunc("/edit-story/{id}", s.editStory).Methods(http.MethodPut)
	r.HandleFunc("/delete-story/{id}", s.deleteStory).Methods(http.MethodDelete)
	r.HandleFunc("/update-is-favourite/{id}", s.updateFavourite).Methods(http.MethodPut)
	r.HandleFunc("/delete-image", s.deleteImage).Methods(http.MethodDelete)
	r.HandleFunc("/search", s.search).Methods(http.MethodGet)
	r.HandleFunc("/travel-stories/filter", s.filter).Methods(http.MethodGet)
	r.HandleFunc("/image-upload", s.uploadImage).Methods(http.MethodPost)
	r.Use(s.record, s.inject, s.auth)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Server.Close)
	return s
}

// Seed stores stories directly, assigning IDs to those without one.
func (s *Server) Seed(stories ...model.Story) []model.Story {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Story, 0, len(stories))
	for _, st := range stories {
		st := st
		if st.ID == "" {
			st.ID = s.newID()
		}
		if st.VisitedLocation == nil {
			st.VisitedLocation = []string{}
		}
		if st.ImageURL != "" {
			s.images[st.ImageURL] = true
		}
		s.stories[st.ID] = &st
		out = append(out, st)
	}
	return out
}

// Story returns the stored copy of story id.
func (s *Server) Story(id string) (model.Story, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[id]
	if !ok {
		return model.Story{}, false
	}
	return *st, true
}

// HasImage reports whether an uploaded image is still stored.
func (s *Server) HasImage(imageURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images[imageURL]
}

// Fail makes the next n requests to route fail with status and message.
// route is "METHOD /template", e.g. "PUT /edit-story/{id}".
func (s *Server) Fail(route string, status int, message string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = &failure{status: status, message: message, times: n}
}

// Calls returns every recorded request to route, or all requests if route is empty.
func (s *Server) Calls(route string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if route == "" || c.Route == route {
			out = append(out, c)
		}
	}
	return out
}

// RotateToken makes the server reject the current token from now on.
func (s *Server) RotateToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Token = token
}

// Reset forgets recorded calls.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Server) newID() string {
	s.nextID++
	return fmt.Sprintf("%024x", s.nextID)
}

func routeKey(r *http.Request) string {
	tmpl := r.URL.Path
	if route := mux.CurrentRoute(r); route != nil {
		if t, err := route.GetPathTemplate(); err == nil {
			tmpl = t
		}
	}
	return r.Method + " " + tmpl
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil && !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(strings.NewReader(string(body)))
		}
		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method: r.Method,
			Route:  routeKey(r),
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Body:   body,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f, ok := s.failures[routeKey(r)]
		if ok && f.times > 0 {
			f.times--
			s.mu.Unlock()
			writeError(w, f.status, f.message)
			return
		}
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.Token
		s.mu.Unlock()
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	body := map[string]any{"error": true}
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, status, body)
}

func (s *Server) sorted(keep func(*model.Story) bool) []model.Story {
	out := []model.Story{}
	for _, st := range s.stories {
		if keep == nil || keep(st) {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsFavourite != out[j].IsFavourite {
			return out[i].IsFavourite
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"user": s.User})
}

func (s *Server) listStories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"stories": s.sorted(nil)})
}

func decodeInput(w http.ResponseWriter, r *http.Request) (model.StoryInput, bool) {
	var in model.StoryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return in, false
	}
	if in.Title == "" || in.Story == "" || in.VisitedDate.IsZero() {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return in, false
	}
	return in, true
}

func (s *Server) addStory(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &model.Story{
		ID:              s.newID(),
		Title:           in.Title,
		Story:           in.Story,
		ImageURL:        in.ImageURL,
		VisitedLocation: in.VisitedLocation,
		VisitedDate:     in.VisitedDate,
		UserID:          s.User.ID,
		CreatedOn:       model.Millis(time.Now()),
	}
	s.stories[st.ID] = st
	writeJSON(w, http.StatusCreated, map[string]any{"story": st, "message": "Added Successfully"})
}

func (s *Server) editStory(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "Travel story not found")
		return
	}
	st.Title = in.Title
	st.Story = in.Story
	st.ImageURL = in.ImageURL
	st.VisitedLocation = in.VisitedLocation
	st.VisitedDate = in.VisitedDate
	writeJSON(w, http.StatusOK, map[string]any{"story": st, "message": "Update Successful"})
}

func (s *Server) deleteStory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mux.Vars(r)["id"]
	if _, ok := s.stories[id]; !ok {
		writeError(w, http.StatusNotFound, "Travel story not found")
		return
	}
	delete(s.stories, id)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Travel story deleted successfully"})
}

func (s *Server) updateFavourite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsFavourite bool `json:"isFavourite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "Travel story not found")
		return
	}
	st.IsFavourite = body.IsFavourite
	writeJSON(w, http.StatusOK, map[string]any{"story": st, "message": "Update Successful"})
}

func (s *Server) deleteImage(w http.ResponseWriter, r *http.Request) {
	imageURL := r.URL.Query().Get("imageUrl")
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.images[imageURL] {
		writeError(w, http.StatusNotFound, "Image not found")
		return
	}
	delete(s.images, imageURL)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Image deleted successfully"})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stories := s.sorted(func(st *model.Story) bool {
		if strings.Contains(strings.ToLower(st.Title), query) ||
			strings.Contains(strings.ToLower(st.Story), query) {
			return true
		}
		for _, loc := range st.VisitedLocation {
			if strings.Contains(strings.ToLower(loc), query) {
				return true
			}
		}
		return false
	})
	writeJSON(w, http.StatusOK, map[string]any{"stories": stories})
}

func (s *Server) filter(w http.ResponseWriter, r *http.Request) {
	start, err1 := strconv.ParseInt(r.URL.Query().Get("startDate"), 10, 64)
	end, err2 := strconv.ParseInt(r.URL.Query().Get("endDate"), 10, 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "startDate and endDate are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stories := s.sorted(func(st *model.Story) bool {
		ms := st.VisitedDate.Int64()
		return ms >= start && ms <= end
	})
	writeJSON(w, http.StatusOK, map[string]any{"stories": stories})
}

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image uploaded")
		return
	}
	defer file.Close()
	_, _ = io.Copy(io.Discard, file)

	imageURL := s.URL + "/uploads/" + header.Filename
	s.mu.Lock()
	s.images[imageURL] = true
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"imageUrl": imageURL})
}
