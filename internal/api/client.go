package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bunchhieng/travelog/internal/model"
	"github.com/sirupsen/logrus"
)

// Client talks to the travel story backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout. Zero leaves the transport default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the logger for request tracing.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.token = token
}

type userResponse struct {
	User *model.User `json:"user"`
}

type storiesResponse struct {
	Stories []model.Story `json:"stories"`
}

type storyResponse struct {
	Story *model.Story `json:"story"`
}

type errorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type imageResponse struct {
	ImageURL string `json:"imageUrl"`
}

// GetUser returns the profile of the session owner.
func (c *Client) GetUser(ctx context.Context) (*model.User, error) {
	var resp userResponse
	if err := c.do(ctx, "get user", http.MethodGet, "/get-user", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, fmt.Errorf("get user: response has no user")
	}
	return resp.User, nil
}

// ListStories returns every story of the session owner.
func (c *Client) ListStories(ctx context.Context) ([]model.Story, error) {
	return c.stories(ctx, "list stories", "/get-all-stories", nil)
}

// SearchStories returns the stories matching a free-text query.
func (c *Client) SearchStories(ctx context.Context, query string) ([]model.Story, error) {
	q := url.Values{}
	q.Set("query", query)
	return c.stories(ctx, "search stories", "/search", q)
}

// FilterStories returns the stories visited between from and to inclusive.
func (c *Client) FilterStories(ctx context.Context, from, to time.Time) ([]model.Story, error) {
	q := url.Values{}
	q.Set("startDate", strconv.FormatInt(from.UnixMilli(), 10))
	q.Set("endDate", strconv.FormatInt(to.UnixMilli(), 10))
	return c.stories(ctx, "filter stories", "/travel-stories/filter", q)
}

func (c *Client) stories(ctx context.Context, op, path string, q url.Values) ([]model.Story, error) {
	var resp storiesResponse
	if err := c.do(ctx, op, http.MethodGet, path, q, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Stories == nil {
		return []model.Story{}, nil
	}
	return resp.Stories, nil
}

// CreateStory adds a new story.
func (c *Client) CreateStory(ctx context.Context, in model.StoryInput) (*model.Story, error) {
	return c.story(ctx, "create story", http.MethodPost, "/add-travel-story", in)
}

// UpdateStory replaces the editable fields of story id.
func (c *Client) UpdateStory(ctx context.Context, id string, in model.StoryInput) (*model.Story, error) {
	if !model.ValidateStoryID(id) {
		return nil, model.ErrInvalidID
	}
	return c.story(ctx, "update story", http.MethodPut, "/edit-story/"+id, in)
}

// SetFavourite sets the favourite flag of story id.
func (c *Client) SetFavourite(ctx context.Context, id string, favourite bool) (*model.Story, error) {
	if !model.ValidateStoryID(id) {
		return nil, model.ErrInvalidID
	}
	body := map[string]bool{"isFavourite": favourite}
	return c.story(ctx, "set favourite", http.MethodPut, "/update-is-favourite/"+id, body)
}

func (c *Client) story(ctx context.Context, op, method, path string, body any) (*model.Story, error) {
	var resp storyResponse
	if err := c.doJSON(ctx, op, method, path, body, &resp); err != nil {
		return nil, err
	}
	if resp.Story == nil {
		return nil, fmt.Errorf("%s: response has no story", op)
	}
	return resp.Story, nil
}

// DeleteStory removes story id.
func (c *Client) DeleteStory(ctx context.Context, id string) error {
	if !model.ValidateStoryID(id) {
		return model.ErrInvalidID
	}
	var resp errorResponse
	if err := c.do(ctx, "delete story", http.MethodDelete, "/delete-story/"+id, nil, nil, &resp); err != nil {
		return err
	}
	if resp.Error {
		return &Error{Op: "delete story", Status: http.StatusOK, Message: resp.Message}
	}
	return nil
}

// DeleteImage removes a stored image by its URL.
func (c *Client) DeleteImage(ctx context.Context, imageURL string) error {
	q := url.Values{}
	q.Set("imageUrl", imageURL)
	var raw json.RawMessage
	if err := c.do(ctx, "delete image", http.MethodDelete, "/delete-image", q, nil, &raw); err != nil {
		return err
	}
	if !truthy(raw) {
		return fmt.Errorf("delete image: empty response")
	}
	return nil
}

// UploadImage uploads the file at path and returns its stored URL.
func (c *Client) UploadImage(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	var resp imageResponse
	err = c.send(ctx, "upload image", http.MethodPost, "/image-upload", nil, &buf, mw.FormDataContentType(), &resp)
	if err != nil {
		return "", err
	}
	return resp.ImageURL, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode body: %w", op, err)
	}
	return c.send(ctx, op, method, path, nil, bytes.NewReader(data), "application/json", out)
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, body io.Reader, out any) error {
	return c.send(ctx, op, method, path, q, body, "", out)
}

func (c *Client) send(ctx context.Context, op, method, path string, q url.Values, body io.Reader, contentType string, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	requestID := model.NewRequestID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log := c.log.WithFields(logrus.Fields{
		"op":         op,
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("request failed")
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	log = log.WithFields(logrus.Fields{"status": resp.StatusCode, "elapsed": time.Since(start)})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		_ = json.Unmarshal(data, &er)
		log.WithField("message", er.Message).Warn("request rejected")
		return &Error{Op: op, Status: resp.StatusCode, Message: er.Message}
	}
	log.Debug("request done")

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func truthy(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	switch s {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}
