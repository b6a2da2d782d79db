package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bunchhieng/travelog/internal/model"
)

// GenericMessage is shown when a failure carries no server message.
const GenericMessage = "An unexpected error occurred. Please try again."

// Error is a non-2xx response from the backend.
type Error struct {
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %d %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

// Is maps well-known statuses onto the model sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case model.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case model.ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// UserMessage returns the text to show for err: the server's own message
// when one was sent, validation messages as-is, and GenericMessage otherwise.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	switch {
	case errors.Is(err, model.ErrMissingTitle), errors.Is(err, model.ErrMissingStory),
		errors.Is(err, model.ErrBusy), errors.Is(err, model.ErrInvalidID):
		return err.Error()
	}
	return GenericMessage
}
