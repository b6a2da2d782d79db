package model

import "errors"

var (
	// ErrNotFound indicates a story was not found.
	ErrNotFound = errors.New("story not found")

	// ErrInvalidID indicates a malformed story ID.
	ErrInvalidID = errors.New("invalid story ID")

	// ErrMissingTitle is returned when a story is submitted without a title.
	ErrMissingTitle = errors.New("please enter the title")

	// ErrMissingStory is returned when a story is submitted without a narrative.
	ErrMissingStory = errors.New("please enter the story")

	// ErrUnauthorized indicates the backend rejected the session token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoSession indicates no session has been stored locally.
	ErrNoSession = errors.New("no session, run 'tl login' first")

	// ErrBusy indicates the same action is already in flight.
	ErrBusy = errors.New("request already in progress")
)
