package model

import "time"

// Session is the locally stored login state.
type Session struct {
	Token   string    `json:"token"`
	User    *User     `json:"user,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}
