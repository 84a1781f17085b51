package models

import "time"

// Post a single post read from the recent-posts timeline
type Post struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// User a resolved account
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// LookupError a handle the bulk lookup could not resolve
type LookupError struct {
	Value  string `json:"value"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// UserLookup result of resolving handles to account ids
type UserLookup struct {
	Users  []*User        `json:"data"`
	Errors []*LookupError `json:"errors"`
}

// MonitoredAccount account watched by one poll worker
type MonitoredAccount struct {
	ID            string
	Handle        string
	LastPollBegin time.Time
}
