// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Task is a single entry inside a List.
// Done defaults to false (Go's zero value), which matches a freshly added task.
type Task struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// List is a named, ordered collection of tasks owned by a user.
//
// FIELD OWNERSHIP:
// Only Title and Tasks are ever written by clients. ID, CreatedAt and By are
// assigned by the server exactly once, when the list is created:
//   - ID        → generated by the repository (xid)
//   - CreatedAt → the moment the service accepted the create request
//   - By        → the authenticated user who created the list
//
// The JSON tags follow the wire format the frontend already uses
// (snake_case created_at, "by" for the owner).
type List struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Tasks     []Task    `json:"tasks"`
	By        string    `json:"by"`
}

// OwnedBy reports whether userID owns this list.
// Both sides are plain strings, so there is no representation mismatch to worry about.
func (l *List) OwnedBy(userID string) bool {
	return userID != "" && l.By == userID
}
