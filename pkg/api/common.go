package api

import "time"

// ------------------------------------------------------------------------------------------------
// General naming conventions:
// ------------------------------------------------------------------------------------------------
// - ...Config - represents an object specified by the user when creating or updating a resource.
// - ...Resource / plain record names (Run, Scenario, ...) - represents an object stored in the database.
// - ...ResourceList - represents a list of REST resources
// - ...Ref - represents a reference to an object
// - ...Error - represents an error response
// ------------------------------------------------------------------------------------------------

// Record is implemented by everything that is stored in a project collection.
type Record interface {
	RecordID() string
	RecordStatus() string
	RecordCreatedAt() time.Time
}

type Ref struct {
	ID string `json:"id" validate:"required"`
}

type HRef struct {
	Href string `json:"href"`
}

// Error represents an error response
type Error struct {
	MessageCode string `json:"message_code"`
	Message     string `json:"message"`
	Trace       string `json:"trace"`
}

// Resource represents base resource fields. The project provides the scoping
// for records stored in the database, every project has its own collections.
type Resource struct {
	ID        string    `json:"id"`
	Project   string    `json:"project"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r Resource) RecordID() string {
	return r.ID
}

func (r Resource) RecordStatus() string {
	return ""
}

func (r Resource) RecordCreatedAt() time.Time {
	return r.CreatedAt
}

// Page represents generic pagination schema
type Page struct {
	First      *HRef `json:"first"`
	Next       *HRef `json:"next,omitempty"`
	Limit      int   `json:"limit"`
	TotalCount int   `json:"total_count"`
}
