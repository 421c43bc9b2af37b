package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	PostPublished Type = "post.published"
	PostRated     Type = "post.rated"
	PostDeleted   Type = "post.deleted"
)

// Event represents a single domain event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// PostPublishedData is the payload for PostPublished events.
type PostPublishedData struct {
	AuthorID string `json:"author_id"`
	Nickname string `json:"nickname"`
	Title    string `json:"title,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

// PostRatedData is the payload for PostRated events.
type PostRatedData struct {
	RatedBy string `json:"rated_by"`
	Liked   bool   `json:"liked"`
	Ratio   int    `json:"ratio"`
}

// PostDeletedData is the payload for PostDeleted events.
type PostDeletedData struct {
	DeletedBy string `json:"deleted_by"`
	Staff     bool   `json:"staff"`
}
