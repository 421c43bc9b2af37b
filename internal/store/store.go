package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a post does not exist.
var ErrNotFound = errors.New("post not found")

// Post is a feed entry. Replies are posts with a ParentID.
type Post struct {
	ID        string    `db:"id"`
	ParentID  *string   `db:"parent_id"`
	Title     string    `db:"title"`
	Content   string    `db:"content"`
	Ratio     int       `db:"ratio"`
	Replies   int       `db:"replies"`
	AuthorID  string    `db:"author_id"`
	Nickname  string    `db:"nickname"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// IsReply reports whether p answers another post.
func (p Post) IsReply() bool { return p.ParentID != nil && *p.ParentID != "" }

// PostRepository defines post persistence operations.
type PostRepository interface {
	Create(ctx context.Context, p *Post) error
	GetByID(ctx context.Context, id string) (*Post, error)
	// ListMain returns top-level posts, newest first.
	ListMain(ctx context.Context, limit, offset int) ([]Post, error)
	// ListReplies returns the direct replies to parentID, oldest first.
	ListReplies(ctx context.Context, parentID string) ([]Post, error)
	// ListThread returns every descendant of rootID, oldest first.
	ListThread(ctx context.Context, rootID string) ([]Post, error)
	// UpdateRatio adds delta to the post's ratio and returns the new value.
	UpdateRatio(ctx context.Context, id string, delta int) (int, error)
	// IncrementReplies adds delta to the reply count of id and of every
	// ancestor of id. Counts never drop below zero.
	IncrementReplies(ctx context.Context, id string, delta int) error
	// Delete removes a post together with its descendants.
	Delete(ctx context.Context, id string) error
	// MarkViewed records that userID has read postID. Repeats are no-ops.
	MarkViewed(ctx context.Context, postID, userID string) error
	// ViewedBy reports which of postIDs userID has read.
	ViewedBy(ctx context.Context, userID string, postIDs []string) (map[string]bool, error)
}
