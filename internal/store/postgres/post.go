package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aaafuria/furia-feed/internal/clock"
	"github.com/aaafuria/furia-feed/internal/store"
)

const postColumns = `id, parent_id, title, content, ratio, replies, author_id, nickname, created_at, updated_at`

// threadQuery walks a post's descendants breadth-first.
const threadQuery = `WITH RECURSIVE thread AS (
	SELECT ` + postColumns + ` FROM posts WHERE parent_id = $1
	UNION ALL
	SELECT p.id, p.parent_id, p.title, p.content, p.ratio, p.replies, p.author_id, p.nickname, p.created_at, p.updated_at
	FROM posts p JOIN thread t ON p.parent_id = t.id
)
SELECT ` + postColumns + ` FROM thread ORDER BY created_at ASC, id ASC`

// repliesQuery moves the reply count of a post and all of its ancestors.
const repliesQuery = `WITH RECURSIVE chain AS (
	SELECT id, parent_id FROM posts WHERE id = $2
	UNION ALL
	SELECT p.id, p.parent_id FROM posts p JOIN chain c ON p.id = c.parent_id
)
UPDATE posts SET replies = GREATEST(replies + $1, 0) WHERE id IN (SELECT id FROM chain)`

// foreignKeyViolation is the Postgres SQLSTATE for a dangling reference.
const foreignKeyViolation = "23503"

// PostRepo implements store.PostRepository with sqlx.
type PostRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewPostRepo returns a new PostRepo.
func NewPostRepo(db *sqlx.DB, clk clock.Clock) *PostRepo {
	return &PostRepo{db: db, clock: clk}
}

func (r *PostRepo) Create(ctx context.Context, p *store.Post) error {
	now := r.clock.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO posts (parent_id, title, content, ratio, replies, author_id, nickname, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		p.ParentID, p.Title, p.Content, p.Ratio, p.Replies, p.AuthorID, p.Nickname, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("inserting post: %w", err)
	}
	return nil
}

func (r *PostRepo) GetByID(ctx context.Context, id string) (*store.Post, error) {
	var p store.Post
	err := r.db.GetContext(ctx, &p, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting post %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting post %s: %w", id, err)
	}
	return &p, nil
}

func (r *PostRepo) ListMain(ctx context.Context, limit, offset int) ([]store.Post, error) {
	posts := []store.Post{}
	err := r.db.SelectContext(ctx, &posts,
		`SELECT `+postColumns+` FROM posts WHERE parent_id IS NULL
		 ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	return posts, nil
}

func (r *PostRepo) ListReplies(ctx context.Context, parentID string) ([]store.Post, error) {
	posts := []store.Post{}
	err := r.db.SelectContext(ctx, &posts,
		`SELECT `+postColumns+` FROM posts WHERE parent_id = $1
		 ORDER BY created_at ASC, id ASC`, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing replies: %w", err)
	}
	return posts, nil
}

func (r *PostRepo) ListThread(ctx context.Context, rootID string) ([]store.Post, error) {
	posts := []store.Post{}
	if err := r.db.SelectContext(ctx, &posts, threadQuery, rootID); err != nil {
		return nil, fmt.Errorf("listing thread of %s: %w", rootID, err)
	}
	return posts, nil
}

func (r *PostRepo) UpdateRatio(ctx context.Context, id string, delta int) (int, error) {
	var ratio int
	err := r.db.QueryRowxContext(ctx,
		`UPDATE posts SET ratio = ratio + $1, updated_at = $2 WHERE id = $3 RETURNING ratio`,
		delta, r.clock.Now().UTC(), id,
	).Scan(&ratio)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("rating post %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("rating post %s: %w", id, err)
	}
	return ratio, nil
}

func (r *PostRepo) IncrementReplies(ctx context.Context, id string, delta int) error {
	result, err := r.db.ExecContext(ctx, repliesQuery, delta, id)
	if err != nil {
		return fmt.Errorf("updating replies of %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("updating replies of %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *PostRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting post %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("deleting post %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *PostRepo) MarkViewed(ctx context.Context, postID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO post_viewers (post_id, user_id, viewed_at) VALUES ($1, $2, $3)
		 ON CONFLICT (post_id, user_id) DO NOTHING`,
		postID, userID, r.clock.Now().UTC())
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return fmt.Errorf("marking %s viewed: %w", postID, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("marking %s viewed: %w", postID, err)
	}
	return nil
}

func (r *PostRepo) ViewedBy(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	viewed := make(map[string]bool, len(postIDs))
	if len(postIDs) == 0 {
		return viewed, nil
	}
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT post_id FROM post_viewers WHERE user_id = $1 AND post_id = ANY($2::uuid[])`,
		userID, pq.Array(postIDs))
	if err != nil {
		return nil, fmt.Errorf("loading views of %s: %w", userID, err)
	}
	for _, id := range ids {
		viewed[id] = true
	}
	return viewed, nil
}
