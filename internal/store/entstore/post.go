package entstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/aaafuria/furia-feed/internal/clock"
	"github.com/aaafuria/furia-feed/internal/store"
)

const postColumns = `id, parent_id, title, content, ratio, replies, author_id, nickname, created_at, updated_at`

const threadQuery = `WITH RECURSIVE thread AS (
	SELECT ` + postColumns + ` FROM posts WHERE parent_id = $1
	UNION ALL
	SELECT p.id, p.parent_id, p.title, p.content, p.ratio, p.replies, p.author_id, p.nickname, p.created_at, p.updated_at
	FROM posts p JOIN thread t ON p.parent_id = t.id
)
SELECT ` + postColumns + ` FROM thread ORDER BY created_at ASC, id ASC`

const repliesQuery = `WITH RECURSIVE chain AS (
	SELECT id, parent_id FROM posts WHERE id = $2
	UNION ALL
	SELECT p.id, p.parent_id FROM posts p JOIN chain c ON p.id = c.parent_id
)
UPDATE posts SET replies = GREATEST(replies + $1, 0) WHERE id IN (SELECT id FROM chain)`

// PostRepo implements store.PostRepository using database/sql.
type PostRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewPostRepo returns a new PostRepo.
func NewPostRepo(db *sql.DB, clk clock.Clock) *PostRepo {
	return &PostRepo{db: db, clock: clk}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(s scanner) (store.Post, error) {
	var p store.Post
	var parent sql.NullString
	err := s.Scan(&p.ID, &parent, &p.Title, &p.Content, &p.Ratio, &p.Replies,
		&p.AuthorID, &p.Nickname, &p.CreatedAt, &p.UpdatedAt)
	if parent.Valid {
		p.ParentID = &parent.String
	}
	return p, err
}

func (r *PostRepo) Create(ctx context.Context, p *store.Post) error {
	now := r.clock.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	err := r.db.QueryRowContext(ctx,
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
	p, err := scanPost(r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting post %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting post %s: %w", id, err)
	}
	return &p, nil
}

func (r *PostRepo) ListMain(ctx context.Context, limit, offset int) ([]store.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE parent_id IS NULL
		 ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	return scanPosts(rows)
}

func (r *PostRepo) ListReplies(ctx context.Context, parentID string) ([]store.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE parent_id = $1
		 ORDER BY created_at ASC, id ASC`, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing replies: %w", err)
	}
	return scanPosts(rows)
}

func (r *PostRepo) ListThread(ctx context.Context, rootID string) ([]store.Post, error) {
	rows, err := r.db.QueryContext(ctx, threadQuery, rootID)
	if err != nil {
		return nil, fmt.Errorf("listing thread of %s: %w", rootID, err)
	}
	return scanPosts(rows)
}

func scanPosts(rows *sql.Rows) ([]store.Post, error) {
	defer rows.Close()

	posts := []store.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning post row: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (r *PostRepo) UpdateRatio(ctx context.Context, id string, delta int) (int, error) {
	var ratio int
	err := r.db.QueryRowContext(ctx,
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
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
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
	rows, err := r.db.QueryContext(ctx,
		`SELECT post_id FROM post_viewers WHERE user_id = $1 AND post_id = ANY($2::uuid[])`,
		userID, pq.Array(postIDs))
	if err != nil {
		return nil, fmt.Errorf("loading views of %s: %w", userID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning view row: %w", err)
		}
		viewed[id] = true
	}
	return viewed, rows.Err()
}
