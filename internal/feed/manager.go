package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/aaafuria/furia-feed/internal/config"
	"github.com/aaafuria/furia-feed/internal/event"
	"github.com/aaafuria/furia-feed/internal/reltime"
	"github.com/aaafuria/furia-feed/internal/store"
)

const instrumentation = "github.com/aaafuria/furia-feed/internal/feed"

// Manager handles feed operations.
type Manager struct {
	posts    store.PostRepository
	events   event.Store
	ages     *reltime.Formatter
	cfg      config.FeedConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	rendered metric.Int64Counter
}

// NewManager returns a new feed Manager.
func NewManager(
	posts store.PostRepository,
	events event.Store,
	ages *reltime.Formatter,
	cfg config.FeedConfig,
	logger *slog.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Manager, error) {
	rendered, err := mp.Meter(instrumentation).Int64Counter("feed.age.rendered",
		metric.WithDescription("Post ages rendered, by relative or absolute form."),
	)
	if err != nil {
		return nil, fmt.Errorf("creating age counter: %w", err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 30
	}
	if cfg.MaxPageSize < cfg.PageSize {
		cfg.MaxPageSize = cfg.PageSize
	}
	return &Manager{
		posts:    posts,
		events:   events,
		ages:     ages,
		cfg:      cfg,
		logger:   logger,
		tracer:   tp.Tracer(instrumentation),
		rendered: rendered,
	}, nil
}

// Publish creates a post. An empty parentID publishes a top-level post,
// which needs a title; otherwise the post is a reply to parentID.
func (m *Manager) Publish(ctx context.Context, authorID, nickname, title, content, parentID string) (Item, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Publish",
		trace.WithAttributes(
			attribute.String("author_id", authorID),
			attribute.String("parent_id", parentID),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	title = strings.TrimSpace(title)
	if content == "" {
		return Item{}, ErrEmptyContent
	}

	p := &store.Post{
		Title:    title,
		Content:  content,
		AuthorID: authorID,
		Nickname: nickname,
	}
	if parentID == "" {
		if title == "" {
			return Item{}, ErrMissingTitle
		}
	} else {
		parent, err := m.lookup(ctx, parentID)
		if err != nil {
			return Item{}, err
		}
		p.ParentID = &parent.ID
	}

	if err := m.posts.Create(ctx, p); err != nil {
		return Item{}, fmt.Errorf("creating post: %w", err)
	}
	if p.IsReply() {
		if err := m.posts.IncrementReplies(ctx, *p.ParentID, 1); err != nil {
			m.logger.ErrorContext(ctx, "failed to count reply", slog.String("parent_id", *p.ParentID), slog.Any("error", err))
		}
	}

	m.record(ctx, p.ID, event.PostPublished, event.PostPublishedData{
		AuthorID: authorID,
		Nickname: nickname,
		Title:    title,
		ParentID: parentID,
	})

	m.logger.InfoContext(ctx, "post published",
		slog.String("post_id", p.ID),
		slog.String("author_id", authorID),
		slog.Bool("reply", p.IsReply()),
	)
	return m.item(ctx, *p), nil
}

// Rate moves a post's ratio one step up when liked, down otherwise, and
// returns the new ratio.
func (m *Manager) Rate(ctx context.Context, postID, userID string, liked bool) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Rate",
		trace.WithAttributes(
			attribute.String("post_id", postID),
			attribute.String("user_id", userID),
			attribute.Bool("liked", liked),
		),
	)
	defer span.End()

	if _, err := uuid.Parse(postID); err != nil {
		return 0, fmt.Errorf("rating post %q: %w", postID, ErrNotFound)
	}
	delta := -1
	if liked {
		delta = 1
	}
	ratio, err := m.posts.UpdateRatio(ctx, postID, delta)
	if err != nil {
		return 0, fmt.Errorf("rating post: %w", err)
	}

	m.record(ctx, postID, event.PostRated, event.PostRatedData{RatedBy: userID, Liked: liked, Ratio: ratio})
	m.logger.InfoContext(ctx, "post rated",
		slog.String("post_id", postID),
		slog.String("user_id", userID),
		slog.Int("ratio", ratio),
	)
	return ratio, nil
}

// Delete removes a post and every reply beneath it. Only the author or staff
// may do so.
func (m *Manager) Delete(ctx context.Context, postID, requester string, isStaff bool) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Delete",
		trace.WithAttributes(
			attribute.String("post_id", postID),
			attribute.String("requester", requester),
			attribute.Bool("staff", isStaff),
		),
	)
	defer span.End()

	p, err := m.lookup(ctx, postID)
	if err != nil {
		return err
	}
	if !isStaff && p.AuthorID != requester {
		return ErrForbidden
	}
	if err := m.posts.Delete(ctx, p.ID); err != nil {
		return fmt.Errorf("deleting post: %w", err)
	}
	if p.IsReply() {
		if err := m.posts.IncrementReplies(ctx, *p.ParentID, -(1 + p.Replies)); err != nil {
			m.logger.ErrorContext(ctx, "failed to uncount reply", slog.String("parent_id", *p.ParentID), slog.Any("error", err))
		}
	}

	m.record(ctx, p.ID, event.PostDeleted, event.PostDeletedData{DeletedBy: requester, Staff: isStaff})
	m.logger.InfoContext(ctx, "post deleted",
		slog.String("post_id", p.ID),
		slog.String("requester", requester),
	)
	return nil
}

// Get returns a single post.
func (m *Manager) Get(ctx context.Context, id string) (Item, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Get", trace.WithAttributes(attribute.String("post_id", id)))
	defer span.End()

	p, err := m.lookup(ctx, id)
	if err != nil {
		return Item{}, err
	}
	return m.item(ctx, *p), nil
}

// ListMain returns a page of top-level posts, newest first. Pages start at 1;
// a non-positive pageSize selects the configured default. When viewerID is
// set, items that viewer has opened are marked Viewed.
func (m *Manager) ListMain(ctx context.Context, viewerID string, page, pageSize int) ([]Item, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListMain",
		trace.WithAttributes(
			attribute.String("viewer_id", viewerID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = m.cfg.PageSize
	case pageSize > m.cfg.MaxPageSize:
		pageSize = m.cfg.MaxPageSize
	}
	// No page that far out can hold posts, and its offset would overflow.
	if page-1 > math.MaxInt/pageSize {
		return []Item{}, nil
	}

	posts, err := m.posts.ListMain(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	items := m.items(ctx, posts)
	if viewerID == "" || len(items) == 0 {
		return items, nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	viewed, err := m.posts.ViewedBy(ctx, viewerID, ids)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to load views", slog.String("viewer_id", viewerID), slog.Any("error", err))
		return items, nil
	}
	for i := range items {
		items[i].Viewed = viewed[items[i].ID]
	}
	return items, nil
}

// Replies returns the direct replies to a post, oldest first.
func (m *Manager) Replies(ctx context.Context, id string) ([]Item, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Replies", trace.WithAttributes(attribute.String("post_id", id)))
	defer span.End()

	if _, err := m.lookup(ctx, id); err != nil {
		return nil, err
	}
	posts, err := m.posts.ListReplies(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing replies: %w", err)
	}
	return m.items(ctx, posts), nil
}

// Thread returns a post with all of its replies nested beneath it.
func (m *Manager) Thread(ctx context.Context, id string) (Thread, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Thread", trace.WithAttributes(attribute.String("post_id", id)))
	defer span.End()

	root, err := m.lookup(ctx, id)
	if err != nil {
		return Thread{}, err
	}
	descendants, err := m.posts.ListThread(ctx, root.ID)
	if err != nil {
		return Thread{}, fmt.Errorf("listing thread: %w", err)
	}

	children := make(map[string][]store.Post)
	for _, p := range descendants {
		if p.IsReply() {
			children[*p.ParentID] = append(children[*p.ParentID], p)
		}
	}
	var build func(p store.Post) Thread
	build = func(p store.Post) Thread {
		t := Thread{Item: m.item(ctx, p)}
		for _, c := range children[p.ID] {
			t.Children = append(t.Children, build(c))
		}
		return t
	}
	return build(*root), nil
}

// MarkViewed records that userID has opened postID. An empty userID is a
// no-op.
func (m *Manager) MarkViewed(ctx context.Context, postID, userID string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.MarkViewed",
		trace.WithAttributes(
			attribute.String("post_id", postID),
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	if userID == "" {
		return nil
	}
	if _, err := uuid.Parse(postID); err != nil {
		return fmt.Errorf("viewing post %q: %w", postID, ErrNotFound)
	}
	if err := m.posts.MarkViewed(ctx, postID, userID); err != nil {
		return fmt.Errorf("viewing post: %w", err)
	}
	return nil
}

// Open is how a reader opens a post: it loads the thread and marks the post
// viewed by viewerID. A failure to record the view is logged only.
func (m *Manager) Open(ctx context.Context, id, viewerID string) (Thread, error) {
	t, err := m.Thread(ctx, id)
	if err != nil {
		return Thread{}, err
	}
	if viewerID == "" {
		return t, nil
	}
	if err := m.MarkViewed(ctx, t.ID, viewerID); err != nil {
		m.logger.ErrorContext(ctx, "failed to mark post viewed",
			slog.String("post_id", t.ID),
			slog.String("viewer_id", viewerID),
			slog.Any("error", err),
		)
		return t, nil
	}
	t.Viewed = true
	return t, nil
}

// Age renders t the way post ages are shown.
func (m *Manager) Age(ctx context.Context, t time.Time) string {
	s, relative := m.ages.RenderKind(t)
	kind := "absolute"
	if relative {
		kind = "relative"
	}
	m.rendered.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	return s
}

func (m *Manager) lookup(ctx context.Context, id string) (*store.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("post %q: %w", id, ErrNotFound)
	}
	p, err := m.posts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading post: %w", err)
	}
	return p, nil
}

func (m *Manager) item(ctx context.Context, p store.Post) Item {
	return Item{Post: p, Age: m.Age(ctx, p.CreatedAt)}
}

func (m *Manager) items(ctx context.Context, posts []store.Post) []Item {
	out := make([]Item, len(posts))
	for i, p := range posts {
		out[i] = m.item(ctx, p)
	}
	return out
}

// record appends a domain event for a post; the store assigns its version.
// Failures are logged, not returned.
func (m *Manager) record(ctx context.Context, postID string, typ event.Type, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to encode post event",
			slog.String("post_id", postID),
			slog.String("type", string(typ)),
			slog.Any("error", err),
		)
		return
	}
	evt := event.Event{AggregateID: postID, Type: typ, Data: data}
	if err := m.events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append post event",
			slog.String("post_id", postID),
			slog.String("type", string(typ)),
			slog.Any("error", err),
		)
	}
}
