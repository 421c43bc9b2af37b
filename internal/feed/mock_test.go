package feed_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aaafuria/furia-feed/internal/event"
	"github.com/aaafuria/furia-feed/internal/store"
)

// mockPostRepo implements store.PostRepository in memory.
type mockPostRepo struct {
	mu      sync.Mutex
	posts   map[string]*store.Post
	viewers map[string]map[string]bool
	now     time.Time
	step    time.Duration
	err     error
	viewErr error

	offsets []int
}

func newMockPostRepo(now time.Time) *mockPostRepo {
	return &mockPostRepo{posts: make(map[string]*store.Post), viewers: make(map[string]map[string]bool), now: now}
}

// add stores p as if it had been created at the given instant.
func (m *mockPostRepo) add(p store.Post) *store.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.posts[p.ID] = &p
	return &p
}

func (m *mockPostRepo) Create(_ context.Context, p *store.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	p.ID = uuid.NewString()
	p.CreatedAt = m.now
	p.UpdatedAt = m.now
	m.now = m.now.Add(m.step)
	cp := *p
	m.posts[p.ID] = &cp
	return nil
}

func (m *mockPostRepo) GetByID(_ context.Context, id string) (*store.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.posts[id]
	if !ok {
		return nil, fmt.Errorf("getting post %s: %w", id, store.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *mockPostRepo) filter(keep func(p *store.Post) bool, newestFirst bool) []store.Post {
	var out []store.Post
	for _, p := range m.posts {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *mockPostRepo) ListMain(_ context.Context, limit, offset int) ([]store.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsets = append(m.offsets, offset)
	if m.err != nil {
		return nil, m.err
	}
	if offset < 0 {
		return nil, fmt.Errorf("negative offset %d", offset)
	}
	all := m.filter(func(p *store.Post) bool { return !p.IsReply() }, true)
	if offset >= len(all) {
		return []store.Post{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *mockPostRepo) ListReplies(_ context.Context, parentID string) ([]store.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(p *store.Post) bool { return p.IsReply() && *p.ParentID == parentID }, false), nil
}

func (m *mockPostRepo) UpdateRatio(_ context.Context, id string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return 0, fmt.Errorf("rating post %s: %w", id, store.ErrNotFound)
	}
	p.Ratio += delta
	return p.Ratio, nil
}

func (m *mockPostRepo) ListThread(_ context.Context, rootID string) ([]store.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(p *store.Post) bool { return m.descends(p, rootID) }, false), nil
}

// descends reports whether p sits somewhere beneath ancestorID.
func (m *mockPostRepo) descends(p *store.Post, ancestorID string) bool {
	for p.IsReply() {
		if *p.ParentID == ancestorID {
			return true
		}
		parent, ok := m.posts[*p.ParentID]
		if !ok {
			return false
		}
		p = parent
	}
	return false
}

func (m *mockPostRepo) IncrementReplies(_ context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return store.ErrNotFound
	}
	for {
		p.Replies = max(p.Replies+delta, 0)
		if !p.IsReply() {
			return nil
		}
		if p, ok = m.posts[*p.ParentID]; !ok {
			return nil
		}
	}
}

func (m *mockPostRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return store.ErrNotFound
	}
	doomed := []string{id}
	for k, p := range m.posts {
		if m.descends(p, id) {
			doomed = append(doomed, k)
		}
	}
	for _, k := range doomed {
		delete(m.posts, k)
	}
	return nil
}

func (m *mockPostRepo) MarkViewed(_ context.Context, postID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.viewErr != nil {
		return m.viewErr
	}
	if _, ok := m.posts[postID]; !ok {
		return store.ErrNotFound
	}
	if m.viewers[postID] == nil {
		m.viewers[postID] = make(map[string]bool)
	}
	m.viewers[postID][userID] = true
	return nil
}

func (m *mockPostRepo) ViewedBy(_ context.Context, userID string, postIDs []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.viewErr != nil {
		return nil, m.viewErr
	}
	out := make(map[string]bool)
	for _, id := range postIDs {
		if m.viewers[id][userID] {
			out[id] = true
		}
	}
	return out, nil
}

// mockEventStore implements event.Store for testing.
// Like the SQL stores it assigns the next version to events that carry none.
type mockEventStore struct {
	mu        sync.Mutex
	events    []event.Event
	appendErr error
	loadDelay time.Duration
}

func (m *mockEventStore) Append(_ context.Context, events ...event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	for _, e := range events {
		if e.Version == 0 {
			for _, prior := range m.events {
				if prior.AggregateID == e.AggregateID {
					e.Version = max(e.Version, prior.Version)
				}
			}
			e.Version++
		}
		m.events = append(m.events, e)
	}
	return nil
}

func (m *mockEventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	time.Sleep(m.loadDelay)
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []event.Event
	for _, e := range m.events {
		if e.AggregateID == aggregateID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockEventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []event.Event
	for _, e := range m.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result, nil
}

var errBoom = errors.New("boom")
