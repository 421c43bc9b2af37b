package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aaafuria/furia-feed/internal/clock"
	"github.com/aaafuria/furia-feed/internal/store"
	"github.com/aaafuria/furia-feed/internal/store/postgres"
)

// stepClock advances one minute on every call so rows get distinct timestamps.
type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func TestPostRepo_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	fixed := time.Date(2026, 10, 19, 17, 5, 0, 0, time.UTC)
	repo := postgres.NewPostRepo(db, clock.Mock{T: fixed})
	ctx := context.Background()

	p := &store.Post{
		Title:    "Major de Colônia",
		Content:  "Quem vai assistir?",
		AuthorID: "u1",
		Nickname: "kng",
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected ID to be set after Create")
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != p.Title || got.Content != p.Content || got.Nickname != "kng" {
		t.Errorf("GetByID = %+v, want %+v", got, p)
	}
	if got.IsReply() {
		t.Error("top-level post reported as reply")
	}
	if !got.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %s, want %s", got.CreatedAt, fixed)
	}
}

func TestPostRepo_GetByID_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewPostRepo(db, clock.Real{})

	_, err := repo.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetByID error = %v, want ErrNotFound", err)
	}
}

func TestPostRepo_ListMainAndReplies(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewPostRepo(db, &stepClock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)})
	ctx := context.Background()

	first := &store.Post{Title: "primeiro", Content: "a", AuthorID: "u1", Nickname: "a"}
	second := &store.Post{Title: "segundo", Content: "b", AuthorID: "u2", Nickname: "b"}
	for _, p := range []*store.Post{first, second} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create(%s): %v", p.Title, err)
		}
	}
	for _, c := range []string{"r1", "r2"} {
		reply := &store.Post{ParentID: &first.ID, Content: c, AuthorID: "u3", Nickname: "c"}
		if err := repo.Create(ctx, reply); err != nil {
			t.Fatalf("Create(reply %s): %v", c, err)
		}
	}

	top, err := repo.ListMain(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListMain: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("ListMain returned %d posts, want 2", len(top))
	}
	if top[0].ID != second.ID {
		t.Errorf("first listed post = %q, want newest %q", top[0].Title, second.Title)
	}

	paged, err := repo.ListMain(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListMain(page 2): %v", err)
	}
	if len(paged) != 1 || paged[0].ID != first.ID {
		t.Errorf("ListMain(1, 1) = %+v, want only %q", paged, first.Title)
	}

	replies, err := repo.ListReplies(ctx, first.ID)
	if err != nil {
		t.Fatalf("ListReplies: %v", err)
	}
	if len(replies) != 2 || replies[0].Content != "r1" {
		t.Fatalf("ListReplies = %+v, want r1 then r2", replies)
	}
	if !replies[0].IsReply() {
		t.Error("reply not reported as reply")
	}
}

func TestPostRepo_CountersAndDelete(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewPostRepo(db, clock.Real{})
	ctx := context.Background()

	p := &store.Post{Title: "t", Content: "c", AuthorID: "u1", Nickname: "n"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, delta := range []int{1, 1, -1} {
		if _, err := repo.UpdateRatio(ctx, p.ID, delta); err != nil {
			t.Fatalf("UpdateRatio(%d): %v", delta, err)
		}
	}
	ratio, err := repo.UpdateRatio(ctx, p.ID, 1)
	if err != nil {
		t.Fatalf("UpdateRatio: %v", err)
	}
	if ratio != 2 {
		t.Errorf("ratio = %d, want 2", ratio)
	}

	if err := repo.IncrementReplies(ctx, p.ID, 1); err != nil {
		t.Fatalf("IncrementReplies: %v", err)
	}
	if err := repo.IncrementReplies(ctx, p.ID, -5); err != nil {
		t.Fatalf("IncrementReplies(-5): %v", err)
	}
	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Replies != 0 {
		t.Errorf("replies = %d, want clamped to 0", got.Replies)
	}

	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
	if _, err := repo.UpdateRatio(ctx, p.ID, 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateRatio after delete error = %v, want ErrNotFound", err)
	}
}

func TestPostRepo_NestedThread(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewPostRepo(db, &stepClock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)})
	ctx := context.Background()

	root := &store.Post{Title: "raiz", Content: "r", AuthorID: "u1", Nickname: "a"}
	if err := repo.Create(ctx, root); err != nil {
		t.Fatalf("Create(root): %v", err)
	}
	parent := root
	var chain []*store.Post
	for _, c := range []string{"a", "b", "c"} {
		p := &store.Post{ParentID: &parent.ID, Content: c, AuthorID: "u2", Nickname: "b"}
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create(%s): %v", c, err)
		}
		if err := repo.IncrementReplies(ctx, parent.ID, 1); err != nil {
			t.Fatalf("IncrementReplies(%s): %v", c, err)
		}
		chain = append(chain, p)
		parent = p
	}

	thread, err := repo.ListThread(ctx, root.ID)
	if err != nil {
		t.Fatalf("ListThread: %v", err)
	}
	if len(thread) != 3 || thread[0].Content != "a" || thread[2].Content != "c" {
		t.Fatalf("ListThread = %+v, want a, b, c", thread)
	}

	wantReplies := map[string]int{root.ID: 3, chain[0].ID: 2, chain[1].ID: 1, chain[2].ID: 0}
	for id, want := range wantReplies {
		got, err := repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Replies != want {
			t.Errorf("%q replies = %d, want %d", got.Content, got.Replies, want)
		}
	}

	if err := repo.Delete(ctx, chain[0].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, chain[2].ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetByID(deep reply) error = %v, want ErrNotFound", err)
	}
}

func TestPostRepo_Views(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewPostRepo(db, clock.Real{})
	ctx := context.Background()

	a := &store.Post{Title: "a", Content: "a", AuthorID: "u1", Nickname: "a"}
	b := &store.Post{Title: "b", Content: "b", AuthorID: "u1", Nickname: "a"}
	for _, p := range []*store.Post{a, b} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	for range 2 {
		if err := repo.MarkViewed(ctx, a.ID, "u2"); err != nil {
			t.Fatalf("MarkViewed: %v", err)
		}
	}
	if err := repo.MarkViewed(ctx, "00000000-0000-0000-0000-000000000000", "u2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("MarkViewed(unknown) error = %v, want ErrNotFound", err)
	}

	viewed, err := repo.ViewedBy(ctx, "u2", []string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("ViewedBy: %v", err)
	}
	if !viewed[a.ID] || viewed[b.ID] {
		t.Errorf("ViewedBy(u2) = %v, want only %s", viewed, a.ID)
	}
	if other, _ := repo.ViewedBy(ctx, "u3", []string{a.ID}); other[a.ID] {
		t.Error("view leaked to another user")
	}
	if empty, err := repo.ViewedBy(ctx, "u2", nil); err != nil || len(empty) != 0 {
		t.Errorf("ViewedBy(no ids) = %v, %v", empty, err)
	}
}
