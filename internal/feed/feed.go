// Package feed implements the community post feed: publishing, rating,
// deleting and listing posts with their rendered ages.
package feed

import (
	"errors"
	"fmt"

	"github.com/aaafuria/furia-feed/internal/store"
)

var (
	ErrEmptyContent = errors.New("post content is empty")
	ErrMissingTitle = errors.New("top-level posts need a title")
	ErrForbidden    = errors.New("only the author or staff may delete a post")
	ErrNotFound     = store.ErrNotFound
)

// Item is a post together with its age as shown to readers. Viewed reports
// whether the reader the item was loaded for has opened the post.
type Item struct {
	store.Post
	Age    string
	Viewed bool
}

// Thread is a post with its replies nested to any depth, oldest first.
type Thread struct {
	Item
	Children []Thread
}

// Summary renders the one-line listing row for an item.
func Summary(it Item) string {
	noun := "comentário"
	if it.Replies > 1 {
		noun = "comentários"
	}
	return fmt.Sprintf("%d F coins - %d %s - %s - %s", it.Ratio, it.Replies, noun, it.Nickname, it.Age)
}
