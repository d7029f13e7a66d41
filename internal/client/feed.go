package client

import (
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

// Feed shows the composer above one PostItem per post, newest first.
type Feed struct {
	session  *Session
	docs     DocumentStore
	alerter  Alerter
	opts     Options
	log      *slog.Logger
	composer *Composer

	mu    sync.Mutex
	posts []Post
	items map[string]*PostItem
	sub   *handle
}

func NewFeed(session *Session, docs DocumentStore, blobs BlobStore, alerter Alerter, opts Options) *Feed {
	return &Feed{
		session:  session,
		docs:     docs,
		alerter:  alerter,
		opts:     opts,
		log:      opts.logger().With(slog.String("component", "feed")),
		composer: NewComposer(session, docs, blobs, alerter, opts),
		items:    make(map[string]*PostItem),
	}
}

func (f *Feed) Composer() *Composer { return f.composer }

// Mount subscribes to the feed. Mounting twice keeps the first subscription.
func (f *Feed) Mount() error {
	h := &handle{}
	f.mu.Lock()
	if f.sub != nil {
		f.mu.Unlock()
		return nil
	}
	f.sub = h
	f.mu.Unlock()

	release, err := f.docs.SubscribeFeed(func(posts []Post) { f.apply(h, posts) })
	if err != nil {
		f.mu.Lock()
		if f.sub == h {
			f.sub = nil
		}
		f.mu.Unlock()
		f.log.Warn("feed subscription failed", slog.String("error", err.Error()))
		return err
	}

	f.mu.Lock()
	if f.sub != h {
		f.mu.Unlock()
		release()
		return nil
	}
	h.release = release
	f.mu.Unlock()
	return nil
}

// Unmount releases the feed subscription and every post item's.
func (f *Feed) Unmount() {
	f.mu.Lock()
	old := f.sub
	f.sub = nil
	items := lo.Values(f.items)
	f.items = make(map[string]*PostItem)
	f.posts = nil
	f.mu.Unlock()

	old.Release()
	for _, item := range items {
		item.detach()
	}
}

// apply replaces the list with a snapshot and mounts or unmounts post items
// for ids that appeared or vanished.
func (f *Feed) apply(h *handle, posts []Post) {
	f.mu.Lock()
	if f.sub != h {
		f.mu.Unlock()
		return
	}
	f.posts = posts

	seen := lo.Associate(posts, func(p Post) (string, Post) { return p.ID, p })
	var removed, added, kept []*PostItem
	for id, item := range f.items {
		if _, ok := seen[id]; !ok {
			removed = append(removed, item)
			delete(f.items, id)
		}
	}
	for _, p := range posts {
		if item, ok := f.items[p.ID]; ok {
			kept = append(kept, item)
			continue
		}
		item := NewPostItem(f.session, f.docs, f.alerter, p, f.opts)
		f.items[p.ID] = item
		added = append(added, item)
	}
	f.mu.Unlock()

	for _, item := range removed {
		item.detach()
	}
	for _, item := range kept {
		_ = item.SetPost(seen[item.Post().ID])
	}
	for _, item := range added {
		// A store callback may have unmounted the feed or replaced the
		// snapshot while earlier items were mounting.
		if !f.owns(h, item) {
			continue
		}
		if err := item.Mount(); err != nil {
			f.log.Warn("post item mount failed", slog.String("post_id", item.Post().ID), slog.String("error", err.Error()))
		}
	}
}

func (f *Feed) owns(h *handle, item *PostItem) bool {
	id := item.Post().ID
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub == h && f.items[id] == item
}

// Posts returns the latest snapshot, newest first.
func (f *Feed) Posts() []Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Post(nil), f.posts...)
}

// Items returns the post items in feed order.
func (f *Feed) Items() []*PostItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo.FilterMap(f.posts, func(p Post, _ int) (*PostItem, bool) {
		item, ok := f.items[p.ID]
		return item, ok
	})
}

// Item returns the post item for id, or nil.
func (f *Feed) Item(id string) *PostItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id]
}
