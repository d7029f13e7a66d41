package client

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// PostItem renders one post with its live comment list.
type PostItem struct {
	session *Session
	docs    DocumentStore
	alerter Alerter
	opts    Options
	log     *slog.Logger

	mu           sync.Mutex
	post         Post
	comments     []Comment
	commentText  string
	showComments bool
	confirmOpen  bool
	lightboxOpen bool
	mounted      bool
	detached     bool
	sub          *handle
}

func NewPostItem(session *Session, docs DocumentStore, alerter Alerter, post Post, opts Options) *PostItem {
	return &PostItem{
		session: session,
		docs:    docs,
		alerter: alerter,
		opts:    opts,
		log:     opts.logger().With(slog.String("component", "post_item")),
		post:    post,
	}
}

// Mount opens the comment subscription for the current post id.
func (p *PostItem) Mount() error {
	p.mu.Lock()
	if p.mounted || p.detached {
		p.mu.Unlock()
		return nil
	}
	p.mounted = true
	want := p.wantsSubscriptionLocked()
	p.mu.Unlock()

	if !want {
		return nil
	}
	return p.subscribe()
}

// Unmount releases the comment subscription.
func (p *PostItem) Unmount() {
	p.release(false)
}

// detach unmounts for good. The feed detaches items it drops so a Mount
// racing with the drop cannot reopen a subscription nobody will release.
func (p *PostItem) detach() {
	p.release(true)
}

func (p *PostItem) release(detach bool) {
	p.mu.Lock()
	p.mounted = false
	p.detached = p.detached || detach
	old := p.sub
	p.sub = nil
	p.mu.Unlock()
	old.Release()
}

// SetPost updates the displayed fields. A different id swaps the comment
// subscription: the old one is released before the new one opens.
func (p *PostItem) SetPost(post Post) error {
	p.mu.Lock()
	changed := post.ID != p.post.ID
	p.post = post
	if !changed {
		p.mu.Unlock()
		return nil
	}
	old := p.sub
	p.sub = nil
	p.comments = nil
	want := p.mounted && p.wantsSubscriptionLocked()
	p.mu.Unlock()

	old.Release()
	if !want {
		return nil
	}
	return p.subscribe()
}

func (p *PostItem) wantsSubscriptionLocked() bool {
	return !p.opts.GateCommentsOnVisibility || p.showComments
}

func (p *PostItem) subscribe() error {
	h := &handle{}
	p.mu.Lock()
	if !p.mounted {
		p.mu.Unlock()
		return nil
	}
	postID := p.post.ID
	p.sub = h
	p.mu.Unlock()

	release, err := p.docs.SubscribeComments(postID, func(comments []Comment) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.sub != h {
			return
		}
		p.comments = comments
	})
	if err != nil {
		p.mu.Lock()
		if p.sub == h {
			p.sub = nil
		}
		p.mu.Unlock()
		p.log.Warn("comment subscription failed", slog.String("post_id", postID), slog.String("error", err.Error()))
		return err
	}

	p.mu.Lock()
	if p.sub != h {
		// Released while subscribing.
		p.mu.Unlock()
		release()
		return nil
	}
	h.release = release
	p.mu.Unlock()
	return nil
}

// Post returns the displayed post.
func (p *PostItem) Post() Post {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.post
}

// Comments returns the latest comment snapshot, newest first.
func (p *PostItem) Comments() []Comment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Comment(nil), p.comments...)
}

// Subscribed reports whether a comment subscription is open.
func (p *PostItem) Subscribed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub != nil
}

// ToggleComments flips comment visibility. With visibility gating on, it
// also opens or releases the subscription.
func (p *PostItem) ToggleComments() error {
	p.mu.Lock()
	p.showComments = !p.showComments
	if !p.opts.GateCommentsOnVisibility || !p.mounted {
		p.mu.Unlock()
		return nil
	}
	if p.showComments {
		p.mu.Unlock()
		return p.subscribe()
	}
	old := p.sub
	p.sub = nil
	p.comments = nil
	p.mu.Unlock()
	old.Release()
	return nil
}

func (p *PostItem) CommentsVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.showComments
}

func (p *PostItem) SetCommentText(text string) {
	p.mu.Lock()
	p.commentText = text
	p.mu.Unlock()
}

func (p *PostItem) CommentText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commentText
}

// CanComment mirrors the comment button's enabled state.
func (p *PostItem) CanComment() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.TrimSpace(p.commentText) != ""
}

// SubmitComment appends a comment as the viewer. The field is cleared before
// the write completes.
func (p *PostItem) SubmitComment(ctx context.Context) error {
	p.mu.Lock()
	text := strings.TrimSpace(p.commentText)
	if text == "" {
		p.mu.Unlock()
		return ErrSubmitDisabled
	}
	p.commentText = ""
	postID := p.post.ID
	p.mu.Unlock()

	viewer := p.session.Current()
	if _, err := p.docs.AddComment(ctx, postID, Comment{
		PostID:   postID,
		Avatar:   viewer.AvatarURL,
		Username: viewer.DisplayName,
		Text:     text,
	}); err != nil {
		return p.fail(err)
	}
	return nil
}

// CanDelete is true when the viewer's display name matches the post owner's.
// It only decides whether the control is shown; the server checks ownership.
func (p *PostItem) CanDelete() bool {
	viewer := p.session.Current()
	p.mu.Lock()
	defer p.mu.Unlock()
	return !viewer.Empty() && viewer.DisplayName == p.post.Username
}

// RequestDelete opens the confirmation dialog.
func (p *PostItem) RequestDelete() error {
	if !p.CanDelete() {
		return ErrSubmitDisabled
	}
	p.mu.Lock()
	p.confirmOpen = true
	p.mu.Unlock()
	return nil
}

func (p *PostItem) CancelDelete() {
	p.mu.Lock()
	p.confirmOpen = false
	p.mu.Unlock()
}

func (p *PostItem) ConfirmOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confirmOpen
}

// ConfirmDelete deletes the post by id. Its comments and image stay stored.
func (p *PostItem) ConfirmDelete(ctx context.Context) error {
	p.mu.Lock()
	if !p.confirmOpen {
		p.mu.Unlock()
		return ErrSubmitDisabled
	}
	p.confirmOpen = false
	postID := p.post.ID
	p.mu.Unlock()

	if err := p.docs.DeletePost(ctx, postID); err != nil {
		return p.fail(err)
	}
	return nil
}

func (p *PostItem) OpenLightbox() {
	p.mu.Lock()
	p.lightboxOpen = true
	p.mu.Unlock()
}

func (p *PostItem) CloseLightbox() {
	p.mu.Lock()
	p.lightboxOpen = false
	p.mu.Unlock()
}

// Lightbox reports whether the enlarged image is shown and its URL.
func (p *PostItem) Lightbox() (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lightboxOpen, p.post.Image
}

func (p *PostItem) fail(err error) error {
	if p.alerter != nil {
		p.alerter.Alert(err.Error())
	}
	return err
}
