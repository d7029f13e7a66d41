package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"meshi/internal/client"
	"meshi/internal/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const dialTimeout = 10 * time.Second

// Documents implements client.DocumentStore. Writes go over HTTP; feed and
// comment subscriptions share one live socket opened on first use.
type Documents struct {
	t *transport

	mu   sync.Mutex
	live *liveConn
}

func newDocuments(t *transport) *Documents {
	return &Documents{t: t}
}

func parseID(id string) (uint, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid id %q", id)
	}
	return uint(n), nil
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func toPost(p models.Post, _ int) client.Post {
	return client.Post{
		ID:        formatID(p.ID),
		UserID:    formatID(p.UserID),
		Avatar:    p.Avatar,
		Username:  p.Username,
		Text:      p.Text,
		Image:     p.Image,
		Timestamp: p.CreatedAt,
	}
}

func toComment(c models.Comment, _ int) client.Comment {
	return client.Comment{
		ID:        formatID(c.ID),
		PostID:    formatID(c.PostID),
		Avatar:    c.Avatar,
		Username:  c.Username,
		Text:      c.Text,
		Timestamp: c.CreatedAt,
	}
}

// AddPost creates a post. Avatar and username are taken from the caller's
// profile by the server.
func (d *Documents) AddPost(ctx context.Context, post client.Post) (string, error) {
	res, err := d.t.r(ctx).
		SetBody(map[string]string{"text": post.Text, "image_url": post.Image}).
		SetResult(&models.Post{}).
		Post("/posts")
	if err := check(res, err); err != nil {
		return "", err
	}
	return formatID(res.Result().(*models.Post).ID), nil
}

func (d *Documents) DeletePost(ctx context.Context, postID string) error {
	res, err := d.t.r(ctx).SetPathParam("id", postID).Delete("/posts/{id}")
	return check(res, err)
}

func (d *Documents) AddComment(ctx context.Context, postID string, comment client.Comment) (string, error) {
	res, err := d.t.r(ctx).
		SetPathParam("id", postID).
		SetBody(map[string]string{"text": comment.Text}).
		SetResult(&models.Comment{}).
		Post("/posts/{id}/comments")
	if err := check(res, err); err != nil {
		return "", err
	}
	return formatID(res.Result().(*models.Comment).ID), nil
}

// ListPosts fetches the feed once.
func (d *Documents) ListPosts(ctx context.Context) ([]client.Post, error) {
	var posts []models.Post
	res, err := d.t.r(ctx).SetResult(&posts).Get("/posts")
	if err := check(res, err); err != nil {
		return nil, err
	}
	return lo.Map(posts, toPost), nil
}

// ListComments fetches a post's comments once, newest first.
func (d *Documents) ListComments(ctx context.Context, postID string) ([]client.Comment, error) {
	var comments []models.Comment
	res, err := d.t.r(ctx).SetPathParam("id", postID).SetResult(&comments).Get("/posts/{id}/comments")
	if err := check(res, err); err != nil {
		return nil, err
	}
	return lo.Map(comments, toComment), nil
}

func (d *Documents) SubscribeFeed(cb func([]client.Post)) (client.Release, error) {
	return d.subscribe(models.LiveRequest{Collection: models.CollectionPosts}, func(raw json.RawMessage) error {
		var posts []models.Post
		if err := json.Unmarshal(raw, &posts); err != nil {
			return err
		}
		cb(lo.Map(posts, toPost))
		return nil
	})
}

func (d *Documents) SubscribeComments(postID string, cb func([]client.Comment)) (client.Release, error) {
	id, err := parseID(postID)
	if err != nil {
		return nil, err
	}
	return d.subscribe(models.LiveRequest{Collection: models.CollectionComments, PostID: id}, func(raw json.RawMessage) error {
		var comments []models.Comment
		if err := json.Unmarshal(raw, &comments); err != nil {
			return err
		}
		cb(lo.Map(comments, toComment))
		return nil
	})
}

func (d *Documents) subscribe(req models.LiveRequest, decode func(json.RawMessage) error) (client.Release, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	live, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}

	sub := uuid.NewString()
	handler := func(raw json.RawMessage) {
		if err := decode(raw); err != nil {
			d.t.log.Warn("undecodable snapshot", slog.String("sub", sub), slog.String("error", err.Error()))
		}
	}
	if err := live.subscribe(sub, req, handler); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() { once.Do(func() { live.unsubscribe(sub) }) }, nil
}

// connect returns the open live socket, dialing with a fresh ticket when
// there is none.
func (d *Documents) connect(ctx context.Context) (*liveConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.live != nil && !d.live.isClosed() {
		return d.live, nil
	}

	type ticket struct {
		Ticket string `json:"ticket"`
	}
	res, err := d.t.r(ctx).SetResult(&ticket{}).Post("/ws/ticket")
	if err := check(res, err); err != nil {
		return nil, err
	}
	wsURL, err := liveURL(d.t.base, res.Result().(*ticket).Ticket)
	if err != nil {
		return nil, err
	}
	live, err := dialLive(ctx, wsURL, d.t.log)
	if err != nil {
		return nil, fmt.Errorf("dial live: %w", err)
	}
	d.live = live
	return live, nil
}

// Close drops the live socket and every subscription on it.
func (d *Documents) Close() error {
	d.mu.Lock()
	live := d.live
	d.live = nil
	d.mu.Unlock()
	if live == nil {
		return nil
	}
	return live.Close()
}
