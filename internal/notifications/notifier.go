// Package notifications fans change notifications out to live WebSocket
// subscribers.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	"meshi/internal/middleware"
	"meshi/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	// FeedChannel carries a notification whenever the post collection changes.
	FeedChannel = "live:feed"

	commentsChannelPrefix = "live:comments:"
	livePattern           = "live:*"
)

// Topic identifies one ordered query: the feed, or the comments of one post.
type Topic struct {
	Collection string
	PostID     uint
}

// FeedTopic is the topic of the post feed.
func FeedTopic() Topic { return Topic{Collection: models.CollectionPosts} }

// CommentsTopic is the topic of the comments under postID.
func CommentsTopic(postID uint) Topic {
	return Topic{Collection: models.CollectionComments, PostID: postID}
}

// Key is the map key and Redis channel for the topic.
func (t Topic) Key() string {
	if t.Collection == models.CollectionComments {
		return CommentsChannel(t.PostID)
	}
	return FeedChannel
}

// CommentsChannel derives the Redis channel name for a post's comments.
func CommentsChannel(postID uint) string {
	return commentsChannelPrefix + strconv.FormatUint(uint64(postID), 10)
}

// ParseChannel maps a Redis channel back to its topic.
func ParseChannel(channel string) (Topic, bool) {
	if channel == FeedChannel {
		return FeedTopic(), true
	}
	rest, ok := strings.CutPrefix(channel, commentsChannelPrefix)
	if !ok {
		return Topic{}, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		return Topic{}, false
	}
	return CommentsTopic(uint(id)), true
}

// Notifier publishes change notifications into Redis so every API instance
// can refresh its own subscribers.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether notifications travel through Redis.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishFeedChanged announces that a post was created or deleted.
func (n *Notifier) PublishFeedChanged(ctx context.Context) error {
	return n.publish(ctx, FeedTopic())
}

// PublishCommentsChanged announces a new comment under postID.
func (n *Notifier) PublishCommentsChanged(ctx context.Context, postID uint) error {
	return n.publish(ctx, CommentsTopic(postID))
}

func (n *Notifier) publish(ctx context.Context, topic Topic) error {
	if !n.Enabled() {
		return nil
	}
	if err := n.rdb.Publish(ctx, topic.Key(), "changed").Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic.Key(), err)
	}
	return nil
}

// StartLiveSubscriber subscribes to `live:*` and calls onTopic for each
// notification until ctx is cancelled. A panicking callback is logged and the
// loop keeps running.
func (n *Notifier) StartLiveSubscriber(ctx context.Context, onTopic func(Topic)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, livePattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", livePattern, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				topic, valid := ParseChannel(msg.Channel)
				if !valid {
					middleware.Logger.Warn("ignoring live notification", slog.String("channel", msg.Channel))
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in live subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onTopic(topic)
				}()
			}
		}
	}()

	return nil
}
