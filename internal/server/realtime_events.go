package server

import (
	"context"
	"log/slog"

	"meshi/internal/middleware"
	"meshi/internal/models"
	"meshi/internal/notifications"
)

// publishChange tells every live subscriber of topic to re-read. With Redis
// the notification reaches all API instances, including this one through its
// own subscriber; without it only local subscribers are refreshed.
func (s *Server) publishChange(ctx context.Context, topic notifications.Topic) {
	ctx = context.WithoutCancel(ctx)

	if s.notifier.Enabled() {
		var err error
		if topic.Collection == models.CollectionComments {
			err = s.notifier.PublishCommentsChanged(ctx, topic.PostID)
		} else {
			err = s.notifier.PublishFeedChanged(ctx)
		}
		if err == nil {
			return
		}
		middleware.Logger.WarnContext(ctx, "live publish failed, refreshing locally",
			slog.String("topic", topic.Key()),
			slog.String("error", err.Error()),
		)
	}
	s.liveHub.Refresh(ctx, topic)
}

func (s *Server) publishFeedChanged(ctx context.Context) {
	s.publishChange(ctx, notifications.FeedTopic())
}

func (s *Server) publishCommentsChanged(ctx context.Context, postID uint) {
	s.publishChange(ctx, notifications.CommentsTopic(postID))
}
