package service

import (
	"context"
	"strings"

	"meshi/internal/models"
	"meshi/internal/observability"
	"meshi/internal/repository"
	"meshi/internal/validation"
)

type PostService struct {
	postRepo repository.PostRepository
	userRepo repository.UserRepository
}

type CreatePostInput struct {
	UserID   uint
	Text     string
	ImageURL string
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

func NewPostService(postRepo repository.PostRepository, userRepo repository.UserRepository) *PostService {
	return &PostService{postRepo: postRepo, userRepo: userRepo}
}

// CreatePost writes a post owned by the caller. Avatar and username are
// copied from the caller's current profile; the timestamp is assigned on write.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (post *models.Post, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "CreatePost")
	defer func() { observability.EndSpan(span, err) }()

	text := strings.TrimSpace(in.Text)
	image := strings.TrimSpace(in.ImageURL)
	if text == "" && image == "" {
		return nil, models.NewValidationError("A post needs an image or some text")
	}
	if err := validation.ValidateText("text", text, validation.MaxPostTextLength, false); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	post = &models.Post{
		UserID:   user.ID,
		Avatar:   user.AvatarURL,
		Username: user.DisplayName,
		Text:     text,
		Image:    image,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// ListPosts returns the whole feed, newest first.
func (s *PostService) ListPosts(ctx context.Context) ([]*models.Post, error) {
	return s.postRepo.List(ctx)
}

// DeletePost removes a post owned by the caller. Its comments and image stay.
func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return err
	}

	if post.UserID != in.UserID {
		return models.NewForbiddenError("You can only delete your own posts")
	}

	return s.postRepo.Delete(ctx, in.PostID)
}
