// Package client holds the headless view-controllers of the meshi feed: the
// session holder, credential entry, composer, feed and post items. They talk
// to the backend only through the ports declared here.
package client

import (
	"context"
	"errors"
	"time"
)

// Identity is the signed-in viewer. The zero value is the signed-out sentinel.
type Identity struct {
	ID          string
	DisplayName string
	AvatarURL   string
	Email       string
}

// Empty reports whether i is the signed-out sentinel.
func (i Identity) Empty() bool { return i.ID == "" }

type Post struct {
	ID        string
	UserID    string
	Avatar    string
	Username  string
	Text      string
	Image     string
	Timestamp time.Time
}

type Comment struct {
	ID        string
	PostID    string
	Avatar    string
	Username  string
	Text      string
	Timestamp time.Time
}

// File is a picked local file.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Release detaches a subscription.
type Release func()

// UploadObserver receives resumable upload progress.
type UploadObserver func(sent, total int64)

// AuthService is the account surface.
type AuthService interface {
	SignIn(ctx context.Context, email, password string) (Identity, error)
	SignUp(ctx context.Context, email, password string) (Identity, error)
	SignInFederated(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string) error
	UpdateProfile(ctx context.Context, displayName, avatarURL string) error
	SignOut(ctx context.Context) error
	// OnAuthStateChanged calls cb with the current identity and again after
	// every change; nil means signed out.
	OnAuthStateChanged(cb func(*Identity)) Release
}

// DocumentStore is the feed surface. Timestamps are assigned by the server.
type DocumentStore interface {
	AddPost(ctx context.Context, post Post) (string, error)
	DeletePost(ctx context.Context, postID string) error
	AddComment(ctx context.Context, postID string, comment Comment) (string, error)
	// SubscribeFeed delivers every post, newest first, on subscribe and after
	// each change.
	SubscribeFeed(cb func([]Post)) (Release, error)
	SubscribeComments(postID string, cb func([]Comment)) (Release, error)
}

// BlobStore stores avatar and post images.
type BlobStore interface {
	Upload(ctx context.Context, path string, file File) error
	UploadResumable(ctx context.Context, path string, file File, observe UploadObserver) error
	URL(ctx context.Context, path string) (string, error)
}

// Alerter shows a blocking message to the user.
type Alerter interface {
	Alert(message string)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(message string)

func (f AlertFunc) Alert(message string) { f(message) }

// ErrSubmitDisabled is returned when an action is attempted while its
// submit control would be disabled. No service call is made.
var ErrSubmitDisabled = errors.New("submit disabled")
