package client

import (
	"context"
	"sync"
)

// Title is the application name shown in the header.
const Title = "きょうのメシ"

// App is the root: it owns the session and switches between the credential
// view and the feed.
type App struct {
	Session     *Session
	Credentials *Credentials

	auth    AuthService
	docs    DocumentStore
	blobs   BlobStore
	alerter Alerter
	opts    Options

	mu   sync.Mutex
	feed *Feed
}

func NewApp(auth AuthService, docs DocumentStore, blobs BlobStore, alerter Alerter, opts Options) *App {
	session := NewSession()
	return &App{
		Session:     session,
		Credentials: NewCredentials(session, auth, blobs, alerter),
		auth:        auth,
		docs:        docs,
		blobs:       blobs,
		alerter:     alerter,
		opts:        opts,
	}
}

// Mount attaches the session to the auth-change stream.
func (a *App) Mount() {
	a.Session.Attach(a.auth)
}

// Unmount tears down the feed and detaches the session.
func (a *App) Unmount() {
	a.closeFeed()
	a.Session.Detach()
}

// Authenticated reports whether the feed should be shown.
func (a *App) Authenticated() bool {
	return !a.Session.Current().Empty()
}

// Feed returns the mounted feed, mounting it on first use. It returns nil
// while signed out.
func (a *App) Feed() (*Feed, error) {
	if !a.Authenticated() {
		return nil, nil
	}
	a.mu.Lock()
	if a.feed != nil {
		f := a.feed
		a.mu.Unlock()
		return f, nil
	}
	f := NewFeed(a.Session, a.docs, a.blobs, a.alerter, a.opts)
	a.feed = f
	a.mu.Unlock()

	if err := f.Mount(); err != nil {
		a.mu.Lock()
		if a.feed == f {
			a.feed = nil
		}
		a.mu.Unlock()
		return nil, err
	}
	return f, nil
}

// SignOut signs out through the auth service and drops the feed. The session
// is cleared by the auth-change stream.
func (a *App) SignOut(ctx context.Context) error {
	a.closeFeed()
	if err := a.auth.SignOut(ctx); err != nil {
		if a.alerter != nil {
			a.alerter.Alert(err.Error())
		}
		return err
	}
	return nil
}

func (a *App) closeFeed() {
	a.mu.Lock()
	f := a.feed
	a.feed = nil
	a.mu.Unlock()
	if f != nil {
		f.Unmount()
	}
}
