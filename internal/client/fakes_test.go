package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

type fakeAuth struct {
	mu        sync.Mutex
	accounts  map[string]string
	current   *Identity
	listeners map[int]func(*Identity)
	nextID    int
	released  int

	signInCalls  int
	signUpCalls  int
	resetErr     error
	resetCalls   []string
	profileCalls int
	federated    *Identity
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		accounts:  map[string]string{GuestEmail: GuestPassword},
		listeners: map[int]func(*Identity){},
	}
}

func (a *fakeAuth) notify() {
	a.mu.Lock()
	var cur *Identity
	if a.current != nil {
		c := *a.current
		cur = &c
	}
	cbs := make([]func(*Identity), 0, len(a.listeners))
	for _, cb := range a.listeners {
		cbs = append(cbs, cb)
	}
	a.mu.Unlock()
	for _, cb := range cbs {
		cb(cur)
	}
}

func (a *fakeAuth) SignIn(_ context.Context, email, password string) (Identity, error) {
	a.mu.Lock()
	a.signInCalls++
	pw, ok := a.accounts[email]
	if !ok || pw != password {
		a.mu.Unlock()
		return Identity{}, errors.New("Invalid email or password")
	}
	id := Identity{ID: "uid-" + email, Email: email, DisplayName: displayNameFor(email)}
	a.current = &id
	a.mu.Unlock()
	a.notify()
	return id, nil
}

func displayNameFor(email string) string {
	if email == GuestEmail {
		return "guest"
	}
	return ""
}

func (a *fakeAuth) SignUp(_ context.Context, email, password string) (Identity, error) {
	a.mu.Lock()
	a.signUpCalls++
	if _, ok := a.accounts[email]; ok {
		a.mu.Unlock()
		return Identity{}, errors.New("An account with this email already exists")
	}
	a.accounts[email] = password
	id := Identity{ID: "uid-" + email, Email: email}
	a.current = &id
	a.mu.Unlock()
	a.notify()
	return id, nil
}

func (a *fakeAuth) SignInFederated(context.Context) error {
	a.mu.Lock()
	if a.federated == nil {
		a.mu.Unlock()
		return errors.New("popup closed by user")
	}
	id := *a.federated
	a.current = &id
	a.mu.Unlock()
	a.notify()
	return nil
}

func (a *fakeAuth) SendPasswordReset(_ context.Context, email string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetCalls = append(a.resetCalls, email)
	return a.resetErr
}

func (a *fakeAuth) UpdateProfile(_ context.Context, displayName, avatarURL string) error {
	a.mu.Lock()
	a.profileCalls++
	if a.current == nil {
		a.mu.Unlock()
		return errors.New("not signed in")
	}
	a.current.DisplayName = displayName
	a.current.AvatarURL = avatarURL
	a.mu.Unlock()
	return nil
}

func (a *fakeAuth) SignOut(context.Context) error {
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
	a.notify()
	return nil
}

func (a *fakeAuth) OnAuthStateChanged(cb func(*Identity)) Release {
	a.mu.Lock()
	a.nextID++
	key := a.nextID
	a.listeners[key] = cb
	var cur *Identity
	if a.current != nil {
		c := *a.current
		cur = &c
	}
	a.mu.Unlock()
	cb(cur)
	return func() {
		a.mu.Lock()
		delete(a.listeners, key)
		a.released++
		a.mu.Unlock()
	}
}

func (a *fakeAuth) listenerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.listeners)
}

// fakeDocs is an in-memory document store. Callbacks run synchronously and
// never under the store's lock.
type fakeDocs struct {
	mu       sync.Mutex
	clock    time.Time
	seq      int
	posts    map[string]Post
	deleted  map[string]bool
	comments map[string][]Comment

	feedSubs    map[int]func([]Post)
	commentSubs map[int]commentSub
	nextSub     int

	feedOpened      int
	feedReleased    int
	commentOpened   map[string]int
	commentReleased map[string]int

	addPostErr error
}

type commentSub struct {
	postID string
	cb     func([]Comment)
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		clock:           time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC),
		posts:           map[string]Post{},
		deleted:         map[string]bool{},
		comments:        map[string][]Comment{},
		feedSubs:        map[int]func([]Post){},
		commentSubs:     map[int]commentSub{},
		commentOpened:   map[string]int{},
		commentReleased: map[string]int{},
	}
}

func (d *fakeDocs) nextIDLocked() (string, time.Time) {
	d.seq++
	d.clock = d.clock.Add(time.Second)
	return strconv.Itoa(d.seq), d.clock
}

func (d *fakeDocs) feedLocked() []Post {
	out := make([]Post, 0, len(d.posts))
	for id, p := range d.posts {
		if !d.deleted[id] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a > b
	})
	return out
}

func (d *fakeDocs) commentsLocked(postID string) []Comment {
	src := d.comments[postID]
	out := make([]Comment, len(src))
	for i, c := range src {
		out[len(src)-1-i] = c
	}
	return out
}

func (d *fakeDocs) publish(postID string) {
	d.mu.Lock()
	feed := d.feedLocked()
	feedCbs := make([]func([]Post), 0, len(d.feedSubs))
	for _, cb := range d.feedSubs {
		feedCbs = append(feedCbs, cb)
	}
	var commentCbs []func([]Comment)
	var comments []Comment
	if postID != "" {
		comments = d.commentsLocked(postID)
		for _, s := range d.commentSubs {
			if s.postID == postID {
				commentCbs = append(commentCbs, s.cb)
			}
		}
	}
	d.mu.Unlock()

	for _, cb := range feedCbs {
		cb(feed)
	}
	for _, cb := range commentCbs {
		cb(comments)
	}
}

func (d *fakeDocs) AddPost(_ context.Context, post Post) (string, error) {
	d.mu.Lock()
	if d.addPostErr != nil {
		err := d.addPostErr
		d.mu.Unlock()
		return "", err
	}
	id, ts := d.nextIDLocked()
	post.ID, post.Timestamp = id, ts
	d.posts[id] = post
	d.mu.Unlock()
	d.publish("")
	return id, nil
}

// addPostAt inserts a post with a fixed timestamp to exercise tie ordering.
func (d *fakeDocs) addPostAt(post Post, ts time.Time) string {
	d.mu.Lock()
	d.seq++
	id := strconv.Itoa(d.seq)
	post.ID, post.Timestamp = id, ts
	d.posts[id] = post
	d.mu.Unlock()
	d.publish("")
	return id
}

func (d *fakeDocs) DeletePost(_ context.Context, postID string) error {
	d.mu.Lock()
	if _, ok := d.posts[postID]; !ok || d.deleted[postID] {
		d.mu.Unlock()
		return errors.New("Post not found")
	}
	d.deleted[postID] = true
	d.mu.Unlock()
	d.publish("")
	return nil
}

func (d *fakeDocs) AddComment(_ context.Context, postID string, comment Comment) (string, error) {
	d.mu.Lock()
	if _, ok := d.posts[postID]; !ok || d.deleted[postID] {
		d.mu.Unlock()
		return "", errors.New("Post not found")
	}
	id, ts := d.nextIDLocked()
	comment.ID, comment.PostID, comment.Timestamp = id, postID, ts
	d.comments[postID] = append(d.comments[postID], comment)
	d.mu.Unlock()
	d.publish(postID)
	return id, nil
}

func (d *fakeDocs) SubscribeFeed(cb func([]Post)) (Release, error) {
	d.mu.Lock()
	d.nextSub++
	key := d.nextSub
	d.feedSubs[key] = cb
	d.feedOpened++
	feed := d.feedLocked()
	d.mu.Unlock()
	cb(feed)
	return func() {
		d.mu.Lock()
		delete(d.feedSubs, key)
		d.feedReleased++
		d.mu.Unlock()
	}, nil
}

func (d *fakeDocs) SubscribeComments(postID string, cb func([]Comment)) (Release, error) {
	d.mu.Lock()
	d.nextSub++
	key := d.nextSub
	d.commentSubs[key] = commentSub{postID: postID, cb: cb}
	d.commentOpened[postID]++
	comments := d.commentsLocked(postID)
	d.mu.Unlock()
	cb(comments)
	return func() {
		d.mu.Lock()
		delete(d.commentSubs, key)
		d.commentReleased[postID]++
		d.mu.Unlock()
	}, nil
}

func (d *fakeDocs) storedComments(postID string) []Comment {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Comment(nil), d.comments[postID]...)
}

func (d *fakeDocs) openCommentSubs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.commentSubs)
}

func (d *fakeDocs) counts(postID string) (opened, released int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commentOpened[postID], d.commentReleased[postID]
}

type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string]File
	uploadErr error
	progress  []int64
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string]File{}}
}

func (b *fakeBlobs) Upload(_ context.Context, path string, file File) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return b.uploadErr
	}
	b.objects[path] = file
	return nil
}

func (b *fakeBlobs) UploadResumable(ctx context.Context, path string, file File, observe UploadObserver) error {
	total := int64(len(file.Data))
	if observe != nil {
		observe(0, total)
	}
	if err := b.Upload(ctx, path, file); err != nil {
		return err
	}
	b.mu.Lock()
	b.progress = append(b.progress, total)
	b.mu.Unlock()
	if observe != nil {
		observe(total, total)
	}
	return nil
}

func (b *fakeBlobs) URL(_ context.Context, path string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[path]; !ok {
		return "", fmt.Errorf("object %s does not exist", path)
	}
	return "https://blobs.test/" + path, nil
}

func (b *fakeBlobs) paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for p := range b.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type recordingAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingAlerter) Alert(message string) {
	r.mu.Lock()
	r.messages = append(r.messages, message)
	r.mu.Unlock()
}

func (r *recordingAlerter) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func pngFile(name string) File {
	return File{Name: name, ContentType: "image/png", Data: []byte("\x89PNG\r\n\x1a\nfake")}
}

func (d *fakeDocs) feed() []Post {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.feedLocked()
}
