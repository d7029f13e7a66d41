package remote

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"meshi/internal/client"
	"meshi/internal/config"
	"meshi/internal/database"
	"meshi/internal/server"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

// startServer runs a full server on a loopback listener backed by SQLite and
// miniredis and returns its root URL.
func startServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	dir := t.TempDir()
	cfg := &config.Config{
		Env:              "test",
		Port:             "0",
		JWTSecret:        "remote-test-secret-0123456789abcdef0123456789",
		DBDriver:         "sqlite",
		DBPath:           filepath.Join(dir, "meshi.db"),
		DBMaxOpenConns:   1,
		BlobDir:          filepath.Join(dir, "blobs"),
		PublicBaseURL:    base,
		MaxUploadSizeMB:  1,
		FeatureFlags:     "guest_login=on,password_reset=on",
		GuestEmail:       client.GuestEmail,
		GuestPassword:    client.GuestPassword,
		GuestDisplayName: "guest",
		AllowedOrigins:   "*",
	}

	db, err := database.Connect(cfg)
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	srv, err := server.NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.StartWiring(ctx))
	_, err = srv.Auth().EnsureGuest(ctx)
	require.NoError(t, err)

	app := srv.App()
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	})
	return base
}

func newRemote(t *testing.T, base string) *Client {
	t.Helper()
	c := New(Options{BaseURL: base, Timeout: 5 * time.Second})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testPNG(t *testing.T, name string) client.File {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return client.File{Name: name, ContentType: "image/png", Data: buf.Bytes()}
}

type alerts struct {
	mu   sync.Mutex
	msgs []string
}

func (a *alerts) Alert(msg string) {
	a.mu.Lock()
	a.msgs = append(a.msgs, msg)
	a.mu.Unlock()
}

func (a *alerts) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.msgs...)
}

func TestLiveURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8375", "ws://localhost:8375/api/live?ticket=abc"},
		{"https://meshi.example.com/", "wss://meshi.example.com/api/live?ticket=abc"},
		{"http://proxy.test/meshi", "ws://proxy.test/meshi/api/live?ticket=abc"},
	}
	for _, tt := range tests {
		got, err := liveURL(tt.base, "abc")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestAuth_ErrorsCarryServerMessage(t *testing.T) {
	base := startServer(t)
	rc := newRemote(t, base)
	ctx := context.Background()

	_, err := rc.Auth.SignIn(ctx, "nobody@example.com", "secret1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
	assert.Equal(t, "Invalid credentials", err.Error())

	assert.ErrorIs(t, rc.Auth.SignInFederated(ctx), ErrNoPopup)
}

func TestAuth_SignUpProfileAndResume(t *testing.T) {
	base := startServer(t)
	rc := newRemote(t, base)
	ctx := context.Background()

	var seen []*client.Identity
	release := rc.Auth.OnAuthStateChanged(func(id *client.Identity) { seen = append(seen, id) })
	defer release()
	require.Len(t, seen, 1)
	assert.Nil(t, seen[0])

	created, err := rc.Auth.SignUp(ctx, "hana@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	require.Len(t, seen, 2)
	assert.Equal(t, created.ID, seen[1].ID)

	require.NoError(t, rc.Auth.UpdateProfile(ctx, "hana", "https://img.test/hana.png"))
	me, err := rc.Auth.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hana", me.DisplayName)
	assert.Equal(t, "https://img.test/hana.png", me.AvatarURL)

	other := newRemote(t, base)
	resumed, err := other.Resume(ctx, rc.Token())
	require.NoError(t, err)
	assert.Equal(t, created.ID, resumed.ID)

	require.NoError(t, rc.Auth.SignOut(ctx))
	assert.Empty(t, rc.Token())
	assert.Nil(t, seen[len(seen)-1])

	_, err = newRemote(t, base).Resume(ctx, "not-a-token")
	assert.Error(t, err)
}

func TestBlobs_ResumableUpload(t *testing.T) {
	base := startServer(t)
	rc := newRemote(t, base)
	ctx := context.Background()
	_, err := rc.Auth.SignUp(ctx, "kenji@example.com", "secret1")
	require.NoError(t, err)

	file := testPNG(t, "gyoza.png")
	path := client.BlobPath(client.ImageFolder, file.Name)

	var progress [][2]int64
	require.NoError(t, rc.Blobs.UploadResumable(ctx, path, file, func(sent, total int64) {
		progress = append(progress, [2]int64{sent, total})
	}))
	require.NotEmpty(t, progress)
	last := progress[len(progress)-1]
	assert.Equal(t, last[0], last[1])
	assert.Equal(t, int64(len(file.Data)), last[1])

	u, err := rc.Blobs.URL(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, base+"/storage/"+path, u)

	avatar := client.BlobPath(client.AvatarFolder, "me.png")
	require.NoError(t, rc.Blobs.Upload(ctx, avatar, testPNG(t, "me.png")))
	err = rc.Blobs.Upload(ctx, avatar, testPNG(t, "me.png"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 409, apiErr.Status)

	_, err = rc.Blobs.URL(ctx, "images/AAAAAAAAAAAAAAAA_missing.png")
	assert.Error(t, err)
}

func TestApp_GuestRamenYumDelete(t *testing.T) {
	base := startServer(t)
	rc := newRemote(t, base)
	ctx := context.Background()
	alerter := &alerts{}

	app := client.NewApp(rc.Auth, rc.Documents, rc.Blobs, alerter, client.Options{})
	app.Mount()
	defer app.Unmount()

	require.NoError(t, app.Credentials.SignInGuest(ctx))
	require.True(t, app.Authenticated())
	assert.Equal(t, "guest", app.Session.Current().DisplayName)

	feed, err := app.Feed()
	require.NoError(t, err)
	require.NotNil(t, feed)

	composer := feed.Composer()
	composer.SetText("ramen")
	composer.SelectImage(testPNG(t, "ramen.png"))
	postID, err := composer.Submit(ctx)
	require.NoError(t, err, alerter.all())

	require.Eventually(t, func() bool { return feed.Item(postID) != nil }, waitFor, 20*time.Millisecond)
	posts := feed.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "ramen", posts[0].Text)
	assert.Equal(t, "guest", posts[0].Username)
	assert.Regexp(t, `/storage/images/[A-Za-z0-9]{16}_ramen\.png$`, posts[0].Image)

	item := feed.Item(postID)
	require.Eventually(t, item.Subscribed, waitFor, 20*time.Millisecond)
	item.SetCommentText("yum")
	require.NoError(t, item.SubmitComment(ctx))
	require.Eventually(t, func() bool { return len(item.Comments()) == 1 }, waitFor, 20*time.Millisecond)
	assert.Equal(t, "yum", item.Comments()[0].Text)

	require.True(t, item.CanDelete())
	require.NoError(t, item.RequestDelete())
	require.NoError(t, item.ConfirmDelete(ctx))
	require.Eventually(t, func() bool { return len(feed.Posts()) == 0 }, waitFor, 20*time.Millisecond)

	orphans, err := rc.Documents.ListComments(ctx, postID)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "yum", orphans[0].Text)

	require.NoError(t, app.SignOut(ctx))
	assert.False(t, app.Authenticated())
	assert.Empty(t, alerter.all())
}

func TestDocuments_DeleteByOtherUserIsForbidden(t *testing.T) {
	base := startServer(t)
	ctx := context.Background()

	owner := newRemote(t, base)
	_, err := owner.Auth.SignUp(ctx, "owner@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, owner.Auth.UpdateProfile(ctx, "owner", ""))
	postID, err := owner.Documents.AddPost(ctx, client.Post{Text: "mine"})
	require.NoError(t, err)

	other := newRemote(t, base)
	_, err = other.Auth.SignUp(ctx, "other@example.com", "secret1")
	require.NoError(t, err)
	err = other.Documents.DeletePost(ctx, postID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 403, apiErr.Status)

	posts, err := other.Documents.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "owner", posts[0].Username)
}
