package seed

import (
	"strings"
	"testing"
	"time"

	"meshi/internal/models"
)

func TestBuildPost_TimestampsAndAuthor(t *testing.T) {
	opts := Options{DryRun: true, MaxDays: 30, RandSeed: 42}
	f := NewFactory(nil, opts)
	user := &models.User{ID: 1, DisplayName: "hana", AvatarURL: "https://example.com/a.png"}

	for i := 0; i < 20; i++ {
		p := f.BuildPost(user)
		if p.Username != "hana" || p.Avatar != user.AvatarURL || p.UserID != 1 {
			t.Fatalf("post does not carry author identity: %+v", p)
		}
		if strings.TrimSpace(p.Text) == "" {
			t.Fatalf("expected generated text")
		}
		if time.Since(p.CreatedAt) > (time.Duration(opts.MaxDays)+1)*24*time.Hour {
			t.Fatalf("created_at too old: %v", p.CreatedAt)
		}
	}

	post := f.BuildPost(user, func(p *models.Post) { p.Text = "ramen" })
	if post.Text != "ramen" {
		t.Fatalf("override not applied: %q", post.Text)
	}

	c := f.BuildComment(post, user)
	if !c.CreatedAt.After(post.CreatedAt) {
		t.Fatalf("comment should be newer than its post")
	}
}

func TestDryRunAssignsIDs(t *testing.T) {
	f := NewFactory(nil, Options{DryRun: true, SkipBcrypt: true})

	user, err := f.CreateUser()
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.ID == 0 || user.Password != DefaultPassword {
		t.Fatalf("unexpected dry-run user: %+v", user)
	}

	posts := []*models.Post{f.BuildPost(user), f.BuildPost(user)}
	if err := f.CreatePostsBatch(posts); err != nil {
		t.Fatalf("CreatePostsBatch: %v", err)
	}
	if posts[0].ID == 0 || posts[0].ID == posts[1].ID {
		t.Fatalf("expected distinct synthetic ids, got %d and %d", posts[0].ID, posts[1].ID)
	}
}
