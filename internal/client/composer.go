package client

import (
	"context"
	"log/slog"
	"sync"
)

// Draft is the composer's unsent input.
type Draft struct {
	Text  string
	Image *File
}

// Composer writes new posts. Submitting clears the form at once; a draft
// lost to a failed upload or write can be put back with RestoreFailedDraft.
type Composer struct {
	session *Session
	docs    DocumentStore
	blobs   BlobStore
	alerter Alerter
	log     *slog.Logger

	mu     sync.Mutex
	draft  Draft
	failed *Draft
}

func NewComposer(session *Session, docs DocumentStore, blobs BlobStore, alerter Alerter, opts Options) *Composer {
	return &Composer{
		session: session,
		docs:    docs,
		blobs:   blobs,
		alerter: alerter,
		log:     opts.logger().With(slog.String("component", "composer")),
	}
}

func (c *Composer) SetText(text string) {
	c.mu.Lock()
	c.draft.Text = text
	c.mu.Unlock()
}

func (c *Composer) SelectImage(f File) {
	c.mu.Lock()
	c.draft.Image = &f
	c.mu.Unlock()
}

// Draft returns the current input.
func (c *Composer) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// CanSubmit is true once an image is picked; the caption is optional.
func (c *Composer) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.Image != nil
}

// Submit uploads the image to images/<prefix>_<name>, then appends the post.
// It returns the new post id.
func (c *Composer) Submit(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.draft.Image == nil {
		c.mu.Unlock()
		return "", ErrSubmitDisabled
	}
	draft := c.draft
	c.draft = Draft{}
	c.failed = nil
	c.mu.Unlock()

	viewer := c.session.Current()
	path := BlobPath(ImageFolder, draft.Image.Name)

	err := c.blobs.UploadResumable(ctx, path, *draft.Image, func(sent, total int64) {
		c.log.DebugContext(ctx, "upload progress",
			slog.String("path", path), slog.Int64("sent", sent), slog.Int64("total", total))
	})
	if err != nil {
		return "", c.fail(draft, err)
	}

	imageURL, err := c.blobs.URL(ctx, path)
	if err != nil {
		return "", c.fail(draft, err)
	}

	id, err := c.docs.AddPost(ctx, Post{
		Avatar:   viewer.AvatarURL,
		Username: viewer.DisplayName,
		Text:     draft.Text,
		Image:    imageURL,
	})
	if err != nil {
		return "", c.fail(draft, err)
	}
	return id, nil
}

// RestoreFailedDraft puts back the input of the last failed submit unless
// the user has started a new draft. It reports whether anything was restored.
func (c *Composer) RestoreFailedDraft() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed == nil || c.draft.Text != "" || c.draft.Image != nil {
		return false
	}
	c.draft = *c.failed
	c.failed = nil
	return true
}

func (c *Composer) fail(draft Draft, err error) error {
	c.mu.Lock()
	c.failed = &draft
	c.mu.Unlock()

	c.log.Warn("post submit failed", slog.String("error", err.Error()))
	if c.alerter != nil {
		c.alerter.Alert(err.Error())
	}
	return err
}
