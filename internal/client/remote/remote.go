package remote

import (
	"context"
	"errors"

	"meshi/internal/client"
)

var (
	_ client.AuthService   = (*Auth)(nil)
	_ client.DocumentStore = (*Documents)(nil)
	_ client.BlobStore     = (*Blobs)(nil)
)

// Client bundles the three ports over one transport.
type Client struct {
	Auth      *Auth
	Documents *Documents
	Blobs     *Blobs

	t *transport
}

// New builds a client for the server at opts.BaseURL. Signing out closes the
// live socket.
func New(opts Options) *Client {
	t := newTransport(opts)
	c := &Client{
		Auth:      newAuth(t, opts),
		Documents: newDocuments(t),
		Blobs:     newBlobs(t),
		t:         t,
	}
	c.Auth.addSignOutHook(func() { _ = c.Documents.Close() })
	return c
}

// Token returns the bearer token of the signed-in session.
func (c *Client) Token() string { return c.t.Token() }

// Resume restores a session from a saved bearer token.
func (c *Client) Resume(ctx context.Context, token string) (client.Identity, error) {
	c.t.setToken(token)
	id, err := c.Auth.Me(ctx)
	if err != nil {
		c.t.setToken("")
		return client.Identity{}, err
	}
	c.Auth.publish(&id)
	return id, nil
}

func (c *Client) Close() error {
	return errors.Join(c.Documents.Close(), c.t.Close())
}
