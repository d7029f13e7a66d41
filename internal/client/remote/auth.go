package remote

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"meshi/internal/client"
	"meshi/internal/models"
)

// ErrNoPopup is returned by SignInFederated when no popup opener is set.
var ErrNoPopup = errors.New("federated sign-in needs a popup")

type authResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Auth implements client.AuthService over /api/auth and /api/users/me.
type Auth struct {
	t     *transport
	popup func(ctx context.Context, consentURL string) (string, error)

	mu        sync.Mutex
	current   *client.Identity
	listeners map[int]func(*client.Identity)
	nextID    int
	onSignOut []func()
}

func newAuth(t *transport, opts Options) *Auth {
	return &Auth{t: t, popup: opts.Popup, listeners: make(map[int]func(*client.Identity))}
}

func identityOf(u *models.User) client.Identity {
	if u == nil {
		return client.Identity{}
	}
	return client.Identity{
		ID:          strconv.FormatUint(uint64(u.ID), 10),
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Email:       u.Email,
	}
}

func (a *Auth) SignIn(ctx context.Context, email, password string) (client.Identity, error) {
	return a.authenticate(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

func (a *Auth) SignUp(ctx context.Context, email, password string) (client.Identity, error) {
	return a.authenticate(ctx, "/auth/signup", map[string]string{"email": email, "password": password})
}

// SignInGuest signs in to the server's demo account.
func (a *Auth) SignInGuest(ctx context.Context) (client.Identity, error) {
	return a.authenticate(ctx, "/auth/guest", nil)
}

func (a *Auth) authenticate(ctx context.Context, path string, body any) (client.Identity, error) {
	req := a.t.r(ctx).SetResult(&authResult{})
	if body != nil {
		req.SetBody(body)
	}
	res, err := req.Post(path)
	if err := check(res, err); err != nil {
		return client.Identity{}, err
	}
	out := res.Result().(*authResult)
	return a.signedIn(out), nil
}

func (a *Auth) signedIn(res *authResult) client.Identity {
	a.t.setToken(res.Token)
	id := identityOf(res.User)
	a.publish(&id)
	return id
}

// SignInFederated asks the server for a consent URL, hands it to the popup
// and redeems the returned code.
func (a *Auth) SignInFederated(ctx context.Context) error {
	if a.popup == nil {
		return ErrNoPopup
	}
	type start struct {
		URL   string `json:"url"`
		State string `json:"state"`
	}
	res, err := a.t.r(ctx).SetResult(&start{}).Get("/auth/federated/google")
	if err := check(res, err); err != nil {
		return err
	}
	s := res.Result().(*start)

	code, err := a.popup(ctx, s.URL)
	if err != nil {
		return err
	}

	res, err = a.t.r(ctx).
		SetBody(map[string]string{"code": code, "state": s.State}).
		SetResult(&authResult{}).
		Post("/auth/federated/google/callback")
	if err := check(res, err); err != nil {
		return err
	}
	a.signedIn(res.Result().(*authResult))
	return nil
}

func (a *Auth) SendPasswordReset(ctx context.Context, email string) error {
	res, err := a.t.r(ctx).SetBody(map[string]string{"email": email}).Post("/auth/password-reset")
	return check(res, err)
}

// ConfirmPasswordReset sets a new password with a token from the reset mail.
func (a *Auth) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	res, err := a.t.r(ctx).
		SetBody(map[string]string{"token": token, "password": password}).
		Post("/auth/password-reset/confirm")
	return check(res, err)
}

func (a *Auth) UpdateProfile(ctx context.Context, displayName, avatarURL string) error {
	res, err := a.t.r(ctx).
		SetBody(map[string]string{"display_name": displayName, "avatar_url": avatarURL}).
		SetResult(&models.User{}).
		Put("/users/me")
	if err := check(res, err); err != nil {
		return err
	}
	id := identityOf(res.Result().(*models.User))
	a.mu.Lock()
	a.current = &id
	a.mu.Unlock()
	return nil
}

// Me fetches the signed-in account.
func (a *Auth) Me(ctx context.Context) (client.Identity, error) {
	res, err := a.t.r(ctx).SetResult(&models.User{}).Get("/users/me")
	if err := check(res, err); err != nil {
		return client.Identity{}, err
	}
	return identityOf(res.Result().(*models.User)), nil
}

// SignOut revokes the token on the server and clears local state. Local state
// is cleared even when the server call fails.
func (a *Auth) SignOut(ctx context.Context) error {
	var err error
	if a.t.Token() != "" {
		res, reqErr := a.t.r(ctx).Post("/auth/logout")
		err = check(res, reqErr)
	}
	a.t.setToken("")

	a.mu.Lock()
	hooks := append([]func(){}, a.onSignOut...)
	a.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	a.publish(nil)

	if err != nil {
		a.t.log.Warn("logout request failed", slog.String("error", err.Error()))
	}
	return err
}

func (a *Auth) OnAuthStateChanged(cb func(*client.Identity)) client.Release {
	a.mu.Lock()
	a.nextID++
	key := a.nextID
	a.listeners[key] = cb
	cur := copyIdentity(a.current)
	a.mu.Unlock()

	cb(cur)
	return func() {
		a.mu.Lock()
		delete(a.listeners, key)
		a.mu.Unlock()
	}
}

// Current returns the signed-in identity, or nil.
func (a *Auth) Current() *client.Identity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyIdentity(a.current)
}

func (a *Auth) publish(id *client.Identity) {
	a.mu.Lock()
	a.current = copyIdentity(id)
	cbs := make([]func(*client.Identity), 0, len(a.listeners))
	for _, cb := range a.listeners {
		cbs = append(cbs, cb)
	}
	a.mu.Unlock()

	for _, cb := range cbs {
		cb(copyIdentity(id))
	}
}

func (a *Auth) addSignOutHook(fn func()) {
	a.mu.Lock()
	a.onSignOut = append(a.onSignOut, fn)
	a.mu.Unlock()
}

func copyIdentity(id *client.Identity) *client.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
