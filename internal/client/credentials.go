package client

import (
	"context"
	"strings"
	"sync"
)

// Shared demo account used by guest sign-in.
const (
	GuestEmail    = "guest@example.com"
	GuestPassword = "guestpassword"
)

const minPasswordLength = 6

// Mode selects which form the credential view shows.
type Mode int

const (
	ModeSignIn Mode = iota
	ModeSignUp
)

// Credentials is the sign-in / sign-up form.
type Credentials struct {
	session *Session
	auth    AuthService
	blobs   BlobStore
	alerter Alerter

	mu          sync.Mutex
	mode        Mode
	email       string
	password    string
	username    string
	avatar      *File
	pickerValue string
	resetOpen   bool
	resetEmail  string
}

func NewCredentials(session *Session, auth AuthService, blobs BlobStore, alerter Alerter) *Credentials {
	return &Credentials{session: session, auth: auth, blobs: blobs, alerter: alerter}
}

func (c *Credentials) SetEmail(v string)    { c.set(func() { c.email = v }) }
func (c *Credentials) SetPassword(v string) { c.set(func() { c.password = v }) }
func (c *Credentials) SetUsername(v string) { c.set(func() { c.username = v }) }

func (c *Credentials) set(fn func()) {
	c.mu.Lock()
	fn()
	c.mu.Unlock()
}

// Mode returns the active form.
func (c *Credentials) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// ToggleMode switches between sign-in and sign-up.
func (c *Credentials) ToggleMode() {
	c.mu.Lock()
	if c.mode == ModeSignIn {
		c.mode = ModeSignUp
	} else {
		c.mode = ModeSignIn
	}
	c.mu.Unlock()
}

// SelectAvatar stores the picked file. The picker value is reset so the same
// file can be picked again.
func (c *Credentials) SelectAvatar(f File) {
	c.mu.Lock()
	c.avatar = &f
	c.pickerValue = ""
	c.mu.Unlock()
}

// PickerValue is the file input's current value.
func (c *Credentials) PickerValue() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pickerValue
}

// Avatar returns the pending avatar, if any.
func (c *Credentials) Avatar() *File {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.avatar
}

// CanSignIn mirrors the sign-in button's enabled state.
func (c *Credentials) CanSignIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSignInLocked()
}

func (c *Credentials) canSignInLocked() bool {
	return c.email != "" && len(c.password) >= minPasswordLength
}

// CanSignUp mirrors the sign-up button's enabled state.
func (c *Credentials) CanSignUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSignInLocked() && c.username != "" && c.avatar != nil
}

// SignIn submits email and password. A rejection is alerted and the form is
// left as typed.
func (c *Credentials) SignIn(ctx context.Context) error {
	if !c.CanSignIn() {
		return ErrSubmitDisabled
	}
	c.mu.Lock()
	email, password := c.email, c.password
	c.mu.Unlock()

	if _, err := c.auth.SignIn(ctx, email, password); err != nil {
		return c.fail(err)
	}
	return nil
}

// SignInGuest signs in to the shared demo account.
func (c *Credentials) SignInGuest(ctx context.Context) error {
	if _, err := c.auth.SignIn(ctx, GuestEmail, GuestPassword); err != nil {
		return c.fail(err)
	}
	return nil
}

// SignInFederated runs the provider popup flow. The session is filled by the
// auth-change stream, not here.
func (c *Credentials) SignInFederated(ctx context.Context) error {
	if err := c.auth.SignInFederated(ctx); err != nil {
		return c.fail(err)
	}
	return nil
}

// SignUp creates the account, uploads the avatar, attaches display name and
// avatar URL to the profile and mirrors them into the session. The first
// failing step is alerted and the rest are skipped; a created account is kept.
func (c *Credentials) SignUp(ctx context.Context) error {
	if !c.CanSignUp() {
		return ErrSubmitDisabled
	}
	c.mu.Lock()
	email, password, username, avatar := c.email, c.password, c.username, c.avatar
	c.mu.Unlock()

	created, err := c.auth.SignUp(ctx, email, password)
	if err != nil {
		return c.fail(err)
	}

	avatarURL := ""
	if avatar != nil {
		path := BlobPath(AvatarFolder, avatar.Name)
		if err := c.blobs.Upload(ctx, path, *avatar); err != nil {
			return c.fail(err)
		}
		if avatarURL, err = c.blobs.URL(ctx, path); err != nil {
			return c.fail(err)
		}
	}

	if err := c.auth.UpdateProfile(ctx, username, avatarURL); err != nil {
		return c.fail(err)
	}

	c.session.Login(Identity{
		ID:          created.ID,
		DisplayName: username,
		AvatarURL:   avatarURL,
		Email:       created.Email,
	})
	return nil
}

// OpenReset shows the password reset dialog.
func (c *Credentials) OpenReset() { c.set(func() { c.resetOpen = true }) }

// CloseReset hides the dialog and drops what was typed.
func (c *Credentials) CloseReset() {
	c.set(func() {
		c.resetOpen = false
		c.resetEmail = ""
	})
}

func (c *Credentials) SetResetEmail(v string) { c.set(func() { c.resetEmail = v }) }

// ResetState reports whether the dialog is open and its email field.
func (c *Credentials) ResetState() (open bool, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetOpen, c.resetEmail
}

// SubmitReset requests a reset mail. The field is cleared either way; the
// dialog closes only on success.
func (c *Credentials) SubmitReset(ctx context.Context) error {
	c.mu.Lock()
	email := strings.TrimSpace(c.resetEmail)
	c.mu.Unlock()

	err := c.auth.SendPasswordReset(ctx, email)

	c.mu.Lock()
	c.resetEmail = ""
	if err == nil {
		c.resetOpen = false
	}
	c.mu.Unlock()

	if err != nil {
		return c.fail(err)
	}
	return nil
}

func (c *Credentials) fail(err error) error {
	if c.alerter != nil {
		c.alerter.Alert(err.Error())
	}
	return err
}
