package client

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCredentialsFixture() (*Credentials, *Session, *fakeAuth, *fakeBlobs, *recordingAlerter) {
	session := NewSession()
	auth := newFakeAuth()
	blobs := newFakeBlobs()
	alerts := &recordingAlerter{}
	return NewCredentials(session, auth, blobs, alerts), session, auth, blobs, alerts
}

func TestCredentials_SignUpGating(t *testing.T) {
	c, _, auth, _, _ := newCredentialsFixture()
	c.ToggleMode()
	assert.Equal(t, ModeSignUp, c.Mode())

	c.SetEmail("a@b.c")
	c.SetPassword("secret1")
	c.SetUsername("hana")
	assert.False(t, c.CanSignUp(), "avatar missing")

	err := c.SignUp(context.Background())
	assert.ErrorIs(t, err, ErrSubmitDisabled)
	assert.Zero(t, auth.signUpCalls)

	c.SelectAvatar(pngFile("me.png"))
	c.SetPassword("12345")
	assert.False(t, c.CanSignUp(), "password too short")

	c.SetPassword("123456")
	assert.True(t, c.CanSignUp())
}

func TestCredentials_SignUpUploadsAvatarAndFillsSession(t *testing.T) {
	c, session, auth, blobs, alerts := newCredentialsFixture()
	c.ToggleMode()
	c.SetEmail("a@b.c")
	c.SetPassword("secret1")
	c.SetUsername("hana")
	c.SelectAvatar(pngFile("me.png"))

	require.NoError(t, c.SignUp(context.Background()))
	assert.Empty(t, alerts.all())

	paths := blobs.paths()
	require.Len(t, paths, 1)
	assert.Regexp(t, regexp.MustCompile(`^avatars/[A-Za-z0-9]{16}_me\.png$`), paths[0])

	viewer := session.Current()
	assert.Equal(t, "uid-a@b.c", viewer.ID)
	assert.Equal(t, "hana", viewer.DisplayName)
	assert.Equal(t, "https://blobs.test/"+paths[0], viewer.AvatarURL)
	assert.Equal(t, 1, auth.profileCalls)
}

func TestCredentials_SignUpStopsAtFirstFailure(t *testing.T) {
	c, session, auth, blobs, alerts := newCredentialsFixture()
	blobs.uploadErr = errors.New("storage unavailable")
	c.ToggleMode()
	c.SetEmail("a@b.c")
	c.SetPassword("secret1")
	c.SetUsername("hana")
	c.SelectAvatar(pngFile("me.png"))

	err := c.SignUp(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"storage unavailable"}, alerts.all())
	assert.Zero(t, auth.profileCalls)
	assert.True(t, session.Current().Empty())

	// The account was created and stays.
	_, err = auth.SignIn(context.Background(), "a@b.c", "secret1")
	assert.NoError(t, err)
}

func TestCredentials_SignInRejectionKeepsForm(t *testing.T) {
	c, session, _, _, alerts := newCredentialsFixture()
	c.SetEmail("nobody@example.com")
	c.SetPassword("wrongpass")

	err := c.SignIn(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"Invalid email or password"}, alerts.all())
	assert.True(t, session.Current().Empty())
	assert.True(t, c.CanSignIn(), "typed values are kept")
}

func TestCredentials_SignInDisabled(t *testing.T) {
	c, _, auth, _, _ := newCredentialsFixture()
	c.SetEmail("a@b.c")
	c.SetPassword("short")
	assert.ErrorIs(t, c.SignIn(context.Background()), ErrSubmitDisabled)
	assert.Zero(t, auth.signInCalls)
}

func TestCredentials_GuestAndFederated(t *testing.T) {
	c, session, auth, _, alerts := newCredentialsFixture()
	session.Attach(auth)
	defer session.Detach()

	require.NoError(t, c.SignInGuest(context.Background()))
	assert.Equal(t, "guest", session.Current().DisplayName)

	require.NoError(t, auth.SignOut(context.Background()))
	assert.True(t, session.Current().Empty())

	assert.Error(t, c.SignInFederated(context.Background()))
	assert.Equal(t, []string{"popup closed by user"}, alerts.all())

	auth.federated = &Identity{ID: "g-1", DisplayName: "Kenji", AvatarURL: "https://photos.test/k.png"}
	require.NoError(t, c.SignInFederated(context.Background()))
	assert.Equal(t, "Kenji", session.Current().DisplayName)
}

func TestCredentials_PickerValueResets(t *testing.T) {
	c, _, _, _, _ := newCredentialsFixture()
	c.SelectAvatar(pngFile("a.png"))
	assert.Equal(t, "", c.PickerValue())
	c.SelectAvatar(pngFile("a.png"))
	require.NotNil(t, c.Avatar())
	assert.Equal(t, "a.png", c.Avatar().Name)
}

func TestCredentials_PasswordResetDialog(t *testing.T) {
	c, _, auth, _, alerts := newCredentialsFixture()

	c.OpenReset()
	c.SetResetEmail("missing@example.com")
	auth.resetErr = errors.New("No account found for that email")

	require.Error(t, c.SubmitReset(context.Background()))
	open, email := c.ResetState()
	assert.True(t, open, "dialog stays open on failure")
	assert.Empty(t, email, "field is cleared either way")
	assert.Equal(t, []string{"No account found for that email"}, alerts.all())

	auth.resetErr = nil
	c.SetResetEmail(" hana@example.com ")
	require.NoError(t, c.SubmitReset(context.Background()))
	open, email = c.ResetState()
	assert.False(t, open)
	assert.Empty(t, email)
	assert.Equal(t, []string{"missing@example.com", "hana@example.com"}, auth.resetCalls)

	c.OpenReset()
	c.SetResetEmail("x@y.z")
	c.CloseReset()
	open, email = c.ResetState()
	assert.False(t, open)
	assert.Empty(t, email)
}
