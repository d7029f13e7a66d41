package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"meshi/internal/cache"
	"meshi/internal/middleware"
	"meshi/internal/models"
	"meshi/internal/observability"
	"meshi/internal/repository"
	"meshi/internal/validation"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// GuestAccount holds the shared demo credentials.
type GuestAccount struct {
	Email       string
	Password    string
	DisplayName string
}

// AuthResult is returned by every successful sign-in.
type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
}

type UpdateProfileInput struct {
	UserID      uint
	DisplayName *string
	AvatarURL   *string
}

// AuthService owns accounts: password and federated sign-in, the guest
// account, profile updates and password reset.
type AuthService struct {
	userRepo  repository.UserRepository
	tokens    *TokenService
	redis     *redis.Client
	mailer    Mailer
	federated FederatedProvider
	guest     GuestAccount
	resetTTL  time.Duration
}

func NewAuthService(
	userRepo repository.UserRepository,
	tokens *TokenService,
	redisClient *redis.Client,
	mailer Mailer,
	federated FederatedProvider,
	guest GuestAccount,
	resetTTL time.Duration,
) *AuthService {
	if mailer == nil {
		mailer = LogMailer{}
	}
	if resetTTL <= 0 {
		resetTTL = time.Hour
	}
	return &AuthService{
		userRepo:  userRepo,
		tokens:    tokens,
		redis:     redisClient,
		mailer:    mailer,
		federated: federated,
		guest:     guest,
		resetTTL:  resetTTL,
	}
}

// SignUp creates a password account and signs it in. The display name may be
// set later through UpdateProfile.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (res *AuthResult, err error) {
	defer func() { observability.RecordAuth("signup", err) }()

	email := normalizeEmail(in.Email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if in.DisplayName != "" {
		if err := validation.ValidateDisplayName(in.DisplayName); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("An account with this email already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Email:       email,
		Password:    string(hashed),
		DisplayName: in.DisplayName,
		Provider:    models.ProviderPassword,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return s.issue(user)
}

// SignIn checks email and password.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (res *AuthResult, err error) {
	defer func() { observability.RecordAuth("password", err) }()
	return s.signIn(ctx, email, password)
}

// SignInGuest signs in with the shared demo account.
func (s *AuthService) SignInGuest(ctx context.Context) (res *AuthResult, err error) {
	defer func() { observability.RecordAuth("guest", err) }()
	return s.signIn(ctx, s.guest.Email, s.guest.Password)
}

func (s *AuthService) signIn(ctx context.Context, email, password string) (*AuthResult, error) {
	if email == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}

	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil || user.Password == "" {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); cmpErr != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}

	return s.issue(user)
}

// EnsureGuest creates the demo account when it does not exist yet.
func (s *AuthService) EnsureGuest(ctx context.Context) (*models.User, error) {
	email := normalizeEmail(s.guest.Email)
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(s.guest.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user := &models.User{
		Email:       email,
		Password:    string(hashed),
		DisplayName: s.guest.DisplayName,
		Provider:    models.ProviderPassword,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	middleware.Logger.InfoContext(ctx, "guest account created", slog.String("email", email))
	return user, nil
}

// FederatedEnabled reports whether a federated provider is configured.
func (s *AuthService) FederatedEnabled() bool {
	return s.federated != nil
}

// StartFederated returns the provider URL the popup should open and the state
// the callback must echo back.
func (s *AuthService) StartFederated(ctx context.Context) (string, string, error) {
	if s.federated == nil {
		return "", "", models.NewValidationError("Federated sign-in is not configured")
	}
	if s.redis == nil {
		return "", "", models.NewInternalError(errors.New("federated sign-in requires redis"))
	}
	state := uuid.NewString()
	if err := s.redis.Set(ctx, cache.OAuthStateKey(state), s.federated.Name(), cache.OAuthStateTTL).Err(); err != nil {
		return "", "", models.NewInternalError(err)
	}
	return s.federated.AuthCodeURL(state), state, nil
}

// CompleteFederated redeems state and code. A user is matched by provider
// subject first, then linked by email when the provider has verified that
// address, and created otherwise. An unverified email that matches an
// existing account is a conflict.
func (s *AuthService) CompleteFederated(ctx context.Context, code, state string) (res *AuthResult, err error) {
	defer func() { observability.RecordAuth("federated", err) }()

	if s.federated == nil {
		return nil, models.NewValidationError("Federated sign-in is not configured")
	}
	if code == "" || state == "" {
		return nil, models.NewValidationError("code and state are required")
	}
	if s.redis == nil {
		return nil, models.NewInternalError(errors.New("federated sign-in requires redis"))
	}
	if _, err := s.redis.GetDel(ctx, cache.OAuthStateKey(state)).Result(); err != nil {
		return nil, models.NewUnauthorizedError("Unknown or expired sign-in state")
	}

	identity, err := s.federated.Identify(ctx, code)
	if err != nil {
		return nil, models.NewUnauthorizedError(err.Error())
	}

	provider := s.federated.Name()
	user, err := s.userRepo.GetByProviderSubject(ctx, provider, identity.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil && identity.Email != "" {
		user, err = s.userRepo.GetByEmail(ctx, normalizeEmail(identity.Email))
		if err != nil {
			return nil, err
		}
		if user != nil {
			if !identity.EmailVerified {
				return nil, models.NewConflictError("An account with this email already exists")
			}
			if err := s.userRepo.LinkProvider(ctx, user.ID, provider, identity.Subject); err != nil {
				return nil, err
			}
			user.Provider = provider
			user.ProviderSubject = identity.Subject
		}
	}
	if user == nil {
		email := normalizeEmail(identity.Email)
		if email == "" {
			email = provider + "-" + identity.Subject + "@users.invalid"
		}
		user = &models.User{
			Email:           email,
			DisplayName:     truncateRunes(identity.Name, validation.MaxDisplayNameLength),
			AvatarURL:       identity.Picture,
			Provider:        provider,
			ProviderSubject: identity.Subject,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, err
		}
	}

	return s.issue(user)
}

// RequestPasswordReset mails a reset token. Unknown addresses are reported as
// not found so the client can show the service message.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return models.NewValidationError(err.Error())
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return models.NewNotFoundError("Account", email)
	}
	if s.redis == nil {
		return models.NewInternalError(errors.New("password reset requires redis"))
	}

	token := uuid.NewString()
	if err := s.redis.Set(ctx, cache.PasswordResetKey(token), user.ID, s.resetTTL).Err(); err != nil {
		return models.NewInternalError(err)
	}
	return s.mailer.SendPasswordReset(ctx, email, token)
}

// ConfirmPasswordReset sets a new password using a token from RequestPasswordReset.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	if err := validation.ValidatePassword(password); err != nil {
		return models.NewValidationError(err.Error())
	}
	if s.redis == nil || token == "" {
		return models.NewUnauthorizedError("Invalid or expired reset token")
	}
	raw, err := s.redis.GetDel(ctx, cache.PasswordResetKey(token)).Result()
	if err != nil {
		return models.NewUnauthorizedError("Invalid or expired reset token")
	}
	userID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return models.NewUnauthorizedError("Invalid or expired reset token")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.NewInternalError(err)
	}
	return s.userRepo.UpdatePassword(ctx, uint(userID), string(hashed))
}

// Me returns the signed-in user.
func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// UpdateProfile changes the display name and avatar URL. Nil fields are kept.
// Posts and comments already written keep the values they were written with.
func (s *AuthService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if in.DisplayName != nil {
		if err := validation.ValidateDisplayName(*in.DisplayName); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.DisplayName = *in.DisplayName
	}
	if in.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}

	if err := s.userRepo.UpdateProfile(ctx, user.ID, user.DisplayName, user.AvatarURL); err != nil {
		return nil, err
	}
	return user, nil
}

// Logout revokes the presented token.
func (s *AuthService) Logout(ctx context.Context, claims *TokenClaims) error {
	if err := s.tokens.Revoke(ctx, claims); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *AuthService) issue(user *models.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func truncateRunes(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
