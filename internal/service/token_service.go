package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"meshi/internal/cache"
	"meshi/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	TokenIssuer   = "meshi-api"
	TokenAudience = "meshi-client"
	TokenTTL      = 7 * 24 * time.Hour
)

// TokenClaims is the verified content of an access token.
type TokenClaims struct {
	UserID    uint
	JTI       string
	ExpiresAt time.Time
}

// TokenService issues and verifies HS256 access tokens and single-use
// WebSocket tickets. Without Redis, revocation is skipped and tickets are
// kept in process memory, which only works for a single instance.
type TokenService struct {
	secret []byte
	redis  *redis.Client
	now    func() time.Time

	mu      sync.Mutex
	tickets map[string]localTicket
}

type localTicket struct {
	userID    uint
	expiresAt time.Time
}

func NewTokenService(secret string, redisClient *redis.Client) *TokenService {
	return &TokenService{
		secret:  []byte(secret),
		redis:   redisClient,
		now:     time.Now,
		tickets: make(map[string]localTicket),
	}
}

// Issue creates a signed token for user.
func (s *TokenService) Issue(user *models.User) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("JWT secret not configured")
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub":          strconv.FormatUint(uint64(user.ID), 10),
		"display_name": user.DisplayName,
		"iss":          TokenIssuer,
		"aud":          TokenAudience,
		"exp":          now.Add(TokenTTL).Unix(),
		"iat":          now.Unix(),
		"nbf":          now.Unix(),
		"jti":          uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse verifies signature, issuer, audience and lifetime, then checks the
// revocation list.
func (s *TokenService) Parse(ctx context.Context, tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, models.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, models.NewUnauthorizedError("Invalid token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, models.NewUnauthorizedError("Invalid token subject")
	}
	userID, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || userID == 0 {
		return nil, models.NewUnauthorizedError("Invalid token subject")
	}
	jti, _ := claims["jti"].(string)
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, models.NewUnauthorizedError("Invalid token expiry")
	}

	if s.isRevoked(ctx, jti) {
		return nil, models.NewUnauthorizedError("Token has been revoked")
	}

	return &TokenClaims{UserID: uint(userID), JTI: jti, ExpiresAt: exp.Time}, nil
}

// Revoke blacklists the token id until the token would have expired.
func (s *TokenService) Revoke(ctx context.Context, claims *TokenClaims) error {
	if s.redis == nil || claims == nil || claims.JTI == "" {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.redis.Set(ctx, cache.RevokedTokenKey(claims.JTI), "1", ttl).Err()
}

func (s *TokenService) isRevoked(ctx context.Context, jti string) bool {
	if s.redis == nil || jti == "" {
		return false
	}
	n, err := s.redis.Exists(ctx, cache.RevokedTokenKey(jti)).Result()
	return err == nil && n > 0
}

// IssueWSTicket returns a short-lived ticket that authenticates one WebSocket upgrade.
func (s *TokenService) IssueWSTicket(ctx context.Context, userID uint) (string, error) {
	ticket := uuid.NewString()
	if s.redis == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		now := s.now()
		for k, t := range s.tickets {
			if now.After(t.expiresAt) {
				delete(s.tickets, k)
			}
		}
		s.tickets[ticket] = localTicket{userID: userID, expiresAt: now.Add(cache.WSTicketTTL)}
		return ticket, nil
	}
	if err := s.redis.Set(ctx, cache.WSTicketKey(ticket), userID, cache.WSTicketTTL).Err(); err != nil {
		return "", models.NewInternalError(err)
	}
	return ticket, nil
}

// RedeemWSTicket consumes ticket and returns the user it was issued to.
func (s *TokenService) RedeemWSTicket(ctx context.Context, ticket string) (uint, error) {
	if ticket == "" {
		return 0, models.NewUnauthorizedError("Invalid ticket")
	}
	if s.redis == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		t, ok := s.tickets[ticket]
		delete(s.tickets, ticket)
		if !ok || s.now().After(t.expiresAt) {
			return 0, models.NewUnauthorizedError("Invalid or expired ticket")
		}
		return t.userID, nil
	}
	raw, err := s.redis.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
	if err != nil {
		return 0, models.NewUnauthorizedError("Invalid or expired ticket")
	}
	userID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || userID == 0 {
		return 0, models.NewUnauthorizedError("Invalid ticket")
	}
	return uint(userID), nil
}
