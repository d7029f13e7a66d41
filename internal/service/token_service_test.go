package service

import (
	"context"
	"testing"
	"time"

	"meshi/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_RejectsTampering(t *testing.T) {
	svc := NewTokenService(testSecret, nil)
	ctx := context.Background()

	token, err := svc.Issue(&models.User{ID: 5, DisplayName: "guest"})
	require.NoError(t, err)

	claims, err := svc.Parse(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint(5), claims.UserID)
	assert.NotEmpty(t, claims.JTI)

	other := NewTokenService("another-secret-that-is-32-characters!", nil)
	_, err = other.Parse(ctx, token)
	assertUnauthorizedError(t, err)

	wrongAudience := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "5", "iss": TokenIssuer, "aud": "someone-else", "exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := wrongAudience.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = svc.Parse(ctx, signed)
	assertUnauthorizedError(t, err)

	_, err = svc.Parse(ctx, "not-a-token")
	assertUnauthorizedError(t, err)
}

func TestTokenService_Expiry(t *testing.T) {
	svc := NewTokenService(testSecret, nil)
	issuedAt := time.Now()
	svc.now = func() time.Time { return issuedAt }

	token, err := svc.Issue(&models.User{ID: 1})
	require.NoError(t, err)

	svc.now = func() time.Time { return issuedAt.Add(TokenTTL + time.Minute) }
	_, err = svc.Parse(context.Background(), token)
	assertUnauthorizedError(t, err)
}

func TestTokenService_WSTickets(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	svc := NewTokenService(testSecret, rdb)
	ctx := context.Background()

	ticket, err := svc.IssueWSTicket(ctx, 12)
	require.NoError(t, err)

	userID, err := svc.RedeemWSTicket(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, uint(12), userID)

	_, err = svc.RedeemWSTicket(ctx, ticket)
	assertUnauthorizedError(t, err)

	expiring, err := svc.IssueWSTicket(ctx, 12)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = svc.RedeemWSTicket(ctx, expiring)
	assertUnauthorizedError(t, err)
}

func TestTokenService_WithoutRedis(t *testing.T) {
	svc := NewTokenService(testSecret, nil)
	ctx := context.Background()
	start := time.Now()
	svc.now = func() time.Time { return start }

	ticket, err := svc.IssueWSTicket(ctx, 3)
	require.NoError(t, err)
	userID, err := svc.RedeemWSTicket(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, uint(3), userID)
	_, err = svc.RedeemWSTicket(ctx, ticket)
	assertUnauthorizedError(t, err)

	stale, err := svc.IssueWSTicket(ctx, 3)
	require.NoError(t, err)
	svc.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = svc.RedeemWSTicket(ctx, stale)
	assertUnauthorizedError(t, err)

	assert.NoError(t, svc.Revoke(ctx, &TokenClaims{JTI: "x", ExpiresAt: start.Add(time.Hour)}))
}
