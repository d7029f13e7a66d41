package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix          = "user:%d"
	WSTicketKeyPrefix      = "ws_ticket:%s"
	PasswordResetKeyPrefix = "password_reset:%s"
	RevokedTokenKeyPrefix  = "blacklist:%s"
	OAuthStateKeyPrefix    = "oauth_state:%s"
)

const (
	UserTTL       = 5 * time.Minute
	WSTicketTTL   = 60 * time.Second
	OAuthStateTTL = 10 * time.Minute
)

// UserKey caches the identity looked up on every authenticated request.
func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func WSTicketKey(ticket string) string {
	return fmt.Sprintf(WSTicketKeyPrefix, ticket)
}

func PasswordResetKey(token string) string {
	return fmt.Sprintf(PasswordResetKeyPrefix, token)
}

// RevokedTokenKey marks a JWT id as signed out until the token would expire anyway.
func RevokedTokenKey(jti string) string {
	return fmt.Sprintf(RevokedTokenKeyPrefix, jti)
}

func OAuthStateKey(state string) string {
	return fmt.Sprintf(OAuthStateKeyPrefix, state)
}

// Invalidate deletes key, ignoring a missing client.
func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}
