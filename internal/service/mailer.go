package service

import (
	"context"
	"log/slog"

	"meshi/internal/middleware"
)

// Mailer delivers password reset tokens.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer writes reset tokens to the structured log instead of sending mail.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	middleware.Logger.InfoContext(ctx, "password reset requested",
		slog.String("email", email),
		slog.String("reset_token", token),
	)
	return nil
}
