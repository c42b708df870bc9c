package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes links to the log instead of sending mail. Only for local runs.
type LogNotifier struct {
	logger *slog.Logger
	links  LinkBuilder
}

func NewLogNotifier(logger *slog.Logger, links LinkBuilder) *LogNotifier {
	return &LogNotifier{logger: logger, links: links}
}

func (n *LogNotifier) SendVerificationLink(ctx context.Context, email, token string) error {
	n.logger.InfoContext(ctx, "verification link", slog.String("email", email), slog.String("link", n.links.VerificationLink(email, token)))
	return nil
}

func (n *LogNotifier) SendPasswordResetLink(ctx context.Context, email, token string) error {
	n.logger.InfoContext(ctx, "password reset link", slog.String("email", email), slog.String("link", n.links.PasswordResetLink(email, token)))
	return nil
}
