package identity

import "context"

// Notifier delivers invitation and password reset links. Delivery always
// happens through the TaskSink so a slow mail provider cannot hold a
// response open.
type Notifier interface {
	SendInvitation(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// logNotifier is the fallback used when no real Notifier is wired in: it
// logs the link so local development still has something to click.
type logNotifier struct {
	logger Logger
}

func (n logNotifier) SendInvitation(_ context.Context, email, token string) error {
	n.logger.Info("invitation for %s: /auth/invite/%s", email, token)
	return nil
}

func (n logNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.logger.Info("password reset for %s: /auth/password-reset/%s", email, token)
	return nil
}

func normalizeNotifier(n Notifier, logger Logger) Notifier {
	if n != nil {
		return n
	}
	if logger == nil {
		logger = defLogger{}
	}
	return logNotifier{logger: logger}
}
