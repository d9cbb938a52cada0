package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	Meta       RequestMeta
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// InitializePasswordResetResponse is identical whether or not the email
// matched an account; Token is populated only for the internal delivery
// path and must never reach the HTTP response.
type InitializePasswordResetResponse struct {
	Success bool
	Token   string
}

// InitializePasswordResetHandler stamps a reset token and expiry onto the
// user row and schedules delivery. Unknown emails produce the exact same
// outward result with no token created.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	tasks    TaskSink
	activity ActivitySink
	notifier Notifier
	logger   Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		tasks:    noopTaskSink{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithTaskSink(tasks TaskSink) *InitializePasswordResetHandler {
	h.tasks = normalizeTaskSink(tasks)
	return h
}

func (h *InitializePasswordResetHandler) WithNotifier(n Notifier) *InitializePasswordResetHandler {
	h.notifier = n
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.Email)
	token := uuid.NewString()
	expiresAt := time.Now().Add(ResetTTL)

	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByIdentifierTx(ctx, tx, email)
		if err != nil {
			if goerrors.IsNotFound(err) {
				// unknown email: same generic success, no token written
				user = nil
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
		}

		if !user.Active {
			user = nil
			return nil
		}

		if err := h.repo.Users().SetResetTokenTx(ctx, tx, user.ID, token, expiresAt); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password reset token")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if user != nil {
		resp.Token = token

		notifier := normalizeNotifier(h.notifier, h.logger)
		h.tasks.Schedule(ctx, "password-reset.notify", func(ctx context.Context) error {
			return notifier.SendPasswordReset(ctx, email, token)
		})

		h.recordActivity(ctx, user, event.Meta)
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *InitializePasswordResetHandler) recordActivity(ctx context.Context, user *User, meta RequestMeta) {
	sink := normalizeActivitySink(h.activity)
	logger := h.logger

	event := ActivityEvent{
		EventType: ActivityEventResetRequested,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID: user.ID.String(),
		Metadata: map[string]any{
			"email": user.Email,
		},
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		URL:        meta.URL,
		OccurredAt: time.Now(),
	}
	normalizeActivityEvent(&event)

	h.tasks.Schedule(ctx, "audit."+string(event.EventType), func(ctx context.Context) error {
		if err := sink.Record(ctx, event); err != nil {
			logger.Warn("activity sink error during password reset request: %v", err)
		}
		return nil
	})
}
