package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Meta            RequestMeta
	OnResponse      func(resp *FinalizePasswordResetResponse)
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

type FinalizePasswordResetResponse struct {
	User *User
}

// FinalizePasswordResetHandler consumes a reset token: new hash written,
// token cleared, prior hash archived. There is deliberately no auto-login
// here, unlike invitation acceptance.
type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	cache    *IdentityCache
	tasks    TaskSink
	activity ActivitySink
	logger   Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		tasks:    noopTaskSink{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *FinalizePasswordResetHandler) WithTaskSink(tasks TaskSink) *FinalizePasswordResetHandler {
	h.tasks = normalizeTaskSink(tasks)
	return h
}

func (h *FinalizePasswordResetHandler) WithCache(cache *IdentityCache) *FinalizePasswordResetHandler {
	h.cache = cache
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	user := &User{}
	priorHash := ""

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if len(event.Password) < 8 {
		return goerrors.New("password must be at least 8 characters", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if event.Password != event.ConfirmPassword {
		return goerrors.New("passwords must match", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByResetTokenTx(ctx, tx, event.Token)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrResetInvalid
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve password reset request")
		}

		if !user.Active || !user.ResetPending() || user.ResetExpired(time.Now()) {
			return ErrResetInvalid
		}

		priorHash = user.PasswordHash

		passwordHash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		user, err = h.repo.Users().CompleteResetTx(ctx, tx, user.ID, event.Token, passwordHash)
		if err != nil {
			if goerrors.IsNotFound(err) {
				// guarded UPDATE matched nothing: a concurrent consumption won
				return ErrResetInvalid
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	// history is an archive, not a ledger: its append never fails the reset
	h.archivePriorHash(ctx, user, priorHash)

	id, email := user.ID.String(), user.Email
	h.tasks.Schedule(ctx, "password-reset.invalidate-cache", func(ctx context.Context) error {
		if h.cache != nil {
			h.cache.Invalidate(ctx, id, email)
		}
		return nil
	})

	h.recordActivity(ctx, user, event.Meta)

	if event.OnResponse != nil {
		event.OnResponse(&FinalizePasswordResetResponse{User: user})
	}

	return nil
}

func (h *FinalizePasswordResetHandler) archivePriorHash(ctx context.Context, user *User, priorHash string) {
	if priorHash == "" {
		return
	}

	record := &PasswordHistory{
		ID:           uuid.New(),
		UserID:       user.ID,
		PasswordHash: priorHash,
	}

	if _, err := h.repo.PasswordHistories().Create(ctx, record); err != nil {
		h.logger.Warn("failed to archive prior password hash for user %s: %v", user.ID, err)
	}
}

func (h *FinalizePasswordResetHandler) recordActivity(ctx context.Context, user *User, meta RequestMeta) {
	sink := normalizeActivitySink(h.activity)
	logger := h.logger

	event := ActivityEvent{
		EventType: ActivityEventResetSuccess,
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
			logger.Warn("activity sink error during password reset: %v", err)
		}
		return nil
	})
}
