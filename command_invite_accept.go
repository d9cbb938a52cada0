package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type AcceptInviteMessage struct {
	Token           string `json:"token"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Meta            RequestMeta
	OnResponse      func(resp *AcceptInviteResponse)
}

func (e AcceptInviteMessage) Type() string { return "user.invite_accept" }

type AcceptInviteResponse struct {
	User  *User
	Token string
}

// AcceptInviteHandler turns a pending invitation into an active account in
// a single transaction. Every guard failure collapses into ErrInviteInvalid
// so the operation leaks nothing about why a token was refused.
type AcceptInviteHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	cache    *IdentityCache
	tasks    TaskSink
	activity ActivitySink
	logger   Logger
}

// NewAcceptInviteHandler creates a handler with sane defaults.
func NewAcceptInviteHandler(repo RepositoryManager, tokens TokenService) *AcceptInviteHandler {
	return &AcceptInviteHandler{
		repo:     repo,
		tokens:   tokens,
		tasks:    noopTaskSink{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *AcceptInviteHandler) WithActivitySink(sink ActivitySink) *AcceptInviteHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *AcceptInviteHandler) WithTaskSink(tasks TaskSink) *AcceptInviteHandler {
	h.tasks = normalizeTaskSink(tasks)
	return h
}

func (h *AcceptInviteHandler) WithCache(cache *IdentityCache) *AcceptInviteHandler {
	h.cache = cache
	return h
}

func (h *AcceptInviteHandler) WithLogger(logger Logger) *AcceptInviteHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AcceptInviteHandler) Execute(ctx context.Context, event AcceptInviteMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during invitation acceptance",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *AcceptInviteHandler) execute(ctx context.Context, event AcceptInviteMessage) error {
	user := &User{}

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
		user, err = h.repo.Users().GetByInvitationTokenTx(ctx, tx, event.Token)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrInviteInvalid
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve invitation")
		}

		if !user.InvitationPending() || user.InvitationExpired(time.Now()) {
			return ErrInviteInvalid
		}

		if taken, err := h.repo.Users().GetByIdentifierTx(ctx, tx, event.Username); err == nil && taken != nil && taken.ID != user.ID {
			return ErrInviteInvalid
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}

		user, err = h.repo.Users().AcceptInviteTx(ctx, tx, user.ID, event.Token, event.Username, hash)
		if err != nil {
			if goerrors.IsNotFound(err) || IsUniqueViolation(err) {
				// the guarded UPDATE matched nothing: a concurrent
				// acceptance won, or the username landed first elsewhere
				return ErrInviteInvalid
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate invited user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invitation acceptance transaction failed")
	}

	resp := &AcceptInviteResponse{User: user}

	if h.tokens != nil {
		token, err := h.tokens.Generate(identityFromUser(user))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue session token after acceptance")
		}
		resp.Token = token
	}

	id, email := user.ID.String(), user.Email
	h.tasks.Schedule(ctx, "invite.invalidate-cache", func(ctx context.Context) error {
		if h.cache != nil {
			h.cache.Invalidate(ctx, id, email)
		}
		return nil
	})

	h.recordActivity(ctx, user, event.Meta)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *AcceptInviteHandler) recordActivity(ctx context.Context, user *User, meta RequestMeta) {
	sink := normalizeActivitySink(h.activity)
	logger := h.logger

	event := ActivityEvent{
		EventType: ActivityEventInviteAccepted,
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
			logger.Warn("activity sink error during invitation acceptance: %v", err)
		}
		return nil
	})
}
