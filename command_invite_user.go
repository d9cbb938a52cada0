package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type InviteUserMessage struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	// InvitedBy is the authenticated admin issuing the invite, passed in
	// explicitly by the caller.
	InvitedBy  ActorRef
	Meta       RequestMeta
	OnResponse func(resp *InviteUserResponse)
}

func (e InviteUserMessage) Type() string { return "user.invite" }

type InviteUserResponse struct {
	User  *User
	Token string
}

// InviteUserHandler provisions an inactive user row carrying a single-use
// invitation token. The row has no usable password until acceptance.
type InviteUserHandler struct {
	repo     RepositoryManager
	tasks    TaskSink
	activity ActivitySink
	notifier Notifier
	logger   Logger
}

// NewInviteUserHandler creates a handler with sane defaults.
func NewInviteUserHandler(repo RepositoryManager) *InviteUserHandler {
	return &InviteUserHandler{
		repo:     repo,
		tasks:    noopTaskSink{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *InviteUserHandler) WithActivitySink(sink ActivitySink) *InviteUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InviteUserHandler) WithTaskSink(tasks TaskSink) *InviteUserHandler {
	h.tasks = normalizeTaskSink(tasks)
	return h
}

func (h *InviteUserHandler) WithNotifier(n Notifier) *InviteUserHandler {
	h.notifier = n
	return h
}

func (h *InviteUserHandler) WithLogger(logger Logger) *InviteUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InviteUserHandler) Execute(ctx context.Context, event InviteUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user invitation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InviteUserHandler) execute(ctx context.Context, event InviteUserMessage) error {
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.Email)
	token := uuid.NewString()
	invitedAt := time.Now()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if existing, err := h.repo.Users().GetByIdentifierTx(ctx, tx, email); err == nil && existing != nil {
			return ErrUserAlreadyExists
		}

		user.Email = email
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		// placeholder until acceptance; unique constraint needs a value
		user.Username = email
		user.Active = false
		user.InvitationToken = &token
		user.InvitedAt = &invitedAt
		if role, ok := ParseRole(event.Role); ok {
			user.Role = role
		}

		var err error
		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			if IsUniqueViolation(err) {
				return ErrUserAlreadyExists
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create invited user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user invitation transaction failed")
	}

	notifier := normalizeNotifier(h.notifier, h.logger)
	h.tasks.Schedule(ctx, "invite.notify", func(ctx context.Context) error {
		return notifier.SendInvitation(ctx, email, token)
	})

	h.recordActivity(ctx, user, event.InvitedBy, event.Meta)

	if event.OnResponse != nil {
		event.OnResponse(&InviteUserResponse{User: user, Token: token})
	}

	return nil
}

func (h *InviteUserHandler) recordActivity(ctx context.Context, user *User, actor ActorRef, meta RequestMeta) {
	sink := normalizeActivitySink(h.activity)
	logger := h.logger

	if actor.Type == "" {
		actor.Type = "user"
	}

	event := ActivityEvent{
		EventType: ActivityEventInviteIssued,
		Actor:     actor,
		UserID:    user.ID.String(),
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
			logger.Warn("activity sink error during invitation: %v", err)
		}
		return nil
	})
}
