package identity

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	Password  string `json:"password"`
	UseHashid bool
	Meta      RequestMeta
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	User  *User
	Token string
}

type RegisterUserHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	cache    *IdentityCache
	tasks    TaskSink
	activity ActivitySink
	logger   Logger
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager, tokens TokenService) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		tokens:   tokens,
		tasks:    noopTaskSink{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) WithTaskSink(tasks TaskSink) *RegisterUserHandler {
	h.tasks = normalizeTaskSink(tasks)
	return h
}

func (h *RegisterUserHandler) WithCache(cache *IdentityCache) *RegisterUserHandler {
	h.cache = cache
	return h
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.Email)
	username := getUsername(event.Username, email)

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// the pre-check catches the common case with a friendly error; the
		// unique constraint below catches the concurrent writer
		if existing, err := h.repo.Users().GetByIdentifierTx(ctx, tx, email); err == nil && existing != nil {
			return ErrUserAlreadyExists
		}
		if existing, err := h.repo.Users().GetByIdentifierTx(ctx, tx, username); err == nil && existing != nil {
			return ErrUserAlreadyExists
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = email
		user.Phone = normalizePhone(event.Phone)
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Username = username
		user.Active = true
		if role, ok := ParseRole(event.Role); ok {
			user.Role = role
		}
		if event.UseHashid {
			if id, err := hashid.NewUUID(email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			if IsUniqueViolation(err) {
				return ErrUserAlreadyExists
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	resp := &RegisterUserResponse{User: user}

	if h.tokens != nil {
		token, err := h.tokens.Generate(identityFromUser(user))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue session token after registration")
		}
		resp.Token = token
	}

	h.recordActivity(ctx, user, event.Meta)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *RegisterUserHandler) recordActivity(ctx context.Context, user *User, meta RequestMeta) {
	sink := normalizeActivitySink(h.activity)
	logger := h.logger

	event := ActivityEvent{
		EventType: ActivityEventRegistration,
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
			logger.Warn("activity sink error during registration: %v", err)
		}
		return nil
	})
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}

// normalizePhone stores phone numbers in E.164 when they parse; payload
// validation already rejected anything unparseable, so a raw passthrough
// here only happens for empty values.
func normalizePhone(phone string) string {
	if phone == "" {
		return ""
	}

	parsed, err := phonenumbers.Parse(phone, "US")
	if err != nil {
		return phone
	}

	return phonenumbers.Format(parsed, phonenumbers.E164)
}
