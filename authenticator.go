package identity

import (
	"context"
	"reflect"
	"time"
)

// Auther composes the identity provider, token service, cache, task sink,
// and activity sink into the session lifecycle operations.
type Auther struct {
	provider        IdentityProvider
	signingKey      []byte
	tokenExpiration int
	logger          Logger
	tokenService    TokenService
	tokenValidator  TokenValidator
	activitySink    ActivitySink
	tasks           TaskSink
	cache           *IdentityCache
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		defLogger{},
	)

	return &Auther{
		provider:        provider,
		signingKey:      []byte(opts.GetSigningKey()),
		tokenExpiration: opts.GetTokenExpiration(),
		logger:          defLogger{},
		tokenService:    tokenService,
		activitySink:    noopActivitySink{},
		tasks:           noopTaskSink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	s.tokenService = NewTokenService(
		s.signingKey,
		s.tokenExpiration,
		logger,
	)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithTaskSink configures the sink used for post-response side effects.
func (s *Auther) WithTaskSink(tasks TaskSink) *Auther {
	s.tasks = normalizeTaskSink(tasks)
	return s
}

// WithIdentityCache lets login invalidate the identity cache after the
// last-login stamp changes the row.
func (s *Auther) WithIdentityCache(cache *IdentityCache) *Auther {
	s.cache = cache
	return s
}

// WithTokenValidator sets a custom token validator for externally issued tokens.
func (s *Auther) WithTokenValidator(validator TokenValidator) *Auther {
	s.tokenValidator = validator
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies credentials and issues a session token. Verification
// failures reach the caller as a single undifferentiated credentials error;
// the audit trail keeps the real reason.
func (s *Auther) Login(ctx context.Context, identifier, password string, meta ...RequestMeta) (string, error) {
	identity, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.logger.Error("Login verify identity error: %v", err)
		s.scheduleAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		}, meta...)
		return "", err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.scheduleAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      ErrIdentityNotFound.Error(),
		}, meta...)
		return "", ErrIdentityNotFound
	}

	token, err := s.tokenService.Generate(identity)
	if err != nil {
		s.scheduleAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		}, meta...)
		return "", err
	}

	// the last-login stamp just changed the row, so both cache keys go
	id, email := identity.ID(), identity.Email()
	s.tasks.Schedule(ctx, "login.invalidate-cache", func(ctx context.Context) error {
		if s.cache != nil {
			s.cache.Invalidate(ctx, id, email)
		}
		return nil
	})

	s.scheduleAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"identifier": identifier,
	}, meta...)

	return token, nil
}

// Refresh re-issues a token for an already authenticated session. The
// previous token stays valid until its natural expiry; there is no
// revocation list.
func (s *Auther) Refresh(ctx context.Context, session Session, meta ...RequestMeta) (string, error) {
	identity, err := s.IdentityFromSession(ctx, session)
	if err != nil {
		return "", err
	}

	token, err := s.tokenService.Generate(identity)
	if err != nil {
		return "", err
	}

	s.scheduleAuthEvent(ctx, ActivityEventTokenRefresh, s.actorFromIdentity(identity), identity.ID(), nil, meta...)

	return token, nil
}

func (s *Auther) IdentityFromSession(ctx context.Context, session Session) (Identity, error) {
	identity, err := s.provider.FindIdentityByIdentifier(ctx, session.GetUserID())

	if err != nil {
		s.logger.Error("IdentityFromSession find identity by identifier: %s", err)
		return nil, err
	}

	return identity, nil
}

func (s Auther) SessionFromToken(raw string) (Session, error) {
	validator := s.tokenValidator
	if validator == nil {
		validator = s.tokenService
	}

	claims, err := validator.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed: %v", err)
		return nil, err
	}

	session, err := sessionFromAuthClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims: %v", err)
		return nil, err
	}

	return session, nil
}

// scheduleAuthEvent records through the task sink so audit latency never
// shows up in the response path.
func (s *Auther) scheduleAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any, meta ...RequestMeta) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if len(meta) > 0 {
		event.IPAddress = meta[0].IPAddress
		event.UserAgent = meta[0].UserAgent
		event.URL = meta[0].URL
	}

	normalizeActivityEvent(&event)

	logger := s.logger
	s.tasks.Schedule(ctx, "audit."+string(eventType), func(ctx context.Context) error {
		if err := sink.Record(ctx, event); err != nil {
			logger.Warn("activity sink record error: %v", err)
		}
		return nil
	})
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "user",
	}
}

var _ Authenticator = (*Auther)(nil)
