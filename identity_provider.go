package identity

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// UserStore is the slice of the users repository the provider needs.
type UserStore interface {
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)
	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// UserProvider resolves identities against the store, consulting the cache
// first for reads. Credential verification always goes to the store: password
// hashes are never cached.
type UserProvider struct {
	store  UserStore
	cache  *IdentityCache
	logger Logger
}

// MaxLoginAttempts is the maximum number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserStore) *UserProvider {
	return &UserProvider{
		store:  store,
		logger: defLogger{},
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	if l != nil {
		u.logger = l
	}
	return u
}

// WithCache attaches a read-through identity cache.
func (u *UserProvider) WithCache(cache *IdentityCache) *UserProvider {
	u.cache = cache
	return u
}

// VerifyIdentity will find the user, compare the password, and return the
// identity. Unknown identifiers, wrong passwords, and inactive accounts all
// produce the same error, and the unknown-identifier path still burns a
// bcrypt comparison so its timing matches the others.
func (u *UserProvider) VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error) {
	user, err := u.store.GetByIdentifier(ctx, NormalizeEmail(identifier))
	if err != nil {
		if errors.IsNotFound(err) {
			_ = ComparePasswordAndHash(password, dummyHash)
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if !user.Active {
		_ = ComparePasswordAndHash(password, dummyHash)
		return nil, ErrMismatchedHashAndPassword
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	// if we have too many attempts in the given window, cool off!
	if user.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if err2 := u.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrMismatchedHashAndPassword
	}

	// reset the login_attempts counter and stamp loggedin_at
	if err := u.store.TrackSuccessfulLogin(ctx, user); err != nil {
		u.logger.Error("failed to track successful login: %v", err)
	}

	return identityFromUser(user), nil
}

// FindIdentityByIdentifier resolves an identity by id or email, consulting
// the cache first and backfilling it on a store hit.
func (u *UserProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	if cached, ok := u.lookupCache(ctx, identifier); ok {
		return cached, nil
	}

	user, err := u.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user")
	}

	if !user.Active {
		return nil, ErrIdentityNotFound
	}

	aid := identityFromUser(user)
	if u.cache != nil {
		u.cache.Store(ctx, aid)
	}

	return aid, nil
}

func (u *UserProvider) lookupCache(ctx context.Context, identifier string) (Identity, bool) {
	if u.cache == nil {
		return nil, false
	}

	if isUUID(identifier) {
		return u.cache.GetByID(ctx, identifier)
	}

	if isEmail(identifier) {
		return u.cache.GetByEmail(ctx, identifier)
	}

	return nil, false
}

func identityFromUser(user *User) authIdentity {
	return authIdentity{
		id:       user.ID.String(),
		email:    NormalizeEmail(user.Email),
		username: user.Username,
		role:     string(user.Role),
	}
}

type authIdentity struct {
	id       string
	username string
	email    string
	role     string
}

func (a authIdentity) ID() string {
	return a.id
}

func (a authIdentity) Username() string {
	return a.username
}

func (a authIdentity) Email() string {
	return a.email
}

func (a authIdentity) Role() string {
	return a.role
}

var _ Identity = authIdentity{}
var _ IdentityProvider = (*UserProvider)(nil)
