package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleGuest is a guest role (ie. view)
	RoleGuest UserRole = "guest"
	// RoleMember is a member (i.e. view, edit)
	RoleMember UserRole = "member"
	// RoleAdmin is an admin role (i.e. view, edit, create)
	RoleAdmin UserRole = "admin"
	// RoleOwner is an owner role (i.e. view, edit, create, delete)
	RoleOwner UserRole = "owner"
)

// ParseRole maps a raw string to a known role.
func ParseRole(role string) (UserRole, bool) {
	switch UserRole(strings.ToLower(strings.TrimSpace(role))) {
	case RoleGuest:
		return RoleGuest, true
	case RoleMember:
		return RoleMember, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleOwner:
		return RoleOwner, true
	default:
		return "", false
	}
}

// InviteTTL is how long an invitation stays acceptable.
const InviteTTL = 7 * 24 * time.Hour

// ResetTTL is how long a password reset token stays consumable.
const ResetTTL = time.Hour

// User is the user model. Invitation and reset tokens live directly on the
// row: a user has at most one pending invitation and one pending reset.
type User struct {
	bun.BaseModel   `bun:"table:users,alias:usr"`
	ID              uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role            UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	FirstName       string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName        string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Username        string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email           string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone           string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash    string     `bun:"password_hash" json:"-"`
	Active          bool       `bun:"active" json:"active"`
	InvitationToken *string    `bun:"invitation_token,nullzero" json:"-"`
	InvitedAt       *time.Time `bun:"invited_at,nullzero" json:"invited_at,omitempty"`
	ResetToken      *string    `bun:"reset_token,nullzero" json:"-"`
	ResetExpiresAt  *time.Time `bun:"reset_expires_at,nullzero" json:"-"`
	LoginAttempts   int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt  *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt      *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt       *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt       *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// InvitationPending reports whether the row represents an unaccepted invite.
func (u *User) InvitationPending() bool {
	return !u.Active && u.InvitationToken != nil && u.InvitedAt != nil
}

// InvitationExpired reports whether the invitation window has passed. The
// boundary is strict: an invitation aged exactly InviteTTL is still valid.
func (u *User) InvitationExpired(now time.Time) bool {
	if u.InvitedAt == nil {
		return false
	}
	return now.Sub(*u.InvitedAt) > InviteTTL
}

// ResetPending reports whether the row carries an unconsumed reset token.
func (u *User) ResetPending() bool {
	return u.ResetToken != nil && u.ResetExpiresAt != nil
}

// ResetExpired reports whether the reset window has passed. A token consumed
// at exactly the expiry instant is still honored.
func (u *User) ResetExpired(now time.Time) bool {
	if u.ResetExpiresAt == nil {
		return true
	}
	return now.After(*u.ResetExpiresAt)
}

// PasswordHistory is an append-only archive of password hashes replaced
// during resets.
type PasswordHistory struct {
	bun.BaseModel `bun:"table:password_history,alias:pwh"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// NormalizeEmail trims and lowercases an email so lookups, cache keys, and
// unique constraints all agree on one canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
