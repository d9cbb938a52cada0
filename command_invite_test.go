package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func issueInvite(t *testing.T, repo identity.RepositoryManager, email string) *identity.InviteUserResponse {
	t.Helper()

	handler := identity.NewInviteUserHandler(repo).WithLogger(quietLogger{})

	var res *identity.InviteUserResponse
	err := handler.Execute(context.Background(), identity.InviteUserMessage{
		Email:     email,
		FirstName: "Invited",
		LastName:  "User",
		Role:      identity.RoleMember,
		InvitedBy: identity.ActorRef{ID: "admin-1", Type: "user"},
		OnResponse: func(resp *identity.InviteUserResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotEmpty(t, res.Token)

	return res
}

func backdateInvite(t *testing.T, db *bun.DB, email string, invitedAt time.Time) {
	t.Helper()

	_, err := db.NewRaw("UPDATE users SET invited_at = ? WHERE email = ?", invitedAt, email).
		Exec(context.Background())
	require.NoError(t, err)
}

func TestInviteUserHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates an inactive row with a pending invitation", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		sink := &capturingSink{}

		handler := identity.NewInviteUserHandler(repo).
			WithLogger(quietLogger{}).
			WithTaskSink(identity.NewSyncTaskSink(quietLogger{})).
			WithActivitySink(sink)

		var res *identity.InviteUserResponse
		err := handler.Execute(ctx, identity.InviteUserMessage{
			Email:     "Invited@Example.com",
			Role:      identity.RoleMember,
			InvitedBy: identity.ActorRef{ID: "admin-1", Type: "user"},
			OnResponse: func(resp *identity.InviteUserResponse) {
				res = resp
			},
		})
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.False(t, res.User.Active)
		assert.Equal(t, "invited@example.com", res.User.Email)
		assert.True(t, res.User.InvitationPending())
		assert.Empty(t, res.User.PasswordHash)

		events := sink.Events()
		require.Len(t, events, 1)
		assert.Equal(t, identity.ActivityEventInviteIssued, events[0].EventType)
		assert.Equal(t, "admin-1", events[0].Actor.ID)

		// an invited row cannot log in
		provider := identity.NewUserProvider(repo.Users()).WithLogger(quietLogger{})
		_, err = provider.VerifyIdentity(ctx, "invited@example.com", "anything")
		assert.ErrorIs(t, err, identity.ErrMismatchedHashAndPassword)
	})

	t.Run("Existing email cannot be invited", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		issueInvite(t, repo, "invited@example.com")

		handler := identity.NewInviteUserHandler(repo).WithLogger(quietLogger{})
		err := handler.Execute(ctx, identity.InviteUserMessage{Email: "invited@example.com"})
		assert.ErrorIs(t, err, identity.ErrUserAlreadyExists)
	})
}

func TestInviteStatusHandler(t *testing.T) {
	ctx := context.Background()

	inviteStatus := func(repo identity.RepositoryManager, token string) *identity.InviteStatusResponse {
		var res *identity.InviteStatusResponse
		err := identity.NewInviteStatusHandler(repo).Execute(ctx, identity.InviteStatusMessage{
			Token: token,
			OnResponse: func(resp *identity.InviteStatusResponse) {
				res = resp
			},
		})
		require.NoError(t, err)
		require.NotNil(t, res)
		return res
	}

	t.Run("Pending invitation", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		invite := issueInvite(t, repo, "invited@example.com")

		res := inviteStatus(repo, invite.Token)
		assert.True(t, res.Found)
		assert.False(t, res.Expired)
		assert.Equal(t, "invited@example.com", res.Email)
	})

	t.Run("Unknown token", func(t *testing.T) {
		repo, _ := newTestRepo(t)

		res := inviteStatus(repo, "no-such-token")
		assert.False(t, res.Found)
		assert.False(t, res.Expired)
		assert.Empty(t, res.Email)
	})

	t.Run("Expired invitation is distinguished from unknown", func(t *testing.T) {
		repo, db := newTestRepo(t)
		invite := issueInvite(t, repo, "invited@example.com")
		backdateInvite(t, db, "invited@example.com", time.Now().Add(-identity.InviteTTL-time.Hour))

		res := inviteStatus(repo, invite.Token)
		assert.True(t, res.Found)
		assert.True(t, res.Expired)
	})
}

func TestAcceptInviteHandler(t *testing.T) {
	ctx := context.Background()

	acceptInvite := func(repo identity.RepositoryManager, tokens identity.TokenService, msg identity.AcceptInviteMessage) (*identity.AcceptInviteResponse, error) {
		var res *identity.AcceptInviteResponse
		msg.OnResponse = func(resp *identity.AcceptInviteResponse) {
			res = resp
		}
		err := identity.NewAcceptInviteHandler(repo, tokens).
			WithLogger(quietLogger{}).
			Execute(ctx, msg)
		return res, err
	}

	t.Run("Acceptance activates the account and issues a token", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		tokens := identity.NewTokenService([]byte("test-signing-key"), 24, quietLogger{})
		invite := issueInvite(t, repo, "invited@example.com")

		res, err := acceptInvite(repo, tokens, identity.AcceptInviteMessage{
			Token:           invite.Token,
			Username:        "newmember",
			Password:        "password123",
			ConfirmPassword: "password123",
		})
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.True(t, res.User.Active)
		assert.Equal(t, "newmember", res.User.Username)
		assert.False(t, res.User.InvitationPending())

		claims, err := tokens.Validate(res.Token)
		require.NoError(t, err)
		assert.Equal(t, res.User.ID.String(), claims.Subject())

		// the account can now log in with the chosen password
		provider := identity.NewUserProvider(repo.Users()).WithLogger(quietLogger{})
		id, err := provider.VerifyIdentity(ctx, "invited@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, "newmember", id.Username())
	})

	t.Run("Acceptance is single use", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		invite := issueInvite(t, repo, "invited@example.com")

		_, err := acceptInvite(repo, nil, identity.AcceptInviteMessage{
			Token:           invite.Token,
			Username:        "newmember",
			Password:        "password123",
			ConfirmPassword: "password123",
		})
		require.NoError(t, err)

		_, err = acceptInvite(repo, nil, identity.AcceptInviteMessage{
			Token:           invite.Token,
			Username:        "other",
			Password:        "password456",
			ConfirmPassword: "password456",
		})
		assert.ErrorIs(t, err, identity.ErrInviteInvalid)
	})

	t.Run("Guard failures collapse into one opaque error", func(t *testing.T) {
		repo, db := newTestRepo(t)

		expired := issueInvite(t, repo, "expired@example.com")
		backdateInvite(t, db, "expired@example.com", time.Now().Add(-identity.InviteTTL-time.Hour))

		// another active user already owns this username
		register := identity.NewRegisterUserHandler(repo, nil).WithLogger(quietLogger{})
		require.NoError(t, register.Execute(ctx, identity.RegisterUserMessage{
			Email:    "existing@example.com",
			Username: "taken",
			Password: "password123",
		}))
		pending := issueInvite(t, repo, "pending@example.com")

		tests := []struct {
			name string
			msg  identity.AcceptInviteMessage
		}{
			{
				name: "Unknown token",
				msg: identity.AcceptInviteMessage{
					Token:           "no-such-token",
					Username:        "whoever",
					Password:        "password123",
					ConfirmPassword: "password123",
				},
			},
			{
				name: "Expired invitation",
				msg: identity.AcceptInviteMessage{
					Token:           expired.Token,
					Username:        "whoever",
					Password:        "password123",
					ConfirmPassword: "password123",
				},
			},
			{
				name: "Username already taken",
				msg: identity.AcceptInviteMessage{
					Token:           pending.Token,
					Username:        "taken",
					Password:        "password123",
					ConfirmPassword: "password123",
				},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := acceptInvite(repo, nil, tt.msg)
				assert.ErrorIs(t, err, identity.ErrInviteInvalid)
			})
		}
	})

	t.Run("Password validation happens before any lookup", func(t *testing.T) {
		repo, _ := newTestRepo(t)

		_, err := acceptInvite(repo, nil, identity.AcceptInviteMessage{
			Token:           "irrelevant",
			Username:        "whoever",
			Password:        "short",
			ConfirmPassword: "short",
		})
		require.Error(t, err)
		assert.NotErrorIs(t, err, identity.ErrInviteInvalid)

		_, err = acceptInvite(repo, nil, identity.AcceptInviteMessage{
			Token:           "irrelevant",
			Username:        "whoever",
			Password:        "password123",
			ConfirmPassword: "password456",
		})
		require.Error(t, err)
		assert.NotErrorIs(t, err, identity.ErrInviteInvalid)
	})
}
