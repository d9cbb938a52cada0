package identity_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) (*identity.AuthController, identity.RepositoryManager) {
	t.Helper()

	repo, _ := newTestRepo(t)
	cfg := identity.NewSimpleConfig("test-signing-key")

	provider := identity.NewUserProvider(repo.Users()).WithLogger(quietLogger{})
	auther := identity.NewAuthenticator(provider, cfg).WithLogger(quietLogger{})

	httpAuth, err := identity.NewHTTPAuthenticator(auther, cfg)
	require.NoError(t, err)
	httpAuth.Logger = quietLogger{}

	controller := identity.NewAuthController(
		func(c *identity.AuthController) *identity.AuthController {
			c.Repo = repo
			c.Auther = httpAuth
			c.Tokens = auther.TokenService()
			c.Logger = quietLogger{}
			c.Tasks = identity.NewSyncTaskSink(quietLogger{})
			return c
		},
	)

	return controller, repo
}

func TestNewAuthControllerPanicsOnMissingDeps(t *testing.T) {
	assert.Panics(t, func() {
		identity.NewAuthController()
	})
}

func TestAuthControllerRegisterPost(t *testing.T) {
	controller, _ := newTestController(t)

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	expectRequestMeta(mockCtx)

	mockCtx.On("Bind", mock.AnythingOfType("*identity.RegistrationCreatePayload")).
		Run(func(args mock.Arguments) {
			p := args.Get(0).(*identity.RegistrationCreatePayload)
			p.FirstName = "Test"
			p.LastName = "User"
			p.Email = "register@example.com"
			p.Password = "password123"
			p.ConfirmPassword = "password123"
		}).Return(nil)

	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "identity_session" && c.Value != ""
	})).Return()

	mockCtx.On("JSON", http.StatusCreated, mock.MatchedBy(func(v any) bool {
		body, ok := v.(map[string]any)
		if !ok {
			return false
		}
		token, _ := body["token"].(string)
		return token != "" && body["user"] != nil
	})).Return(nil)

	require.NoError(t, controller.RegisterPost(mockCtx))

	mockCtx.AssertExpectations(t)
}

func TestAuthControllerRegisterValidation(t *testing.T) {
	controller, _ := newTestController(t)

	mockCtx := new(MockContext)
	mockCtx.On("Bind", mock.AnythingOfType("*identity.RegistrationCreatePayload")).
		Run(func(args mock.Arguments) {
			p := args.Get(0).(*identity.RegistrationCreatePayload)
			p.FirstName = "Test"
			p.LastName = "User"
			p.Email = "register@example.com"
			p.Password = "password123"
			p.ConfirmPassword = "does-not-match"
		}).Return(nil)

	mockCtx.On("JSON", http.StatusBadRequest, mock.MatchedBy(func(v any) bool {
		body, ok := v.(map[string]any)
		if !ok {
			return false
		}
		_, hasValidation := body["validation"]
		return hasValidation
	})).Return(nil)

	require.NoError(t, controller.RegisterPost(mockCtx))

	mockCtx.AssertExpectations(t)
}

func TestAuthControllerLoginPost(t *testing.T) {
	controller, repo := newTestController(t)
	registerActiveUser(t, repo, "login@example.com", "password123")

	t.Run("Valid credentials", func(t *testing.T) {
		mockCtx := new(MockContext)
		mockCtx.On("Context").Return(context.Background())
		expectRequestMeta(mockCtx)

		mockCtx.On("Bind", mock.AnythingOfType("*identity.LoginRequest")).
			Run(func(args mock.Arguments) {
				p := args.Get(0).(*identity.LoginRequest)
				p.Identifier = "login@example.com"
				p.Password = "password123"
			}).Return(nil)

		mockCtx.On("Cookie", mock.Anything).Return()
		mockCtx.On("JSON", http.StatusOK, mock.MatchedBy(func(v any) bool {
			body, ok := v.(map[string]any)
			if !ok {
				return false
			}
			token, _ := body["token"].(string)
			return token != ""
		})).Return(nil)

		require.NoError(t, controller.LoginPost(mockCtx))
		mockCtx.AssertExpectations(t)
	})

	t.Run("Wrong password yields 401", func(t *testing.T) {
		mockCtx := new(MockContext)
		mockCtx.On("Context").Return(context.Background())
		expectRequestMeta(mockCtx)

		mockCtx.On("Bind", mock.AnythingOfType("*identity.LoginRequest")).
			Run(func(args mock.Arguments) {
				p := args.Get(0).(*identity.LoginRequest)
				p.Identifier = "login@example.com"
				p.Password = "wrong_password"
			}).Return(nil)

		mockCtx.On("JSON", http.StatusUnauthorized, mock.Anything).Return(nil)

		require.NoError(t, controller.LoginPost(mockCtx))
		mockCtx.AssertExpectations(t)
	})
}

func TestAuthControllerLogoutPost(t *testing.T) {
	t.Run("Decodable session emits a logout event", func(t *testing.T) {
		controller, _ := newTestController(t)
		sink := &capturingSink{}
		controller.Activity = sink

		token, err := controller.Tokens.Generate(stubIdentity{
			id:    "6a46ba29-2fcd-4502-b0a4-6bb45a24a96d",
			email: "logout@example.com",
			role:  identity.RoleMember,
		})
		require.NoError(t, err)

		mockCtx := new(MockContext)
		mockCtx.On("Context").Return(context.Background())
		expectRequestMeta(mockCtx)
		mockCtx.On("Cookies", "identity_session").Return(token)
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "identity_session" && c.Value == ""
		})).Return()
		mockCtx.On("JSON", http.StatusOK, mock.Anything).Return(nil)

		require.NoError(t, controller.LogoutPost(mockCtx))

		events := sink.Events()
		require.Len(t, events, 1)
		assert.Equal(t, identity.ActivityEventLogout, events[0].EventType)
		assert.Equal(t, "6a46ba29-2fcd-4502-b0a4-6bb45a24a96d", events[0].Actor.ID)
		assert.Equal(t, "10.1.2.3", events[0].IPAddress)

		mockCtx.AssertExpectations(t)
	})

	t.Run("No session still clears the cookie without an event", func(t *testing.T) {
		controller, _ := newTestController(t)
		sink := &capturingSink{}
		controller.Activity = sink

		mockCtx := new(MockContext)
		mockCtx.On("Cookies", "identity_session").Return("")
		mockCtx.On("Header", "Authorization").Return("")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "identity_session" && c.Value == ""
		})).Return()
		mockCtx.On("JSON", http.StatusOK, mock.Anything).Return(nil)

		require.NoError(t, controller.LogoutPost(mockCtx))
		assert.Empty(t, sink.Events())

		mockCtx.AssertExpectations(t)
	})
}

func TestAuthControllerPasswordResetPost(t *testing.T) {
	controller, repo := newTestController(t)
	registerActiveUser(t, repo, "reset@example.com", "password123")

	assertGenericBody := func(v any) bool {
		body, ok := v.(map[string]any)
		if !ok {
			return false
		}
		// the reset token must never reach the HTTP response
		_, hasToken := body["token"]
		return !hasToken && body["message"] != nil
	}

	for _, email := range []string{"reset@example.com", "unknown@example.com"} {
		t.Run(email, func(t *testing.T) {
			mockCtx := new(MockContext)
			mockCtx.On("Context").Return(context.Background())
			expectRequestMeta(mockCtx)

			mockCtx.On("Bind", mock.AnythingOfType("*identity.PasswordResetRequestPayload")).
				Run(func(args mock.Arguments) {
					p := args.Get(0).(*identity.PasswordResetRequestPayload)
					p.Email = email
				}).Return(nil)

			mockCtx.On("JSON", http.StatusOK, mock.MatchedBy(assertGenericBody)).Return(nil)

			require.NoError(t, controller.PasswordResetPost(mockCtx))
			mockCtx.AssertExpectations(t)
		})
	}
}

func TestAuthControllerInviteStatusGet(t *testing.T) {
	controller, repo := newTestController(t)
	invite := issueInvite(t, repo, "invited@example.com")

	t.Run("Pending invitation", func(t *testing.T) {
		mockCtx := new(MockContext)
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("Param", "token", "").Return(invite.Token)
		mockCtx.On("JSON", http.StatusOK, mock.MatchedBy(func(v any) bool {
			body, ok := v.(map[string]any)
			return ok && body["status"] == "pending" && body["email"] == "invited@example.com"
		})).Return(nil)

		require.NoError(t, controller.InviteStatusGet(mockCtx))
		mockCtx.AssertExpectations(t)
	})

	t.Run("Unknown token", func(t *testing.T) {
		mockCtx := new(MockContext)
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("Param", "token", "").Return("no-such-token")
		mockCtx.On("JSON", http.StatusNotFound, mock.MatchedBy(func(v any) bool {
			body, ok := v.(map[string]any)
			return ok && body["status"] == "invalid"
		})).Return(nil)

		require.NoError(t, controller.InviteStatusGet(mockCtx))
		mockCtx.AssertExpectations(t)
	})
}

func TestValidateStringEquals(t *testing.T) {
	rule := identity.ValidateStringEquals("expected")

	assert.NoError(t, rule("expected"))
	assert.Error(t, rule("different"))
	assert.Error(t, rule(42))
}

func TestValidatePhoneNumber(t *testing.T) {
	assert.NoError(t, identity.ValidatePhoneNumber(""))
	assert.NoError(t, identity.ValidatePhoneNumber("+1 212 555 0100"))
	assert.Error(t, identity.ValidatePhoneNumber("not-a-phone"))
}

func TestValidateRole(t *testing.T) {
	assert.NoError(t, identity.ValidateRole(""))
	assert.NoError(t, identity.ValidateRole("admin"))
	assert.Error(t, identity.ValidateRole("superuser"))
}
