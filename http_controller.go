package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/nyaruka/phonenumbers"
)

// RegisterAuthRoutes mounts the JSON auth API on the given router.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Register, controller.RegisterPost).
		SetName("auth.register.post")

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("auth.login.post")

	app.Post(controller.Routes.Refresh, controller.RefreshPost).
		SetName("auth.refresh.post")

	app.Post(controller.Routes.Logout, controller.LogoutPost).
		SetName("auth.logout.post")

	app.Get(controller.Routes.Me, controller.MeGet).
		SetName("auth.me.get")

	app.Post(controller.Routes.Invite, controller.InvitePost).
		SetName("auth.invite.post")

	app.Get(fmt.Sprintf("%s/:token", controller.Routes.Invite), controller.InviteStatusGet).
		SetName("auth.invite-status.get")

	app.Post(fmt.Sprintf("%s/:token", controller.Routes.Invite), controller.InviteAcceptPost).
		SetName("auth.invite-accept.post")

	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).
		SetName("auth.pwd-reset.post")

	app.Post(fmt.Sprintf("%s/:token", controller.Routes.PasswordReset), controller.PasswordResetExecute).
		SetName("auth.pwd-reset-do.post")
}

type AuthControllerRoutes struct {
	Register      string
	Login         string
	Refresh       string
	Logout        string
	Me            string
	Invite        string
	PasswordReset string
}

type AuthController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Routes   *AuthControllerRoutes
	Auther   *RouteAuthenticator
	Tokens   TokenService
	Cache    *IdentityCache
	Tasks    TaskSink
	Activity ActivitySink
	Notifier Notifier
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Register:      "/auth/register",
			Login:         "/auth/login",
			Refresh:       "/auth/refresh",
			Logout:        "/auth/logout",
			Me:            "/auth/me",
			Invite:        "/auth/invite",
			PasswordReset: "/auth/password-reset",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenService in auth controller...")
	}

	return c
}

func (a *AuthController) respondError(ctx router.Context, err error) error {
	status := HTTPStatusFromError(err)

	message := "An unexpected error occurred"
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && status != http.StatusInternalServerError {
		message = richErr.Message
	}

	if status == http.StatusInternalServerError {
		a.Logger.Error("request failed: %v", err)
	}

	return ctx.JSON(status, map[string]any{
		"message": message,
		"status":  status,
	})
}

func (a *AuthController) respondValidation(ctx router.Context, err error) error {
	return ctx.JSON(http.StatusBadRequest, map[string]any{
		"message":    "Error validating payload",
		"status":     http.StatusBadRequest,
		"validation": FormatValidationErrorToMap(err),
	})
}

// RegistrationCreatePayload is the registration body
type RegistrationCreatePayload struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Phone           string `json:"phone_number"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegisterPost(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload: %v", err)
		return a.respondError(ctx, ErrUnableToParseData)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload: %v", err)
		return a.respondValidation(ctx, err)
	}

	if a.Debug {
		a.Logger.Debug("register payload: %s", print.MaybePrettyJSON(payload))
	}

	var res *RegisterUserResponse

	req := RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Username:  payload.Username,
		Email:     payload.Email,
		Phone:     payload.Phone,
		Password:  payload.Password,
		Meta:      RequestMetaFromRouter(ctx),
		OnResponse: func(resp *RegisterUserResponse) {
			res = resp
		},
	}

	registerUser := NewRegisterUserHandler(a.Repo, a.Tokens).
		WithActivitySink(a.Activity).
		WithTaskSink(a.Tasks).
		WithCache(a.Cache).
		WithLogger(a.Logger)

	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error: %v", err)
		return a.respondError(ctx, err)
	}

	a.Auther.SetSessionToken(ctx, res.Token)

	return ctx.JSON(http.StatusCreated, map[string]any{
		"token": res.Token,
		"user":  res.User,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return a.respondError(ctx, ErrUnableToParseData)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	token, err := a.Auther.Login(ctx, payload)
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"token": token,
	})
}

func (a *AuthController) RefreshPost(ctx router.Context) error {
	session, err := a.Auther.SessionFromRequest(ctx)
	if err != nil {
		return a.respondError(ctx, err)
	}

	token, err := a.Auther.auth.Refresh(ctx.Context(), session, RequestMetaFromRouter(ctx))
	if err != nil {
		return a.respondError(ctx, err)
	}

	a.Auther.SetSessionToken(ctx, token)

	return ctx.JSON(http.StatusOK, map[string]any{
		"token": token,
	})
}

func (a *AuthController) LogoutPost(ctx router.Context) error {
	// the audit event is best-effort: a request with no decodable session
	// still gets its cookie cleared
	if session, err := a.Auther.SessionFromRequest(ctx); err == nil {
		a.scheduleAuthEvent(ctx, ActivityEventLogout, session.GetUserID())
	}

	a.Auther.Logout(ctx)

	return ctx.JSON(http.StatusOK, map[string]any{
		"message": "logged out",
		"status":  http.StatusOK,
	})
}

func (a *AuthController) scheduleAuthEvent(ctx router.Context, eventType ActivityEventType, userID string) {
	sink := normalizeActivitySink(a.Activity)
	logger := a.Logger
	meta := RequestMetaFromRouter(ctx)

	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: userID, Type: "user"},
		UserID:     userID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		URL:        meta.URL,
		OccurredAt: time.Now(),
	}
	normalizeActivityEvent(&event)

	normalizeTaskSink(a.Tasks).Schedule(ctx.Context(), "audit."+string(eventType), func(ctx context.Context) error {
		if err := sink.Record(ctx, event); err != nil {
			logger.Warn("activity sink record error: %v", err)
		}
		return nil
	})
}

func (a *AuthController) MeGet(ctx router.Context) error {
	session, err := a.Auther.SessionFromRequest(ctx)
	if err != nil {
		return a.respondError(ctx, err)
	}

	identity, err := a.Auther.auth.IdentityFromSession(ctx.Context(), session)
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"id":       identity.ID(),
		"username": identity.Username(),
		"email":    identity.Email(),
		"role":     identity.Role(),
	})
}

// InviteCreatePayload is the invitation body
type InviteCreatePayload struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// Validate will validate the payload
func (r InviteCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
		validation.Field(&r.Role, validation.By(ValidateRole)),
	)
}

// InvitePost issues an invitation. The route is expected to sit behind the
// host's admin middleware; the acting admin comes from the decoded session.
func (a *AuthController) InvitePost(ctx router.Context) error {
	session, err := a.Auther.SessionFromRequest(ctx)
	if err != nil {
		return a.respondError(ctx, err)
	}

	payload := new(InviteCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("invite parse payload: %v", err)
		return a.respondError(ctx, ErrUnableToParseData)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	var res *InviteUserResponse

	req := InviteUserMessage{
		Email:     payload.Email,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Role:      payload.Role,
		InvitedBy: ActorRef{ID: session.GetUserID(), Type: "user"},
		Meta:      RequestMetaFromRouter(ctx),
		OnResponse: func(resp *InviteUserResponse) {
			res = resp
		},
	}

	invite := NewInviteUserHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithTaskSink(a.Tasks).
		WithNotifier(a.Notifier).
		WithLogger(a.Logger)

	if err := invite.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("invite user error: %v", err)
		return a.respondError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, map[string]any{
		"message": "invitation sent",
		"status":  http.StatusCreated,
		"token":   res.Token,
	})
}

func (a *AuthController) InviteStatusGet(ctx router.Context) error {
	token := ctx.Param("token", "")

	var res *InviteStatusResponse

	req := InviteStatusMessage{
		Token: token,
		OnResponse: func(resp *InviteStatusResponse) {
			res = resp
		},
	}

	status := NewInviteStatusHandler(a.Repo)
	if err := status.Execute(ctx.Context(), req); err != nil {
		return a.respondError(ctx, err)
	}

	if !res.Found {
		return ctx.JSON(http.StatusNotFound, map[string]any{
			"status": "invalid",
		})
	}

	if res.Expired {
		return ctx.JSON(http.StatusOK, map[string]any{
			"status": "expired",
		})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"status": "pending",
		"email":  res.Email,
	})
}

// InviteAcceptPayload is the acceptance body
type InviteAcceptPayload struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (r InviteAcceptPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) InviteAcceptPost(ctx router.Context) error {
	token := ctx.Param("token", "")
	payload := new(InviteAcceptPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("invite accept parse payload: %v", err)
		return a.respondError(ctx, ErrUnableToParseData)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	var res *AcceptInviteResponse

	req := AcceptInviteMessage{
		Token:           token,
		Username:        payload.Username,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
		Meta:            RequestMetaFromRouter(ctx),
		OnResponse: func(resp *AcceptInviteResponse) {
			res = resp
		},
	}

	accept := NewAcceptInviteHandler(a.Repo, a.Tokens).
		WithActivitySink(a.Activity).
		WithTaskSink(a.Tasks).
		WithCache(a.Cache).
		WithLogger(a.Logger)

	if err := accept.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("invite accept error: %v", err)
		return a.respondError(ctx, err)
	}

	a.Auther.SetSessionToken(ctx, res.Token)

	return ctx.JSON(http.StatusOK, map[string]any{
		"token": res.Token,
		"user":  res.User,
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset parse payload: %v", err)
		return a.respondError(ctx, ErrUnableToParseData)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	req := InitializePasswordResetMessage{
		Email: payload.Email,
		Meta:  RequestMetaFromRouter(ctx),
	}

	initPwdReset := NewInitializePasswordResetHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithTaskSink(a.Tasks).
		WithNotifier(a.Notifier).
		WithLogger(a.Logger)

	if err := initPwdReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("password reset init error: %v", err)
		return a.respondError(ctx, err)
	}

	// same body whether or not the email matched an account
	return ctx.JSON(http.StatusOK, map[string]any{
		"message": "if that email exists, a reset link has been sent",
		"status":  http.StatusOK,
	})
}

// PasswordResetVerifyPayload holds values for password reset
type PasswordResetVerifyPayload struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetVerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(8, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) PasswordResetExecute(ctx router.Context) error {
	token := ctx.Param("token", "")
	payload := new(PasswordResetVerifyPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset parse payload: %v", err)
		return a.respondError(ctx, ErrUnableToParseData)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	req := FinalizePasswordResetMessage{
		Token:           token,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
		Meta:            RequestMetaFromRouter(ctx),
	}

	finalizePwdReset := NewFinalizePasswordResetHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithTaskSink(a.Tasks).
		WithCache(a.Cache).
		WithLogger(a.Logger)

	if err := finalizePwdReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("password reset finalize error: %v", err)
		return a.respondError(ctx, err)
	}

	// no auto-login: the user signs in with the new password
	return ctx.JSON(http.StatusOK, map[string]any{
		"message": "password updated",
		"status":  http.StatusOK,
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return fmt.Errorf("values must match")
		}
		return nil
	}
}

// ValidatePhoneNumber accepts empty values and anything phonenumbers can
// parse into a valid number.
func ValidatePhoneNumber(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	parsed, err := phonenumbers.Parse(s, "US")
	if err != nil {
		return fmt.Errorf("must be a valid phone number")
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return fmt.Errorf("must be a valid phone number")
	}

	return nil
}

// ValidateRole accepts empty values and known role names.
func ValidateRole(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	if _, ok := ParseRole(s); !ok {
		return fmt.Errorf("must be one of guest, member, admin, owner")
	}

	return nil
}
