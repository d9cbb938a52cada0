package identity

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator owns the session cookie and token extraction for the
// HTTP surface.
type RouteAuthenticator struct {
	auth           Authenticator
	cfg            Config
	cookieDuration time.Duration
	Logger         Logger
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	cookieDuration := 24 * time.Hour
	if cfg.GetTokenExpiration() > 0 {
		cookieDuration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	a := &RouteAuthenticator{
		cfg:            cfg,
		auth:           auther,
		Logger:         defLogger{},
		cookieDuration: cookieDuration,
	}

	return a, nil
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// Login verifies credentials and sets the session cookie.
func (a *RouteAuthenticator) Login(ctx router.Context, payload LoginPayload) (string, error) {
	token, err := a.auth.Login(ctx.Context(), payload.GetIdentifier(), payload.GetPassword(), RequestMetaFromRouter(ctx))
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return "", err
	}

	a.SetSessionToken(ctx, token)
	return token, nil
}

// Logout clears the session cookie. Tokens are stateless so there is
// nothing server-side to revoke.
func (a *RouteAuthenticator) Logout(ctx router.Context) {
	a.cookieDel(ctx, a.cfg.GetContextKey())
}

// SessionFromRequest decodes the session carried by the request, looking at
// the cookie first and the Authorization header second.
func (a *RouteAuthenticator) SessionFromRequest(ctx router.Context) (Session, error) {
	raw := a.TokenFromRequest(ctx)
	if raw == "" {
		return nil, ErrUnableToFindSession
	}

	return a.auth.SessionFromToken(raw)
}

// TokenFromRequest extracts the raw token, or "" when the request carries none.
func (a *RouteAuthenticator) TokenFromRequest(ctx router.Context) string {
	if raw := ctx.Cookies(a.cfg.GetContextKey()); raw != "" {
		return raw
	}

	header := ctx.Header("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	return ""
}

// SetSessionToken writes the session cookie: HTTP-only and SameSite Strict,
// with the same lifetime as the token it carries.
func (a *RouteAuthenticator) SetSessionToken(c router.Context, val string) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetContextKey(),
		Value:    val,
		Expires:  time.Now().Add(a.cookieDuration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map for JSON responses.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}
