package identity

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes exposed to API clients alongside structured errors.
const (
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeSessionNotFound    = "SESSION_NOT_FOUND"
	TextCodeSessionDecodeError = "SESSION_DECODE_ERROR"
	TextCodeClaimsMappingError = "CLAIMS_MAPPING_ERROR"
	TextCodeDataParseError     = "DATA_PARSE_ERROR"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeUserExists         = "USER_ALREADY_EXISTS"
	TextCodeInviteInvalid      = "INVITE_INVALID"
	TextCodeResetInvalid       = "RESET_INVALID"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrMismatchedHashAndPassword covers unknown identifiers, wrong passwords,
// and unusable stored hashes alike so callers cannot tell them apart.
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidCreds)

// ErrTooManyLoginAttempts signals the login attempt cooldown kicked in
var ErrTooManyLoginAttempts = errors.New("too many login attempts, try again later", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrUnableToFindSession is the error when our request has no cookie
var ErrUnableToFindSession = errors.New("unable to find session", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeSessionNotFound)

// ErrUnableToDecodeSession unable to decode JWT from session cookie
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeSessionDecodeError)

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeClaimsMappingError)

// ErrUnableToParseData parse error
var ErrUnableToParseData = errors.New("unable to parse data", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest).
	WithTextCode(TextCodeDataParseError)

// ErrNoEmptyString rejects empty passwords before they reach the hasher
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest).
	WithTextCode(TextCodeEmptyPassword)

// ErrTokenExpired is returned for tokens presented past their expiry instant
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed covers undecodable and badly signed tokens
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeTokenMalformed)

// ErrUserAlreadyExists is returned when registration hits a taken email or
// username, whether through the pre-check or the store's unique constraint.
var ErrUserAlreadyExists = errors.New("a user with that email or username already exists", errors.CategoryConflict).
	WithCode(errors.CodeBadRequest).
	WithTextCode(TextCodeUserExists)

// ErrInviteInvalid is the single error returned for every invitation
// acceptance guard failure: bad token, expired window, already accepted,
// taken username. The status view is the only place that differentiates.
var ErrInviteInvalid = errors.New("invalid or expired invitation", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeInviteInvalid)

// ErrResetInvalid is the single error for every reset consumption guard
// failure, mirroring ErrInviteInvalid.
var ErrResetInvalid = errors.New("invalid or expired password reset token", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeResetInvalid)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}

	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMalformed {
		return true
	}

	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// HTTPStatusFromError maps the error taxonomy onto response status codes.
// Conflicts intentionally map to 400 rather than 409: the API treats a taken
// email the same as any other rejected payload.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return http.StatusInternalServerError
	}

	switch richErr.Category {
	case errors.CategoryValidation, errors.CategoryBadInput, errors.CategoryConflict:
		return http.StatusBadRequest
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case errors.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
