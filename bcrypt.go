package identity

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultHashCost is the bcrypt cost used unless a caller tunes it.
	DefaultHashCost = 14
	// MinHashCost is the floor below which configured costs are clamped.
	MinHashCost = 10
)

// Hasher hashes and verifies passwords with a fixed bcrypt cost.
type Hasher struct {
	cost int
}

// NewHasher builds a Hasher, clamping cost to MinHashCost.
func NewHasher(cost int) *Hasher {
	if cost < MinHashCost {
		cost = MinHashCost
	}
	return &Hasher{cost: cost}
}

// HashPassword will generate a password hash
func (h *Hasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	return string(out), err
}

// ComparePasswordAndHash will validate the given cleartext password matches
// the hashed password. Malformed or empty stored hashes report the same
// mismatch error as a wrong password.
func (h *Hasher) ComparePasswordAndHash(password, hash string) error {
	return ComparePasswordAndHash(password, hash)
}

var _ PasswordAuthenticator = (*Hasher)(nil)

// HashPassword hashes with the default cost
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), DefaultHashCost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		// rows with no usable hash (pending invites, corrupted values) must
		// look exactly like a wrong password
		return ErrMismatchedHashAndPassword
	}
	return nil
}

// RandomPasswordHash is a temporary password
func RandomPasswordHash() string {
	pwd := uuid.New()

	h, err := HashPassword(pwd.String())
	if err != nil {
		return RandomPasswordHash()
	}

	return h
}

// dummyHash keeps the timing of unknown-identifier logins close to the
// timing of a real mismatch. Cost matches MinHashCost so startup stays fast.
var dummyHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), MinHashCost)
	if err != nil {
		return "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B0cnB5mHPbnpaGXY9uS1QvJPMr0y"
	}
	return string(h)
}()
