package identity

// Default values applied by NewSimpleConfig.
const (
	DefaultTokenExpiration = 24
	DefaultContextKey      = "identity_session"
)

// SimpleConfig is a concrete Config meant to be built once at startup and
// injected into the components that need it.
type SimpleConfig struct {
	SigningKey      string
	TokenExpiration int
	ContextKey      string
}

// NewSimpleConfig builds a config with the given signing key and defaults
// for everything else.
func NewSimpleConfig(signingKey string) *SimpleConfig {
	return &SimpleConfig{
		SigningKey:      signingKey,
		TokenExpiration: DefaultTokenExpiration,
		ContextKey:      DefaultContextKey,
	}
}

func (c *SimpleConfig) GetSigningKey() string {
	return c.SigningKey
}

func (c *SimpleConfig) GetTokenExpiration() int {
	if c.TokenExpiration <= 0 {
		return DefaultTokenExpiration
	}
	return c.TokenExpiration
}

func (c *SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return DefaultContextKey
	}
	return c.ContextKey
}

var _ Config = (*SimpleConfig)(nil)
