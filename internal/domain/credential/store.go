package credential

import "context"

// DefaultSlot is the key under which the bearer credential is persisted,
// matching the key the web storefront used for the same purpose.
const DefaultSlot = "pp_token"

// Store is the single source of truth for the current bearer credential.
// Get returns an empty string when no credential is held; the token contents
// are opaque and never inspected client-side. Set atomically replaces any
// previous value, and Clear is safe to call any number of times.
type Store interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	Slot   string
	Redis  *RedisConfig
}

// RedisConfig captures connection options for the redis driver.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

func (c Config) slot() string {
	if c.Slot == "" {
		return DefaultSlot
	}
	return c.Slot
}
