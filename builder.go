package sessioncore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/tverran/sessioncore/internal/audit"
	"github.com/tverran/sessioncore/internal/lockout"
	"github.com/tverran/sessioncore/internal/rate"
	"github.com/tverran/sessioncore/password"
	"github.com/tverran/sessioncore/store"
	"github.com/tverran/sessioncore/token"
)

// Builder assembles an [Engine]. Configure, then call Build exactly once.
type Builder struct {
	config Config

	redis redis.UniversalClient
	store store.Store

	auditSink AuditSink

	built bool
}

// New returns a Builder preloaded with [defaultConfig] values.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration. The config is cloned; later
// mutation of cfg by the caller does not affect the builder.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing the default store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore supplies a custom [store.Store], bypassing WithRedis.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithAuditSink sets the sink receiving audit events. Enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authorize latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component, and returns a
// ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st := b.store
	if st == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or store required")
		}
		st = store.NewRedis(b.redis, cfg.Store.KeyPrefix, cfg.Store.AttemptLogCap)
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	// A fixed hash verified on unknown-email logins so the response time
	// does not reveal whether the address exists.
	decoyHash, err := hasher.Hash("sessioncore-decoy-credential")
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		KeyID:         cfg.Token.KeyID,
		VerifyKeys:    cfg.Token.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		store:     st,
		tokens:    tokens,
		hasher:    hasher,
		decoyHash: decoyHash,
		guard: lockout.NewGuard(st, lockout.Config{
			Threshold: cfg.Lockout.Threshold,
			Duration:  cfg.Lockout.Duration,
		}),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	if cfg.RateLimit.Enabled {
		limiter, err := rate.New(rate.Config{
			Anonymous:     cfg.RateLimit.Anonymous,
			Authenticated: cfg.RateLimit.Authenticated,
			Elevated:      cfg.RateLimit.Elevated,
			SweepInterval: cfg.RateLimit.SweepInterval,
		})
		if err != nil {
			return nil, err
		}
		engine.limiter = limiter
	}

	if cfg.Store.SweepInterval > 0 {
		engine.startSweeper(cfg.Store.SweepInterval)
	}

	b.built = true

	return engine, nil
}
