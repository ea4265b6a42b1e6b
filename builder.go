package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/cinefiles/authcore/password"
	"github.com/cinefiles/authcore/token"
)

// Builder assembles an Engine. Each With method returns the builder for
// chaining; Build validates everything and can be called once.
type Builder struct {
	config Config
	redis  *redis.Client

	users       UserRepository
	backupCodes BackupCodeRepository
	queue       Enqueuer
	auditSink   AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the login challenge store.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithRepositories sets the persistence backends.
func (b *Builder) WithRepositories(users UserRepository, codes BackupCodeRepository) *Builder {
	b.users = users
	b.backupCodes = codes
	return b
}

// WithQueue sets the async task enqueuer used for outbound email.
func (b *Builder) WithQueue(q Enqueuer) *Builder {
	b.queue = q
	return b
}

// WithAuditSink sets the audit event destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and dependencies and returns the
// immutable Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("user repository required")
	}
	if b.backupCodes == nil {
		return nil, errors.New("backup code repository required")
	}

	engine := &Engine{
		config:      cfg,
		users:       b.users,
		backupCodes: b.backupCodes,
		queue:       b.queue,
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	// Fixed-input hash gives unknown-identifier logins the same Argon2
	// cost as real ones.
	dummy, err := ph.Hash("authcore-timing-equalizer")
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	ts, err := token.New(token.Config{
		Secret: cloneBytes(cfg.Token.Secret),
		Issuer: cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = ts

	engine.totp = newTOTPManager(cfg.TOTP)
	engine.challenges = newLoginChallengeStore(b.redis, cfg.Challenge.RedisPrefix)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
