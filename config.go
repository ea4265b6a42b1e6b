package authcore

import (
	"errors"
	"strings"
	"time"
)

// Config carries every tunable of the engine. Zero values are not usable;
// start from DefaultConfig and override what the deployment needs. The
// builder clones the config, so a Config cannot be mutated after Build.
type Config struct {
	Token       TokenConfig
	Password    PasswordConfig
	TOTP        TOTPConfig
	BackupCodes BackupCodeConfig
	Challenge   ChallengeConfig
	Mail        MailLinkConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

// TokenConfig configures the purpose-scoped token service.
type TokenConfig struct {
	Secret    []byte
	Issuer    string
	VerifyTTL time.Duration
	ResetTTL  time.Duration
}

// PasswordConfig combines Argon2id cost parameters with the acceptance policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// TOTPConfig configures authenticator-app code generation and verification.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Skew      int
}

// BackupCodeConfig configures recovery code batches and their lifecycle.
type BackupCodeConfig struct {
	Count            int
	Length           int
	ExpiresAfter     time.Duration
	RetentionAfter   time.Duration
	WarningThreshold int
}

// ChallengeConfig bounds the window between password success and 2FA success.
type ChallengeConfig struct {
	TTL         time.Duration
	MaxAttempts int
	RedisPrefix string
}

// MailLinkConfig holds the link bases embedded into outbound emails.
type MailLinkConfig struct {
	VerifyBaseURL string
	ResetBaseURL  string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// maxBackupCodeCount is a hard cap regardless of configuration.
const maxBackupCodeCount = 20

// DefaultConfig returns the baseline configuration. The token secret is
// intentionally empty and must be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:    "authcore",
			VerifyTTL: 24 * time.Hour,
			ResetTTL:  1 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:       65536,
			Time:         3,
			Parallelism:  2,
			SaltLength:   16,
			KeyLength:    32,
			MinLength:    10,
			RequireUpper: true,
			RequireLower: true,
			RequireDigit: true,
		},
		TOTP: TOTPConfig{
			Issuer:    "authcore",
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,
		},
		BackupCodes: BackupCodeConfig{
			Count:            10,
			Length:           6,
			ExpiresAfter:     365 * 24 * time.Hour,
			RetentionAfter:   30 * 24 * time.Hour,
			WarningThreshold: 3,
		},
		Challenge: ChallengeConfig{
			TTL:         5 * time.Minute,
			MaxAttempts: 5,
			RedisPrefix: "ac",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.Secret) < 32 {
		return errors.New("Token Secret must be at least 32 bytes")
	}
	if c.Token.VerifyTTL < 0 {
		return errors.New("Token VerifyTTL must be >= 0")
	}
	if c.Token.ResetTTL < 0 {
		return errors.New("Token ResetTTL must be >= 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
		// valid (empty treated as SHA1)
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}

	// Backup codes
	if c.BackupCodes.Count <= 0 {
		return errors.New("BackupCodes Count must be > 0")
	}
	if c.BackupCodes.Count > maxBackupCodeCount {
		return errors.New("BackupCodes Count must be <= 20")
	}
	if c.BackupCodes.Length < 6 {
		return errors.New("BackupCodes Length must be >= 6")
	}
	if c.BackupCodes.ExpiresAfter <= 0 {
		return errors.New("BackupCodes ExpiresAfter must be > 0")
	}
	if c.BackupCodes.RetentionAfter <= 0 {
		return errors.New("BackupCodes RetentionAfter must be > 0")
	}
	if c.BackupCodes.WarningThreshold < 0 {
		return errors.New("BackupCodes WarningThreshold must be >= 0")
	}

	// Challenge
	if c.Challenge.TTL <= 0 {
		return errors.New("Challenge TTL must be > 0")
	}
	if c.Challenge.MaxAttempts <= 0 {
		return errors.New("Challenge MaxAttempts must be > 0")
	}
	if c.Challenge.RedisPrefix == "" {
		return errors.New("Challenge RedisPrefix is required")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
