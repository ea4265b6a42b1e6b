package authcore

import (
	"context"
	"io"
	"time"

	"github.com/cinefiles/authcore/internal/audit"
)

// User is the account model the engine operates on. PasswordHash is a PHC
// format Argon2id string. OTPSecret is plaintext in memory; repositories
// are responsible for sealing it at rest.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	Active          bool
	UsesTwoFactor   bool
	OTPSecret       []byte
	LastUsedOTP     string
	EmailVerifiedAt *time.Time
	LastLoginAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BackupCode is one recovery code row. Hash is a PHC format Argon2id string
// of the plaintext code, which is never stored.
type BackupCode struct {
	ID          string
	UserID      string
	Hash        string
	Used        bool
	UsedAt      *time.Time
	ExpiresAt   time.Time
	RemoveAfter *time.Time
	CreatedAt   time.Time
}

// UserRepository is the persistence contract for accounts. Update methods
// are narrow on purpose so concurrent requests touching different fields of
// the same account cannot overwrite each other.
//
// GetByEmail must return ErrUserNotFound for unknown addresses and Create
// must return ErrDuplicateEmail on a unique violation; the engine's
// anti-enumeration behavior depends on those mappings.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	Activate(ctx context.Context, id string, at time.Time) error
	SetOTPSecret(ctx context.Context, id string, secret []byte) error
	EnableTwoFactor(ctx context.Context, id, lastUsedOTP string) error
	DisableTwoFactor(ctx context.Context, id string) error
	SetLastUsedOTP(ctx context.Context, id, code string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// BackupCodeRepository is the persistence contract for recovery codes.
// Consume must be atomic: of two racing consumers exactly one sees true.
type BackupCodeRepository interface {
	ReplaceForUser(ctx context.Context, userID string, codes []*BackupCode) error
	UnusedForUser(ctx context.Context, userID string) ([]*BackupCode, error)
	CountUnused(ctx context.Context, userID string) (int, error)
	Consume(ctx context.Context, codeID string, usedAt, removeAfter time.Time) (bool, error)
	InvalidateForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Enqueuer hands jobs to the async task layer. The engine only ever
// enqueues; execution happens in worker processes.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any) (string, error)
}

// Task kinds the engine enqueues.
const (
	TaskSendEmail        = "send_email"
	TaskPurgeBackupCodes = "purge_expired_backup_codes"
)

// EmailJob is the payload of a TaskSendEmail job.
type EmailJob struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

// AuditEvent re-exports the internal audit event model.
type AuditEvent = audit.Event

// AuditSink re-exports the internal audit sink contract.
type AuditSink = audit.Sink

// NoOpSink re-exports the sink that drops all events.
type NoOpSink = audit.NoOpSink

// ChannelSink re-exports the channel-backed sink.
type ChannelSink = audit.ChannelSink

// NewChannelSink constructs a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// JSONWriterSink re-exports the line-delimited JSON sink.
type JSONWriterSink = audit.JSONWriterSink

// NewJSONWriterSink constructs a sink writing one JSON event per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

// LoginStatus discriminates the two successful login outcomes.
type LoginStatus int

const (
	// LoginOK means the password alone completed authentication.
	LoginOK LoginStatus = iota
	// LoginTwoFactorRequired means a second factor must be submitted.
	LoginTwoFactorRequired
)

// LoginResult is returned by Login. Session is set only for LoginOK;
// ChallengeID only for LoginTwoFactorRequired.
type LoginResult struct {
	Status      LoginStatus
	UserID      string
	Session     string
	ChallengeID string
}

// SecondFactorMethod records which factor satisfied a 2FA challenge.
type SecondFactorMethod string

const (
	// MethodTOTP marks a challenge satisfied by an authenticator code.
	MethodTOTP SecondFactorMethod = "totp"
	// MethodBackupCode marks a challenge satisfied by a recovery code.
	MethodBackupCode SecondFactorMethod = "backup_code"
)

// TwoFactorResult is returned by SubmitTwoFactor on success.
type TwoFactorResult struct {
	UserID           string
	Session          string
	Method           SecondFactorMethod
	BackupCodesLeft  int
	LowOnBackupCodes bool
}

// TwoFactorSetup is returned by BeginTwoFactorSetup. Secret is the base32
// provisioning secret, FormattedSecret the same value in groups of four for
// manual entry, URI the otpauth:// string QR renderers consume.
type TwoFactorSetup struct {
	Secret          string
	FormattedSecret string
	URI             string
}

// TwoFactorStatus reports the account's second-factor state.
type TwoFactorStatus struct {
	Enabled         bool
	BackupCodesLeft int
	LastLoginAt     *time.Time
}
