package authcore

import "errors"

var (
	// ErrEngineNotReady is returned when an operation is invoked on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidEmail rejects malformed email addresses during registration.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrWeakPassword rejects passwords failing the configured policy.
	ErrWeakPassword = errors.New("password policy violation")
	// ErrDuplicateEmail rejects registration with an address already in use.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrUserNotFound indicates the referenced account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials covers both unknown-account and wrong-password logins.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive rejects login before the email address is verified.
	ErrAccountInactive = errors.New("account not activated")
	// ErrInvalidToken covers expired, tampered, malformed, and wrong-purpose tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrPasswordReuse rejects a new password equal to the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrSessionInvalid indicates a session identity that no longer matches stored state.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrTwoFactorAlreadyEnabled rejects provisioning when 2FA is already active.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorNotEnabled rejects 2FA operations on accounts without 2FA.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrTwoFactorNotProvisioned rejects setup confirmation before provisioning.
	ErrTwoFactorNotProvisioned = errors.New("two-factor setup not started")
	// ErrCodeInvalid rejects a code that is neither a valid TOTP nor a backup code.
	ErrCodeInvalid = errors.New("invalid verification code")
	// ErrCodeReplayed rejects the most recently accepted TOTP code submitted again.
	ErrCodeReplayed = errors.New("verification code already used")
	// ErrNoBackupCodes reports a recovery attempt when no unused, unexpired
	// backup codes remain; regeneration is the only way forward.
	ErrNoBackupCodes = errors.New("no backup codes remaining")
	// ErrChallengeExpired indicates the login challenge is gone or past its TTL.
	ErrChallengeExpired = errors.New("login challenge expired")
	// ErrChallengeAttemptsExceeded indicates the challenge burned all allowed attempts.
	ErrChallengeAttemptsExceeded = errors.New("login challenge attempts exceeded")
	// ErrChallengeUnavailable indicates the challenge backend could not be reached.
	ErrChallengeUnavailable = errors.New("login challenge backend unavailable")
	// ErrQueueUnavailable indicates a task could not be enqueued.
	ErrQueueUnavailable = errors.New("task queue unavailable")
)
