package authcore

import (
	"context"
	"time"
)

// BeginTwoFactorSetup provisions a fresh TOTP secret for the account. The
// secret is stored immediately (encrypted at the storage boundary) but the
// account's second factor stays off until ConfirmTwoFactorSetup proves the
// authenticator actually holds it.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.UsesTwoFactor {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	raw, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := e.users.SetOTPSecret(ctx, user.ID, raw); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, AuditEvent{
		EventType: "totp.provisioned",
		UserID:    user.ID,
		Success:   true,
	})

	return &TwoFactorSetup{
		Secret:          secretBase32,
		FormattedSecret: formatSecret(secretBase32),
		URI:             e.totp.ProvisionURI(secretBase32, user.Email),
	}, nil
}

// ConfirmTwoFactorSetup verifies the first code from the authenticator,
// turns the second factor on, and issues the backup code batch. The
// returned plaintext codes are shown exactly once and never recoverable.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.UsesTwoFactor {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if len(user.OTPSecret) == 0 {
		return nil, ErrTwoFactorNotProvisioned
	}

	ok, err := e.totp.VerifyCode(user.OTPSecret, code, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.emitAudit(ctx, AuditEvent{
			EventType: "totp.setup_confirm",
			UserID:    user.ID,
			Success:   false,
			Error:     ErrCodeInvalid.Error(),
		})
		return nil, ErrCodeInvalid
	}

	// The confirming code seeds the replay guard so it cannot be reused
	// at the first real login.
	if err := e.users.EnableTwoFactor(ctx, user.ID, code); err != nil {
		return nil, err
	}

	codes, err := e.issueBackupCodes(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTwoFactorEnabled)
	e.emitAudit(ctx, AuditEvent{
		EventType: "totp.setup_confirm",
		UserID:    user.ID,
		Success:   true,
	})

	return codes, nil
}

// DisableTwoFactor turns the second factor off, wipes the stored secret
// and replay state, and invalidates all backup codes.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.UsesTwoFactor {
		return ErrTwoFactorNotEnabled
	}

	if err := e.users.DisableTwoFactor(ctx, user.ID); err != nil {
		return err
	}
	if err := e.backupCodes.InvalidateForUser(ctx, user.ID); err != nil {
		return err
	}

	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, AuditEvent{
		EventType: "totp.disabled",
		UserID:    user.ID,
		Success:   true,
	})

	return nil
}

// Status reports whether the second factor is on and how many backup codes
// remain unused.
func (e *Engine) Status(ctx context.Context, userID string) (*TwoFactorStatus, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &TwoFactorStatus{
		Enabled:     user.UsesTwoFactor,
		LastLoginAt: user.LastLoginAt,
	}
	if user.UsesTwoFactor {
		count, err := e.backupCodes.CountUnused(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		status.BackupCodesLeft = count
	}

	return status, nil
}
