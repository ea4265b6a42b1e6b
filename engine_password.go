package authcore

import (
	"context"
	"errors"

	"github.com/cinefiles/authcore/token"
)

// ChangePassword replaces the password of a logged-in account. The current
// password must verify and the new one must differ and pass policy. Every
// outstanding session identity dies with the old hash.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := e.passwordHash.Verify(current, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.emitAudit(ctx, AuditEvent{
			EventType: "password.change",
			UserID:    user.ID,
			Success:   false,
			Error:     ErrInvalidCredentials.Error(),
		})
		return ErrInvalidCredentials
	}

	if err := e.replacePassword(ctx, user, next); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, AuditEvent{
		EventType: "password.change",
		UserID:    user.ID,
		Success:   true,
	})

	return nil
}

// RequestPasswordReset enqueues a reset mail when the address exists. The
// return value is nil either way; only backend failures surface, so the
// endpoint cannot be used to probe for accounts.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, AuditEvent{
				EventType: "password.reset_request",
				Email:     email,
				Success:   false,
				Error:     ErrUserNotFound.Error(),
			})
			return nil
		}
		return err
	}

	tok, err := e.tokens.Issue(user.ID, token.PurposeResetPassword, e.config.Token.ResetTTL)
	if err != nil {
		return err
	}

	if err := e.enqueueEmail(ctx, EmailJob{
		To:       user.Email,
		Template: MailTemplateResetPassword,
		Data: map[string]string{
			"link": e.config.Mail.ResetBaseURL + "?token=" + tok,
		},
	}); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequested)
	e.emitAudit(ctx, AuditEvent{
		EventType: "password.reset_request",
		UserID:    user.ID,
		Email:     email,
		Success:   true,
	})

	return nil
}

// RedeemPasswordReset exchanges a valid reset token for a new password.
func (e *Engine) RedeemPasswordReset(ctx context.Context, tokenStr, next string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	userID, err := e.tokens.Validate(tokenStr, token.PurposeResetPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: "password.reset_redeem",
			Success:   false,
			Error:     err.Error(),
		})
		return ErrInvalidToken
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			return ErrInvalidToken
		}
		return err
	}

	if err := e.replacePassword(ctx, user, next); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRedeemed)
	e.emitAudit(ctx, AuditEvent{
		EventType: "password.reset_redeem",
		UserID:    user.ID,
		Success:   true,
	})

	return nil
}

// replacePassword enforces policy and the no-reuse rule, then persists the
// new hash. Session invalidation is implicit: identities embed the hash
// tail, so they stop validating the moment the hash changes.
func (e *Engine) replacePassword(ctx context.Context, user *User, next string) error {
	if err := e.checkPasswordPolicy(next); err != nil {
		return err
	}

	same, err := e.passwordHash.Verify(next, user.PasswordHash)
	if err != nil {
		return err
	}
	if same {
		return ErrPasswordReuse
	}

	hash, err := e.passwordHash.Hash(next)
	if err != nil {
		return err
	}

	return e.users.UpdatePasswordHash(ctx, user.ID, hash)
}
