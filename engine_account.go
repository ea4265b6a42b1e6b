package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cinefiles/authcore/token"
)

// Mail template names the engine enqueues. The worker-side renderer must
// know the same names.
const (
	MailTemplateVerifyEmail   = "verify_email"
	MailTemplateResetPassword = "reset_password"
)

// Register creates an inactive account and enqueues the verification mail.
// The account cannot log in until VerifyEmail succeeds.
func (e *Engine) Register(ctx context.Context, email, pw string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		e.metricInc(MetricRegisterRejected)
		return nil, ErrInvalidEmail
	}
	if err := e.checkPasswordPolicy(pw); err != nil {
		e.metricInc(MetricRegisterRejected)
		return nil, err
	}

	hash, err := e.passwordHash.Hash(pw)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Active:       false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := e.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, AuditEvent{
				EventType: "account.register",
				Email:     email,
				Success:   false,
				Error:     err.Error(),
			})
		}
		return nil, err
	}

	if err := e.sendVerificationMail(ctx, user); err != nil {
		// Account exists either way; ResendVerificationEmail recovers.
		e.emitAudit(ctx, AuditEvent{
			EventType: "account.register",
			UserID:    user.ID,
			Email:     email,
			Success:   false,
			Error:     err.Error(),
		})
		return user, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: "account.register",
		UserID:    user.ID,
		Email:     email,
		Success:   true,
	})

	return user, nil
}

// VerifyEmail redeems a verify-email token and activates the account.
// Activating an already active account is a no-op success, so stale links
// in a mail client do not scare users with errors.
func (e *Engine) VerifyEmail(ctx context.Context, tokenStr string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	userID, err := e.tokens.Validate(tokenStr, token.PurposeVerifyEmail)
	if err != nil {
		e.metricInc(MetricEmailVerifyFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: "account.verify_email",
			Success:   false,
			Error:     err.Error(),
		})
		return ErrInvalidToken
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricEmailVerifyFailure)
			return ErrInvalidToken
		}
		return err
	}

	if user.Active {
		return nil
	}

	if err := e.users.Activate(ctx, user.ID, time.Now()); err != nil {
		return err
	}

	e.metricInc(MetricEmailVerifySuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: "account.verify_email",
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
	})

	return nil
}

// ResendVerificationEmail re-enqueues the activation mail. Unknown
// addresses and already active accounts return nil so the endpoint leaks
// nothing about which addresses exist.
func (e *Engine) ResendVerificationEmail(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}
	if user.Active {
		return nil
	}

	return e.sendVerificationMail(ctx, user)
}

func (e *Engine) sendVerificationMail(ctx context.Context, user *User) error {
	tok, err := e.tokens.Issue(user.ID, token.PurposeVerifyEmail, e.config.Token.VerifyTTL)
	if err != nil {
		return err
	}

	return e.enqueueEmail(ctx, EmailJob{
		To:       user.Email,
		Template: MailTemplateVerifyEmail,
		Data: map[string]string{
			"link": e.config.Mail.VerifyBaseURL + "?token=" + tok,
		},
	})
}
