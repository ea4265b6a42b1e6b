package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/cinefiles/authcore/internal"
	"github.com/cinefiles/authcore/token"
)

// Login authenticates an email/password pair. Unknown addresses and wrong
// passwords are indistinguishable to the caller in both error value and
// hashing cost. Accounts with a second factor get a transient challenge
// instead of a session.
func (e *Engine) Login(ctx context.Context, email, pw string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = e.passwordHash.Verify(pw, e.dummyHash)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, AuditEvent{
				EventType: "login.password",
				Email:     email,
				Success:   false,
				Error:     ErrInvalidCredentials.Error(),
			})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := e.passwordHash.Verify(pw, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: "login.password",
			UserID:    user.ID,
			Email:     email,
			Success:   false,
			Error:     ErrInvalidCredentials.Error(),
		})
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		e.metricInc(MetricLoginInactive)
		e.emitAudit(ctx, AuditEvent{
			EventType: "login.password",
			UserID:    user.ID,
			Email:     email,
			Success:   false,
			Error:     ErrAccountInactive.Error(),
		})
		return nil, ErrAccountInactive
	}

	if user.UsesTwoFactor {
		challengeID, err := internal.NewChallengeID()
		if err != nil {
			return nil, err
		}
		record := &loginChallenge{
			UserID:    user.ID,
			ExpiresAt: time.Now().Add(e.config.Challenge.TTL).Unix(),
		}
		if err := e.challenges.Save(ctx, challengeID, record, e.config.Challenge.TTL); err != nil {
			return nil, ErrChallengeUnavailable
		}

		e.metricInc(MetricChallengeIssued)
		e.emitAudit(ctx, AuditEvent{
			EventType: "login.challenge_issued",
			UserID:    user.ID,
			Email:     email,
			Success:   true,
		})

		return &LoginResult{
			Status:      LoginTwoFactorRequired,
			UserID:      user.ID,
			ChallengeID: challengeID,
		}, nil
	}

	if err := e.users.TouchLastLogin(ctx, user.ID, time.Now()); err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: "login.password",
		UserID:    user.ID,
		Email:     email,
		Success:   true,
	})

	return &LoginResult{
		Status:  LoginOK,
		UserID:  user.ID,
		Session: token.Identity(user.ID, user.PasswordHash),
	}, nil
}

// SubmitTwoFactor completes a pending login challenge with either a TOTP
// code or a backup recovery code. The challenge survives wrong codes until
// its attempt budget runs out and is consumed exactly once on success.
func (e *Engine) SubmitTwoFactor(ctx context.Context, challengeID, code string) (*TwoFactorResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	record, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		switch {
		case errors.Is(err, errChallengeNotFound), errors.Is(err, errChallengeExpired):
			e.metricInc(MetricChallengeExpired)
			return nil, ErrChallengeExpired
		default:
			return nil, ErrChallengeUnavailable
		}
	}

	user, err := e.users.GetByID(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	if !user.UsesTwoFactor {
		return nil, ErrTwoFactorNotEnabled
	}

	method, remaining, verr := e.verifySecondFactor(ctx, user, code)
	if verr != nil {
		if errors.Is(verr, ErrCodeInvalid) || errors.Is(verr, ErrCodeReplayed) || errors.Is(verr, ErrNoBackupCodes) {
			if errors.Is(verr, ErrCodeReplayed) {
				e.metricInc(MetricChallengeReplay)
			} else {
				e.metricInc(MetricChallengeFailure)
			}
			exceeded, ferr := e.challenges.RecordFailure(ctx, challengeID, e.config.Challenge.MaxAttempts)
			if ferr != nil {
				switch {
				case errors.Is(ferr, errChallengeNotFound), errors.Is(ferr, errChallengeExpired):
					return nil, ErrChallengeExpired
				default:
					return nil, ErrChallengeUnavailable
				}
			}
			e.emitAudit(ctx, AuditEvent{
				EventType: "login.second_factor",
				UserID:    user.ID,
				Success:   false,
				Error:     verr.Error(),
			})
			if exceeded {
				return nil, ErrChallengeAttemptsExceeded
			}
		}
		return nil, verr
	}

	consumed, err := e.challenges.Consume(ctx, challengeID)
	if err != nil {
		return nil, ErrChallengeUnavailable
	}
	if !consumed {
		// A concurrent submission won; this one gets nothing.
		e.metricInc(MetricChallengeExpired)
		return nil, ErrChallengeExpired
	}

	if err := e.users.TouchLastLogin(ctx, user.ID, time.Now()); err != nil {
		return nil, err
	}

	e.metricInc(MetricChallengeSuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: "login.second_factor",
		UserID:    user.ID,
		Success:   true,
		Metadata:  map[string]string{"method": string(method)},
	})

	return &TwoFactorResult{
		UserID:           user.ID,
		Session:          token.Identity(user.ID, user.PasswordHash),
		Method:           method,
		BackupCodesLeft:  remaining,
		LowOnBackupCodes: remaining >= 0 && remaining <= e.config.BackupCodes.WarningThreshold,
	}, nil
}

// verifySecondFactor tries the replay guard, then TOTP, then backup codes.
// remaining is the unused backup code count after the check, or -1 when the
// backup store was not consulted.
func (e *Engine) verifySecondFactor(ctx context.Context, user *User, code string) (SecondFactorMethod, int, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "", -1, ErrCodeInvalid
	}

	// Replay guard: the last accepted code is rejected outright, before
	// any cryptographic check, even though it would still verify.
	if user.LastUsedOTP != "" &&
		subtle.ConstantTimeCompare([]byte(trimmed), []byte(user.LastUsedOTP)) == 1 {
		return "", -1, ErrCodeReplayed
	}

	ok, err := e.totp.VerifyCode(user.OTPSecret, trimmed, time.Now())
	if err != nil {
		return "", -1, err
	}
	if ok {
		if err := e.users.SetLastUsedOTP(ctx, user.ID, trimmed); err != nil {
			return "", -1, err
		}
		count, err := e.backupCodes.CountUnused(ctx, user.ID)
		if err != nil {
			return "", -1, err
		}
		return MethodTOTP, count, nil
	}

	remaining, err := e.consumeBackupCode(ctx, user.ID, trimmed)
	if err != nil {
		return "", remaining, err
	}
	return MethodBackupCode, remaining, nil
}

// ValidateSession checks a session identity against current account state
// and returns the account it belongs to. Identities minted before a
// password change fail here; there is no revocation list to consult.
func (e *Engine) ValidateSession(ctx context.Context, identity string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	userID, _, err := token.ParseIdentity(identity)
	if err != nil {
		e.metricInc(MetricSessionRejected)
		return nil, ErrSessionInvalid
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricSessionRejected)
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	expected := token.Identity(user.ID, user.PasswordHash)
	if subtle.ConstantTimeCompare([]byte(identity), []byte(expected)) != 1 {
		e.metricInc(MetricSessionRejected)
		e.emitAudit(ctx, AuditEvent{
			EventType: "session.rejected",
			UserID:    user.ID,
			Success:   false,
			Error:     ErrSessionInvalid.Error(),
		})
		return nil, ErrSessionInvalid
	}

	return user, nil
}
