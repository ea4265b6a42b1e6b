package authcore

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cinefiles/authcore/internal"
)

// RegenerateBackupCodes invalidates every existing recovery code and
// issues a fresh batch. A current TOTP code is required: recovery material
// is only re-minted for someone who demonstrably holds the authenticator.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.UsesTwoFactor {
		return nil, ErrTwoFactorNotEnabled
	}

	ok, err := e.totp.VerifyCode(user.OTPSecret, totpCode, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.emitAudit(ctx, AuditEvent{
			EventType: "backup_codes.regenerate",
			UserID:    user.ID,
			Success:   false,
			Error:     ErrCodeInvalid.Error(),
		})
		return nil, ErrCodeInvalid
	}

	codes, err := e.issueBackupCodes(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricBackupCodesRegenerated)
	e.emitAudit(ctx, AuditEvent{
		EventType: "backup_codes.regenerate",
		UserID:    user.ID,
		Success:   true,
	})

	return codes, nil
}

// issueBackupCodes replaces the user's batch. Plaintext goes back to the
// caller; only salted hashes reach storage.
func (e *Engine) issueBackupCodes(ctx context.Context, userID string) ([]string, error) {
	count := e.config.BackupCodes.Count
	if count > maxBackupCodeCount {
		count = maxBackupCodeCount
	}

	now := time.Now()
	expires := now.Add(e.config.BackupCodes.ExpiresAfter)

	plaintext := make([]string, 0, count)
	rows := make([]*BackupCode, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(e.config.BackupCodes.Length)
		if err != nil {
			return nil, err
		}
		hash, err := e.passwordHash.Hash(code)
		if err != nil {
			return nil, err
		}
		plaintext = append(plaintext, code)
		rows = append(rows, &BackupCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			Hash:      hash,
			ExpiresAt: expires,
			CreatedAt: now,
		})
	}

	if err := e.backupCodes.ReplaceForUser(ctx, userID, rows); err != nil {
		return nil, err
	}

	return plaintext, nil
}

// consumeBackupCode matches code against the user's unused codes and
// atomically marks the winner used, stamping its removal date. Returns the
// number of unused codes left. Two racers submitting the same code cannot
// both succeed: the repository's Consume admits exactly one. An empty
// store is reported as exhaustion, distinct from a plain mismatch.
func (e *Engine) consumeBackupCode(ctx context.Context, userID, code string) (int, error) {
	unused, err := e.backupCodes.UnusedForUser(ctx, userID)
	if err != nil {
		return -1, err
	}
	if len(unused) == 0 {
		return -1, ErrNoBackupCodes
	}

	now := time.Now()
	for _, row := range unused {
		match, err := e.passwordHash.Verify(code, row.Hash)
		if err != nil {
			return -1, err
		}
		if !match {
			continue
		}

		consumed, err := e.backupCodes.Consume(ctx, row.ID, now, now.Add(e.config.BackupCodes.RetentionAfter))
		if err != nil {
			return -1, err
		}
		if !consumed {
			// Lost the race on this row; no other row can match.
			return -1, ErrCodeInvalid
		}

		remaining, err := e.backupCodes.CountUnused(ctx, userID)
		if err != nil {
			return -1, err
		}

		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, AuditEvent{
			EventType: "backup_codes.consumed",
			UserID:    userID,
			Success:   true,
			Metadata:  map[string]string{"remaining": strconv.Itoa(remaining)},
		})

		return remaining, nil
	}

	return -1, ErrCodeInvalid
}

// PurgeExpiredBackupCodes deletes codes past their issuance horizon and
// used codes past their retention window. Unused, unexpired codes are
// never touched. Idempotent; intended to run on a daily schedule.
func (e *Engine) PurgeExpiredBackupCodes(ctx context.Context) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.backupCodes.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	if n > 0 {
		e.metrics.Add(MetricBackupCodesPurged, uint64(n))
		e.emitAudit(ctx, AuditEvent{
			EventType: "backup_codes.purged",
			Success:   true,
			Metadata:  map[string]string{"deleted": strconv.FormatInt(n, 10)},
		})
	}

	return n, nil
}
