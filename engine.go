// Package authcore is the account-security engine behind the catalog's web
// layer: password authentication, optional TOTP second factor with backup
// recovery codes, purpose-scoped email tokens, and derived session
// identities that die with the password hash they were minted from.
//
// The engine holds no HTTP concerns. A routing layer calls its exported
// operations and translates sentinel errors to responses; persistence sits
// behind the repository interfaces in types.go and email delivery behind
// the Enqueuer.
package authcore

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/cinefiles/authcore/password"
	"github.com/cinefiles/authcore/token"
)

// Engine exposes the account-security operations. Construct via Builder;
// a built engine is immutable and safe for concurrent use.
type Engine struct {
	config Config

	users       UserRepository
	backupCodes BackupCodeRepository
	queue       Enqueuer

	passwordHash *password.Argon2
	tokens       *token.Service
	totp         *totpManager
	challenges   *loginChallengeStore

	audit   *auditDispatcher
	metrics *Metrics

	// dummyHash burns comparable Argon2 work for unknown identifiers so
	// login timing does not reveal account existence.
	dummyHash string
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// MetricsSnapshot exposes the counters for exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events lost to dispatcher backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// normalizeEmail lowercases and trims; addresses are compared and stored
// in this form only.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	return len(email) <= 254 && emailPattern.MatchString(email)
}

// checkPasswordPolicy enforces the configured minimum length and character
// classes. Length is counted in bytes, matching how the hash consumes it.
func (e *Engine) checkPasswordPolicy(pw string) error {
	if len(pw) < e.config.Password.MinLength {
		return ErrWeakPassword
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	if e.config.Password.RequireUpper && !hasUpper {
		return ErrWeakPassword
	}
	if e.config.Password.RequireLower && !hasLower {
		return ErrWeakPassword
	}
	if e.config.Password.RequireDigit && !hasDigit {
		return ErrWeakPassword
	}
	if e.config.Password.RequireSpecial && !hasSpecial {
		return ErrWeakPassword
	}
	return nil
}

// enqueueEmail hands a mail job to the task layer and records the outcome.
func (e *Engine) enqueueEmail(ctx context.Context, job EmailJob) error {
	if e.queue == nil {
		return ErrQueueUnavailable
	}
	if _, err := e.queue.Enqueue(ctx, TaskSendEmail, job); err != nil {
		e.metricInc(MetricEmailEnqueueFailure)
		return ErrQueueUnavailable
	}
	e.metricInc(MetricEmailEnqueued)
	return nil
}
