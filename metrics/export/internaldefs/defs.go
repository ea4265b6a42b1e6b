// Package internaldefs pins the stable external names of engine counters
// so every exporter emits identical series.
package internaldefs

import "github.com/cinefiles/authcore"

// CounterDef binds one engine counter to its exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a fixed order.
var CounterDefs = []CounterDef{
	{authcore.MetricRegisterSuccess, "authcore_register_success_total", "Accounts created."},
	{authcore.MetricRegisterDuplicate, "authcore_register_duplicate_total", "Registrations rejected for a taken address."},
	{authcore.MetricRegisterRejected, "authcore_register_rejected_total", "Registrations rejected by validation."},
	{authcore.MetricEmailVerifySuccess, "authcore_email_verify_success_total", "Accounts activated by email verification."},
	{authcore.MetricEmailVerifyFailure, "authcore_email_verify_failure_total", "Rejected email verification tokens."},
	{authcore.MetricLoginSuccess, "authcore_login_success_total", "Completed logins."},
	{authcore.MetricLoginFailure, "authcore_login_failure_total", "Logins rejected for bad credentials."},
	{authcore.MetricLoginInactive, "authcore_login_inactive_total", "Logins blocked on unverified accounts."},
	{authcore.MetricChallengeIssued, "authcore_challenge_issued_total", "Second-factor challenges issued."},
	{authcore.MetricChallengeSuccess, "authcore_challenge_success_total", "Second-factor challenges satisfied."},
	{authcore.MetricChallengeFailure, "authcore_challenge_failure_total", "Wrong second-factor codes."},
	{authcore.MetricChallengeExpired, "authcore_challenge_expired_total", "Submissions against dead challenges."},
	{authcore.MetricChallengeReplay, "authcore_challenge_replay_total", "Replayed TOTP codes."},
	{authcore.MetricBackupCodeUsed, "authcore_backup_code_used_total", "Recovery codes consumed."},
	{authcore.MetricBackupCodesRegenerated, "authcore_backup_codes_regenerated_total", "Recovery batches regenerated."},
	{authcore.MetricBackupCodesPurged, "authcore_backup_codes_purged_total", "Recovery code rows purged."},
	{authcore.MetricTwoFactorEnabled, "authcore_two_factor_enabled_total", "Completed second-factor setups."},
	{authcore.MetricTwoFactorDisabled, "authcore_two_factor_disabled_total", "Second-factor teardowns."},
	{authcore.MetricPasswordChanged, "authcore_password_changed_total", "In-session password changes."},
	{authcore.MetricPasswordResetRequested, "authcore_password_reset_requested_total", "Reset mails enqueued."},
	{authcore.MetricPasswordResetRedeemed, "authcore_password_reset_redeemed_total", "Completed token resets."},
	{authcore.MetricPasswordResetFailure, "authcore_password_reset_failure_total", "Rejected reset tokens."},
	{authcore.MetricSessionRejected, "authcore_session_rejected_total", "Session identities that failed validation."},
	{authcore.MetricEmailEnqueued, "authcore_email_enqueued_total", "Mail jobs handed to the queue."},
	{authcore.MetricEmailEnqueueFailure, "authcore_email_enqueue_failure_total", "Mail jobs the queue refused."},
}
