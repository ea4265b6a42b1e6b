package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cinefiles/authcore"
	"github.com/cinefiles/authcore/fieldcrypt"
)

// UserRepository implements authcore.UserRepository on PostgreSQL.
type UserRepository struct {
	pool  *pgxpool.Pool
	codec *fieldcrypt.Codec
}

const userColumns = `id, email, password_hash, active, uses_two_factor,
	otp_secret, last_used_otp, email_verified_at, last_login_at,
	created_at, updated_at`

func (r *UserRepository) scanUser(row interface{ Scan(...any) error }) (*authcore.User, error) {
	var (
		u         authcore.User
		sealed    *string
		lastOTP   *string
		verified  *time.Time
		lastLogin *time.Time
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Active, &u.UsesTwoFactor,
		&sealed, &lastOTP, &verified, &lastLogin,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.EmailVerifiedAt = verified
	u.LastLoginAt = lastLogin
	if lastOTP != nil {
		u.LastUsedOTP = *lastOTP
	}

	if sealed != nil && *sealed != "" {
		secret, err := r.codec.Decrypt(*sealed)
		if err != nil {
			// Undecryptable secret state is a hard failure, never "no 2FA".
			return nil, fmt.Errorf("user %s otp secret: %w", u.ID, err)
		}
		u.OTPSecret = secret
	}

	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*authcore.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := r.scanUser(row)
	if err != nil {
		return nil, mapNoRows(err, authcore.ErrUserNotFound)
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*authcore.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := r.scanUser(row)
	if err != nil {
		return nil, mapNoRows(err, authcore.ErrUserNotFound)
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *authcore.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, active, uses_two_factor, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.PasswordHash, u.Active, u.UsesTwoFactor, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, hash)
}

func (r *UserRepository) Activate(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET active = true, email_verified_at = $2, updated_at = now() WHERE id = $1`,
		id, at)
}

func (r *UserRepository) SetOTPSecret(ctx context.Context, id string, secret []byte) error {
	sealed, err := r.codec.Encrypt(secret)
	if err != nil {
		return err
	}
	return r.exec(ctx,
		`UPDATE users SET otp_secret = $2, updated_at = now() WHERE id = $1`,
		id, sealed)
}

func (r *UserRepository) EnableTwoFactor(ctx context.Context, id, lastUsedOTP string) error {
	return r.exec(ctx,
		`UPDATE users SET uses_two_factor = true, last_used_otp = $2, updated_at = now() WHERE id = $1`,
		id, lastUsedOTP)
}

func (r *UserRepository) DisableTwoFactor(ctx context.Context, id string) error {
	return r.exec(ctx,
		`UPDATE users SET uses_two_factor = false, otp_secret = NULL, last_used_otp = NULL, updated_at = now()
		 WHERE id = $1`,
		id)
}

func (r *UserRepository) SetLastUsedOTP(ctx context.Context, id, code string) error {
	return r.exec(ctx,
		`UPDATE users SET last_used_otp = $2, updated_at = now() WHERE id = $1`,
		id, code)
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`,
		id, at)
}

func (r *UserRepository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}
