// Package postgres implements the authcore repositories on PostgreSQL via
// pgx. The TOTP secret column is sealed with a fieldcrypt codec at this
// boundary: rows on disk hold ciphertext, models in memory hold plaintext.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cinefiles/authcore/fieldcrypt"
)

const uniqueViolation = "23505"

// Store bundles the repositories sharing one pool and codec.
type Store struct {
	pool        *pgxpool.Pool
	Users       *UserRepository
	BackupCodes *BackupCodeRepository
}

// New wires both repositories. codec must be non-nil; every OTP secret
// passes through it.
func New(pool *pgxpool.Pool, codec *fieldcrypt.Codec) (*Store, error) {
	if pool == nil {
		return nil, errors.New("postgres: nil pool")
	}
	if codec == nil {
		return nil, errors.New("postgres: nil field codec")
	}
	return &Store{
		pool:        pool,
		Users:       &UserRepository{pool: pool, codec: codec},
		BackupCodes: &BackupCodeRepository{pool: pool},
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func mapNoRows(err error, to error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return to
	}
	return err
}

// Ping verifies connectivity; handy for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
