package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cinefiles/authcore"
)

// BackupCodeRepository implements authcore.BackupCodeRepository on
// PostgreSQL. Hashes are opaque strings here; hashing and matching are the
// engine's business.
type BackupCodeRepository struct {
	pool *pgxpool.Pool
}

// ReplaceForUser invalidates the user's current batch and inserts the new
// one in a single transaction, so a crash between the two steps cannot
// leave a mixed batch.
func (r *BackupCodeRepository) ReplaceForUser(ctx context.Context, userID string, codes []*authcore.BackupCode) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM backup_codes WHERE user_id = $1 AND NOT used`, userID); err != nil {
			return err
		}

		for _, code := range codes {
			if _, err := tx.Exec(ctx,
				`INSERT INTO backup_codes (id, user_id, code_hash, used, expires_at, created_at)
				 VALUES ($1, $2, $3, false, $4, $5)`,
				code.ID, code.UserID, code.Hash, code.ExpiresAt, code.CreatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *BackupCodeRepository) UnusedForUser(ctx context.Context, userID string) ([]*authcore.BackupCode, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, code_hash, used, used_at, expires_at, remove_after, created_at
		 FROM backup_codes
		 WHERE user_id = $1 AND NOT used AND expires_at > now()
		 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*authcore.BackupCode
	for rows.Next() {
		var code authcore.BackupCode
		if err := rows.Scan(
			&code.ID, &code.UserID, &code.Hash, &code.Used,
			&code.UsedAt, &code.ExpiresAt, &code.RemoveAfter, &code.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &code)
	}
	return out, rows.Err()
}

func (r *BackupCodeRepository) CountUnused(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM backup_codes
		 WHERE user_id = $1 AND NOT used AND expires_at > now()`, userID).Scan(&count)
	return count, err
}

// Consume marks the code used iff it is still unused. The WHERE clause is
// the atomicity guarantee: of two racing consumers exactly one affects a
// row.
func (r *BackupCodeRepository) Consume(ctx context.Context, codeID string, usedAt, removeAfter time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE backup_codes SET used = true, used_at = $2, remove_after = $3
		 WHERE id = $1 AND NOT used`,
		codeID, usedAt, removeAfter)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *BackupCodeRepository) InvalidateForUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM backup_codes WHERE user_id = $1`, userID)
	return err
}

// DeleteExpired removes codes past their issuance horizon and used codes
// past their retention window. Unused codes inside their horizon are never
// touched. Safe to run repeatedly.
func (r *BackupCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM backup_codes
		 WHERE expires_at <= $1 OR (used AND remove_after <= $1)`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
