package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres implements Store on top of database/sql with the pgx driver.
// Lockout mutations run inside a transaction holding a row lock, so the
// increment-and-check is a single serialized step per account.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const accountColumns = `id, name, email, password_hash, role, failed_logins, locked_until, last_login_at, created_at, updated_at`

func (s *Postgres) FindByEmail(ctx context.Context, email string) (Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, normalizeEmail(email))

	return scanAccount(row)
}

func (s *Postgres) FindByID(ctx context.Context, id string) (Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)

	return scanAccount(row)
}

func (s *Postgres) Create(ctx context.Context, input NewAccount) (Account, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Account{}, fmt.Errorf("generate account id: %w", err)
	}

	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (id, name, email, password_hash, role, failed_logins, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
		RETURNING `+accountColumns+`
	`, id.String(), input.Name, normalizeEmail(input.Email), input.PasswordHash, string(input.Role), now)

	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateEmail
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}

	return created, nil
}

func (s *Postgres) RegisterFailure(ctx context.Context, id string, policy LockoutPolicy, now time.Time) (*time.Time, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin failed attempt tx: %w", err)
	}
	defer tx.Rollback()

	var failed int
	var lockedUntil sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT failed_logins, locked_until
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&failed, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock account row: %w", err)
	}

	if lockedUntil.Valid && now.Before(lockedUntil.Time) {
		until := lockedUntil.Time.UTC()
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit failed attempt tx: %w", err)
		}
		return &until, nil
	}

	failed++
	var nextLock *time.Time
	var nextLockValue any
	if failed >= policy.MaxAttempts {
		until := now.UTC().Add(policy.LockDuration)
		nextLock = &until
		nextLockValue = until
		failed = 0
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET failed_logins = $2, locked_until = $3, updated_at = $4
		WHERE id = $1
	`, id, failed, nextLockValue, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("record failed attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit failed attempt tx: %w", err)
	}

	return nextLock, nil
}

func (s *Postgres) ResetOnSuccess(ctx context.Context, id string, now time.Time) (Account, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET failed_logins = 0, locked_until = NULL, last_login_at = $2, updated_at = $2
		WHERE id = $1
		RETURNING `+accountColumns+`
	`, id, now.UTC())

	updated, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("reset lockout state: %w", err)
	}

	return updated, nil
}

func (s *Postgres) ClearExpiredLocks(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := s.db.ExecContext(ctx, `
		WITH expired AS (
			SELECT id
			FROM accounts
			WHERE locked_until IS NOT NULL AND locked_until < $1
			ORDER BY locked_until ASC
			LIMIT $2
		)
		UPDATE accounts a
		SET locked_until = NULL, failed_logins = 0, updated_at = $1
		FROM expired
		WHERE a.id = expired.id
	`, now.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear expired locks: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired locks rows affected: %w", err)
	}

	return affected, nil
}

func scanAccount(row *sql.Row) (Account, error) {
	var a Account
	var role string
	var lockedUntil, lastLogin sql.NullTime
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &role,
		&a.FailedLogins, &lockedUntil, &lastLogin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}

	parsed, err := ParseRole(role)
	if err != nil {
		return Account{}, fmt.Errorf("account %s: %w", a.ID, err)
	}
	a.Role = parsed

	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		a.LockedUntil = &value
	}
	if lastLogin.Valid {
		value := lastLogin.Time.UTC()
		a.LastLoginAt = &value
	}

	return a, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
