package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

const uniqueViolation = "23505"

const accountColumns = `id, first_name, last_name, email, password_hash, password_salt,
		email_verified, two_factor_enabled, COALESCE(two_factor_secret, ''),
		COALESCE(refresh_token_hash, ''), refresh_token_expiry, created_at, last_login_at, version`

// PostgresAccountRepo implements domain.AccountRepository using PostgreSQL.
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo creates a new repository instance.
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByEmail retrieves an account by its email address, case-insensitively.
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, domain.NormalizeEmail(email)))
}

// FindByID retrieves an account by its UUID.
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresAccountRepo) scanOne(row *sql.Row) (*domain.Account, error) {
	account := &domain.Account{}
	var (
		passwordHash string
		refreshExp   sql.NullTime
		lastLogin    sql.NullTime
	)

	err := row.Scan(
		&account.ID,
		&account.FirstName,
		&account.LastName,
		&account.Email,
		&passwordHash,
		&account.PasswordSalt,
		&account.EmailVerified,
		&account.TwoFactorEnabled,
		&account.TwoFactorSecret,
		&account.RefreshTokenHash,
		&refreshExp,
		&account.CreatedAt,
		&lastLogin,
		&account.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "database error")
	}

	// Rows imported from the previous store hold a bare base64 PBKDF2 digest.
	if !strings.HasPrefix(passwordHash, "$") {
		account.PasswordHash = security.EncodeLegacyHash(passwordHash)
	} else {
		account.PasswordHash = []byte(passwordHash)
	}
	if refreshExp.Valid {
		t := refreshExp.Time
		account.RefreshTokenExpiry = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		account.LastLoginAt = &t
	}

	return account, nil
}

// Insert creates a new account row. The email index is case-insensitive.
func (r *PostgresAccountRepo) Insert(ctx context.Context, account *domain.Account) (string, error) {
	query := `
		INSERT INTO accounts (id, first_name, last_name, email, password_hash, password_salt,
			email_verified, two_factor_enabled, two_factor_secret, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		RETURNING id
	`

	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	var id string
	err := r.db.QueryRowContext(ctx, query,
		account.ID,
		account.FirstName,
		account.LastName,
		account.Email,
		string(account.PasswordHash),
		account.PasswordSalt,
		account.EmailVerified,
		account.TwoFactorEnabled,
		nullString(account.TwoFactorSecret),
		account.CreatedAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return "", domain.ErrDuplicateAccount
		}
		return "", errors.Wrap(err, "failed to create account")
	}

	account.ID = id
	account.Version = 1
	return id, nil
}

// Update writes every mutable column in a single statement, conditional on
// the version read by the caller.
func (r *PostgresAccountRepo) Update(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET first_name = $1, last_name = $2, email = $3, password_hash = $4, password_salt = $5,
			email_verified = $6, two_factor_enabled = $7, two_factor_secret = $8,
			refresh_token_hash = $9, refresh_token_expiry = $10, last_login_at = $11,
			version = version + 1
		WHERE id = $12 AND version = $13
	`

	result, err := r.db.ExecContext(ctx, query,
		account.FirstName,
		account.LastName,
		account.Email,
		string(account.PasswordHash),
		account.PasswordSalt,
		account.EmailVerified,
		account.TwoFactorEnabled,
		nullString(account.TwoFactorSecret),
		nullString(account.RefreshTokenHash),
		nullTime(account.RefreshTokenExpiry),
		nullTime(account.LastLoginAt),
		account.ID,
		account.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateAccount
		}
		return errors.Wrap(err, "failed to update account")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, account.ID).Scan(&exists); err != nil {
			return errors.Wrap(err, "database error")
		}
		if !exists {
			return domain.ErrAccountNotFound
		}
		return domain.ErrConcurrencyConflict
	}

	account.Version++
	return nil
}

// LogSecurityEvent inserts an immutable record into the audit_logs table.
func (r *PostgresAccountRepo) LogSecurityEvent(ctx context.Context, accountID, eventType string, metadata map[string]interface{}) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil || metadata == nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO audit_logs (account_id, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4)
	`

	// Handle case where accountID is empty (e.g. anonymous failed login)
	// The schema allows account_id to be NULL.
	_, err = r.db.ExecContext(ctx, query, nullString(accountID), eventType, metaJSON, time.Now().UTC())
	return errors.Wrap(err, "failed to write audit log")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
