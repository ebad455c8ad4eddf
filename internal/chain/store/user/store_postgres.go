package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"authchain/internal/chain/models"
	id "authchain/pkg/domain"
	"authchain/pkg/platform/sentinel"
	txcontext "authchain/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresUserStore persists users in chain_users.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) Save(ctx context.Context, u *models.User) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO chain_users (id, email, username, password_hash, preferred_language)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			preferred_language = EXCLUDED.preferred_language
	`, u.ID.String(), strings.ToLower(u.Email), u.Username, u.PasswordHash, u.PreferredLanguage)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("user attribute already taken: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.findOne(ctx, `WHERE id = $1`, userID.String())
}

func (s *PostgresUserStore) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return s.findOne(ctx, `WHERE email = lower($1) OR lower(username) = lower($1) LIMIT 1`, identifier)
}

func (s *PostgresUserStore) UpdatePasswordHash(ctx context.Context, userID id.UserID, hash string) error {
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		`UPDATE chain_users SET password_hash = $2 WHERE id = $1`, userID.String(), hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresUserStore) findOne(ctx context.Context, where string, arg any) (*models.User, error) {
	var (
		u        models.User
		rawID    string
		email    sql.NullString
		username sql.NullString
	)
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, preferred_language
		FROM chain_users `+where, arg).
		Scan(&rawID, &email, &username, &u.PasswordHash, &u.PreferredLanguage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.ID, err = id.ParseUserID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored user id: %w", err)
	}
	u.Email = email.String
	u.Username = username.String
	return &u, nil
}
