package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/membership"
	"campuslibrary/internal/store/pgerr"
)

const tableUsers = "users"

var userColumns = []any{"id", "email", "role", "created_at"}

func (s *Store) CreateUser(ctx context.Context, user membership.User, credential membership.Credential) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, role, created_at)
			VALUES ($1, $2, $3, $4)
		`, user.ID, user.Email, string(user.Role), user.CreatedAt)
		if err != nil {
			if _, dup := pgerr.UniqueViolation(err); dup {
				return apperr.ErrAlreadyExists
			}
			return fmt.Errorf("insert user: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO credentials (user_id, password_hash, salt)
			VALUES ($1, $2, $3)
		`, user.ID, credential.PasswordHash, credential.Salt)
		if err != nil {
			return fmt.Errorf("insert credential: %w", err)
		}
		return nil
	})
}

func (s *Store) getUserWhere(ctx context.Context, where goqu.Expression) (*membership.User, error) {
	query, args, err := s.builder.From(tableUsers).
		Select(userColumns...).
		Where(where).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build user query: %w", err)
	}

	var user membership.User
	if err := s.db.GetContext(ctx, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*membership.User, error) {
	return s.getUserWhere(ctx, goqu.C("id").Eq(id.String()))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*membership.User, error) {
	return s.getUserWhere(ctx, goqu.C("email").Eq(email))
}

func (s *Store) GetCredential(ctx context.Context, userID uuid.UUID) (*membership.Credential, error) {
	var credential membership.Credential
	err := s.db.GetContext(ctx, &credential, `
		SELECT user_id, password_hash, salt
		FROM credentials
		WHERE user_id = $1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &credential, nil
}

func (s *Store) UsersByIDs(ctx context.Context, ids []uuid.UUID) ([]membership.User, error) {
	users := []membership.User{}
	if len(ids) == 0 {
		return users, nil
	}

	query, args, err := s.builder.From(tableUsers).
		Select(userColumns...).
		Where(goqu.C("id").In(idStrings(ids))).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build users query: %w", err)
	}
	if err := s.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("select users by id: %w", err)
	}
	return users, nil
}

func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
