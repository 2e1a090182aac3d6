package db

import (
	"context"

	"github.com/david/pimm/internal/models"
)

const userCols = "id, name, email, password_hash, operator, active, created_at"

func scanUser(scan func(dest ...any) error) (models.User, error) {
	var u models.User
	err := scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Operator, &u.Active, &u.CreatedAt)
	return u, err
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, "SELECT "+userCols+" FROM users WHERE id = $1", id).Scan)
	if err != nil {
		return nil, wrapErr("get user", err)
	}
	return &u, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+userCols+" FROM users WHERE id = ANY($1) ORDER BY id", ids)
	if err != nil {
		return nil, wrapErr("get users", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, wrapErr("scan user", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) FindUserByName(ctx context.Context, name string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, "SELECT "+userCols+" FROM users WHERE name = $1", name).Scan)
	if err != nil {
		return nil, wrapErr("find user by name", err)
	}
	return &u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, "SELECT "+userCols+" FROM users WHERE LOWER(email) = LOWER($1) ORDER BY id LIMIT 1", email).Scan)
	if err != nil {
		return nil, wrapErr("find user by email", err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, operator, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, u.Name, u.Email, u.PasswordHash, u.Operator, u.Active).Scan(&u.ID, &u.CreatedAt)
	return wrapErr("create user", err)
}
