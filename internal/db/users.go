package db

import (
	"context"
	"strings"

	"petadopt/internal/model"
)

const userColumns = "id, name, email, role, password_hash, created_at"

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.PasswordHash, &u.CreatedAt)
	u.Role = model.Role(role)
	return u, translate(err)
}

func (q *Queries) CreateUser(ctx context.Context, u model.User) error {
	_, err := q.Pool.Exec(ctx,
		"INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
		u.ID, u.Name, strings.ToLower(u.Email), string(u.Role), u.PasswordHash, u.CreatedAt,
	)
	return translate(err)
}

func (q *Queries) GetUserByID(ctx context.Context, id string) (model.User, error) {
	return scanUser(q.Pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(q.Pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", strings.ToLower(email)))
}
