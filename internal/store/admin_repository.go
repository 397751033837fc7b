package store

import (
	"context"
	"fmt"

	"github.com/avsbank/banking-service/internal/domain"
	"github.com/google/uuid"
)

func (q *queries) CreateAdmin(ctx context.Context, admin *domain.Admin) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO admins (username, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, admin.Username, admin.Name, admin.PasswordHash).Scan(&admin.ID, &admin.CreatedAt)
	if err != nil {
		return mapError(fmt.Errorf("insert admin: %w", err))
	}
	return nil
}

func (q *queries) FindAdminByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	return q.getAdmin(ctx, `username = $1`, username)
}

func (q *queries) GetAdmin(ctx context.Context, id uuid.UUID) (*domain.Admin, error) {
	return q.getAdmin(ctx, `id = $1`, id)
}

func (q *queries) getAdmin(ctx context.Context, where string, arg any) (*domain.Admin, error) {
	var a domain.Admin
	err := q.db.QueryRow(ctx,
		`SELECT id, username, name, password_hash, created_at FROM admins WHERE `+where, arg,
	).Scan(&a.ID, &a.Username, &a.Name, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("select admin: %w", err)
	}
	return &a, nil
}
