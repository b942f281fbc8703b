package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campus-iqa/iqa-notify-api/internal/models"
)

// UserRepository provides read-only access to users and their notification
// preferences.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, full_name, role, active, email_enabled, push_enabled, deadline_reminder_days, created_at, updated_at`

// GetByID returns a single user.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListByRole returns all active users holding the given role.
func (r *UserRepository) ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE role = $1 AND active = true ORDER BY full_name`, userColumns)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, role); err != nil {
		return nil, fmt.Errorf("list users by role %s: %w", role, err)
	}
	return users, nil
}

// ListByRoles returns all active users holding any of the given roles.
func (r *UserRepository) ListByRoles(ctx context.Context, roles []models.UserRole) ([]models.User, error) {
	values := make([]string, len(roles))
	for i, role := range roles {
		values[i] = string(role)
	}
	query := fmt.Sprintf(`SELECT %s FROM users WHERE role = ANY($1) AND active = true ORDER BY full_name`, userColumns)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, pq.Array(values)); err != nil {
		return nil, fmt.Errorf("list users by roles: %w", err)
	}
	return users, nil
}
