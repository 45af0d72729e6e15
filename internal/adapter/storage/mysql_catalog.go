package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stockroom/internal/core/domain"
)

func (s *MySQLStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.exec.QueryContext(ctx, `
		SELECT id, name, description, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *MySQLStore) CreateCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	category.CreatedAt = time.Now().UTC()

	_, err := s.exec.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		category.ID, category.Name, category.Description, category.CreatedAt,
	)
	if err != nil {
		return domain.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return category, nil
}

func (s *MySQLStore) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return s.getUser(ctx, `SELECT id, username, created_at FROM users WHERE id = ?`, userID)
}

func (s *MySQLStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.getUser(ctx, `SELECT id, username, created_at FROM users WHERE username = ?`, username)
}

func (s *MySQLStore) getUser(ctx context.Context, query, arg string) (domain.User, error) {
	var u domain.User
	err := s.exec.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", arg, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// CreateUser exists for seeding and tests; the service has no user signup.
func (s *MySQLStore) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()

	_, err := s.exec.ExecContext(ctx, `
		INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)`,
		user.ID, user.Username, user.CreatedAt,
	)
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}
