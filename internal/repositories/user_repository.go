package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tamannathakur/Invora/internal/models"
)

// UserRepository defines user-account lookups for the auth boundary.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, username, password_hash, full_name, role, department_id, created_at, updated_at`

func (r *userRepository) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var role string
	var departmentID sql.NullInt64
	err := row.Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.FullName,
		&role, &departmentID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: scanning user: %v", ErrDatabaseError, err)
	}
	parsedRole, err := models.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("%w: user %d: %v", ErrDatabaseError, user.ID, err)
	}
	user.Role = parsedRole
	if departmentID.Valid {
		user.DepartmentID = &departmentID.Int64
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return r.scanUser(row)
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return r.scanUser(row)
}
