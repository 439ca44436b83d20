package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/facility-desk/internal/domain"
)

// UserRepository defines persistence access for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListByRole(ctx context.Context, role *domain.Role) ([]domain.User, error)
	UpdateAvatar(ctx context.Context, id int64, avatarKey string) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `
        u.id, COALESCE(u.email, ''), COALESCE(u.password_hash, ''), u.first_name, u.last_name, u.middle_name,
        u.position, u.role, COALESCE(u.desk_number, ''), u.birth_date, COALESCE(u.avatar_key, ''), u.office_id,
        u.created_at, u.updated_at, o.name, o.address, o.city, o.region`

const userFrom = `FROM users u LEFT JOIN offices o ON o.id = u.office_id`

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE u.id=$1`, userColumns, userFrom)
	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE LOWER(u.email)=LOWER($1)`, userColumns, userFrom)
	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

// ListByRole returns users ordered by name. Roles are stored in canonical
// form, so the comparison is exact.
func (r *userRepository) ListByRole(ctx context.Context, role *domain.Role) ([]domain.User, error) {
	query := fmt.Sprintf(`SELECT %s %s`, userColumns, userFrom)
	args := []any{}
	if role != nil {
		query += ` WHERE u.role=$1`
		args = append(args, *role)
	}
	query += ` ORDER BY u.last_name, u.first_name, u.id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func (r *userRepository) UpdateAvatar(ctx context.Context, id int64, avatarKey string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET avatar_key=$1, updated_at=NOW() WHERE id=$2`, avatarKey, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	var rawRole string
	var officeName, officeAddress, officeCity, officeRegion *string
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.MiddleName,
		&user.Position,
		&rawRole,
		&user.DeskNumber,
		&user.BirthDate,
		&user.AvatarKey,
		&user.OfficeID,
		&user.CreatedAt,
		&user.UpdatedAt,
		&officeName,
		&officeAddress,
		&officeCity,
		&officeRegion,
	); err != nil {
		return nil, err
	}
	role, err := storedRole(rawRole)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", user.ID, err)
	}
	user.Role = role
	if user.OfficeID != nil {
		user.Office = &domain.Office{
			ID:      *user.OfficeID,
			Name:    deref(officeName),
			Address: deref(officeAddress),
			City:    deref(officeCity),
			Region:  deref(officeRegion),
		}
	}
	return &user, nil
}

// storedRole accepts only canonical role values. The users.role CHECK
// constraint guarantees them, and ListByRole compares them verbatim.
func storedRole(raw string) (domain.Role, error) {
	role := domain.Role(raw)
	if !role.Valid() {
		return "", fmt.Errorf("non-canonical role %q", raw)
	}
	return role, nil
}
