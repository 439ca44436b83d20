package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/facility-desk/internal/domain"
)

// OfficeRepository reads office reference data.
type OfficeRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Office, error)
	List(ctx context.Context) ([]domain.Office, error)
}

type officeRepository struct {
	pool *pgxpool.Pool
}

// NewOfficeRepository builds the repository.
func NewOfficeRepository(pool *pgxpool.Pool) OfficeRepository {
	return &officeRepository{pool: pool}
}

func (r *officeRepository) GetByID(ctx context.Context, id int64) (*domain.Office, error) {
	const query = `SELECT id, name, address, city, region FROM offices WHERE id=$1`
	var office domain.Office
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&office.ID,
		&office.Name,
		&office.Address,
		&office.City,
		&office.Region,
	); err != nil {
		return nil, notFound(err)
	}
	return &office, nil
}

func (r *officeRepository) List(ctx context.Context) ([]domain.Office, error) {
	const query = `SELECT id, name, address, city, region FROM offices ORDER BY name, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Office
	for rows.Next() {
		var office domain.Office
		if err := rows.Scan(&office.ID, &office.Name, &office.Address, &office.City, &office.Region); err != nil {
			return nil, err
		}
		result = append(result, office)
	}
	return result, rows.Err()
}
