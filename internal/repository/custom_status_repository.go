package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatstack/routing-service/internal/domain"
)

// CustomStatusRepository reads user-defined presence modifiers.
type CustomStatusRepository interface {
	ListActiveByPermission(ctx context.Context, permissionID string) ([]domain.CustomStatus, error)
}

type customStatusRepository struct {
	pool *pgxpool.Pool
}

// NewCustomStatusRepository instantiates the repository.
func NewCustomStatusRepository(pool *pgxpool.Pool) CustomStatusRepository {
	return &customStatusRepository{pool: pool}
}

func (r *customStatusRepository) ListActiveByPermission(ctx context.Context, permissionID string) ([]domain.CustomStatus, error) {
	const query = `
        SELECT id, permission_id, name, is_active, created_at
        FROM custom_statuses WHERE permission_id=$1 AND is_active`
	rows, err := r.pool.Query(ctx, query, permissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CustomStatus
	for rows.Next() {
		var cs domain.CustomStatus
		if err := rows.Scan(&cs.ID, &cs.PermissionID, &cs.Name, &cs.IsActive, &cs.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, cs)
	}
	return result, rows.Err()
}
