package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatstack/routing-service/internal/domain"
)

// SectorAuthorizationRepository persists sector-level refinements of a
// project permission.
type SectorAuthorizationRepository interface {
	Create(ctx context.Context, auth *domain.SectorAuthorization) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.SectorAuthorization, error)
	ListByPermission(ctx context.Context, permissionID string) ([]domain.SectorAuthorization, error)
}

// QueueAuthorizationRepository persists queue-level refinements of a
// project permission.
type QueueAuthorizationRepository interface {
	Create(ctx context.Context, auth *domain.QueueAuthorization) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.QueueAuthorization, error)
	GetByPermissionQueue(ctx context.Context, permissionID, queueID string) (*domain.QueueAuthorization, error)
	ListByQueue(ctx context.Context, queueID, role string) ([]domain.QueueAuthorization, error)
	ListByPermission(ctx context.Context, permissionID string) ([]domain.QueueAuthorization, error)
}

type sectorAuthorizationRepository struct {
	pool *pgxpool.Pool
}

// NewSectorAuthorizationRepository instantiates the repository.
func NewSectorAuthorizationRepository(pool *pgxpool.Pool) SectorAuthorizationRepository {
	return &sectorAuthorizationRepository{pool: pool}
}

func (r *sectorAuthorizationRepository) Create(ctx context.Context, auth *domain.SectorAuthorization) error {
	const query = `
        INSERT INTO sector_authorizations (sector_id, permission_id, role)
        VALUES ($1,$2,$3) RETURNING id`
	return r.pool.QueryRow(ctx, query, auth.SectorID, auth.PermissionID, auth.Role).Scan(&auth.ID)
}

func (r *sectorAuthorizationRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM sector_authorizations WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sectorAuthorizationRepository) GetByID(ctx context.Context, id string) (*domain.SectorAuthorization, error) {
	const query = `SELECT id, sector_id, permission_id, role FROM sector_authorizations WHERE id=$1`
	var auth domain.SectorAuthorization
	if err := r.pool.QueryRow(ctx, query, id).Scan(&auth.ID, &auth.SectorID, &auth.PermissionID, &auth.Role); err != nil {
		return nil, err
	}
	return &auth, nil
}

func (r *sectorAuthorizationRepository) ListByPermission(ctx context.Context, permissionID string) ([]domain.SectorAuthorization, error) {
	const query = `SELECT id, sector_id, permission_id, role FROM sector_authorizations WHERE permission_id=$1`
	rows, err := r.pool.Query(ctx, query, permissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SectorAuthorization
	for rows.Next() {
		var auth domain.SectorAuthorization
		if err := rows.Scan(&auth.ID, &auth.SectorID, &auth.PermissionID, &auth.Role); err != nil {
			return nil, err
		}
		result = append(result, auth)
	}
	return result, rows.Err()
}

type queueAuthorizationRepository struct {
	pool *pgxpool.Pool
}

// NewQueueAuthorizationRepository instantiates the repository.
func NewQueueAuthorizationRepository(pool *pgxpool.Pool) QueueAuthorizationRepository {
	return &queueAuthorizationRepository{pool: pool}
}

func (r *queueAuthorizationRepository) Create(ctx context.Context, auth *domain.QueueAuthorization) error {
	const query = `
        INSERT INTO queue_authorizations (queue_id, permission_id, role)
        VALUES ($1,$2,$3) RETURNING id`
	return r.pool.QueryRow(ctx, query, auth.QueueID, auth.PermissionID, auth.Role).Scan(&auth.ID)
}

func (r *queueAuthorizationRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM queue_authorizations WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *queueAuthorizationRepository) GetByID(ctx context.Context, id string) (*domain.QueueAuthorization, error) {
	const query = `SELECT id, queue_id, permission_id, role FROM queue_authorizations WHERE id=$1`
	var auth domain.QueueAuthorization
	if err := r.pool.QueryRow(ctx, query, id).Scan(&auth.ID, &auth.QueueID, &auth.PermissionID, &auth.Role); err != nil {
		return nil, err
	}
	return &auth, nil
}

func (r *queueAuthorizationRepository) GetByPermissionQueue(ctx context.Context, permissionID, queueID string) (*domain.QueueAuthorization, error) {
	const query = `SELECT id, queue_id, permission_id, role FROM queue_authorizations WHERE permission_id=$1 AND queue_id=$2`
	var auth domain.QueueAuthorization
	if err := r.pool.QueryRow(ctx, query, permissionID, queueID).Scan(&auth.ID, &auth.QueueID, &auth.PermissionID, &auth.Role); err != nil {
		return nil, err
	}
	return &auth, nil
}

func (r *queueAuthorizationRepository) ListByQueue(ctx context.Context, queueID, role string) ([]domain.QueueAuthorization, error) {
	const query = `SELECT id, queue_id, permission_id, role FROM queue_authorizations WHERE queue_id=$1 AND role=$2`
	rows, err := r.pool.Query(ctx, query, queueID, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.QueueAuthorization
	for rows.Next() {
		var auth domain.QueueAuthorization
		if err := rows.Scan(&auth.ID, &auth.QueueID, &auth.PermissionID, &auth.Role); err != nil {
			return nil, err
		}
		result = append(result, auth)
	}
	return result, rows.Err()
}

func (r *queueAuthorizationRepository) ListByPermission(ctx context.Context, permissionID string) ([]domain.QueueAuthorization, error) {
	const query = `SELECT id, queue_id, permission_id, role FROM queue_authorizations WHERE permission_id=$1`
	rows, err := r.pool.Query(ctx, query, permissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.QueueAuthorization
	for rows.Next() {
		var auth domain.QueueAuthorization
		if err := rows.Scan(&auth.ID, &auth.QueueID, &auth.PermissionID, &auth.Role); err != nil {
			return nil, err
		}
		result = append(result, auth)
	}
	return result, rows.Err()
}
