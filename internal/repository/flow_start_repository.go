package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatstack/routing-service/internal/domain"
)

// FlowStartRepository persists flow-start references used by the
// re-engagement path.
type FlowStartRepository interface {
	Create(ctx context.Context, fs *domain.FlowStart) error
	GetActiveByFlowUUID(ctx context.Context, flowUUID string) (*domain.FlowStart, error)
	BindRoom(ctx context.Context, id, roomID string) error
	Deactivate(ctx context.Context, id string) error
}

type flowStartRepository struct {
	pool *pgxpool.Pool
}

// NewFlowStartRepository instantiates the repository.
func NewFlowStartRepository(pool *pgxpool.Pool) FlowStartRepository {
	return &flowStartRepository{pool: pool}
}

func (r *flowStartRepository) Create(ctx context.Context, fs *domain.FlowStart) error {
	const query = `
        INSERT INTO flow_starts (project_id, flow_uuid, room_id, contact_id, is_active)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		fs.ProjectID,
		fs.FlowUUID,
		fs.RoomID,
		fs.ContactID,
		fs.IsActive,
	).Scan(&fs.ID, &fs.CreatedAt)
}

func (r *flowStartRepository) GetActiveByFlowUUID(ctx context.Context, flowUUID string) (*domain.FlowStart, error) {
	const query = `
        SELECT id, project_id, flow_uuid, room_id, contact_id, is_active, created_at
        FROM flow_starts WHERE flow_uuid=$1 AND is_active
        ORDER BY created_at DESC LIMIT 1`
	var fs domain.FlowStart
	if err := r.pool.QueryRow(ctx, query, flowUUID).Scan(
		&fs.ID,
		&fs.ProjectID,
		&fs.FlowUUID,
		&fs.RoomID,
		&fs.ContactID,
		&fs.IsActive,
		&fs.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &fs, nil
}

func (r *flowStartRepository) BindRoom(ctx context.Context, id, roomID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE flow_starts SET room_id=$1 WHERE id=$2`, roomID, id)
	return err
}

func (r *flowStartRepository) Deactivate(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE flow_starts SET is_active=FALSE WHERE id=$1`, id)
	return err
}
