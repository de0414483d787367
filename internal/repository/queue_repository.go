package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatstack/routing-service/internal/domain"
)

const queueColumns = `id, sector_id, name, rooms_limit, limit_active, is_deleted, created_at`

// QueueRepository encapsulates queue persistence.
type QueueRepository interface {
	Create(ctx context.Context, queue *domain.Queue) error
	Update(ctx context.Context, queue *domain.Queue) error
	// SoftDelete marks the queue deleted and renames it with the deleted
	// tag. Queues referenced by active rooms cannot be hard-deleted; this
	// is the only removal path.
	SoftDelete(ctx context.Context, id, actor string) error
	GetByID(ctx context.Context, id string) (*domain.Queue, error)
	ListBySector(ctx context.Context, sectorID string) ([]domain.Queue, error)
	CountActiveRooms(ctx context.Context, queueID string) (int, error)
}

type queueRepository struct {
	pool *pgxpool.Pool
}

// NewQueueRepository instantiates the repository.
func NewQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &queueRepository{pool: pool}
}

func (r *queueRepository) Create(ctx context.Context, queue *domain.Queue) error {
	const query = `
        INSERT INTO queues (id, sector_id, name, rooms_limit, limit_active)
        VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()),$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		queue.ID,
		queue.SectorID,
		queue.Name,
		queue.RoomsLimit,
		queue.LimitActive,
	).Scan(&queue.ID, &queue.CreatedAt)
}

func (r *queueRepository) Update(ctx context.Context, queue *domain.Queue) error {
	const query = `
        UPDATE queues SET name=$1, rooms_limit=$2, limit_active=$3
        WHERE id=$4 AND NOT is_deleted`
	cmd, err := r.pool.Exec(ctx, query, queue.Name, queue.RoomsLimit, queue.LimitActive, queue.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *queueRepository) SoftDelete(ctx context.Context, id, actor string) error {
	if actor == "" {
		actor = "system"
	}
	const query = `
        UPDATE queues SET is_deleted=TRUE, name=name || $2
        WHERE id=$1 AND NOT is_deleted`
	cmd, err := r.pool.Exec(ctx, query, id, domain.DeletedNameTag+actor)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *queueRepository) GetByID(ctx context.Context, id string) (*domain.Queue, error) {
	query := `SELECT ` + queueColumns + ` FROM queues WHERE id=$1`
	var queue domain.Queue
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&queue.ID,
		&queue.SectorID,
		&queue.Name,
		&queue.RoomsLimit,
		&queue.LimitActive,
		&queue.IsDeleted,
		&queue.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &queue, nil
}

func (r *queueRepository) ListBySector(ctx context.Context, sectorID string) ([]domain.Queue, error) {
	query := `SELECT ` + queueColumns + ` FROM queues WHERE sector_id=$1 AND NOT is_deleted ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, sectorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Queue
	for rows.Next() {
		var queue domain.Queue
		if err := rows.Scan(
			&queue.ID,
			&queue.SectorID,
			&queue.Name,
			&queue.RoomsLimit,
			&queue.LimitActive,
			&queue.IsDeleted,
			&queue.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, queue)
	}
	return result, rows.Err()
}

func (r *queueRepository) CountActiveRooms(ctx context.Context, queueID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM rooms WHERE queue_id=$1 AND is_active`, queueID,
	).Scan(&count)
	return count, err
}
