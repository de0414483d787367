package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatstack/routing-service/internal/domain"
)

// MetricsRepository encapsulates per-room metric aggregates.
type MetricsRepository interface {
	Create(ctx context.Context, m *domain.RoomMetrics) error
	GetByRoom(ctx context.Context, roomID string) (*domain.RoomMetrics, error)
	IncrementTransferCount(ctx context.Context, roomID string) error
	IncrementQueuedCount(ctx context.Context, roomID string) error
	SetWaitingTime(ctx context.Context, roomID string, seconds int64) error
	// Finalize writes closure metrics exactly once: the guard keeps a
	// replayed finalization task from overwriting the first result.
	Finalize(ctx context.Context, m *domain.RoomMetrics) (bool, error)
	// ListPendingFinalization returns metric rows of closed rooms that were
	// never finalized, so the worker can recover after a restart.
	ListPendingFinalization(ctx context.Context, limit int) ([]string, error)
}

type metricsRepository struct {
	pool *pgxpool.Pool
}

// NewMetricsRepository instantiates the repository.
func NewMetricsRepository(pool *pgxpool.Pool) MetricsRepository {
	return &metricsRepository{pool: pool}
}

func (r *metricsRepository) Create(ctx context.Context, m *domain.RoomMetrics) error {
	const query = `
        INSERT INTO room_metrics (room_id, waiting_time, queued_count, first_response_time,
            message_response_time, interaction_time, transfer_count)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		m.RoomID,
		m.WaitingTime,
		m.QueuedCount,
		m.FirstResponseTime,
		m.MessageResponseTime,
		m.InteractionTime,
		m.TransferCount,
	).Scan(&m.ID)
}

func (r *metricsRepository) GetByRoom(ctx context.Context, roomID string) (*domain.RoomMetrics, error) {
	const query = `
        SELECT id, room_id, waiting_time, queued_count, first_response_time,
               message_response_time, interaction_time, transfer_count
        FROM room_metrics WHERE room_id=$1`
	var m domain.RoomMetrics
	if err := r.pool.QueryRow(ctx, query, roomID).Scan(
		&m.ID,
		&m.RoomID,
		&m.WaitingTime,
		&m.QueuedCount,
		&m.FirstResponseTime,
		&m.MessageResponseTime,
		&m.InteractionTime,
		&m.TransferCount,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *metricsRepository) IncrementTransferCount(ctx context.Context, roomID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE room_metrics SET transfer_count=transfer_count+1 WHERE room_id=$1`, roomID)
	return err
}

func (r *metricsRepository) IncrementQueuedCount(ctx context.Context, roomID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE room_metrics SET queued_count=queued_count+1 WHERE room_id=$1`, roomID)
	return err
}

func (r *metricsRepository) SetWaitingTime(ctx context.Context, roomID string, seconds int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE room_metrics SET waiting_time=$1 WHERE room_id=$2 AND waiting_time=0`, seconds, roomID)
	return err
}

func (r *metricsRepository) Finalize(ctx context.Context, m *domain.RoomMetrics) (bool, error) {
	const query = `
        UPDATE room_metrics SET first_response_time=$1, message_response_time=$2, interaction_time=$3
        WHERE room_id=$4 AND interaction_time=0`
	cmd, err := r.pool.Exec(ctx, query,
		m.FirstResponseTime,
		m.MessageResponseTime,
		m.InteractionTime,
		m.RoomID,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *metricsRepository) ListPendingFinalization(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT m.room_id FROM room_metrics m
        JOIN rooms r ON r.id = m.room_id
        WHERE NOT r.is_active AND m.interaction_time=0
        LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
