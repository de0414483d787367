package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatstack/routing-service/internal/domain"
)

const roomColumns = `id, queue_id, user_id, contact_id, ticket_uuid, callback_url, urn, is_active,
	created_at, added_to_queue_at, first_user_assigned_at, first_agent_message_at, ended_at, ended_by,
	tags, custom_fields, transfer_history, last_message`

// RoomRepository encapsulates room persistence. Rooms are mutated only
// through the conversation state machine; consumers never write rows
// directly.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	Update(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	GetByTicket(ctx context.Context, ticketUUID string) (*domain.Room, error)
	GetActiveByContactQueue(ctx context.Context, contactID, queueID string) (*domain.Room, error)
	ListActiveUnassigned(ctx context.Context, queueID string) ([]domain.Room, error)
	ListActiveByUserProject(ctx context.Context, userID, projectID string) ([]domain.Room, error)
	ListActiveByUserSector(ctx context.Context, userID, sectorID string) ([]domain.Room, error)
	ListActiveByUserQueue(ctx context.Context, userID, queueID string) ([]domain.Room, error)
	CountActiveBySectorUser(ctx context.Context, sectorID, userID string) (int, error)
	CountClosedSinceByUser(ctx context.Context, projectID, userID string, since time.Time) (int, error)
	// Assign atomically claims an active unassigned room for userID using a
	// row lock with SKIP LOCKED so overlapping dispatcher runs cannot both
	// win. Returns false when the room is gone, already assigned, or locked
	// by a concurrent run.
	Assign(ctx context.Context, roomID, userID string, at time.Time) (bool, error)
}

type roomRepository struct {
	pool *pgxpool.Pool
}

// NewRoomRepository instantiates the repository.
func NewRoomRepository(pool *pgxpool.Pool) RoomRepository {
	return &roomRepository{pool: pool}
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	tags, fields, history, last, err := marshalRoomJSON(room)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO rooms (id, queue_id, user_id, contact_id, ticket_uuid, callback_url, urn, is_active,
            added_to_queue_at, first_user_assigned_at, tags, custom_fields, transfer_history, last_message)
        VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()),$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		room.ID,
		room.QueueID,
		room.UserID,
		room.ContactID,
		room.TicketUUID,
		room.CallbackURL,
		room.URN,
		room.IsActive,
		room.AddedToQueueAt,
		room.FirstUserAssignedAt,
		tags,
		fields,
		history,
		last,
	).Scan(&room.ID, &room.CreatedAt)
}

func (r *roomRepository) Update(ctx context.Context, room *domain.Room) error {
	tags, fields, history, last, err := marshalRoomJSON(room)
	if err != nil {
		return err
	}
	const query = `
        UPDATE rooms SET queue_id=$1, user_id=$2, ticket_uuid=$3, callback_url=$4, urn=$5, is_active=$6,
            added_to_queue_at=$7, first_user_assigned_at=$8, first_agent_message_at=$9, ended_at=$10,
            ended_by=$11, tags=$12, custom_fields=$13, transfer_history=$14, last_message=$15
        WHERE id=$16`
	cmd, err := r.pool.Exec(ctx, query,
		room.QueueID,
		room.UserID,
		room.TicketUUID,
		room.CallbackURL,
		room.URN,
		room.IsActive,
		room.AddedToQueueAt,
		room.FirstUserAssignedAt,
		room.FirstAgentMessageAt,
		room.EndedAt,
		room.EndedBy,
		tags,
		fields,
		history,
		last,
		room.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *roomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms WHERE id=$1`, roomColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *roomRepository) GetByTicket(ctx context.Context, ticketUUID string) (*domain.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms WHERE ticket_uuid=$1 AND is_active`, roomColumns)
	return r.fetchSingle(ctx, query, ticketUUID)
}

func (r *roomRepository) GetActiveByContactQueue(ctx context.Context, contactID, queueID string) (*domain.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms WHERE contact_id=$1 AND queue_id=$2 AND is_active`, roomColumns)
	var room domain.Room
	if err := scanRoom(r.pool.QueryRow(ctx, query, contactID, queueID), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) ListActiveUnassigned(ctx context.Context, queueID string) ([]domain.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms
        WHERE queue_id=$1 AND is_active AND user_id IS NULL
        ORDER BY added_to_queue_at ASC`, roomColumns)
	return r.fetchMany(ctx, query, queueID)
}

func (r *roomRepository) ListActiveByUserProject(ctx context.Context, userID, projectID string) ([]domain.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms
        WHERE user_id=$1 AND is_active AND queue_id IN (
            SELECT q.id FROM queues q JOIN sectors s ON s.id=q.sector_id WHERE s.project_id=$2)`, roomColumns)
	return r.fetchMany(ctx, query, userID, projectID)
}

func (r *roomRepository) ListActiveByUserSector(ctx context.Context, userID, sectorID string) ([]domain.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms
        WHERE user_id=$1 AND is_active AND queue_id IN (
            SELECT id FROM queues WHERE sector_id=$2)`, roomColumns)
	return r.fetchMany(ctx, query, userID, sectorID)
}

func (r *roomRepository) ListActiveByUserQueue(ctx context.Context, userID, queueID string) ([]domain.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms WHERE user_id=$1 AND is_active AND queue_id=$2`, roomColumns)
	return r.fetchMany(ctx, query, userID, queueID)
}

func (r *roomRepository) CountActiveBySectorUser(ctx context.Context, sectorID, userID string) (int, error) {
	const query = `
        SELECT COUNT(*) FROM rooms
        WHERE user_id=$1 AND is_active AND queue_id IN (SELECT id FROM queues WHERE sector_id=$2)`
	var count int
	if err := r.pool.QueryRow(ctx, query, userID, sectorID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *roomRepository) CountClosedSinceByUser(ctx context.Context, projectID, userID string, since time.Time) (int, error) {
	const query = `
        SELECT COUNT(*) FROM rooms
        WHERE user_id=$1 AND NOT is_active AND ended_at >= $2 AND queue_id IN (
            SELECT q.id FROM queues q JOIN sectors s ON s.id=q.sector_id WHERE s.project_id=$3)`
	var count int
	if err := r.pool.QueryRow(ctx, query, userID, since, projectID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *roomRepository) Assign(ctx context.Context, roomID, userID string, at time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var id string
	err = tx.QueryRow(ctx,
		`SELECT id FROM rooms WHERE id=$1 AND is_active AND user_id IS NULL FOR UPDATE SKIP LOCKED`,
		roomID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE rooms SET user_id=$2, first_user_assigned_at=COALESCE(first_user_assigned_at, $3) WHERE id=$1`,
		id, userID, at,
	)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *roomRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Room, error) {
	var room domain.Room
	if err := scanRoom(r.pool.QueryRow(ctx, query, arg), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) fetchMany(ctx context.Context, query string, args ...any) ([]domain.Room, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Room
	for rows.Next() {
		var room domain.Room
		if err := scanRoom(rows, &room); err != nil {
			return nil, err
		}
		result = append(result, room)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner, room *domain.Room) error {
	var (
		tags    []byte
		fields  []byte
		history []byte
		last    []byte
	)
	if err := row.Scan(
		&room.ID,
		&room.QueueID,
		&room.UserID,
		&room.ContactID,
		&room.TicketUUID,
		&room.CallbackURL,
		&room.URN,
		&room.IsActive,
		&room.CreatedAt,
		&room.AddedToQueueAt,
		&room.FirstUserAssignedAt,
		&room.FirstAgentMessageAt,
		&room.EndedAt,
		&room.EndedBy,
		&tags,
		&fields,
		&history,
		&last,
	); err != nil {
		return err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &room.Tags); err != nil {
			return err
		}
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &room.CustomFields); err != nil {
			return err
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &room.TransferHistory); err != nil {
			return err
		}
	}
	if len(last) > 0 {
		if err := json.Unmarshal(last, &room.LastMessage); err != nil {
			return err
		}
	}
	return nil
}

func marshalRoomJSON(room *domain.Room) (tags, fields, history, last []byte, err error) {
	if room.Tags == nil {
		room.Tags = []string{}
	}
	if tags, err = json.Marshal(room.Tags); err != nil {
		return
	}
	if room.CustomFields == nil {
		room.CustomFields = map[string]any{}
	}
	if fields, err = json.Marshal(room.CustomFields); err != nil {
		return
	}
	if room.TransferHistory == nil {
		room.TransferHistory = []domain.TransferEvent{}
	}
	if history, err = json.Marshal(room.TransferHistory); err != nil {
		return
	}
	if room.LastMessage != nil {
		if last, err = json.Marshal(room.LastMessage); err != nil {
			return
		}
	}
	return
}
