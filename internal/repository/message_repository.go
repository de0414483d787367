package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatstack/routing-service/internal/domain"
)

const messageColumns = `id, room_id, user_id, contact_id, text, media, seen, external_id, status, metadata, created_at`

// StatusUpdate is one buffered message-status mutation keyed by the
// external broker id.
type StatusUpdate struct {
	ExternalID string
	Status     domain.MessageStatus
}

// MessageRepository encapsulates message persistence.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	ListByRoom(ctx context.Context, roomID string) ([]domain.Message, error)
	BindExternalID(ctx context.Context, messageID, externalID string) error
	BulkUpdateStatus(ctx context.Context, updates []StatusUpdate) error
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository instantiates the repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	media, err := json.Marshal(msg.Media)
	if err != nil {
		return err
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return err
	}
	if msg.Status == "" {
		msg.Status = domain.MessageQueued
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO messages (id, room_id, user_id, contact_id, text, media, seen, external_id, status, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING created_at`
	if err := tx.QueryRow(ctx, query,
		msg.ID,
		msg.RoomID,
		msg.UserID,
		msg.ContactID,
		msg.Text,
		media,
		msg.Seen,
		msg.ExternalID,
		msg.Status,
		metadata,
	).Scan(&msg.CreatedAt); err != nil {
		return err
	}

	// Keep the denormalized last-message snapshot on the room in step.
	snapshot, err := json.Marshal(msg.Snapshot())
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE rooms SET last_message=$1 WHERE id=$2`, snapshot, msg.RoomID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id=$1`
	var msg domain.Message
	if err := scanMessage(r.pool.QueryRow(ctx, query, id), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE room_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := scanMessage(rows, &msg); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *messageRepository) BindExternalID(ctx context.Context, messageID, externalID string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE messages SET external_id=$1 WHERE id=$2`, externalID, messageID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *messageRepository) BulkUpdateStatus(ctx context.Context, updates []StatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`UPDATE messages SET status=$1 WHERE external_id=$2`, u.Status, u.ExternalID)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck
	for range updates {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func scanMessage(row rowScanner, msg *domain.Message) error {
	var media, metadata []byte
	if err := row.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.UserID,
		&msg.ContactID,
		&msg.Text,
		&media,
		&msg.Seen,
		&msg.ExternalID,
		&msg.Status,
		&metadata,
		&msg.CreatedAt,
	); err != nil {
		return err
	}
	if len(media) > 0 {
		if err := json.Unmarshal(media, &msg.Media); err != nil {
			return err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return err
		}
	}
	return nil
}
