package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatstack/routing-service/internal/domain"
)

// ContactRepository encapsulates contact persistence.
type ContactRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Contact, error)
	// GetOrCreate resolves a contact by external id, creating it when
	// unknown. The upsert keeps replayed room-creation payloads mapping to
	// the same contact row.
	GetOrCreate(ctx context.Context, externalID, name string) (*domain.Contact, error)
}

type contactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository instantiates the repository.
func NewContactRepository(pool *pgxpool.Pool) ContactRepository {
	return &contactRepository{pool: pool}
}

func (r *contactRepository) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	const query = `SELECT id, name, external_id, created_at FROM contacts WHERE id=$1`
	var c domain.Contact
	if err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.ExternalID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contactRepository) GetOrCreate(ctx context.Context, externalID, name string) (*domain.Contact, error) {
	const query = `
        INSERT INTO contacts (external_id, name)
        VALUES ($1,$2)
        ON CONFLICT (external_id) DO UPDATE SET name=EXCLUDED.name
        RETURNING id, name, external_id, created_at`
	var c domain.Contact
	if err := r.pool.QueryRow(ctx, query, externalID, name).Scan(&c.ID, &c.Name, &c.ExternalID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
