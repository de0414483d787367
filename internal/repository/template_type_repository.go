package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TemplateType is a broker-synced message template definition.
type TemplateType struct {
	ID         string
	ExternalID string
	Name       string
	Payload    map[string]any
}

// TemplateTypeRepository persists broker-synced templates.
type TemplateTypeRepository interface {
	Upsert(ctx context.Context, tt *TemplateType) error
}

type templateTypeRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateTypeRepository instantiates the repository.
func NewTemplateTypeRepository(pool *pgxpool.Pool) TemplateTypeRepository {
	return &templateTypeRepository{pool: pool}
}

func (r *templateTypeRepository) Upsert(ctx context.Context, tt *TemplateType) error {
	if tt.Payload == nil {
		tt.Payload = map[string]any{}
	}
	payload, err := json.Marshal(tt.Payload)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO template_types (external_id, name, payload)
        VALUES ($1,$2,$3)
        ON CONFLICT (external_id) DO UPDATE SET name=EXCLUDED.name, payload=EXCLUDED.payload
        RETURNING id`
	return r.pool.QueryRow(ctx, query, tt.ExternalID, tt.Name, payload).Scan(&tt.ID)
}
