package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatstack/routing-service/internal/domain"
)

const sectorColumns = `id, project_id, name, rooms_limit, working_hours, required_tags,
	allow_edit_custom_fields, open_offline, is_deleted, created_at`

// SectorRepository encapsulates sector persistence.
type SectorRepository interface {
	Create(ctx context.Context, sector *domain.Sector) error
	Update(ctx context.Context, sector *domain.Sector) error
	SoftDelete(ctx context.Context, id, actor string) error
	GetByID(ctx context.Context, id string) (*domain.Sector, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.Sector, error)
}

type sectorRepository struct {
	pool *pgxpool.Pool
}

// NewSectorRepository instantiates the repository.
func NewSectorRepository(pool *pgxpool.Pool) SectorRepository {
	return &sectorRepository{pool: pool}
}

func (r *sectorRepository) Create(ctx context.Context, sector *domain.Sector) error {
	hours, err := json.Marshal(sector.WorkingHours)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO sectors (id, project_id, name, rooms_limit, working_hours, required_tags,
            allow_edit_custom_fields, open_offline)
        VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()),$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		sector.ID,
		sector.ProjectID,
		sector.Name,
		sector.RoomsLimit,
		hours,
		sector.RequiredTags,
		sector.AllowEditCustomFields,
		sector.OpenOffline,
	).Scan(&sector.ID, &sector.CreatedAt)
}

func (r *sectorRepository) Update(ctx context.Context, sector *domain.Sector) error {
	hours, err := json.Marshal(sector.WorkingHours)
	if err != nil {
		return err
	}
	const query = `
        UPDATE sectors SET name=$1, rooms_limit=$2, working_hours=$3, required_tags=$4,
            allow_edit_custom_fields=$5, open_offline=$6
        WHERE id=$7 AND NOT is_deleted`
	cmd, err := r.pool.Exec(ctx, query,
		sector.Name,
		sector.RoomsLimit,
		hours,
		sector.RequiredTags,
		sector.AllowEditCustomFields,
		sector.OpenOffline,
		sector.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sectorRepository) SoftDelete(ctx context.Context, id, actor string) error {
	if actor == "" {
		actor = "system"
	}
	const query = `
        UPDATE sectors SET is_deleted=TRUE, name=name || $2
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

func (r *sectorRepository) GetByID(ctx context.Context, id string) (*domain.Sector, error) {
	query := `SELECT ` + sectorColumns + ` FROM sectors WHERE id=$1`
	var (
		sector domain.Sector
		hours  []byte
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&sector.ID,
		&sector.ProjectID,
		&sector.Name,
		&sector.RoomsLimit,
		&hours,
		&sector.RequiredTags,
		&sector.AllowEditCustomFields,
		&sector.OpenOffline,
		&sector.IsDeleted,
		&sector.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &sector.WorkingHours); err != nil {
			return nil, err
		}
	}
	return &sector, nil
}

func (r *sectorRepository) ListByProject(ctx context.Context, projectID string) ([]domain.Sector, error) {
	query := `SELECT ` + sectorColumns + ` FROM sectors WHERE project_id=$1 AND NOT is_deleted ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Sector
	for rows.Next() {
		var (
			sector domain.Sector
			hours  []byte
		)
		if err := rows.Scan(
			&sector.ID,
			&sector.ProjectID,
			&sector.Name,
			&sector.RoomsLimit,
			&hours,
			&sector.RequiredTags,
			&sector.AllowEditCustomFields,
			&sector.OpenOffline,
			&sector.IsDeleted,
			&sector.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(hours) > 0 {
			if err := json.Unmarshal(hours, &sector.WorkingHours); err != nil {
				return nil, err
			}
		}
		result = append(result, sector)
	}
	return result, rows.Err()
}
