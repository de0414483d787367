package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatstack/routing-service/internal/domain"
)

// ProjectRepository encapsulates project persistence.
type ProjectRepository interface {
	Create(ctx context.Context, project *domain.Project) error
	GetByID(ctx context.Context, id string) (*domain.Project, error)
	UpdateConfig(ctx context.Context, id string, cfg map[string]any) error
}

type projectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository instantiates the repository.
func NewProjectRepository(pool *pgxpool.Pool) ProjectRepository {
	return &projectRepository{pool: pool}
}

func (r *projectRepository) Create(ctx context.Context, project *domain.Project) error {
	if project.Config == nil {
		project.Config = map[string]any{}
	}
	cfg, err := json.Marshal(project.Config)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO projects (id, name, timezone, routing_policy, config)
        VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()),$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		project.ID,
		project.Name,
		project.Timezone,
		project.RoutingPolicy,
		cfg,
	).Scan(&project.ID, &project.CreatedAt)
}

func (r *projectRepository) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	const query = `SELECT id, name, timezone, routing_policy, config, created_at FROM projects WHERE id=$1`
	var (
		project domain.Project
		cfg     []byte
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&project.ID,
		&project.Name,
		&project.Timezone,
		&project.RoutingPolicy,
		&cfg,
		&project.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &project.Config); err != nil {
			return nil, err
		}
	}
	return &project, nil
}

func (r *projectRepository) UpdateConfig(ctx context.Context, id string, cfg map[string]any) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE projects SET config=$1 WHERE id=$2`, raw, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
