package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatstack/routing-service/internal/domain"
)

const permissionColumns = `id, project_id, user_id, role, status, last_seen_at, created_at`

// PermissionRepository encapsulates project-permission persistence.
type PermissionRepository interface {
	Create(ctx context.Context, perm *domain.ProjectPermission) error
	Update(ctx context.Context, perm *domain.ProjectPermission) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.ProjectPermission, error)
	GetByProjectUser(ctx context.Context, projectID, userID string) (*domain.ProjectPermission, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.ProjectPermission, error)
	// UpdateStatus writes a presence transition. The write is skipped when
	// the row already carries a newer last_seen_at, which resolves races
	// between gateway connect/disconnect and broker-side syncs.
	UpdateStatus(ctx context.Context, id string, status domain.PresenceStatus, seenAt time.Time) error
}

type permissionRepository struct {
	pool *pgxpool.Pool
}

// NewPermissionRepository instantiates the repository.
func NewPermissionRepository(pool *pgxpool.Pool) PermissionRepository {
	return &permissionRepository{pool: pool}
}

func (r *permissionRepository) Create(ctx context.Context, perm *domain.ProjectPermission) error {
	const query = `
        INSERT INTO project_permissions (id, project_id, user_id, role, status, last_seen_at)
        VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()),$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	if perm.Status == "" {
		perm.Status = domain.StatusOffline
	}
	if perm.LastSeenAt.IsZero() {
		perm.LastSeenAt = time.Now().UTC()
	}
	return r.pool.QueryRow(ctx, query,
		perm.ID,
		perm.ProjectID,
		perm.UserID,
		perm.Role,
		perm.Status,
		perm.LastSeenAt,
	).Scan(&perm.ID, &perm.CreatedAt)
}

func (r *permissionRepository) Update(ctx context.Context, perm *domain.ProjectPermission) error {
	const query = `
        UPDATE project_permissions SET role=$1, status=$2, last_seen_at=$3 WHERE id=$4`
	cmd, err := r.pool.Exec(ctx, query, perm.Role, perm.Status, perm.LastSeenAt, perm.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *permissionRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM project_permissions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *permissionRepository) GetByID(ctx context.Context, id string) (*domain.ProjectPermission, error) {
	query := `SELECT ` + permissionColumns + ` FROM project_permissions WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *permissionRepository) GetByProjectUser(ctx context.Context, projectID, userID string) (*domain.ProjectPermission, error) {
	query := `SELECT ` + permissionColumns + ` FROM project_permissions WHERE project_id=$1 AND user_id=$2`
	var perm domain.ProjectPermission
	if err := r.pool.QueryRow(ctx, query, projectID, userID).Scan(
		&perm.ID,
		&perm.ProjectID,
		&perm.UserID,
		&perm.Role,
		&perm.Status,
		&perm.LastSeenAt,
		&perm.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepository) ListByProject(ctx context.Context, projectID string) ([]domain.ProjectPermission, error) {
	query := `SELECT ` + permissionColumns + ` FROM project_permissions WHERE project_id=$1`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ProjectPermission
	for rows.Next() {
		var perm domain.ProjectPermission
		if err := rows.Scan(
			&perm.ID,
			&perm.ProjectID,
			&perm.UserID,
			&perm.Role,
			&perm.Status,
			&perm.LastSeenAt,
			&perm.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, perm)
	}
	return result, rows.Err()
}

func (r *permissionRepository) UpdateStatus(ctx context.Context, id string, status domain.PresenceStatus, seenAt time.Time) error {
	const query = `
        UPDATE project_permissions SET status=$1, last_seen_at=$2
        WHERE id=$3 AND last_seen_at <= $2`
	_, err := r.pool.Exec(ctx, query, status, seenAt, id)
	return err
}

func (r *permissionRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.ProjectPermission, error) {
	var perm domain.ProjectPermission
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&perm.ID,
		&perm.ProjectID,
		&perm.UserID,
		&perm.Role,
		&perm.Status,
		&perm.LastSeenAt,
		&perm.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &perm, nil
}
