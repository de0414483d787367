package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatstack/routing-service/internal/cache"
	"github.com/chatstack/routing-service/internal/domain"
)

const userColumns = `id, email, first_name, last_name, token_hash, created_at`

// UserRepository encapsulates user persistence. Email lookups go through
// the email cache; the save and delete paths carry the invalidation hooks.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type userRepository struct {
	pool   *pgxpool.Pool
	emails cache.EmailCache
}

// NewUserRepository instantiates the repository.
func NewUserRepository(pool *pgxpool.Pool, emails cache.EmailCache) UserRepository {
	return &userRepository{pool: pool, emails: emails}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (id, email, first_name, last_name, token_hash)
        VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()),$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		user.ID,
		cache.NormalizeEmail(user.Email),
		user.FirstName,
		user.LastName,
		user.TokenHash,
	).Scan(&user.ID, &user.CreatedAt)
}

// staleEmailKeys lists the mappings a save must drop from the email cache so
// neither the old nor the new address can resolve to a stale user id.
// An unchanged address keeps its mapping.
func staleEmailKeys(prev, next string) []string {
	if cache.NormalizeEmail(prev) == cache.NormalizeEmail(next) {
		return nil
	}
	return []string{prev, next}
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	// Pre-save hook: the previous email mapping must not outlive the save.
	prev, err := r.GetByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if r.emails != nil {
		for _, email := range staleEmailKeys(prev.Email, user.Email) {
			_ = r.emails.Invalidate(ctx, email)
		}
	}

	const query = `
        UPDATE users SET email=$1, first_name=$2, last_name=$3, token_hash=$4 WHERE id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		cache.NormalizeEmail(user.Email),
		user.FirstName,
		user.LastName,
		user.TokenHash,
		user.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	prev, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	// Post-delete hook.
	if r.emails != nil {
		_ = r.emails.Invalidate(ctx, prev.Email)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if r.emails != nil {
		if id, err := r.emails.Get(ctx, email); err == nil {
			user, err := r.GetByID(ctx, id)
			if err == nil && user.Email == cache.NormalizeEmail(email) {
				return user, nil
			}
			// Stale mapping: fall through to the database.
			_ = r.emails.Invalidate(ctx, email)
		} else if !errors.Is(err, cache.ErrMiss) {
			return nil, err
		}
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	user, err := r.fetchSingle(ctx, query, cache.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if r.emails != nil {
		_ = r.emails.Set(ctx, user.Email, user.ID)
	}
	return user, nil
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.TokenHash,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
