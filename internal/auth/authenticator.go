package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/cache"
	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/repository"
)

// UserinfoBackend abstracts the OIDC userinfo call for testing.
type UserinfoBackend interface {
	Userinfo(ctx context.Context, token string) (*domain.User, error)
}

// Authenticator turns an opaque bearer token into a user principal.
// Sequence: token cache, then the database token path, then the OIDC
// backend, each backend guarded by its own breaker. Any failure attaches
// an anonymous principal; downstream authorization decides whether the
// connection survives.
type Authenticator struct {
	tokens      cache.TokenCache
	users       repository.UserRepository
	manager     *TokenManager
	oidc        UserinfoBackend
	dbBreaker   *gobreaker.CircuitBreaker[*domain.User]
	oidcBreaker *gobreaker.CircuitBreaker[*domain.User]
	logger      *zap.Logger
}

// AuthenticatorDependencies bundles collaborators.
type AuthenticatorDependencies struct {
	TokenCache  cache.TokenCache
	Users       repository.UserRepository
	Manager     *TokenManager
	OIDC        UserinfoBackend
	DBBreaker   *gobreaker.CircuitBreaker[*domain.User]
	OIDCBreaker *gobreaker.CircuitBreaker[*domain.User]
	Logger      *zap.Logger
}

// NewAuthenticator creates the authenticator.
func NewAuthenticator(deps AuthenticatorDependencies) *Authenticator {
	return &Authenticator{
		tokens:      deps.TokenCache,
		users:       deps.Users,
		manager:     deps.Manager,
		oidc:        deps.OIDC,
		dbBreaker:   deps.DBBreaker,
		oidcBreaker: deps.OIDCBreaker,
		logger:      deps.Logger,
	}
}

// Authenticate resolves token to a principal. A nil result is the
// anonymous principal; anonymous results are never cached.
func (a *Authenticator) Authenticate(ctx context.Context, token string) *domain.User {
	if token == "" {
		return nil
	}

	if user, err := a.tokens.Get(ctx, token); err == nil {
		return user
	} else if !errors.Is(err, cache.ErrMiss) {
		a.logger.Warn("token cache read failed", zap.Error(err))
	}

	user, err := a.dbBreaker.Execute(func() (*domain.User, error) {
		return a.lookupDatabase(ctx, token)
	})
	if err == nil && user != nil {
		a.cacheToken(ctx, token, user)
		return user
	}
	if err != nil && !errors.Is(err, ErrBackendMiss) {
		if IsBreakerOpen(err) {
			a.logger.Warn("db token breaker open, skipping lookup")
		} else {
			a.logger.Warn("db token lookup failed", zap.Error(err))
		}
	}

	user, err = a.oidcBreaker.Execute(func() (*domain.User, error) {
		return a.lookupOIDC(ctx, token)
	})
	if err == nil && user != nil {
		a.cacheToken(ctx, token, user)
		return user
	}
	if err != nil && !errors.Is(err, ErrBackendMiss) {
		if IsBreakerOpen(err) {
			a.logger.Warn("oidc breaker open, skipping lookup")
		} else {
			a.logger.Warn("oidc lookup failed", zap.Error(err))
		}
	}

	return nil
}

// Invalidate drops a cached token, e.g. after logout or permission
// revocation.
func (a *Authenticator) Invalidate(ctx context.Context, token string) {
	if err := a.tokens.Invalidate(ctx, token); err != nil {
		a.logger.Warn("token cache invalidation failed", zap.Error(err))
	}
}

func (a *Authenticator) cacheToken(ctx context.Context, token string, user *domain.User) {
	if err := a.tokens.Set(ctx, token, user); err != nil {
		a.logger.Warn("token cache write failed", zap.Error(err))
	}
}

// lookupDatabase handles the two locally-resolvable token shapes:
// internal JWTs and hashed service-account tokens.
func (a *Authenticator) lookupDatabase(ctx context.Context, token string) (*domain.User, error) {
	if claims, err := a.manager.ParseToken(token); err == nil {
		user, err := a.users.GetByID(ctx, claims.UserID)
		if err != nil {
			return nil, missOnNoRows(err)
		}
		return user, nil
	}

	id, secret, ok := SplitServiceToken(token)
	if !ok {
		return nil, ErrBackendMiss
	}
	user, err := a.users.GetByID(ctx, id)
	if err != nil {
		return nil, missOnNoRows(err)
	}
	if user.TokenHash == nil || CompareTokenSecret(*user.TokenHash, secret) != nil {
		return nil, ErrBackendMiss
	}
	return user, nil
}

func (a *Authenticator) lookupOIDC(ctx context.Context, token string) (*domain.User, error) {
	principal, err := a.oidc.Userinfo(ctx, token)
	if err != nil {
		return nil, err
	}
	// Bind the provider identity to the local user record.
	user, err := a.users.GetByEmail(ctx, principal.Email)
	if err != nil {
		return nil, missOnNoRows(err)
	}
	return user, nil
}

// missOnNoRows keeps "token unknown" answers from counting as backend
// failures on the breaker.
func missOnNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrBackendMiss
	}
	return err
}
