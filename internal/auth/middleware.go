package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/pkg/util"
)

const userLocalKey = "auth.user"

// AuthMiddleware authenticates facade requests through the token
// pipeline.
type AuthMiddleware struct {
	authenticator *Authenticator
}

// NewAuthMiddleware creates the middleware.
func NewAuthMiddleware(authenticator *Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Handle extracts the bearer token, authenticates it, and rejects
// anonymous principals.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if token == "" {
		token = c.Get("Token")
	}
	user := m.authenticator.Authenticate(c.UserContext(), token)
	if user.Anonymous() {
		return util.NewUnauthorized("invalid or missing token")
	}
	c.Locals(userLocalKey, user)
	return c.Next()
}

// CurrentUser returns the authenticated principal attached by Handle.
func CurrentUser(c *fiber.Ctx) *domain.User {
	user, _ := c.Locals(userLocalKey).(*domain.User)
	return user
}
