package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/internal/domain"
)

// OIDCClient resolves bearer tokens against the identity provider's
// userinfo endpoint.
type OIDCClient struct {
	url    string
	client *http.Client
}

// NewOIDCClient builds the client. url may be empty; Userinfo then always
// misses.
func NewOIDCClient(cfg config.OIDCConfig) *OIDCClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OIDCClient{
		url:    cfg.UserinfoURL,
		client: &http.Client{Timeout: timeout},
	}
}

type userinfoResponse struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// Userinfo validates the token with the provider. Returns ErrBackendMiss
// on 401/403 responses; transport failures and 5xx are real errors and
// count toward the breaker.
func (c *OIDCClient) Userinfo(ctx context.Context, token string) (*domain.User, error) {
	if c.url == "" {
		return nil, ErrBackendMiss
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrBackendMiss
	default:
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info userinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &domain.User{
		Email:     info.Email,
		FirstName: info.GivenName,
		LastName:  info.FamilyName,
	}, nil
}
