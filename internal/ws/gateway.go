package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chatstack/routing-service/internal/auth"
	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/repository"
)

// Gateway owns the socket endpoint: handshake authentication, group
// membership, presence transitions and the duplicate-tab protocol.
type Gateway struct {
	hub           *Hub
	authenticator *auth.Authenticator
	permissions   repository.PermissionRepository
	queueAuths    repository.QueueAuthorizationRepository
	limiter       *rate.Limiter
	logger        *zap.Logger

	mu          sync.Mutex
	connections map[string]int // permission id -> open connection count
}

// GatewayDependencies bundles collaborators.
type GatewayDependencies struct {
	Hub           *Hub
	Authenticator *auth.Authenticator
	Permissions   repository.PermissionRepository
	QueueAuths    repository.QueueAuthorizationRepository
	Logger        *zap.Logger
}

// NewGateway creates the gateway.
func NewGateway(cfg config.GatewayConfig, deps GatewayDependencies) *Gateway {
	perSecond := cfg.HandshakePerSecond
	if perSecond <= 0 {
		perSecond = 20
	}
	burst := cfg.HandshakeBurst
	if burst <= 0 {
		burst = perSecond * 2
	}
	return &Gateway{
		hub:           deps.Hub,
		authenticator: deps.Authenticator,
		permissions:   deps.Permissions,
		queueAuths:    deps.QueueAuths,
		limiter:       rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:        deps.Logger,
		connections:   make(map[string]int),
	}
}

// UpgradeGuard rejects non-websocket requests on the socket route.
func (g *Gateway) UpgradeGuard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Handler returns the websocket handler for the /ws route.
func (g *Gateway) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		g.serve(conn)
	})
}

type welcomeContent struct {
	ConnectionID string `json:"connection_id"`
	PermissionID string `json:"permission_id"`
}

type connectionCheckContent struct {
	ConnectionID string `json:"connection_id"`
}

func (g *Gateway) serve(conn *websocket.Conn) {
	defer conn.Close() //nolint:errcheck

	if !g.limiter.Allow() {
		g.logger.Warn("handshake rate limit hit, closing connection")
		return
	}

	ctx := context.Background()
	token := conn.Query("Token")
	projectID := conn.Query("project")

	// Parse query -> cache -> backend under breaker -> principal.
	user := g.authenticator.Authenticate(ctx, token)
	if user.Anonymous() {
		g.logger.Debug("closing anonymous connection")
		return
	}

	perm, err := g.permissions.GetByProjectUser(ctx, projectID, user.ID)
	if err != nil {
		g.logger.Debug("no permission for connection",
			zap.String("project", projectID),
			zap.String("user", user.ID),
		)
		return
	}

	client := g.hub.Register(conn)
	defer g.hub.Unregister(client)

	g.hub.Join(client, PermissionGroup(perm.ID))
	auths, err := g.queueAuths.ListByPermission(ctx, perm.ID)
	if err != nil {
		g.logger.Warn("queue authorization lookup failed", zap.Error(err))
	}
	for _, a := range auths {
		g.hub.Join(client, QueueGroup(a.QueueID))
	}

	g.connected(ctx, perm.ID)
	defer g.disconnected(ctx, perm.ID)

	g.hub.SendClient(client.ID, Notify(ActionWelcome, welcomeContent{
		ConnectionID: client.ID,
		PermissionID: perm.ID,
	}))

	// Duplicate-tab probe: peers that hold a different connection id
	// answer the new connection with a multiple_connections notice.
	g.hub.SendGroupExcept(PermissionGroup(perm.ID), client.ID,
		Notify(ActionConnectionCheck, connectionCheckContent{ConnectionID: client.ID}))

	g.readLoop(conn, client)
}

func (g *Gateway) readLoop(conn *websocket.Conn, client *Client) {
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Action {
		case ActionRoomJoin:
			if id := contentString(frame.Content, "room"); id != "" {
				g.hub.Join(client, RoomGroup(id))
			}
		case ActionRoomLeave:
			if id := contentString(frame.Content, "room"); id != "" {
				g.hub.Leave(client, RoomGroup(id))
			}
		case ActionMultipleConnections:
			// A peer answering the connection_check probe: relay to the
			// probed connection.
			if id := contentString(frame.Content, "connection_id"); id != "" {
				g.hub.SendClient(id, Notify(ActionMultipleConnections, frame.Content))
			}
		}
	}
}

func contentString(content any, key string) string {
	m, ok := content.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// connected marks the permission online on its first open connection.
func (g *Gateway) connected(ctx context.Context, permissionID string) {
	g.mu.Lock()
	g.connections[permissionID]++
	first := g.connections[permissionID] == 1
	g.mu.Unlock()

	if first {
		if err := g.permissions.UpdateStatus(ctx, permissionID, domain.StatusOnline, time.Now().UTC()); err != nil {
			g.logger.Warn("presence update failed", zap.Error(err))
		}
	}
}

// disconnected marks the permission offline when its last connection
// closes.
func (g *Gateway) disconnected(ctx context.Context, permissionID string) {
	g.mu.Lock()
	g.connections[permissionID]--
	last := g.connections[permissionID] <= 0
	if last {
		delete(g.connections, permissionID)
	}
	g.mu.Unlock()

	if last {
		if err := g.permissions.UpdateStatus(ctx, permissionID, domain.StatusOffline, time.Now().UTC()); err != nil {
			g.logger.Warn("presence update failed", zap.Error(err))
		}
	}
}
