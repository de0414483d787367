package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/internal/domain"
)

// presenceRecorder records status transitions per permission.
type presenceRecorder struct {
	mu          sync.Mutex
	transitions map[string][]domain.PresenceStatus
}

func newPresenceRecorder() *presenceRecorder {
	return &presenceRecorder{transitions: make(map[string][]domain.PresenceStatus)}
}

func (r *presenceRecorder) Create(context.Context, *domain.ProjectPermission) error { return nil }

func (r *presenceRecorder) Update(context.Context, *domain.ProjectPermission) error { return nil }

func (r *presenceRecorder) Delete(context.Context, string) error { return nil }

func (r *presenceRecorder) GetByID(context.Context, string) (*domain.ProjectPermission, error) {
	return nil, pgx.ErrNoRows
}

func (r *presenceRecorder) GetByProjectUser(context.Context, string, string) (*domain.ProjectPermission, error) {
	return nil, pgx.ErrNoRows
}

func (r *presenceRecorder) ListByProject(context.Context, string) ([]domain.ProjectPermission, error) {
	return nil, nil
}

func (r *presenceRecorder) UpdateStatus(_ context.Context, id string, status domain.PresenceStatus, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[id] = append(r.transitions[id], status)
	return nil
}

func (r *presenceRecorder) of(id string) []domain.PresenceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PresenceStatus(nil), r.transitions[id]...)
}

func TestPresenceCountsConnectionsPerPermission(t *testing.T) {
	presence := newPresenceRecorder()
	gateway := NewGateway(config.GatewayConfig{}, GatewayDependencies{
		Hub:         newTestHub(),
		Permissions: presence,
		Logger:      zap.NewNop(),
	})
	ctx := context.Background()

	// First tab brings the agent online; the second changes nothing.
	gateway.connected(ctx, "perm-1")
	gateway.connected(ctx, "perm-1")
	if got := presence.of("perm-1"); len(got) != 1 || got[0] != domain.StatusOnline {
		t.Fatalf("transitions after two connects = %v", got)
	}

	// Closing one of two tabs keeps the agent online.
	gateway.disconnected(ctx, "perm-1")
	if got := presence.of("perm-1"); len(got) != 1 {
		t.Fatalf("transitions after partial disconnect = %v", got)
	}

	// Closing the last tab flips the agent offline.
	gateway.disconnected(ctx, "perm-1")
	got := presence.of("perm-1")
	if len(got) != 2 || got[1] != domain.StatusOffline {
		t.Fatalf("transitions after final disconnect = %v", got)
	}
}

func TestPresenceTracksPermissionsIndependently(t *testing.T) {
	presence := newPresenceRecorder()
	gateway := NewGateway(config.GatewayConfig{}, GatewayDependencies{
		Hub:         newTestHub(),
		Permissions: presence,
		Logger:      zap.NewNop(),
	})
	ctx := context.Background()

	gateway.connected(ctx, "perm-1")
	gateway.connected(ctx, "perm-2")
	gateway.disconnected(ctx, "perm-1")

	if got := presence.of("perm-1"); len(got) != 2 || got[1] != domain.StatusOffline {
		t.Fatalf("perm-1 transitions = %v", got)
	}
	if got := presence.of("perm-2"); len(got) != 1 || got[0] != domain.StatusOnline {
		t.Fatalf("perm-2 transitions = %v", got)
	}
}
