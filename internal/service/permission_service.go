package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/events"
	"github.com/chatstack/routing-service/internal/repository"
)

// PermissionService syncs project permissions and runs the cascade that
// returns a departing user's rooms to their queues.
type PermissionService struct {
	permissions repository.PermissionRepository
	sectorAuths repository.SectorAuthorizationRepository
	queueAuths  repository.QueueAuthorizationRepository
	rooms       repository.RoomRepository
	roomService *RoomService
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// PermissionDependencies bundles collaborators.
type PermissionDependencies struct {
	PermissionRepo repository.PermissionRepository
	SectorAuthRepo repository.SectorAuthorizationRepository
	QueueAuthRepo  repository.QueueAuthorizationRepository
	RoomRepo       repository.RoomRepository
	RoomService    *RoomService
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// NewPermissionService creates the permission service.
func NewPermissionService(deps PermissionDependencies) *PermissionService {
	return &PermissionService{
		permissions: deps.PermissionRepo,
		sectorAuths: deps.SectorAuthRepo,
		queueAuths:  deps.QueueAuthRepo,
		rooms:       deps.RoomRepo,
		roomService: deps.RoomService,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
	}
}

// Create registers a permission from a broker sync.
func (s *PermissionService) Create(ctx context.Context, perm *domain.ProjectPermission) error {
	if perm.Status == "" {
		perm.Status = domain.StatusOffline
	}
	if perm.CreatedAt.IsZero() {
		perm.CreatedAt = time.Now().UTC()
	}
	if err := s.permissions.Create(ctx, perm); err != nil {
		return err
	}
	s.publishChange(ctx, perm.ID, "create")
	return nil
}

// Update applies role or status changes from a broker sync.
func (s *PermissionService) Update(ctx context.Context, perm *domain.ProjectPermission) error {
	if err := s.permissions.Update(ctx, perm); err != nil {
		return err
	}
	s.publishChange(ctx, perm.ID, "update")
	return nil
}

// UpdateStatus writes a presence transition from a broker sync, carrying
// the last_seen compare semantics of the repository.
func (s *PermissionService) UpdateStatus(ctx context.Context, id string, status domain.PresenceStatus) error {
	if err := s.permissions.UpdateStatus(ctx, id, status, time.Now().UTC()); err != nil {
		return err
	}
	s.publishChange(ctx, id, "status")
	return nil
}

// Delete removes a permission and returns every room the user held in
// the project back to its queue.
func (s *PermissionService) Delete(ctx context.Context, id string) error {
	perm, err := s.permissions.GetByID(ctx, id)
	if err != nil {
		return err
	}

	held, err := s.rooms.ListActiveByUserProject(ctx, perm.UserID, perm.ProjectID)
	if err != nil {
		return err
	}
	if err := s.roomService.ReturnRoomsToQueue(ctx, held, perm.UserID); err != nil {
		return err
	}

	if err := s.permissions.Delete(ctx, id); err != nil {
		return err
	}
	s.publishChange(ctx, id, "delete")
	return nil
}

// DeleteSectorAuthorization removes a sector authorization. Rooms in that
// sector return to their queues only when the user keeps no other
// project-level authority.
func (s *PermissionService) DeleteSectorAuthorization(ctx context.Context, authID string) error {
	auth, err := s.sectorAuths.GetByID(ctx, authID)
	if err != nil {
		return err
	}
	perm, err := s.permissions.GetByID(ctx, auth.PermissionID)
	if err != nil {
		return err
	}

	if err := s.sectorAuths.Delete(ctx, authID); err != nil {
		return err
	}

	other, err := s.hasOtherAuthority(ctx, perm.ID)
	if err != nil {
		return err
	}
	if other {
		return nil
	}
	held, err := s.rooms.ListActiveByUserSector(ctx, perm.UserID, auth.SectorID)
	if err != nil {
		return err
	}
	return s.roomService.ReturnRoomsToQueue(ctx, held, perm.UserID)
}

// DeleteQueueAuthorization removes a queue authorization with the same
// narrow cascade scoped to that queue.
func (s *PermissionService) DeleteQueueAuthorization(ctx context.Context, authID string) error {
	auth, err := s.queueAuths.GetByID(ctx, authID)
	if err != nil {
		return err
	}
	perm, err := s.permissions.GetByID(ctx, auth.PermissionID)
	if err != nil {
		return err
	}

	if err := s.queueAuths.Delete(ctx, authID); err != nil {
		return err
	}

	other, err := s.hasOtherAuthority(ctx, perm.ID)
	if err != nil {
		return err
	}
	if other {
		return nil
	}
	held, err := s.rooms.ListActiveByUserQueue(ctx, perm.UserID, auth.QueueID)
	if err != nil {
		return err
	}
	return s.roomService.ReturnRoomsToQueue(ctx, held, perm.UserID)
}

// hasOtherAuthority reports whether the permission still carries any
// sector or queue authorization.
func (s *PermissionService) hasOtherAuthority(ctx context.Context, permissionID string) (bool, error) {
	sectorAuths, err := s.sectorAuths.ListByPermission(ctx, permissionID)
	if err != nil {
		return false, err
	}
	if len(sectorAuths) > 0 {
		return true, nil
	}
	queueAuths, err := s.queueAuths.ListByPermission(ctx, permissionID)
	if err != nil {
		return false, err
	}
	return len(queueAuths) > 0, nil
}

func (s *PermissionService) publishChange(ctx context.Context, permissionID, action string) {
	ev := events.NewEvent(events.EventPermissionChanged, "permissions."+action)
	ev.PermissionIDs = []string{permissionID}
	ev.Content = map[string]any{"uuid": permissionID, "action": action}
	_ = s.dispatcher.Publish(ctx, ev)
}
