package service

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/cache"
	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/events"
	"github.com/chatstack/routing-service/internal/observability"
	"github.com/chatstack/routing-service/internal/repository"
)

// Candidate is an agent eligible to receive a room, with the load figures
// used for ordering.
type Candidate struct {
	Permission  *domain.ProjectPermission
	ActiveRooms int
	ClosedToday int
}

// RoutingService computes agent availability and runs the queue-priority
// dispatcher.
type RoutingService struct {
	projects     repository.ProjectRepository
	sectors      repository.SectorRepository
	queues       repository.QueueRepository
	rooms        repository.RoomRepository
	permissions  repository.PermissionRepository
	queueAuths   repository.QueueAuthorizationRepository
	customStatus repository.CustomStatusRepository
	users        repository.UserRepository
	dashboards   cache.DashboardCache
	dispatcher   events.Dispatcher
	logger       *zap.Logger
}

// RoutingDependencies bundles repositories for the routing service.
type RoutingDependencies struct {
	ProjectRepo      repository.ProjectRepository
	SectorRepo       repository.SectorRepository
	QueueRepo        repository.QueueRepository
	RoomRepo         repository.RoomRepository
	PermissionRepo   repository.PermissionRepository
	QueueAuthRepo    repository.QueueAuthorizationRepository
	CustomStatusRepo repository.CustomStatusRepository
	UserRepo         repository.UserRepository
	Dashboards       cache.DashboardCache
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// NewRoutingService creates the routing service.
func NewRoutingService(deps RoutingDependencies) *RoutingService {
	return &RoutingService{
		projects:     deps.ProjectRepo,
		sectors:      deps.SectorRepo,
		queues:       deps.QueueRepo,
		rooms:        deps.RoomRepo,
		permissions:  deps.PermissionRepo,
		queueAuths:   deps.QueueAuthRepo,
		customStatus: deps.CustomStatusRepo,
		users:        deps.UserRepo,
		dashboards:   deps.Dashboards,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
	}
}

// TransferAgent is one user eligible to receive a transfer on a queue.
type TransferAgent struct {
	UserID      string                `json:"uuid"`
	Email       string                `json:"email"`
	FirstName   string                `json:"first_name"`
	LastName    string                `json:"last_name"`
	Status      domain.PresenceStatus `json:"status"`
	ActiveRooms int                   `json:"active_rooms"`
}

const agentLoadTTL = 30 * time.Second

// TransferAgents lists the users who can receive transfers on a queue.
// Offline agents are filtered out when the project enables
// filter_offline_agents. When the project is linked as secondary of a
// principal project, the principal's admins are offered as well. Presence
// is always read live; the per-agent room counts come through the
// dashboard cache and are dropped on every room mutation.
func (s *RoutingService) TransferAgents(ctx context.Context, queueID string) ([]TransferAgent, error) {
	queue, err := s.queues.GetByID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	sector, err := s.sectors.GetByID(ctx, queue.SectorID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, sector.ProjectID)
	if err != nil {
		return nil, err
	}
	filterOffline := project.ConfigBool(domain.ConfigFilterOfflineAgents)

	auths, err := s.queueAuths.ListByQueue(ctx, queue.ID, domain.ScopeRoleAgent)
	if err != nil {
		return nil, err
	}
	perms := make([]*domain.ProjectPermission, 0, len(auths))
	seen := make(map[string]struct{}, len(auths))
	for _, auth := range auths {
		perm, err := s.permissions.GetByID(ctx, auth.PermissionID)
		if err != nil {
			continue
		}
		perms = append(perms, perm)
		seen[perm.UserID] = struct{}{}
	}
	for _, perm := range s.principalAdmins(ctx, project) {
		if _, dup := seen[perm.UserID]; dup {
			continue
		}
		perms = append(perms, perm)
		seen[perm.UserID] = struct{}{}
	}

	loads := s.agentLoads(ctx, sector, perms)
	agents := make([]TransferAgent, 0, len(perms))
	for _, perm := range perms {
		if filterOffline && perm.Status != domain.StatusOnline {
			continue
		}
		user, err := s.users.GetByID(ctx, perm.UserID)
		if err != nil {
			continue
		}
		agents = append(agents, TransferAgent{
			UserID:      user.ID,
			Email:       user.Email,
			FirstName:   user.FirstName,
			LastName:    user.LastName,
			Status:      perm.Status,
			ActiveRooms: loads[user.ID],
		})
	}
	return agents, nil
}

// principalAdmins resolves the admins of the project's principal when
// this project is linked as its secondary.
func (s *RoutingService) principalAdmins(ctx context.Context, project *domain.Project) []*domain.ProjectPermission {
	principalID := project.ConfigString(domain.ConfigSecondaryOf)
	if principalID == "" || principalID == project.ID {
		return nil
	}
	principal, err := s.projects.GetByID(ctx, principalID)
	if err != nil || !principal.ConfigBool(domain.ConfigPrincipalProject) {
		return nil
	}
	perms, err := s.permissions.ListByProject(ctx, principal.ID)
	if err != nil {
		s.logger.Warn("principal project lookup failed",
			zap.String("project", principal.ID), zap.Error(err))
		return nil
	}
	admins := make([]*domain.ProjectPermission, 0, len(perms))
	for i := range perms {
		if perms[i].Role == domain.RoleAdmin {
			admins = append(admins, &perms[i])
		}
	}
	return admins
}

// agentLoads returns the per-user active-room counts for the sector,
// served through the dashboard cache when one is wired.
func (s *RoutingService) agentLoads(ctx context.Context, sector *domain.Sector, perms []*domain.ProjectPermission) map[string]int {
	filter := map[string]any{"view": "transfer_agent_load", "sector": sector.ID}
	if s.dashboards != nil {
		if raw, err := s.dashboards.Get(ctx, filter); err == nil {
			var loads map[string]int
			if json.Unmarshal(raw, &loads) == nil {
				return loads
			}
		}
	}

	loads := make(map[string]int, len(perms))
	for _, perm := range perms {
		count, err := s.rooms.CountActiveBySectorUser(ctx, sector.ID, perm.UserID)
		if err != nil {
			continue
		}
		loads[perm.UserID] = count
	}
	if s.dashboards != nil {
		if raw, err := json.Marshal(loads); err == nil {
			if err := s.dashboards.Set(ctx, sector.ProjectID, filter, raw, agentLoadTTL); err != nil {
				s.logger.Warn("agent load cache write failed", zap.Error(err))
			}
		}
	}
	return loads
}

// AvailableAgents returns every agent eligible for the queue right now:
// queue authorization with the agent role, online project permission, no
// disqualifying active custom status, and load under the applicable
// limit.
func (s *RoutingService) AvailableAgents(ctx context.Context, queue *domain.Queue) ([]Candidate, error) {
	sector, err := s.sectors.GetByID(ctx, queue.SectorID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, sector.ProjectID)
	if err != nil {
		return nil, err
	}
	limit := queue.ConcurrencyLimit(sector)

	auths, err := s.queueAuths.ListByQueue(ctx, queue.ID, domain.ScopeRoleAgent)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, auth := range auths {
		perm, err := s.permissions.GetByID(ctx, auth.PermissionID)
		if err != nil {
			continue
		}
		if perm.Status != domain.StatusOnline {
			continue
		}
		if disqualified, err := s.hasBlockingStatus(ctx, perm.ID); err != nil || disqualified {
			continue
		}
		active, err := s.rooms.CountActiveBySectorUser(ctx, sector.ID, perm.UserID)
		if err != nil {
			return nil, err
		}
		if active >= limit {
			continue
		}
		candidate := Candidate{Permission: perm, ActiveRooms: active}
		if project.RoutingPolicy == domain.RoutingGeneral {
			since := startOfDay(time.Now().In(project.Location()))
			closed, err := s.rooms.CountClosedSinceByUser(ctx, project.ID, perm.UserID, since)
			if err != nil {
				return nil, err
			}
			candidate.ClosedToday = closed
		}
		candidates = append(candidates, candidate)
	}

	sortCandidates(candidates, project.RoutingPolicy)
	return candidates, nil
}

// SelectAgent returns one agent for the queue, or nil when nobody is
// eligible. Ties at the minimum load are broken randomly.
func (s *RoutingService) SelectAgent(ctx context.Context, queue *domain.Queue) (*Candidate, error) {
	candidates, err := s.AvailableAgents(ctx, queue)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	min := candidates[0]
	tied := []Candidate{min}
	for _, c := range candidates[1:] {
		if c.load() == min.load() {
			tied = append(tied, c)
		}
	}
	pick := tied[rand.Intn(len(tied))]
	return &pick, nil
}

// DispatchQueue walks the queue's unassigned rooms in arrival order and
// assigns each to an available agent. Safe to run concurrently with
// itself: assignment is atomic, the loser of a race moves on.
func (s *RoutingService) DispatchQueue(ctx context.Context, queueID string) error {
	queue, err := s.queues.GetByID(ctx, queueID)
	if err != nil {
		return err
	}
	rooms, err := s.rooms.ListActiveUnassigned(ctx, queueID)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		s.logger.Debug("no rooms waiting", zap.String("queue", queueID))
		return nil
	}

	for _, room := range rooms {
		candidate, err := s.SelectAgent(ctx, queue)
		if err != nil {
			return err
		}
		if candidate == nil {
			observability.DispatcherOutcome("no_agent")
			return nil
		}

		// Mandatory race guard: the candidate may have gone offline
		// between selection and now. Re-read presence before committing.
		perm, err := s.permissions.GetByID(ctx, candidate.Permission.ID)
		if err != nil || perm.Status != domain.StatusOnline {
			s.logger.Sugar().Infof("Agent %s is no longer online for room %s, skipping",
				candidate.Permission.UserID, room.ID)
			observability.DispatcherOutcome("went_offline")
			continue
		}

		now := time.Now().UTC()
		won, err := s.rooms.Assign(ctx, room.ID, perm.UserID, now)
		if err != nil {
			return err
		}
		if !won {
			observability.DispatcherOutcome("lost_race")
			continue
		}
		observability.DispatcherOutcome("assigned")

		assigned, err := s.rooms.GetByID(ctx, room.ID)
		if err != nil {
			return err
		}
		assigned.AppendTransfer(domain.TransferEvent{
			Action: domain.TransferActionAutoAssign,
			From:   domain.QueueRef(queue.ID, queue.Name),
			To:     domain.UserRef(perm.UserID, ""),
			At:     now,
		})
		if err := s.rooms.Update(ctx, assigned); err != nil {
			return err
		}

		s.notifyAssignment(ctx, assigned, perm, queue)
	}
	return nil
}

func (s *RoutingService) notifyAssignment(ctx context.Context, room *domain.Room, perm *domain.ProjectPermission, queue *domain.Queue) {
	ev := events.NewEvent(events.EventRoomUpdated, "rooms.update")
	ev.RoomID = room.ID
	ev.PermissionIDs = []string{perm.ID}
	ev.QueueIDs = []string{queue.ID}
	ev.Content = map[string]any{
		"uuid":      room.ID,
		"user":      perm.UserID,
		"queue":     queue.ID,
		"is_active": room.IsActive,
	}
	_ = s.dispatcher.Publish(ctx, ev)
}

func (s *RoutingService) hasBlockingStatus(ctx context.Context, permissionID string) (bool, error) {
	statuses, err := s.customStatus.ListActiveByPermission(ctx, permissionID)
	if err != nil {
		return false, err
	}
	for _, st := range statuses {
		if st.Name != domain.InServiceStatusName {
			return true, nil
		}
	}
	return false, nil
}

func (c Candidate) load() int {
	return c.ActiveRooms + c.ClosedToday
}

func sortCandidates(candidates []Candidate, policy domain.RoutingPolicy) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if policy == domain.RoutingGeneral {
			return candidates[i].load() < candidates[j].load()
		}
		return candidates[i].ActiveRooms < candidates[j].ActiveRooms
	})
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
