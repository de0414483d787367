package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/cache"
	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/events"
	"github.com/chatstack/routing-service/internal/flows"
	"github.com/chatstack/routing-service/internal/repository"
	"github.com/chatstack/routing-service/pkg/util"
)

// InfoPublisher is the slice of the broker publisher the room service
// needs for outbound fan-out (rooms-info on closure).
type InfoPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload any) error
}

// RoomService owns the conversation lifecycle and its invariants.
type RoomService struct {
	rooms       repository.RoomRepository
	queues      repository.QueueRepository
	sectors     repository.SectorRepository
	projects    repository.ProjectRepository
	contacts    repository.ContactRepository
	flowStarts  repository.FlowStartRepository
	messages    repository.MessageRepository
	metrics     repository.MetricsRepository
	permissions repository.PermissionRepository
	queueAuths  repository.QueueAuthorizationRepository
	routing     *RoutingService
	dispatcher  events.Dispatcher
	publisher   InfoPublisher
	flowClient  *flows.Client
	dashboards  cache.DashboardCache
	cfg         config.RoutingConfig
	amqpCfg     config.AMQPConfig
	callbacks   *http.Client
	logger      *zap.Logger
}

// RoomDependencies bundles collaborators for the room service.
type RoomDependencies struct {
	RoomRepo       repository.RoomRepository
	QueueRepo      repository.QueueRepository
	SectorRepo     repository.SectorRepository
	ProjectRepo    repository.ProjectRepository
	ContactRepo    repository.ContactRepository
	FlowStartRepo  repository.FlowStartRepository
	MessageRepo    repository.MessageRepository
	MetricsRepo    repository.MetricsRepository
	PermissionRepo repository.PermissionRepository
	QueueAuthRepo  repository.QueueAuthorizationRepository
	Routing        *RoutingService
	Dispatcher     events.Dispatcher
	Publisher      InfoPublisher
	FlowClient     *flows.Client
	Dashboards     cache.DashboardCache
	RoutingCfg     config.RoutingConfig
	AMQPCfg        config.AMQPConfig
	Logger         *zap.Logger
}

// NewRoomService creates the room service.
func NewRoomService(deps RoomDependencies) *RoomService {
	timeout := time.Duration(deps.RoutingCfg.CallbackTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RoomService{
		rooms:       deps.RoomRepo,
		queues:      deps.QueueRepo,
		sectors:     deps.SectorRepo,
		projects:    deps.ProjectRepo,
		contacts:    deps.ContactRepo,
		flowStarts:  deps.FlowStartRepo,
		messages:    deps.MessageRepo,
		metrics:     deps.MetricsRepo,
		permissions: deps.PermissionRepo,
		queueAuths:  deps.QueueAuthRepo,
		routing:     deps.Routing,
		dispatcher:  deps.Dispatcher,
		publisher:   deps.Publisher,
		flowClient:  deps.FlowClient,
		dashboards:  deps.Dashboards,
		cfg:         deps.RoutingCfg,
		amqpCfg:     deps.AMQPCfg,
		callbacks:   &http.Client{Timeout: timeout},
		logger:      deps.Logger,
	}
}

// RoomCreateInput describes a room-creation request from the external
// facade or a flow start.
type RoomCreateInput struct {
	ContactExternalID string
	ContactName       string
	URN               string
	QueueID           string
	SectorID          string
	TicketUUID        *string
	CallbackURL       *string
	CustomFields      map[string]any
	FlowUUID          string
	CreatedByUserID   string
}

// Create opens a room, or returns the existing one on re-engagement.
// Validation runs in a fixed order: queue resolution, working hours,
// active-conflict, routing.
func (s *RoomService) Create(ctx context.Context, in RoomCreateInput) (*domain.Room, error) {
	queue, sector, err := s.resolveQueue(ctx, in)
	if err != nil {
		return nil, err
	}

	var flowStart *domain.FlowStart
	if in.FlowUUID != "" {
		flowStart, _ = s.flowStarts.GetActiveByFlowUUID(ctx, in.FlowUUID)
	}

	contact, err := s.contacts.GetOrCreate(ctx, in.ContactExternalID, in.ContactName)
	if err != nil {
		return nil, err
	}

	reEngagement := flowStart != nil && flowStart.RoomID != nil

	project, err := s.projects.GetByID(ctx, sector.ProjectID)
	if err != nil {
		return nil, err
	}
	if !sector.CanAttend(time.Now().In(project.Location())) && !reEngagement {
		return nil, util.NewPolicyError(util.CodeOutsideWorkingHours,
			"sector is outside working hours", map[string]any{"sector": sector.ID})
	}

	if existing, err := s.rooms.GetActiveByContactQueue(ctx, contact.ID, queue.ID); err == nil && existing != nil {
		if flowStart != nil {
			return s.reEngage(ctx, existing, in)
		}
		return nil, util.NewConflict("an active room already exists for this contact and queue",
			map[string]any{"room": existing.ID})
	}

	candidate, err := s.routing.SelectAgent(ctx, queue)
	if err != nil {
		return nil, err
	}
	if candidate == nil && !sector.OpenOffline && !sector.WorkingHours.OpenInOffHours {
		return nil, util.NewPolicyError(util.CodeNoAgentsAvailable,
			"no agents available for this queue", map[string]any{"queue": queue.ID})
	}

	now := time.Now().UTC()
	room := &domain.Room{
		ID:             uuid.NewString(),
		QueueID:        queue.ID,
		ContactID:      contact.ID,
		TicketUUID:     in.TicketUUID,
		CallbackURL:    in.CallbackURL,
		URN:            in.URN,
		IsActive:       true,
		AddedToQueueAt: &now,
		CustomFields:   in.CustomFields,
	}
	if candidate != nil {
		userID := candidate.Permission.UserID
		room.UserID = &userID
		room.FirstUserAssignedAt = &now
		room.AppendTransfer(domain.TransferEvent{
			Action: domain.TransferActionAutoAssign,
			From:   domain.QueueRef(queue.ID, queue.Name),
			To:     domain.UserRef(userID, ""),
			At:     now,
		})
	}

	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, err
	}
	metric := &domain.RoomMetrics{ID: uuid.NewString(), RoomID: room.ID, QueuedCount: 1}
	if err := s.metrics.Create(ctx, metric); err != nil {
		return nil, err
	}
	if in.FlowUUID != "" || in.CreatedByUserID != "" {
		s.feedbackMessage(ctx, room, "room_create", map[string]any{
			"flow": in.FlowUUID,
			"user": in.CreatedByUserID,
		})
	}
	if flowStart != nil {
		_ = s.flowStarts.BindRoom(ctx, flowStart.ID, room.ID)
	}

	s.invalidateDashboards(ctx, project.ID)
	s.publishRoomEvent(ctx, events.EventRoomCreated, "rooms.create", room, queue)
	if candidate != nil {
		s.routing.notifyAssignment(ctx, room, candidate.Permission, queue)
	}
	return room, nil
}

// reEngage updates ticket, callback and URN on the existing room instead
// of opening a duplicate.
func (s *RoomService) reEngage(ctx context.Context, room *domain.Room, in RoomCreateInput) (*domain.Room, error) {
	if in.TicketUUID != nil {
		room.TicketUUID = in.TicketUUID
	}
	if in.CallbackURL != nil {
		room.CallbackURL = in.CallbackURL
	}
	if in.URN != "" {
		room.URN = in.URN
	}
	if err := s.rooms.Update(ctx, room); err != nil {
		return nil, err
	}
	s.fireCallback(room)
	return room, nil
}

// TransferInput describes an explicit transfer request.
type TransferInput struct {
	RoomID        string
	TargetUserID  string
	TargetQueueID string
	Action        domain.TransferAction
	RequestedBy   *domain.TransferRef
}

// Transfer moves a room to another queue or user, appending to the
// transfer history.
func (s *RoomService) Transfer(ctx context.Context, in TransferInput) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, util.NewValidationError("room is closed", nil)
	}
	queue, err := s.queues.GetByID(ctx, room.QueueID)
	if err != nil {
		return nil, err
	}

	from := domain.QueueRef(queue.ID, queue.Name)
	prevPermID := ""
	if room.Assigned() {
		from = domain.UserRef(*room.UserID, "")
		if sector, err := s.sectors.GetByID(ctx, queue.SectorID); err == nil {
			if perm, err := s.permissions.GetByProjectUser(ctx, sector.ProjectID, *room.UserID); err == nil {
				prevPermID = perm.ID
			}
		}
	}

	now := time.Now().UTC()
	action := in.Action
	if action == "" {
		action = domain.TransferActionTransfer
	}

	var to *domain.TransferRef
	switch {
	case in.TargetQueueID != "":
		target, err := s.queues.GetByID(ctx, in.TargetQueueID)
		if err != nil {
			return nil, err
		}
		room.UserID = nil
		room.QueueID = target.ID
		room.AddedToQueueAt = &now
		to = domain.QueueRef(target.ID, target.Name)
		queue = target
	case in.TargetUserID != "":
		if err := s.checkQueueAuthority(ctx, queue, in.TargetUserID); err != nil {
			return nil, err
		}
		userID := in.TargetUserID
		room.UserID = &userID
		if room.FirstUserAssignedAt == nil {
			room.FirstUserAssignedAt = &now
		}
		to = domain.UserRef(userID, "")
	default:
		return nil, util.NewValidationError("transfer requires a target user or queue", nil)
	}

	room.AppendTransfer(domain.TransferEvent{
		Action:      action,
		From:        from,
		To:          to,
		RequestedBy: in.RequestedBy,
		At:          now,
	})
	if err := s.rooms.Update(ctx, room); err != nil {
		return nil, err
	}
	_ = s.metrics.IncrementTransferCount(ctx, room.ID)
	if in.TargetQueueID != "" {
		_ = s.metrics.IncrementQueuedCount(ctx, room.ID)
	}

	s.feedbackMessage(ctx, room, "room_transfer", map[string]any{
		"action": string(action),
		"from":   from,
		"to":     to,
	})

	ev := events.NewEvent(events.EventRoomTransferred, "rooms.update")
	ev.RoomID = room.ID
	if prevPermID != "" {
		ev.PermissionIDs = []string{prevPermID}
	}
	ev.QueueIDs = []string{queue.ID}
	ev.Content = roomContent(room)
	_ = s.dispatcher.Publish(ctx, ev)

	s.invalidateRoomDashboards(ctx, room)
	return room, nil
}

// Pick assigns a queued room to the requesting agent, recording a pick
// transfer event.
func (s *RoomService) Pick(ctx context.Context, ticketUUID, userID string) (*domain.Room, error) {
	room, err := s.rooms.GetByTicket(ctx, ticketUUID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, util.NewValidationError("room is closed", nil)
	}
	if room.Assigned() {
		return nil, util.NewConflict("room is already assigned", map[string]any{"room": room.ID})
	}
	queue, err := s.queues.GetByID(ctx, room.QueueID)
	if err != nil {
		return nil, err
	}
	if err := s.checkQueueAuthority(ctx, queue, userID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	won, err := s.rooms.Assign(ctx, room.ID, userID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, util.NewConflict("room was assigned concurrently", map[string]any{"room": room.ID})
	}
	room, err = s.rooms.GetByID(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	room.AppendTransfer(domain.TransferEvent{
		Action: domain.TransferActionPick,
		From:   domain.QueueRef(queue.ID, queue.Name),
		To:     domain.UserRef(userID, ""),
		At:     now,
	})
	if err := s.rooms.Update(ctx, room); err != nil {
		return nil, err
	}
	s.publishRoomEvent(ctx, events.EventRoomUpdated, "rooms.update", room, queue)
	return room, nil
}

// Close ends a room. Closed rooms are never mutated again.
func (s *RoomService) Close(ctx context.Context, roomID string, tags []string, actor, endBy string) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, util.NewValidationError("room is already closed", nil)
	}
	queue, err := s.queues.GetByID(ctx, room.QueueID)
	if err != nil {
		return nil, err
	}
	sector, err := s.sectors.GetByID(ctx, queue.SectorID)
	if err != nil {
		return nil, err
	}
	if sector.RequiredTags && len(tags) == 0 {
		return nil, util.NewPolicyError(util.CodeTagsRequired,
			"this sector requires tags on closure", map[string]any{"sector": sector.ID})
	}

	now := time.Now().UTC()
	room.IsActive = false
	room.EndedAt = &now
	endedBy := endBy
	if endedBy == "" {
		endedBy = actor
	}
	room.EndedBy = &endedBy
	if len(tags) > 0 {
		room.Tags = tags
	}
	if err := s.rooms.Update(ctx, room); err != nil {
		return nil, err
	}

	s.feedbackMessage(ctx, room, "room_close", map[string]any{
		"ended_by": endedBy,
	})

	s.publishRoomEvent(ctx, events.EventRoomClosed, "rooms.close", room, queue)
	s.invalidateDashboards(ctx, sector.ProjectID)
	s.fireCallback(room)
	s.publishRoomsInfo(ctx, room, queue, sector)
	return room, nil
}

// BulkCloseInput carries one bulk-close request.
type BulkCloseInput struct {
	RoomIDs []string
	Tags    map[string][]string // room id -> tags
	Actor   string
	EndBy   string
}

// BulkCloseResult aggregates outcome counters and the first error
// descriptors.
type BulkCloseResult struct {
	Succeeded     int              `json:"success_count"`
	Failed        int              `json:"failed_count"`
	Errors        []BulkCloseError `json:"errors"`
	HasMoreErrors bool             `json:"has_more_errors"`
}

// BulkCloseError describes one per-room failure.
type BulkCloseError struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

const bulkCloseErrorCap = 10

// BulkClose closes rooms in chunks with a pause between batches. Every
// room goes through the single-room path so side effects stay identical.
func (s *RoomService) BulkClose(ctx context.Context, in BulkCloseInput) (*BulkCloseResult, error) {
	chunkSize := s.cfg.BulkCloseChunkSize
	if chunkSize <= 0 {
		chunkSize = 200
	}
	pause := time.Duration(s.cfg.BulkClosePauseMS) * time.Millisecond

	result := &BulkCloseResult{}
	for start := 0; start < len(in.RoomIDs); start += chunkSize {
		if start > 0 && pause > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(pause):
			}
		}
		end := start + chunkSize
		if end > len(in.RoomIDs) {
			end = len(in.RoomIDs)
		}
		for _, roomID := range in.RoomIDs[start:end] {
			if _, err := s.Close(ctx, roomID, in.Tags[roomID], in.Actor, in.EndBy); err != nil {
				result.Failed++
				if len(result.Errors) < bulkCloseErrorCap {
					result.Errors = append(result.Errors, BulkCloseError{
						RoomID: roomID,
						Reason: util.ToDomainError(err).Message,
					})
				} else {
					result.HasMoreErrors = true
				}
				continue
			}
			result.Succeeded++
		}
	}
	return result, nil
}

// UpdateCustomFields merges fields into the room and propagates the edit
// to the flow engine. The edit is refused when the sector disables it.
func (s *RoomService) UpdateCustomFields(ctx context.Context, roomID string, fields map[string]any) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, util.NewValidationError("room is closed", nil)
	}
	queue, err := s.queues.GetByID(ctx, room.QueueID)
	if err != nil {
		return nil, err
	}
	sector, err := s.sectors.GetByID(ctx, queue.SectorID)
	if err != nil {
		return nil, err
	}
	if !sector.AllowEditCustomFields {
		return nil, util.NewPolicyError(util.CodeCustomFieldsDisabled,
			"this sector does not allow editing custom fields", map[string]any{"sector": sector.ID})
	}

	contact, err := s.contacts.GetByID(ctx, room.ContactID)
	if err != nil {
		return nil, err
	}
	if err := s.flowClient.SyncContactFields(ctx, contact.ExternalID, fields); err != nil {
		return nil, err
	}

	if room.CustomFields == nil {
		room.CustomFields = map[string]any{}
	}
	for k, v := range fields {
		room.CustomFields[k] = v
	}
	if err := s.rooms.Update(ctx, room); err != nil {
		return nil, err
	}
	s.publishRoomEvent(ctx, events.EventRoomUpdated, "rooms.update", room, queue)
	return room, nil
}

// ReturnRoomsToQueue unassigns every active room held by userID in the
// given scope, appending a transfer event and refreshing the queue
// timestamp. Used by the permission cascade.
func (s *RoomService) ReturnRoomsToQueue(ctx context.Context, rooms []domain.Room, userID string) error {
	now := time.Now().UTC()
	for i := range rooms {
		room := &rooms[i]
		queue, err := s.queues.GetByID(ctx, room.QueueID)
		if err != nil {
			return err
		}
		prevPermID := ""
		if sector, err := s.sectors.GetByID(ctx, queue.SectorID); err == nil {
			if perm, err := s.permissions.GetByProjectUser(ctx, sector.ProjectID, userID); err == nil {
				prevPermID = perm.ID
			}
		}

		room.UserID = nil
		room.AddedToQueueAt = &now
		room.AppendTransfer(domain.TransferEvent{
			Action: domain.TransferActionTransfer,
			From:   domain.UserRef(userID, ""),
			To:     domain.QueueRef(queue.ID, queue.Name),
			At:     now,
		})
		if err := s.rooms.Update(ctx, room); err != nil {
			return err
		}
		_ = s.metrics.IncrementQueuedCount(ctx, room.ID)

		ev := events.NewEvent(events.EventRoomTransferred, "rooms.update")
		ev.RoomID = room.ID
		if prevPermID != "" {
			ev.PermissionIDs = []string{prevPermID}
		}
		ev.QueueIDs = []string{queue.ID}
		ev.Content = roomContent(room)
		_ = s.dispatcher.Publish(ctx, ev)
	}
	return nil
}

// AuthorizeExternal verifies the caller holds the communicate-internally
// capability on the project owning the target queue or sector.
func (s *RoomService) AuthorizeExternal(ctx context.Context, userID string, in RoomCreateInput) error {
	_, sector, err := s.resolveQueue(ctx, in)
	if err != nil {
		return err
	}
	perm, err := s.permissions.GetByProjectUser(ctx, sector.ProjectID, userID)
	if err != nil {
		return util.NewForbidden("no permission on this project")
	}
	if !perm.CanCommunicateInternally() {
		return util.NewForbidden("permission does not allow internal communication")
	}
	return nil
}

func (s *RoomService) resolveQueue(ctx context.Context, in RoomCreateInput) (*domain.Queue, *domain.Sector, error) {
	if in.QueueID != "" {
		queue, err := s.queues.GetByID(ctx, in.QueueID)
		if err != nil {
			return nil, nil, err
		}
		sector, err := s.sectors.GetByID(ctx, queue.SectorID)
		if err != nil {
			return nil, nil, err
		}
		return queue, sector, nil
	}
	if in.SectorID == "" {
		return nil, nil, util.NewValidationError("a queue or sector identifier is required", nil)
	}
	sector, err := s.sectors.GetByID(ctx, in.SectorID)
	if err != nil {
		return nil, nil, err
	}
	queues, err := s.queues.ListBySector(ctx, in.SectorID)
	if err != nil {
		return nil, nil, err
	}
	// Load balance across the sector's queues by active-room count.
	var picked *domain.Queue
	best := -1
	for i := range queues {
		if queues[i].IsDeleted {
			continue
		}
		count, err := s.queues.CountActiveRooms(ctx, queues[i].ID)
		if err != nil {
			return nil, nil, err
		}
		if best < 0 || count < best {
			best = count
			picked = &queues[i]
		}
	}
	if picked == nil {
		return nil, nil, util.NewNotFound("queue", map[string]any{"sector": in.SectorID})
	}
	return picked, sector, nil
}

func (s *RoomService) checkQueueAuthority(ctx context.Context, queue *domain.Queue, userID string) error {
	sector, err := s.sectors.GetByID(ctx, queue.SectorID)
	if err != nil {
		return err
	}
	perm, err := s.permissions.GetByProjectUser(ctx, sector.ProjectID, userID)
	if err != nil {
		return util.NewForbidden("user has no permission on this project")
	}
	if _, err := s.queueAuths.GetByPermissionQueue(ctx, perm.ID, queue.ID); err != nil {
		return util.NewForbidden("user is not authorized on the destination queue")
	}
	return nil
}

// feedbackMessage writes a system-authored message narrating a lifecycle
// event. The text is the JSON form of {method, content}.
func (s *RoomService) feedbackMessage(ctx context.Context, room *domain.Room, method string, content map[string]any) {
	text, err := json.Marshal(map[string]any{"method": method, "content": content})
	if err != nil {
		return
	}
	msg := &domain.Message{
		ID:        ulid.Make().String(),
		RoomID:    room.ID,
		Text:      string(text),
		Status:    domain.MessageQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		s.logger.Warn("feedback message write failed",
			zap.String("room", room.ID), zap.Error(err))
	}
}

func (s *RoomService) publishRoomEvent(ctx context.Context, t events.EventType, action string, room *domain.Room, queue *domain.Queue) {
	ev := events.NewEvent(t, action)
	ev.RoomID = room.ID
	ev.QueueIDs = []string{queue.ID}
	ev.RoomIDs = []string{room.ID}
	ev.Content = roomContent(room)
	_ = s.dispatcher.Publish(ctx, ev)
}

// fireCallback posts the room snapshot to its callback URL in the
// background. Best effort: a failed callback is logged, never retried
// into the request path.
func (s *RoomService) fireCallback(room *domain.Room) {
	if room.CallbackURL == nil || *room.CallbackURL == "" {
		return
	}
	url := *room.CallbackURL
	payload, err := json.Marshal(roomContent(room))
	if err != nil {
		return
	}
	go func() {
		resp, err := s.callbacks.Post(url, "application/json", bytes.NewReader(payload))
		if err != nil {
			s.logger.Warn("room callback failed",
				zap.String("room", room.ID), zap.Error(err))
			return
		}
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode >= 400 {
			s.logger.Warn("room callback rejected",
				zap.String("room", room.ID), zap.Int("status", resp.StatusCode))
		}
	}()
}

// publishRoomsInfo pushes the closure summary to the billing exchange.
func (s *RoomService) publishRoomsInfo(ctx context.Context, room *domain.Room, queue *domain.Queue, sector *domain.Sector) {
	payload := map[string]any{
		"uuid":       room.ID,
		"queue":      queue.ID,
		"sector":     sector.ID,
		"project":    sector.ProjectID,
		"created_on": room.CreatedAt,
		"ended_at":   room.EndedAt,
		"ended_by":   room.EndedBy,
		"tags":       room.Tags,
	}
	if err := s.publisher.Publish(ctx, s.amqpCfg.RoomsInfoExchange, "", payload); err != nil {
		s.logger.Warn("rooms-info publish failed", zap.String("room", room.ID), zap.Error(err))
	}
}

func (s *RoomService) invalidateDashboards(ctx context.Context, projectID string) {
	if err := s.dashboards.InvalidateProject(ctx, projectID); err != nil {
		s.logger.Debug("dashboard invalidation failed", zap.Error(err))
	}
}

func (s *RoomService) invalidateRoomDashboards(ctx context.Context, room *domain.Room) {
	queue, err := s.queues.GetByID(ctx, room.QueueID)
	if err != nil {
		return
	}
	sector, err := s.sectors.GetByID(ctx, queue.SectorID)
	if err != nil {
		return
	}
	s.invalidateDashboards(ctx, sector.ProjectID)
}

func roomContent(room *domain.Room) map[string]any {
	content := map[string]any{
		"uuid":          room.ID,
		"queue":         room.QueueID,
		"contact":       room.ContactID,
		"is_active":     room.IsActive,
		"urn":           room.URN,
		"created_on":    room.CreatedAt,
		"custom_fields": room.CustomFields,
	}
	if room.UserID != nil {
		content["user"] = *room.UserID
	}
	if room.TicketUUID != nil {
		content["ticket_uuid"] = *room.TicketUUID
	}
	if room.EndedAt != nil {
		content["ended_at"] = *room.EndedAt
	}
	return content
}
