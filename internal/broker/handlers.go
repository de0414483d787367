package broker

import (
	"context"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/repository"
	"github.com/chatstack/routing-service/internal/service"
	"github.com/chatstack/routing-service/pkg/util"
)

// Inbound topics.
const (
	TopicProjects      = "chats.projects"
	TopicTemplateTypes = "chats.template-types"
	TopicSectors       = "chats.sectors"
	TopicQueues        = "chats.queues"
	TopicPermissions   = "chats.permissions"
	TopicMessages      = "chats.msgs"
	TopicMessageStatus = "chats.msgs-status"
	TopicDeadLetter    = "chats.dlq"
)

// Handlers groups the services the consumers dispatch into.
type Handlers struct {
	Projects      *service.ProjectService
	Sectors       *service.SectorService
	Queues        *service.QueueService
	Permissions   *service.PermissionService
	Messages      *service.MessageService
	StatusBuffer  *service.StatusBuffer
	TemplateTypes repository.TemplateTypeRepository
	Publisher     *Publisher
	AMQPCfg       config.AMQPConfig
	Logger        *zap.Logger
}

// RegisterAll binds every topic to its handler.
func RegisterAll(consumer *Consumer, h Handlers) {
	consumer.Register(TopicProjects, h.projectHandler())
	consumer.Register(TopicTemplateTypes, h.templateTypeHandler())
	consumer.Register(TopicSectors, h.sectorHandler())
	consumer.Register(TopicQueues, h.queueHandler())
	consumer.Register(TopicPermissions, h.permissionHandler())
	consumer.Register(TopicMessages, h.messageHandler())
	consumer.Register(TopicMessageStatus, h.messageStatusHandler())
	consumer.Register(TopicDeadLetter, h.deadLetterHandler())
}

type queuePayload struct {
	UUID        string `json:"uuid"`
	SectorUUID  string `json:"sector_uuid"`
	Name        string `json:"name"`
	RoomsLimit  int    `json:"rooms_limit"`
	LimitActive bool   `json:"limit_active"`
}

type sectorPayload struct {
	UUID                  string              `json:"uuid"`
	ProjectUUID           string              `json:"project_uuid"`
	Name                  string              `json:"name"`
	RoomsLimit            int                 `json:"rooms_limit"`
	WorkingHours          domain.WorkingHours `json:"working_hours"`
	RequiredTags          bool                `json:"required_tags"`
	AllowEditCustomFields bool                `json:"can_edit_custom_fields"`
	OpenOffline           bool                `json:"open_offline"`
	Queues                []queuePayload      `json:"queues"`
}

type projectPayload struct {
	UUID        string          `json:"uuid"`
	Name        string          `json:"name"`
	Timezone    string          `json:"timezone"`
	RoutingType string          `json:"room_routing_type"`
	Config      map[string]any  `json:"config"`
	Sectors     []sectorPayload `json:"sectors"`
}

func (h Handlers) projectHandler() Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		var payload projectPayload
		if err := DecodeBody(d, &payload); err != nil {
			return err
		}
		if payload.UUID == "" || payload.Name == "" {
			return util.NewValidationError("project payload missing uuid or name", nil)
		}
		in := service.ProjectCreateInput{
			Project: &domain.Project{
				ID:            payload.UUID,
				Name:          payload.Name,
				Timezone:      payload.Timezone,
				RoutingPolicy: domain.RoutingPolicy(payload.RoutingType),
				Config:        payload.Config,
			},
		}
		for _, sec := range payload.Sectors {
			in.Sectors = append(in.Sectors, sectorInput(sec))
		}
		return h.Projects.Create(ctx, in)
	}
}

func (h Handlers) templateTypeHandler() Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		var payload struct {
			UUID    string         `json:"uuid"`
			Name    string         `json:"name"`
			Payload map[string]any `json:"payload"`
		}
		if err := DecodeBody(d, &payload); err != nil {
			return err
		}
		if payload.UUID == "" || payload.Name == "" {
			return util.NewValidationError("template type payload missing uuid or name", nil)
		}
		return h.TemplateTypes.Upsert(ctx, &repository.TemplateType{
			ExternalID: payload.UUID,
			Name:       payload.Name,
			Payload:    payload.Payload,
		})
	}
}

func (h Handlers) sectorHandler() Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		var payload sectorPayload
		if err := DecodeBody(d, &payload); err != nil {
			return err
		}
		if payload.ProjectUUID == "" {
			return util.NewValidationError("sector payload missing project uuid", nil)
		}
		return h.Sectors.Create(ctx, sectorInput(payload))
	}
}

func (h Handlers) queueHandler() Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		var payload struct {
			Action string `json:"action"`
			Actor  string `json:"actor"`
			queuePayload
		}
		if err := DecodeBody(d, &payload); err != nil {
			return err
		}
		queue := &domain.Queue{
			ID:          payload.UUID,
			SectorID:    payload.SectorUUID,
			Name:        payload.Name,
			RoomsLimit:  payload.RoomsLimit,
			LimitActive: payload.LimitActive,
		}
		switch payload.Action {
		case "create":
			return h.Queues.Create(ctx, queue)
		case "update":
			return h.Queues.Update(ctx, queue)
		case "delete":
			return h.Queues.Delete(ctx, payload.UUID, payload.Actor)
		default:
			return util.NewValidationError("unknown queue action", map[string]any{"action": payload.Action})
		}
	}
}

func (h Handlers) permissionHandler() Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		var payload struct {
			Action      string `json:"action"`
			UUID        string `json:"uuid"`
			ProjectUUID string `json:"project_uuid"`
			UserUUID    string `json:"user_uuid"`
			Role        string `json:"role"`
			Status      string `json:"status"`
		}
		if err := DecodeBody(d, &payload); err != nil {
			return err
		}
		switch payload.Action {
		case "create":
			return h.Permissions.Create(ctx, &domain.ProjectPermission{
				ID:        payload.UUID,
				ProjectID: payload.ProjectUUID,
				UserID:    payload.UserUUID,
				Role:      domain.Role(payload.Role),
				Status:    domain.PresenceStatus(payload.Status),
			})
		case "update":
			return h.Permissions.Update(ctx, &domain.ProjectPermission{
				ID:        payload.UUID,
				ProjectID: payload.ProjectUUID,
				UserID:    payload.UserUUID,
				Role:      domain.Role(payload.Role),
				Status:    domain.PresenceStatus(payload.Status),
			})
		case "status":
			return h.Permissions.UpdateStatus(ctx, payload.UUID, domain.PresenceStatus(payload.Status))
		case "delete":
			return h.Permissions.Delete(ctx, payload.UUID)
		default:
			return util.NewValidationError("unknown permission action", map[string]any{"action": payload.Action})
		}
	}
}

func (h Handlers) messageHandler() Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		var payload struct {
			MessageUUID string `json:"message_uuid"`
			ExternalID  string `json:"external_id"`
		}
		if err := DecodeBody(d, &payload); err != nil {
			return err
		}
		if payload.MessageUUID == "" || payload.ExternalID == "" {
			return util.NewValidationError("message bind payload incomplete", nil)
		}
		return h.Messages.BindExternalID(ctx, payload.MessageUUID, payload.ExternalID)
	}
}

func (h Handlers) messageStatusHandler() Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		var payload struct {
			ExternalID string `json:"external_id"`
			Status     string `json:"status"`
		}
		if err := DecodeBody(d, &payload); err != nil {
			return err
		}
		if payload.ExternalID == "" {
			return util.NewValidationError("status payload missing external id", nil)
		}
		h.StatusBuffer.Add(ctx, repository.StatusUpdate{
			ExternalID: payload.ExternalID,
			Status:     domain.MessageStatus(payload.Status),
		})
		return nil
	}
}

const deadLetterHopHeader = "x-requeue-hops"

// deadLetterHandler logs the failure and requeues the message to its
// original queue, preserving x-death and bounding the hop count so a
// poison message cannot loop forever. Past the limit it degrades to
// log-only.
func (h Handlers) deadLetterHandler() Handler {
	maxHops := h.AMQPCfg.DeadLetterMaxHops
	if maxHops <= 0 {
		maxHops = 3
	}
	return func(ctx context.Context, d amqp.Delivery) error {
		originalQueue := deathQueue(d.Headers)
		hops, _ := d.Headers[deadLetterHopHeader].(int32)

		h.Logger.Warn("dead letter received",
			zap.String("original_queue", originalQueue),
			zap.Int32("hops", hops),
		)

		if originalQueue == "" || int(hops) >= maxHops {
			h.Logger.Error("dead letter dropped",
				zap.String("original_queue", originalQueue),
				zap.Int32("hops", hops),
			)
			return nil
		}

		headers := amqp.Table{}
		for k, v := range d.Headers {
			headers[k] = v
		}
		headers[deadLetterHopHeader] = hops + 1
		return h.Publisher.PublishRaw(ctx, "", originalQueue, d.Body, headers)
	}
}

// deathQueue extracts the original queue name from the broker's x-death
// header.
func deathQueue(headers amqp.Table) string {
	deaths, ok := headers["x-death"].([]any)
	if !ok || len(deaths) == 0 {
		return ""
	}
	death, ok := deaths[0].(amqp.Table)
	if !ok {
		return ""
	}
	queue, _ := death["queue"].(string)
	return queue
}

func sectorInput(payload sectorPayload) service.SectorCreateInput {
	sector := &domain.Sector{
		ID:                    payload.UUID,
		ProjectID:             payload.ProjectUUID,
		Name:                  payload.Name,
		RoomsLimit:            payload.RoomsLimit,
		WorkingHours:          payload.WorkingHours,
		RequiredTags:          payload.RequiredTags,
		AllowEditCustomFields: payload.AllowEditCustomFields,
		OpenOffline:           payload.OpenOffline,
	}
	if sector.ID == "" {
		sector.ID = uuid.NewString()
	}
	in := service.SectorCreateInput{Sector: sector}
	for _, q := range payload.Queues {
		in.Queues = append(in.Queues, &domain.Queue{
			ID:          q.UUID,
			SectorID:    sector.ID,
			Name:        q.Name,
			RoomsLimit:  q.RoomsLimit,
			LimitActive: q.LimitActive,
		})
	}
	return in
}
