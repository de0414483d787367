package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/repository"
)

// SectorService syncs sectors, announces them on the flow engine's
// ticketer exchange, and answers tag-policy lookups.
type SectorService struct {
	sectors   repository.SectorRepository
	queues    *QueueService
	publisher InfoPublisher
	amqpCfg   config.AMQPConfig
	logger    *zap.Logger
}

// NewSectorService creates the sector service.
func NewSectorService(sectors repository.SectorRepository, queues *QueueService, publisher InfoPublisher, amqpCfg config.AMQPConfig, logger *zap.Logger) *SectorService {
	return &SectorService{
		sectors:   sectors,
		queues:    queues,
		publisher: publisher,
		amqpCfg:   amqpCfg,
		logger:    logger,
	}
}

// SectorCreateInput is the composite payload of a sector sync: the
// sector plus its queues.
type SectorCreateInput struct {
	Sector *domain.Sector
	Queues []*domain.Queue
}

// Create registers a sector and its queues.
func (s *SectorService) Create(ctx context.Context, in SectorCreateInput) error {
	if in.Sector.ID == "" {
		in.Sector.ID = uuid.NewString()
	}
	if in.Sector.CreatedAt.IsZero() {
		in.Sector.CreatedAt = time.Now().UTC()
	}
	if err := s.sectors.Create(ctx, in.Sector); err != nil {
		return err
	}
	for _, queue := range in.Queues {
		queue.SectorID = in.Sector.ID
		if err := s.queues.Create(ctx, queue); err != nil {
			return err
		}
	}
	s.announce(ctx, in.Sector, "create")
	return nil
}

// Update applies a sector sync.
func (s *SectorService) Update(ctx context.Context, sector *domain.Sector) error {
	if err := s.sectors.Update(ctx, sector); err != nil {
		return err
	}
	s.announce(ctx, sector, "update")
	return nil
}

// Delete soft-deletes a sector.
func (s *SectorService) Delete(ctx context.Context, id, actor string) error {
	return s.sectors.SoftDelete(ctx, id, actor)
}

// announce mirrors the change onto the flow engine's ticketer exchange
// so its ticketers stay aligned with the sector topology.
func (s *SectorService) announce(ctx context.Context, sector *domain.Sector, action string) {
	payload := map[string]any{
		"uuid":    sector.ID,
		"name":    sector.Name,
		"project": sector.ProjectID,
	}
	if err := s.publisher.Publish(ctx, s.amqpCfg.FlowsTicketerExchange, action, payload); err != nil {
		s.logger.Warn("ticketer announce failed",
			zap.String("sector", sector.ID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// TagPolicy is the answer to a required-tags lookup.
type TagPolicy struct {
	UUID         string `json:"uuid"`
	RequiredTags bool   `json:"required_tags"`
}

// CheckRequiredTags reports whether the sector requires tags on closure.
func (s *SectorService) CheckRequiredTags(ctx context.Context, sectorID string) (*TagPolicy, error) {
	sector, err := s.sectors.GetByID(ctx, sectorID)
	if err != nil {
		return nil, err
	}
	return &TagPolicy{UUID: sector.ID, RequiredTags: sector.RequiredTags}, nil
}
