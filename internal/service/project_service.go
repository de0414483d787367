package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/repository"
)

// ProjectService syncs projects arriving from the broker.
type ProjectService struct {
	projects repository.ProjectRepository
	sectors  *SectorService
	logger   *zap.Logger
}

// NewProjectService creates the project service.
func NewProjectService(projects repository.ProjectRepository, sectors *SectorService, logger *zap.Logger) *ProjectService {
	return &ProjectService{projects: projects, sectors: sectors, logger: logger}
}

// ProjectCreateInput is the composite payload of a project sync: the
// project plus any sectors to set up alongside it.
type ProjectCreateInput struct {
	Project *domain.Project
	Sectors []SectorCreateInput
}

// Create registers a project and runs sector setup for any sectors
// shipped in the same payload.
func (s *ProjectService) Create(ctx context.Context, in ProjectCreateInput) error {
	if in.Project.RoutingPolicy == "" {
		in.Project.RoutingPolicy = domain.RoutingQueuePriority
	}
	if in.Project.CreatedAt.IsZero() {
		in.Project.CreatedAt = time.Now().UTC()
	}
	if err := s.projects.Create(ctx, in.Project); err != nil {
		return err
	}
	for _, sectorIn := range in.Sectors {
		sectorIn.Sector.ProjectID = in.Project.ID
		if err := s.sectors.Create(ctx, sectorIn); err != nil {
			return err
		}
	}
	s.logger.Info("project created",
		zap.String("project", in.Project.ID),
		zap.Int("sectors", len(in.Sectors)),
	)
	return nil
}

// UpdateConfig replaces the project config map.
func (s *ProjectService) UpdateConfig(ctx context.Context, id string, cfg map[string]any) error {
	return s.projects.UpdateConfig(ctx, id, cfg)
}
