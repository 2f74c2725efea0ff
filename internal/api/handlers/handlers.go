package handlers

import (
	"context"

	"github.com/google/uuid"

	"stigwatch/internal/config"
	"stigwatch/internal/domain/models"
	"stigwatch/internal/domain/services"
	"stigwatch/internal/streaming"
	"stigwatch/pkg/logger"
)

// ChecklistWorkflow is the service surface the HTTP handlers drive
type ChecklistWorkflow interface {
	CreateSystem(ctx context.Context, name, description string) (*models.System, error)
	GetSystem(ctx context.Context, id uuid.UUID) (*models.System, error)
	ListSystems(ctx context.Context) ([]*models.System, error)
	DeleteSystem(ctx context.Context, id uuid.UUID) error

	Upload(ctx context.Context, systemID uuid.UUID, raw string) (*models.ChecklistRecord, error)
	Update(ctx context.Context, id uuid.UUID, raw string) (*models.ChecklistRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ChecklistRecord, error)
	List(ctx context.Context, systemID uuid.UUID) ([]*models.ChecklistRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error

	ImportScan(ctx context.Context, systemID uuid.UUID, raw string) (*services.ImportResult, error)
	Compliance(ctx context.Context, systemID uuid.UUID, impact models.ImpactLevel, majorControl string) (*models.ComplianceReport, error)
}

// Handlers holds all API handlers
type Handlers struct {
	Health     *HealthHandler
	Systems    *SystemsHandler
	Checklists *ChecklistsHandler
	Scans      *ScansHandler
	Compliance *ComplianceHandler
	Tools      *ToolsHandler
	Streaming  *StreamingHandler
}

// Dependencies holds dependencies for handlers
type Dependencies struct {
	Config   config.Config
	Service  ChecklistWorkflow
	Checks   map[string]Pinger
	WSHub    *streaming.WebSocketHub
	EventBus *streaming.EventBus
	Logger   *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	maxBody := deps.Config.Server.MaxUploadBytes
	return &Handlers{
		Health:     NewHealthHandler(deps.Config.App.Version, deps.Checks, deps.Logger),
		Systems:    NewSystemsHandler(deps.Service, deps.Logger),
		Checklists: NewChecklistsHandler(deps.Service, maxBody, deps.Logger),
		Scans:      NewScansHandler(deps.Service, maxBody, deps.Logger),
		Compliance: NewComplianceHandler(deps.Service, models.ParseImpactLevel(deps.Config.Compliance.DefaultImpact), deps.Logger),
		Tools:      NewToolsHandler(maxBody, deps.Logger),
		Streaming:  NewStreamingHandler(deps.WSHub, deps.EventBus, deps.Logger),
	}
}
