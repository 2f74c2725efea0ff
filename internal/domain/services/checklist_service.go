package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"stigwatch/internal/catalog"
	"stigwatch/internal/ckl"
	"stigwatch/internal/domain/models"
	"stigwatch/internal/scan"
	"stigwatch/internal/templates"
	"stigwatch/pkg/logger"
)

var (
	// ErrSystemNotFound is returned when the addressed system does not exist
	ErrSystemNotFound = errors.New("system not found")
	// ErrSystemNameRequired is returned when a system is created without a name
	ErrSystemNameRequired = errors.New("system name is required")
	// ErrChecklistNotFound is returned when the addressed checklist does not exist
	ErrChecklistNotFound = errors.New("checklist not found")
	// ErrEmptyChecklist is returned for documents that parse but carry no
	// checklist content
	ErrEmptyChecklist = errors.New("document contains no checklist")
	// ErrMalformedDocument wraps XML syntax and encoding errors of uploads
	ErrMalformedDocument = errors.New("malformed document")
	// ErrNoScanTitle is returned for scan results without a benchmark title
	ErrNoScanTitle = errors.New("scan results carry no benchmark title")
	// ErrTemplateNotFound is returned when a scan matches neither an
	// existing checklist nor a template
	ErrTemplateNotFound = errors.New("no checklist or template matches the scan benchmark")
)

// ChecklistStore defines the interface for checklist storage
type ChecklistStore interface {
	Create(ctx context.Context, c *models.ChecklistRecord) error
	Update(ctx context.Context, c *models.ChecklistRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChecklistRecord, error)
	ListBySystem(ctx context.Context, systemID uuid.UUID) ([]*models.ChecklistRecord, error)
	// FindByHost returns the latest checklist of a system for a host and
	// benchmark, or nil
	FindByHost(ctx context.Context, systemID uuid.UUID, hostName, stigID string) (*models.ChecklistRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// SystemStore defines the interface for system storage
type SystemStore interface {
	Create(ctx context.Context, s *models.System) (*models.System, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.System, error)
	List(ctx context.Context) ([]*models.System, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TemplateStore finds the blank checklist for a benchmark title. A miss is
// (nil, nil).
type TemplateStore interface {
	Lookup(ctx context.Context, title string) (*models.Template, error)
}

// ReportCache stores rendered compliance reports per system
type ReportCache interface {
	GetReport(ctx context.Context, systemID, impact, majorControl string, dest any) (bool, error)
	SetReport(ctx context.Context, systemID, impact, majorControl string, report any, ttl time.Duration) error
	InvalidateSystem(ctx context.Context, systemID string) error
}

// EventPublisher defines the interface for publishing checklist events
type EventPublisher interface {
	ChecklistCreated(ctx context.Context, record *models.ChecklistRecord) error
	ChecklistUpdated(ctx context.Context, record *models.ChecklistRecord) error
	ChecklistDeleted(ctx context.Context, record *models.ChecklistRecord) error
	ScanImported(ctx context.Context, record *models.ChecklistRecord, updated int) error
}

// ChecklistServiceConfig holds the optional collaborators of a
// ChecklistService
type ChecklistServiceConfig struct {
	Templates TemplateStore
	Cache     ReportCache
	Publisher EventPublisher
	CacheTTL  time.Duration
}

// ChecklistService runs the checklist workflow: uploads, scan imports and
// compliance reports for a system
type ChecklistService struct {
	systems    SystemStore
	checklists ChecklistStore
	templates  TemplateStore
	cache      ReportCache
	publisher  EventPublisher
	cacheTTL   time.Duration

	compliance *ComplianceService
	snapshot   *catalog.Snapshot
	logger     *logger.Logger
}

// NewChecklistService creates a new ChecklistService
func NewChecklistService(
	systems SystemStore,
	checklists ChecklistStore,
	compliance *ComplianceService,
	snapshot *catalog.Snapshot,
	cfg ChecklistServiceConfig,
	log *logger.Logger,
) *ChecklistService {
	if snapshot == nil {
		snapshot = &catalog.Snapshot{}
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ChecklistService{
		systems:    systems,
		checklists: checklists,
		templates:  cfg.Templates,
		cache:      cfg.Cache,
		publisher:  cfg.Publisher,
		cacheTTL:   ttl,
		compliance: compliance,
		snapshot:   snapshot,
		logger:     log.WithComponent("checklists"),
	}
}

// CreateSystem registers a new system
func (s *ChecklistService) CreateSystem(ctx context.Context, name, description string) (*models.System, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrSystemNameRequired
	}
	sys, err := s.systems.Create(ctx, &models.System{Name: name, Description: strings.TrimSpace(description)})
	if err != nil {
		return nil, err
	}
	s.logger.WithSystemID(sys.ID.String()).Info().Str("name", sys.Name).Msg("system created")
	return sys, nil
}

// GetSystem returns a system or ErrSystemNotFound
func (s *ChecklistService) GetSystem(ctx context.Context, id uuid.UUID) (*models.System, error) {
	sys, err := s.systems.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sys == nil {
		return nil, ErrSystemNotFound
	}
	return sys, nil
}

// ListSystems returns every system
func (s *ChecklistService) ListSystems(ctx context.Context) ([]*models.System, error) {
	return s.systems.List(ctx)
}

// DeleteSystem removes a system together with its checklists
func (s *ChecklistService) DeleteSystem(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetSystem(ctx, id); err != nil {
		return err
	}
	if err := s.systems.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.logger.WithSystemID(id.String()).Info().Msg("system deleted")
	return nil
}

// Upload canonicalizes and stores a checklist document in a system
func (s *ChecklistService) Upload(ctx context.Context, systemID uuid.UUID, raw string) (*models.ChecklistRecord, error) {
	if _, err := s.GetSystem(ctx, systemID); err != nil {
		return nil, err
	}

	rec, err := BuildRecord(raw)
	if err != nil {
		return nil, err
	}
	rec.SystemID = systemID

	if err := s.checklists.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.invalidate(ctx, systemID)
	s.notify(rec, func(p EventPublisher) error { return p.ChecklistCreated(ctx, rec) })

	s.logger.WithSystemID(systemID.String()).WithChecklistID(rec.ID.String()).Info().
		Str("title", rec.Title).
		Int("findings", len(rec.Checklist.Findings)).
		Msg("checklist uploaded")

	return rec, nil
}

// Update replaces the document of a stored checklist
func (s *ChecklistService) Update(ctx context.Context, id uuid.UUID, raw string) (*models.ChecklistRecord, error) {
	existing, err := s.checklists.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrChecklistNotFound
	}

	rec, err := BuildRecord(raw)
	if err != nil {
		return nil, err
	}
	rec.ID = existing.ID
	rec.SystemID = existing.SystemID
	rec.CreatedAt = existing.CreatedAt

	if err := s.checklists.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.invalidate(ctx, rec.SystemID)
	s.notify(rec, func(p EventPublisher) error { return p.ChecklistUpdated(ctx, rec) })

	s.logger.WithChecklistID(rec.ID.String()).Info().Msg("checklist updated")
	return rec, nil
}

// Get returns a stored checklist with its parsed document
func (s *ChecklistService) Get(ctx context.Context, id uuid.UUID) (*models.ChecklistRecord, error) {
	rec, err := s.checklists.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrChecklistNotFound
	}
	if rec.Checklist == nil {
		c, err := ckl.Parse(rec.RawXML)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored checklist: %w", err)
		}
		rec.Checklist = c
	}
	return rec, nil
}

// List returns the checklists of a system without their documents
func (s *ChecklistService) List(ctx context.Context, systemID uuid.UUID) ([]*models.ChecklistRecord, error) {
	if _, err := s.GetSystem(ctx, systemID); err != nil {
		return nil, err
	}
	return s.checklists.ListBySystem(ctx, systemID)
}

// Delete removes a stored checklist
func (s *ChecklistService) Delete(ctx context.Context, id uuid.UUID) error {
	rec, err := s.checklists.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrChecklistNotFound
	}
	if err := s.checklists.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, rec.SystemID)
	s.notify(rec, func(p EventPublisher) error { return p.ChecklistDeleted(ctx, rec) })
	s.logger.WithChecklistID(id.String()).Info().Msg("checklist deleted")
	return nil
}

// ImportResult describes the outcome of a scan import
type ImportResult struct {
	Checklist *models.ChecklistRecord `json:"checklist"`
	Created   bool                    `json:"created"`
	Updated   int                     `json:"updated"`
	Scan      *models.ScanResultSet   `json:"scan"`
}

// ImportScan merges a scan result document into the system's checklist for
// the same host and benchmark, creating one from the benchmark's template
// when there is none.
func (s *ChecklistService) ImportScan(ctx context.Context, systemID uuid.UUID, raw string) (*ImportResult, error) {
	results, err := scan.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse scan results: %w", ErrMalformedDocument, err)
	}
	if results.IsEmpty() {
		return nil, ErrNoScanTitle
	}

	if _, err := s.GetSystem(ctx, systemID); err != nil {
		return nil, err
	}

	var tmpl *models.Template
	if s.templates != nil {
		tmpl, err = s.templates.Lookup(ctx, results.Title)
		if err != nil {
			return nil, fmt.Errorf("failed to look up template: %w", err)
		}
	}

	existing, err := s.findExisting(ctx, systemID, results, tmpl)
	if err != nil {
		return nil, err
	}

	var base string
	switch {
	case existing != nil:
		base = existing.RawXML
	case tmpl != nil:
		base = tmpl.RawXML
	default:
		return nil, ErrTemplateNotFound
	}

	merged, updated, err := scan.Merge(results, base, existing == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to merge scan results: %w", err)
	}
	c, err := ckl.Parse(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to parse merged checklist: %w", err)
	}

	rec := newRecord(c, merged)
	rec.SystemID = systemID
	if existing != nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		err = s.checklists.Update(ctx, rec)
	} else {
		err = s.checklists.Create(ctx, rec)
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, systemID)
	s.notify(rec, func(p EventPublisher) error { return p.ScanImported(ctx, rec, updated) })

	s.logger.WithSystemID(systemID.String()).WithChecklistID(rec.ID.String()).Info().
		Str("dialect", string(results.Dialect)).
		Bool("created", existing == nil).
		Int("results", len(results.Results)).
		Int("updated", updated).
		Msg("scan imported")

	return &ImportResult{Checklist: rec, Created: existing == nil, Updated: updated, Scan: results}, nil
}

// findExisting locates the checklist a scan should be merged into. With a
// benchmark ID from the template the lookup is indexed; otherwise the
// system's checklists are matched on host and normalized title.
func (s *ChecklistService) findExisting(ctx context.Context, systemID uuid.UUID, results *models.ScanResultSet, tmpl *models.Template) (*models.ChecklistRecord, error) {
	if results.HostName == "" {
		return nil, nil
	}
	if tmpl != nil && tmpl.StigID != "" {
		return s.checklists.FindByHost(ctx, systemID, results.HostName, tmpl.StigID)
	}

	all, err := s.checklists.ListBySystem(ctx, systemID)
	if err != nil {
		return nil, err
	}
	want := templates.NormalizeTitle(results.Title)
	var match *models.ChecklistRecord
	for _, rec := range all {
		if !strings.EqualFold(rec.HostName, results.HostName) {
			continue
		}
		c, err := ckl.Parse(rec.RawXML)
		if err != nil {
			s.logger.WithChecklistID(rec.ID.String()).WithError(err).Warn().Msg("skipping unparseable checklist")
			continue
		}
		if templates.NormalizeTitle(c.BenchmarkTitle()) != want {
			continue
		}
		if match == nil || rec.UpdatedAt.After(match.UpdatedAt) {
			match = rec
		}
	}
	return match, nil
}

// Compliance returns the control-level report of a system, from cache when
// possible
func (s *ChecklistService) Compliance(ctx context.Context, systemID uuid.UUID, impact models.ImpactLevel, majorControl string) (*models.ComplianceReport, error) {
	majorControl = strings.ToUpper(strings.TrimSpace(majorControl))

	if _, err := s.GetSystem(ctx, systemID); err != nil {
		return nil, err
	}

	if s.cache != nil {
		var cached models.ComplianceReport
		found, err := s.cache.GetReport(ctx, systemID.String(), string(impact), majorControl, &cached)
		if err != nil {
			s.logger.WithSystemID(systemID.String()).WithError(err).Warn().Msg("report cache read failed")
		} else if found {
			return &cached, nil
		}
	}

	checklists, err := s.checklists.ListBySystem(ctx, systemID)
	if err != nil {
		return nil, err
	}

	records, err := s.compliance.Aggregate(ctx, checklists, s.snapshot.Catalog, s.snapshot.Controls, impact, majorControl)
	if err != nil {
		return nil, err
	}

	report := &models.ComplianceReport{
		SystemID:     systemID,
		Impact:       impact,
		MajorControl: majorControl,
		GeneratedAt:  time.Now().UTC(),
		Checklists:   len(checklists),
		Controls:     records,
	}

	if s.cache != nil {
		if err := s.cache.SetReport(ctx, systemID.String(), string(impact), majorControl, report, s.cacheTTL); err != nil {
			s.logger.WithSystemID(systemID.String()).WithError(err).Warn().Msg("report cache write failed")
		}
	}

	return report, nil
}

func (s *ChecklistService) invalidate(ctx context.Context, systemID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSystem(ctx, systemID.String()); err != nil {
		s.logger.WithSystemID(systemID.String()).WithError(err).Warn().Msg("failed to invalidate cached reports")
	}
}

// notify hands an event to the publisher. Publish errors are only logged.
func (s *ChecklistService) notify(rec *models.ChecklistRecord, fn func(EventPublisher) error) {
	if s.publisher == nil {
		return
	}
	if err := fn(s.publisher); err != nil {
		s.logger.WithChecklistID(rec.ID.String()).WithError(err).Warn().Msg("failed to publish checklist event")
	}
}

// BuildRecord canonicalizes a checklist document and derives the record
// metadata. The record has no ID or system yet.
func BuildRecord(raw string) (*models.ChecklistRecord, error) {
	canonical, err := ckl.Canonicalize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to canonicalize checklist: %w", ErrMalformedDocument, err)
	}
	c, err := ckl.Parse(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse checklist: %w", ErrMalformedDocument, err)
	}
	if c.IsEmpty() {
		return nil, ErrEmptyChecklist
	}
	return newRecord(c, canonical), nil
}

func newRecord(c *models.Checklist, raw string) *models.ChecklistRecord {
	title := c.DisplayTitle()
	if title == "" {
		title = "Untitled checklist"
	}
	return &models.ChecklistRecord{
		Title:     title,
		StigID:    c.BenchmarkValue("stigid"),
		HostName:  c.Asset.HostName,
		RawXML:    raw,
		Checklist: c,
	}
}
