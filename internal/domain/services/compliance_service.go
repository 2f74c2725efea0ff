package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"stigwatch/internal/ckl"
	"stigwatch/internal/domain/models"
	"stigwatch/pkg/logger"
)

// ErrNilChecklists is returned when Aggregate is called without a checklist
// collection at all. An empty collection is valid.
var ErrNilChecklists = errors.New("checklist collection is nil")

const defaultAggregateWorkers = 8

// ComplianceService rolls checklist findings up to control level
type ComplianceService struct {
	workers int
	logger  *logger.Logger
}

// NewComplianceService creates a new ComplianceService. workers bounds how
// many checklists are scanned at once.
func NewComplianceService(workers int, log *logger.Logger) *ComplianceService {
	if workers <= 0 {
		workers = defaultAggregateWorkers
	}
	return &ComplianceService{
		workers: workers,
		logger:  log.WithComponent("compliance"),
	}
}

// observation is the merged status of one control family on one checklist
type observation struct {
	family string
	status models.Status
}

// Aggregate builds one ComplianceRecord per control family of the catalog
// that has a resolvable title, listing the rolled up status of every
// checklist with findings mapped to it. impactFilter limits the control
// definitions to a baseline ("" for all) and majorControl ("AC" or
// "AC-2", "" for all) limits the report to one family. An empty checklist
// slice gives an empty report.
//
// Checklists are scanned concurrently; the results are merged in input
// order so the output does not depend on scheduling.
func (s *ComplianceService) Aggregate(
	ctx context.Context,
	checklists []*models.ChecklistRecord,
	catalog *models.ControlCatalog,
	definitions []models.ControlDefinition,
	impactFilter models.ImpactLevel,
	majorControl string,
) ([]models.ComplianceRecord, error) {
	if checklists == nil {
		return nil, ErrNilChecklists
	}
	if len(checklists) == 0 {
		return []models.ComplianceRecord{}, nil
	}

	titles := make(map[string]string, len(definitions))
	for _, d := range definitions {
		if d.AppliesTo(impactFilter) {
			titles[d.Family] = d.Title
		}
	}

	byCCI, families := s.resolveCatalog(catalog, titles, strings.TrimSpace(majorControl))

	partials := make([][]observation, len(checklists))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, rec := range checklists {
		i, rec := i, rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			obs, err := s.scanChecklist(rec, byCCI)
			if err != nil {
				return err
			}
			partials[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make(map[string]*models.ComplianceRecord, len(families))
	for family, title := range families {
		records[family] = &models.ComplianceRecord{
			Control:    family,
			Title:      title,
			SortKey:    models.ControlSortKey(family),
			Checklists: []models.StatusRecord{},
		}
	}

	for i, obs := range partials {
		rec := checklists[i]
		for _, o := range obs {
			record := records[o.family]
			record.Checklists = append(record.Checklists, models.StatusRecord{
				ChecklistID: rec.ID,
				Title:       rec.Title,
				Status:      o.status,
				HostName:    rec.HostName,
				UpdatedOn:   rec.UpdatedAt,
			})
		}
	}

	out := make([]models.ComplianceRecord, 0, len(records))
	for _, r := range records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortKey != out[j].SortKey {
			return out[i].SortKey < out[j].SortKey
		}
		return out[i].Control < out[j].Control
	})

	s.logger.Debug().
		Int("checklists", len(checklists)).
		Int("controls", len(out)).
		Str("impact", string(impactFilter)).
		Str("major_control", majorControl).
		Msg("aggregated compliance")

	return out, nil
}

// resolveCatalog indexes the catalog by CCI, keeping only tuples inside
// majorControl whose family resolves to a title. It also returns every
// resolvable family with its title.
func (s *ComplianceService) resolveCatalog(
	catalog *models.ControlCatalog,
	titles map[string]string,
	majorControl string,
) (map[string][]string, map[string]string) {
	byCCI := make(map[string][]string)
	families := make(map[string]string)
	orphans := make(map[string]bool)

	for _, t := range catalog.Tuples() {
		if majorControl != "" && !inMajorControl(t.Family, majorControl) {
			continue
		}
		title, ok := titles[t.Family]
		if !ok {
			title, ok = titles[models.ControlFamily(t.Index)]
		}
		if !ok {
			if !orphans[t.Family] {
				orphans[t.Family] = true
				s.logger.Debug().Str("control", t.Family).Str("cci", t.CCI).Msg("control has no definition, omitting")
			}
			continue
		}
		families[t.Family] = title
		byCCI[t.CCI] = append(byCCI[t.CCI], t.Family)
	}
	return byCCI, families
}

func inMajorControl(family, major string) bool {
	return family == major || strings.HasPrefix(family, major+"-")
}

// scanChecklist computes the per-family status of one checklist. It only
// reads shared state.
func (s *ComplianceService) scanChecklist(rec *models.ChecklistRecord, byCCI map[string][]string) ([]observation, error) {
	if rec == nil {
		return nil, nil
	}
	c := rec.Checklist
	if c == nil {
		parsed, err := ckl.Parse(rec.RawXML)
		if err != nil {
			return nil, fmt.Errorf("failed to parse checklist %s: %w", rec.ID, err)
		}
		c = parsed
	}

	index := make(map[string]int)
	var obs []observation
	for i := range c.Findings {
		f := &c.Findings[i]
		if !f.IsWellFormed() {
			continue
		}
		for _, cci := range f.CCIRefs() {
			for _, family := range byCCI[cci] {
				if j, ok := index[family]; ok {
					obs[j].status = models.MergeStatus(obs[j].status, f.Status)
					continue
				}
				index[family] = len(obs)
				obs = append(obs, observation{family: family, status: f.Status})
			}
		}
	}
	return obs, nil
}
