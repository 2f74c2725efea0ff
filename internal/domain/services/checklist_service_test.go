package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stigwatch/internal/catalog"
	"stigwatch/internal/ckl"
	"stigwatch/internal/domain/models"
	"stigwatch/pkg/logger"
)

const exampleTitle = "Example OS Security Technical Implementation Guide"

type fakeSystems struct {
	mu      sync.Mutex
	systems map[uuid.UUID]*models.System
}

func (f *fakeSystems) Create(_ context.Context, s *models.System) (*models.System, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	f.systems[s.ID] = s
	return s, nil
}

func (f *fakeSystems) GetByID(_ context.Context, id uuid.UUID) (*models.System, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.systems[id], nil
}

func (f *fakeSystems) List(_ context.Context) ([]*models.System, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.System{}
	for _, s := range f.systems {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSystems) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.systems, id)
	return nil
}

type fakeChecklists struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.ChecklistRecord
	clock   time.Time
}

func (f *fakeChecklists) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// stored copies drop the parsed document like the database does
func stored(c *models.ChecklistRecord) *models.ChecklistRecord {
	cp := *c
	cp.Checklist = nil
	return &cp
}

func (f *fakeChecklists) Create(_ context.Context, c *models.ChecklistRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = f.tick()
	c.UpdatedAt = c.CreatedAt
	f.records[c.ID] = stored(c)
	return nil
}

func (f *fakeChecklists) Update(_ context.Context, c *models.ChecklistRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[c.ID]; !ok {
		return errors.New("not found")
	}
	c.UpdatedAt = f.tick()
	f.records[c.ID] = stored(c)
	return nil
}

func (f *fakeChecklists) GetByID(_ context.Context, id uuid.UUID) (*models.ChecklistRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.records[id]; ok {
		return stored(c), nil
	}
	return nil, nil
}

func (f *fakeChecklists) ListBySystem(_ context.Context, systemID uuid.UUID) ([]*models.ChecklistRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.ChecklistRecord{}
	for _, c := range f.records {
		if c.SystemID == systemID {
			out = append(out, stored(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeChecklists) FindByHost(_ context.Context, systemID uuid.UUID, hostName, stigID string) (*models.ChecklistRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var match *models.ChecklistRecord
	for _, c := range f.records {
		if c.SystemID != systemID || !strings.EqualFold(c.HostName, hostName) || c.StigID != stigID {
			continue
		}
		if match == nil || c.UpdatedAt.After(match.UpdatedAt) {
			match = c
		}
	}
	if match == nil {
		return nil, nil
	}
	return stored(match), nil
}

func (f *fakeChecklists) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

type fakeTemplates map[string]*models.Template

func (f fakeTemplates) Lookup(_ context.Context, title string) (*models.Template, error) {
	return f[title], nil
}

type fakeCache struct {
	mu          sync.Mutex
	reports     map[string][]byte
	hits        int
	invalidated []string
}

func cacheKey(systemID, impact, major string) string {
	return systemID + "|" + impact + "|" + major
}

func (f *fakeCache) GetReport(_ context.Context, systemID, impact, major string, dest any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.reports[cacheKey(systemID, impact, major)]
	if !ok {
		return false, nil
	}
	f.hits++
	return true, json.Unmarshal(data, dest)
}

func (f *fakeCache) SetReport(_ context.Context, systemID, impact, major string, report any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	f.reports[cacheKey(systemID, impact, major)] = data
	return nil
}

func (f *fakeCache) InvalidateSystem(_ context.Context, systemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, systemID)
	for k := range f.reports {
		if strings.HasPrefix(k, systemID+"|") {
			delete(f.reports, k)
		}
	}
	return nil
}

type publishedEvent struct {
	kind    string
	id      uuid.UUID
	updated int
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (f *fakePublisher) record(kind string, rec *models.ChecklistRecord, updated int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{kind: kind, id: rec.ID, updated: updated})
	return f.err
}

func (f *fakePublisher) ChecklistCreated(_ context.Context, rec *models.ChecklistRecord) error {
	return f.record("created", rec, 0)
}

func (f *fakePublisher) ChecklistUpdated(_ context.Context, rec *models.ChecklistRecord) error {
	return f.record("updated", rec, 0)
}

func (f *fakePublisher) ChecklistDeleted(_ context.Context, rec *models.ChecklistRecord) error {
	return f.record("deleted", rec, 0)
}

func (f *fakePublisher) ScanImported(_ context.Context, rec *models.ChecklistRecord, updated int) error {
	return f.record("scan_imported", rec, updated)
}

func (f *fakePublisher) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.kind
	}
	return out
}

type serviceFixture struct {
	svc        *ChecklistService
	systems    *fakeSystems
	checklists *fakeChecklists
	cache      *fakeCache
	publisher  *fakePublisher
	templates  fakeTemplates
	system     *models.System
}

func readServiceFixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(b)
}

func serviceSnapshot() *catalog.Snapshot {
	return &catalog.Snapshot{
		Catalog: &models.ControlCatalog{Entries: []models.CatalogEntry{
			{CCI: "CCI-000192", References: []models.ControlReference{{Index: "IA-5 (1) (a)"}}},
			{CCI: "CCI-000366", References: []models.ControlReference{{Index: "CM-6 b"}}},
			{CCI: "CCI-000213", References: []models.ControlReference{{Index: "AC-3"}}},
		}},
		Controls: []models.ControlDefinition{
			{Family: "AC-3", Title: "Access Enforcement", Low: true, Moderate: true, High: true},
			{Family: "CM-6", Title: "Configuration Settings", Low: true, Moderate: true, High: true},
			{Family: "IA-5", Title: "Authenticator Management", Low: true, Moderate: true, High: true},
		},
	}
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		systems:    &fakeSystems{systems: map[uuid.UUID]*models.System{}},
		checklists: &fakeChecklists{records: map[uuid.UUID]*models.ChecklistRecord{}, clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		cache:      &fakeCache{reports: map[string][]byte{}},
		publisher:  &fakePublisher{},
		templates: fakeTemplates{
			exampleTitle: {
				ID:     uuid.New(),
				Title:  exampleTitle,
				StigID: "Example_OS_STIG",
				RawXML: readServiceFixture(t, "template.ckl"),
			},
		},
	}
	f.svc = NewChecklistService(
		f.systems,
		f.checklists,
		NewComplianceService(2, logger.NewNop()),
		serviceSnapshot(),
		ChecklistServiceConfig{
			Templates: f.templates,
			Cache:     f.cache,
			Publisher: f.publisher,
			CacheTTL:  time.Minute,
		},
		logger.NewNop(),
	)

	sys, err := f.svc.CreateSystem(context.Background(), "  Web Enclave ", "dmz hosts")
	require.NoError(t, err)
	f.system = sys
	return f
}

func statusByRule(t *testing.T, raw string) map[string]models.Status {
	t.Helper()
	c, err := ckl.Parse(raw)
	require.NoError(t, err)
	out := map[string]models.Status{}
	for _, f := range c.Findings {
		out[f.RuleVersion()] = f.Status
	}
	return out
}

func TestChecklistServiceSystems(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	assert.Equal(t, "Web Enclave", f.system.Name)

	_, err := f.svc.CreateSystem(ctx, "   ", "")
	assert.ErrorIs(t, err, ErrSystemNameRequired)

	got, err := f.svc.GetSystem(ctx, f.system.ID)
	require.NoError(t, err)
	assert.Equal(t, f.system.ID, got.ID)

	_, err = f.svc.GetSystem(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrSystemNotFound)

	require.NoError(t, f.svc.DeleteSystem(ctx, f.system.ID))
	assert.Contains(t, f.cache.invalidated, f.system.ID.String())
	assert.ErrorIs(t, f.svc.DeleteSystem(ctx, f.system.ID), ErrSystemNotFound)
}

func TestChecklistServiceUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("stores canonical document", func(t *testing.T) {
		f := newServiceFixture(t)

		rec, err := f.svc.Upload(ctx, f.system.ID, readServiceFixture(t, "template.ckl"))
		require.NoError(t, err)

		assert.Equal(t, f.system.ID, rec.SystemID)
		assert.Equal(t, exampleTitle+" V1 Release: 2 Benchmark Date: 01 Jan 2024", rec.Title)
		assert.Equal(t, "Example_OS_STIG", rec.StigID)
		require.NotNil(t, rec.Checklist)
		assert.Len(t, rec.Checklist.Findings, 2)

		canonical, err := ckl.Canonicalize(rec.RawXML)
		require.NoError(t, err)
		assert.Equal(t, rec.RawXML, canonical)

		assert.Equal(t, []string{"created"}, f.publisher.kinds())
		assert.Equal(t, []string{f.system.ID.String()}, f.cache.invalidated)

		got, err := f.svc.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Checklist)
		assert.Equal(t, exampleTitle, got.Checklist.BenchmarkTitle())

		list, err := f.svc.List(ctx, f.system.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("unknown system", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.Upload(ctx, uuid.New(), readServiceFixture(t, "template.ckl"))
		assert.ErrorIs(t, err, ErrSystemNotFound)
		assert.Empty(t, f.publisher.kinds())
	})

	t.Run("junk document", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.Upload(ctx, f.system.ID, "<inventory><item/></inventory>")
		assert.ErrorIs(t, err, ErrEmptyChecklist)
	})

	t.Run("malformed xml", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.Upload(ctx, f.system.ID, "<CHECKLIST><ASSET>")
		assert.ErrorIs(t, err, ErrMalformedDocument)
	})

	t.Run("publish failure does not fail upload", func(t *testing.T) {
		f := newServiceFixture(t)
		f.publisher.err = errors.New("nats down")
		_, err := f.svc.Upload(ctx, f.system.ID, readServiceFixture(t, "template.ckl"))
		assert.NoError(t, err)
	})
}

func TestChecklistServiceUpdateDelete(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	rec, err := f.svc.Upload(ctx, f.system.ID, readServiceFixture(t, "template.ckl"))
	require.NoError(t, err)

	edited := strings.Replace(readServiceFixture(t, "template.ckl"), "<HOST_NAME></HOST_NAME>", "<HOST_NAME>edited01</HOST_NAME>", 1)
	updated, err := f.svc.Update(ctx, rec.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, updated.ID)
	assert.Equal(t, f.system.ID, updated.SystemID)
	assert.Equal(t, "edited01", updated.HostName)

	_, err = f.svc.Update(ctx, uuid.New(), edited)
	assert.ErrorIs(t, err, ErrChecklistNotFound)

	require.NoError(t, f.svc.Delete(ctx, rec.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, rec.ID), ErrChecklistNotFound)
	_, err = f.svc.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrChecklistNotFound)

	assert.Equal(t, []string{"created", "updated", "deleted"}, f.publisher.kinds())
}

func TestChecklistServiceImportScan(t *testing.T) {
	ctx := context.Background()

	t.Run("creates from template then merges into existing", func(t *testing.T) {
		f := newServiceFixture(t)
		raw := readServiceFixture(t, "scan_cdf.xml")

		first, err := f.svc.ImportScan(ctx, f.system.ID, raw)
		require.NoError(t, err)
		assert.True(t, first.Created)
		assert.Equal(t, 2, first.Updated)
		assert.Equal(t, "web01", first.Checklist.HostName)
		assert.Equal(t, "Example_OS_STIG", first.Checklist.StigID)

		statuses := statusByRule(t, first.Checklist.RawXML)
		assert.Equal(t, models.StatusNotAFinding, statuses["EXOS-00-000100"])
		assert.Equal(t, models.StatusOpen, statuses["EXOS-00-000200"])

		c, err := ckl.Parse(first.Checklist.RawXML)
		require.NoError(t, err)
		assert.Equal(t, "None", c.Asset.Role)
		assert.Equal(t, "Computing", c.Asset.AssetType)
		assert.Equal(t, "10.0.0.5, 10.0.0.6", c.Asset.HostIP)

		second, err := f.svc.ImportScan(ctx, f.system.ID, raw)
		require.NoError(t, err)
		assert.False(t, second.Created)
		assert.Equal(t, first.Checklist.ID, second.Checklist.ID)

		list, err := f.svc.List(ctx, f.system.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		assert.Equal(t, []string{"scan_imported", "scan_imported"}, f.publisher.kinds())
		assert.Equal(t, 2, f.publisher.events[1].updated)
	})

	t.Run("matches existing checklist by title without benchmark id", func(t *testing.T) {
		f := newServiceFixture(t)
		f.templates[exampleTitle].StigID = ""
		raw := readServiceFixture(t, "scan_cdf.xml")

		first, err := f.svc.ImportScan(ctx, f.system.ID, raw)
		require.NoError(t, err)
		second, err := f.svc.ImportScan(ctx, f.system.ID, raw)
		require.NoError(t, err)

		assert.False(t, second.Created)
		assert.Equal(t, first.Checklist.ID, second.Checklist.ID)
	})

	t.Run("no title short-circuits", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.ImportScan(ctx, uuid.New(), readServiceFixture(t, "no_title.xml"))
		assert.ErrorIs(t, err, ErrNoScanTitle)
	})

	t.Run("unknown dialect", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.ImportScan(ctx, f.system.ID, "<report/>")
		assert.ErrorIs(t, err, ErrNoScanTitle)
	})

	t.Run("no template", func(t *testing.T) {
		f := newServiceFixture(t)
		delete(f.templates, exampleTitle)
		_, err := f.svc.ImportScan(ctx, f.system.ID, readServiceFixture(t, "scan_cdf.xml"))
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})

	t.Run("unknown system", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.ImportScan(ctx, uuid.New(), readServiceFixture(t, "scan_cdf.xml"))
		assert.ErrorIs(t, err, ErrSystemNotFound)
	})
}

func TestChecklistServiceCompliance(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	_, err := f.svc.Upload(ctx, f.system.ID, readServiceFixture(t, "template.ckl"))
	require.NoError(t, err)
	imported, err := f.svc.ImportScan(ctx, f.system.ID, readServiceFixture(t, "scan_cdf.xml"))
	require.NoError(t, err)

	report, err := f.svc.Compliance(ctx, f.system.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checklists)
	require.Len(t, report.Controls, 3)
	assert.Equal(t, []string{"AC-3", "CM-6", "IA-5"}, controls(report.Controls))

	ac3 := recordFor(t, report.Controls, "AC-3")
	assert.Equal(t, "Access Enforcement", ac3.Title)
	require.Len(t, ac3.Checklists, 2)
	statuses := map[uuid.UUID]models.Status{}
	for _, sr := range ac3.Checklists {
		statuses[sr.ChecklistID] = sr.Status
	}
	assert.Equal(t, models.StatusOpen, statuses[imported.Checklist.ID])

	cached, err := f.svc.Compliance(ctx, f.system.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.hits)
	assert.Equal(t, controls(report.Controls), controls(cached.Controls))

	scoped, err := f.svc.Compliance(ctx, f.system.ID, models.ImpactHigh, "ia")
	require.NoError(t, err)
	assert.Equal(t, "IA", scoped.MajorControl)
	assert.Equal(t, []string{"IA-5"}, controls(scoped.Controls))

	_, err = f.svc.Upload(ctx, f.system.ID, readServiceFixture(t, "template.ckl"))
	require.NoError(t, err)
	fresh, err := f.svc.Compliance(ctx, f.system.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.Checklists)
	assert.Equal(t, 1, f.cache.hits)

	_, err = f.svc.Compliance(ctx, uuid.New(), "", "")
	assert.ErrorIs(t, err, ErrSystemNotFound)
}
