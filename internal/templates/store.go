// Package templates keeps the blank checklists new scan imports are seeded
// from.
package templates

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stigwatch/internal/ckl"
	"stigwatch/internal/domain/models"
	"stigwatch/pkg/logger"
)

// Store is a directory of blank .ckl files indexed by benchmark title
type Store struct {
	dir    string
	logger *logger.Logger

	mu      sync.RWMutex
	byTitle map[string]*models.Template
	byNorm  map[string]*models.Template
}

// NewStore creates a store over dir. Call Load before Lookup.
func NewStore(dir string, log *logger.Logger) *Store {
	return &Store{
		dir:     dir,
		logger:  log.WithComponent("templates"),
		byTitle: make(map[string]*models.Template),
		byNorm:  make(map[string]*models.Template),
	}
}

// Load (re)reads every .ckl file of the directory. Files that do not parse
// or carry no benchmark title are skipped with a warning.
func (s *Store) Load(ctx context.Context) error {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.ckl"))
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}
	sort.Strings(paths)

	byTitle := make(map[string]*models.Template, len(paths))
	byNorm := make(map[string]*models.Template, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, err := readTemplate(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("skipping template")
			continue
		}
		if _, dup := byTitle[t.Title]; dup {
			s.logger.Warn().Str("path", path).Str("title", t.Title).Msg("duplicate template title, keeping the first")
			continue
		}
		byTitle[t.Title] = t
		if norm := NormalizeTitle(t.Title); norm != "" {
			if _, dup := byNorm[norm]; !dup {
				byNorm[norm] = t
			}
		}
	}

	s.mu.Lock()
	s.byTitle = byTitle
	s.byNorm = byNorm
	s.mu.Unlock()

	s.logger.Info().Int("count", len(byTitle)).Str("dir", s.dir).Msg("loaded checklist templates")
	return nil
}

func readTemplate(path string) (*models.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	c, err := ckl.Parse(string(data))
	if err != nil {
		return nil, err
	}
	title := c.BenchmarkTitle()
	if title == "" {
		return nil, fmt.Errorf("template has no benchmark title")
	}
	created := time.Now()
	if info, err := os.Stat(path); err == nil {
		created = info.ModTime()
	}
	return &models.Template{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(title)),
		Title:     title,
		StigID:    c.BenchmarkValue("stigid"),
		RawXML:    string(data),
		CreatedAt: created,
	}, nil
}

// Lookup finds the template for a benchmark title, first exactly and then
// by normalized title. It returns nil when there is no match.
func (s *Store) Lookup(ctx context.Context, title string) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.byTitle[title]; ok {
		return t, nil
	}
	if t, ok := s.byNorm[NormalizeTitle(title)]; ok {
		return t, nil
	}
	return nil, nil
}

// Templates returns every loaded template ordered by title
func (s *Store) Templates() []*models.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Template, 0, len(s.byTitle))
	for _, t := range s.byTitle {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

var titleNoise = map[string]bool{
	"scap":      true,
	"benchmark": true,
	"stig":      true,
}

// NormalizeTitle reduces a benchmark title to the words that identify the
// product, so that "Example OS STIG SCAP Benchmark" and "Example OS Security
// Technical Implementation Guide" compare equal.
func NormalizeTitle(title string) string {
	title = strings.ToLower(title)
	title = strings.ReplaceAll(title, "security technical implementation guide", " ")
	title = strings.NewReplacer("(", " ", ")", " ", "_", " ", "-", " ", ",", " ").Replace(title)

	var words []string
	for _, w := range strings.Fields(title) {
		if !titleNoise[w] {
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}
