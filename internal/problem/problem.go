// Package problem holds the problem supplier and answer checking collaborators.
package problem

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"tourney-engine/internal/domain"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var ErrNoProblem = errors.New("no problem matches filter")

type Supplier interface {
	GetProblem(ctx context.Context, filter domain.ProblemFilter) (*domain.Problem, error)
}

// Checker verifies a submitted answer against the stored one.
type Checker interface {
	Check(ctx context.Context, expected, submitted string) (bool, error)
}

// NormalizedChecker compares answers ignoring case, surrounding space and inner whitespace runs.
type NormalizedChecker struct{}

func (NormalizedChecker) Check(ctx context.Context, expected, submitted string) (bool, error) {
	return normalize(expected) == normalize(submitted), nil
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Catalog is a Supplier backed by a fixed problem list, usually loaded from YAML.
type Catalog struct {
	mu       sync.Mutex
	problems []domain.Problem
	rng      *rand.Rand
	logger   zerolog.Logger
}

func NewCatalog(problems []domain.Problem, logger zerolog.Logger) *Catalog {
	return &Catalog{
		problems: problems,
		rng:      rand.New(rand.NewPCG(uint64(len(problems)), 0x7a3f)),
		logger:   logger,
	}
}

// LoadCatalog reads a YAML document of the form `problems: [...]`.
func LoadCatalog(path string, logger zerolog.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read problem catalog: %w", err)
	}

	var doc struct {
		Problems []domain.Problem `yaml:"problems"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse problem catalog: %w", err)
	}
	if len(doc.Problems) == 0 {
		return nil, fmt.Errorf("problem catalog %s is empty", path)
	}

	logger.Info().Str("path", path).Int("problems", len(doc.Problems)).Msg("problem catalog loaded")
	return NewCatalog(doc.Problems, logger), nil
}

// GetProblem picks a random problem in the filter's category and rating window, widening to
// the whole category and then the whole catalog before giving up.
func (c *Catalog) GetProblem(ctx context.Context, filter domain.ProblemFilter) (*domain.Problem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	strict := c.matching(func(p domain.Problem) bool {
		return inCategory(p, filter.Category) && inRange(p, filter.MinRating, filter.MaxRating)
	})
	if len(strict) == 0 {
		strict = c.matching(func(p domain.Problem) bool { return inCategory(p, filter.Category) })
	}
	if len(strict) == 0 && filter.Category == "" {
		strict = c.problems
	}
	if len(strict) == 0 {
		return nil, fmt.Errorf("%w: category %q", ErrNoProblem, filter.Category)
	}

	p := strict[c.rng.IntN(len(strict))]
	return &p, nil
}

func (c *Catalog) matching(keep func(domain.Problem) bool) []domain.Problem {
	var out []domain.Problem
	for _, p := range c.problems {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func inCategory(p domain.Problem, category string) bool {
	return category == "" || strings.EqualFold(p.Category, category)
}

func inRange(p domain.Problem, lo, hi int) bool {
	if lo > 0 && p.Rating < lo {
		return false
	}
	if hi > 0 && p.Rating > hi {
		return false
	}
	return true
}
