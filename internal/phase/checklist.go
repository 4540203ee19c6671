package phase

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/codevcli/codev/internal/models"
)

//go:embed checklists.yaml
var defaultChecklists []byte

// Check represents a single deliverable check for a phase.
type Check struct {
	Path   string
	Passed bool
	Detail string
}

// Checklist maps each phase to the deliverable paths expected to exist in
// the repository before the phase counts as complete. An empty list means
// the phase has no file deliverables.
type Checklist struct {
	phases map[models.Phase][]string
}

// DefaultChecklist returns the built-in per-phase deliverables.
func DefaultChecklist() *Checklist {
	c, err := parseChecklist(defaultChecklists)
	if err != nil {
		panic(fmt.Sprintf("built-in checklists are invalid: %v", err))
	}
	return c
}

// LoadChecklist reads a YAML override from path, falling back to the
// defaults when the file does not exist.
func LoadChecklist(path string) (*Checklist, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultChecklist(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checklist: %w", err)
	}
	c, err := parseChecklist(data)
	if err != nil {
		return nil, fmt.Errorf("parse checklist %s: %w", path, err)
	}
	return c, nil
}

func parseChecklist(data []byte) (*Checklist, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	phases := make(map[models.Phase][]string, len(raw))
	for key, items := range raw {
		p, err := models.ParsePhase(key)
		if err != nil {
			return nil, err
		}
		phases[p] = items
	}
	return &Checklist{phases: phases}, nil
}

// Items returns the deliverable paths configured for a phase.
func (c *Checklist) Items(p models.Phase) []string {
	return c.phases[p]
}

// Evaluate stats every deliverable for a phase under root.
func (c *Checklist) Evaluate(root string, p models.Phase) []Check {
	items := c.phases[p]
	checks := make([]Check, 0, len(items))
	for _, item := range items {
		checks = append(checks, checkPath(root, item))
	}
	return checks
}

func checkPath(root, name string) Check {
	if _, err := os.Stat(filepath.Join(root, name)); err == nil {
		return Check{Path: name, Passed: true, Detail: name + " found"}
	}
	return Check{Path: name, Passed: false, Detail: name + " missing"}
}
