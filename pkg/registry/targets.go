package registry

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

var defaultPorts = map[string]int{
	models.TargetKindPostgres: 5432,
	models.TargetKindMSSQL:    1433,
}

type targetsFile struct {
	Targets map[string]models.TargetDescriptor `yaml:"targets"`
}

// TargetRegistry resolves TargetDB identifiers to descriptors.
type TargetRegistry struct {
	targets map[string]models.TargetDescriptor
}

// NewTargetRegistry validates descriptors and fills defaults.
func NewTargetRegistry(targets map[string]models.TargetDescriptor) (*TargetRegistry, error) {
	reg := &TargetRegistry{targets: make(map[string]models.TargetDescriptor, len(targets))}
	for id, d := range targets {
		d.ID = id
		if d.Port == 0 {
			d.Port = defaultPorts[d.Kind]
		}
		if err := validateTarget(d); err != nil {
			return nil, err
		}
		reg.targets[id] = d
	}
	return reg, nil
}

// LoadTargets reads a targets YAML file.
func LoadTargets(path string) (*TargetRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}
	return ParseTargets(data)
}

// ParseTargets decodes the targets document:
//
//	targets:
//	  warehouse:
//	    kind: postgres
//	    host: db.internal
//	    database: analytics
//	    user: reader
//	    password_env: WAREHOUSE_PASSWORD
func ParseTargets(data []byte) (*TargetRegistry, error) {
	var doc targetsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse targets: %w", err)
	}
	return NewTargetRegistry(doc.Targets)
}

func validateTarget(d models.TargetDescriptor) error {
	if d.ID == "" {
		return fmt.Errorf("target with empty id")
	}
	switch d.Kind {
	case models.TargetKindSQLite, models.TargetKindDuckDB:
		if d.Path == "" {
			return fmt.Errorf("target %q: %s requires path", d.ID, d.Kind)
		}
	case models.TargetKindPostgres, models.TargetKindMSSQL:
		if d.Host == "" || d.Database == "" {
			return fmt.Errorf("target %q: %s requires host and database", d.ID, d.Kind)
		}
	default:
		return fmt.Errorf("target %q: unsupported kind %q", d.ID, d.Kind)
	}
	return nil
}

// Get returns the descriptor for id.
func (r *TargetRegistry) Get(id string) (models.TargetDescriptor, error) {
	d, ok := r.targets[id]
	if !ok {
		return models.TargetDescriptor{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownTarget, id)
	}
	return d, nil
}

// List returns all descriptors sorted by id.
func (r *TargetRegistry) List() []models.TargetDescriptor {
	out := make([]models.TargetDescriptor, 0, len(r.targets))
	for _, d := range r.targets {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
