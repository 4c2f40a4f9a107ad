// Package registry holds the read-only lookup tables the pipeline consults:
// roles and their permissions, and target databases.
package registry

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

type rolesFile struct {
	Roles map[string]models.Role `yaml:"roles"`
}

// roleTable is an immutable snapshot; reloads replace it whole.
type roleTable struct {
	roles    map[string]models.Role
	loadedAt time.Time
}

// RoleRegistry resolves role names to permission profiles. Lookups are
// lock-free; reloads are serialized and swap the entire table atomically.
type RoleRegistry struct {
	path   string
	table  atomic.Pointer[roleTable]
	reload sync.Mutex
	logger *zap.Logger
}

// NewRoleRegistry builds a registry over an in-memory role set.
func NewRoleRegistry(roles map[string]models.Role, logger *zap.Logger) (*RoleRegistry, error) {
	if err := validateRoles(roles); err != nil {
		return nil, err
	}
	r := &RoleRegistry{logger: logger.Named("roles")}
	r.table.Store(newRoleTable(roles))
	return r, nil
}

// LoadRoles reads a roles YAML file.
func LoadRoles(path string, logger *zap.Logger) (*RoleRegistry, error) {
	roles, err := readRoles(path)
	if err != nil {
		return nil, err
	}
	r, err := NewRoleRegistry(roles, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid roles file %s: %w", path, err)
	}
	r.path = path
	r.logger.Info("Loaded roles", zap.String("path", path), zap.Int("count", len(roles)))
	return r, nil
}

// ParseRoles decodes the roles document:
//
//	roles:
//	  analyst:
//	    allow_dml: false
//	  sales_manager:
//	    allow_dml: true
//	    tables: [sales, public.regions]
func ParseRoles(data []byte) (map[string]models.Role, error) {
	var doc rolesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse roles: %w", err)
	}
	roles := make(map[string]models.Role, len(doc.Roles))
	for name, role := range doc.Roles {
		role.Name = name
		roles[name] = role
	}
	if err := validateRoles(roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func readRoles(path string) (map[string]models.Role, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file: %w", err)
	}
	return ParseRoles(data)
}

func validateRoles(roles map[string]models.Role) error {
	if len(roles) == 0 {
		return fmt.Errorf("no roles defined")
	}
	for name, role := range roles {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("role with empty name")
		}
		for _, entry := range role.Tables {
			if err := validateTableEntry(entry); err != nil {
				return fmt.Errorf("role %q: %w", name, err)
			}
		}
	}
	return nil
}

func validateTableEntry(entry string) error {
	entry = strings.TrimSpace(entry)
	if entry == "*" {
		return nil
	}
	parts := strings.Split(entry, ".")
	if len(parts) > 2 {
		return fmt.Errorf("table entry %q: at most schema.table is supported", entry)
	}
	for i, p := range parts {
		if p == "" {
			return fmt.Errorf("table entry %q: empty name", entry)
		}
		if p == "*" && !(len(parts) == 2 && i == 1) {
			return fmt.Errorf("table entry %q: wildcard only allowed as schema.*", entry)
		}
	}
	return nil
}

func newRoleTable(roles map[string]models.Role) *roleTable {
	t := &roleTable{roles: make(map[string]models.Role, len(roles)), loadedAt: time.Now()}
	for name, role := range roles {
		role.Name = name
		role.Tables = slices.Clone(role.Tables)
		t.roles[name] = role
	}
	return t
}

// Get returns the named role. The returned value shares nothing with the registry.
func (r *RoleRegistry) Get(name string) (models.Role, error) {
	role, ok := r.table.Load().roles[name]
	if !ok {
		return models.Role{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownRole, name)
	}
	role.Tables = slices.Clone(role.Tables)
	return role, nil
}

// Names returns role names in sorted order.
func (r *RoleRegistry) Names() []string {
	t := r.table.Load()
	names := make([]string, 0, len(t.roles))
	for name := range t.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadedAt returns when the current table was installed.
func (r *RoleRegistry) LoadedAt() time.Time {
	return r.table.Load().loadedAt
}

// Replace installs a new role table. Requests already holding a Role keep it.
func (r *RoleRegistry) Replace(roles map[string]models.Role) error {
	if err := validateRoles(roles); err != nil {
		return err
	}
	r.reload.Lock()
	defer r.reload.Unlock()
	r.table.Store(newRoleTable(roles))
	return nil
}

// Reload re-reads the roles file. On any error the current table stays in place.
func (r *RoleRegistry) Reload() error {
	if r.path == "" {
		return fmt.Errorf("role registry was not loaded from a file")
	}

	r.reload.Lock()
	defer r.reload.Unlock()

	roles, err := readRoles(r.path)
	if err != nil {
		r.logger.Error("Role reload failed, keeping current roles", zap.Error(err))
		return err
	}
	r.table.Store(newRoleTable(roles))
	r.logger.Info("Reloaded roles", zap.String("path", r.path), zap.Int("count", len(roles)))
	return nil
}
