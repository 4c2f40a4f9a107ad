package models

import "strings"

// Role is a named permission profile. Values are immutable once loaded and
// are passed explicitly to every pipeline stage.
type Role struct {
	Name      string   `json:"name" yaml:"-"`
	AllowDML  bool     `json:"allow_dml" yaml:"allow_dml"`
	Tables    []string `json:"tables,omitempty" yaml:"tables"` // nil means every table
	ViewAudit bool     `json:"view_audit" yaml:"view_audit"`   // may read every user's audit records
}

// HasTableAllowList reports whether the role restricts which tables it may reference.
func (r Role) HasTableAllowList() bool {
	return r.Tables != nil
}

// PermitsTable reports whether the role may reference the given table.
// Entries take the forms "table", "schema.table", "schema.*" or "*".
// An unqualified entry only matches an unqualified reference.
func (r Role) PermitsTable(schema, table string) bool {
	if r.Tables == nil {
		return true
	}
	for _, entry := range r.Tables {
		entry = strings.TrimSpace(entry)
		if entry == "*" {
			return true
		}
		entrySchema, entryTable, qualified := strings.Cut(entry, ".")
		if !qualified {
			if schema == "" && strings.EqualFold(entry, table) {
				return true
			}
			continue
		}
		if !strings.EqualFold(entrySchema, schema) {
			continue
		}
		if entryTable == "*" || strings.EqualFold(entryTable, table) {
			return true
		}
	}
	return false
}
