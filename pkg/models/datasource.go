package models

import (
	"fmt"
	"os"
)

// Supported target kinds.
const (
	TargetKindPostgres = "postgres"
	TargetKindMSSQL    = "mssql"
	TargetKindSQLite   = "sqlite"
	TargetKindDuckDB   = "duckdb"
)

// TargetDescriptor resolves a TargetDB identifier to connection details.
// Credentials are referenced by environment variable name, never stored inline.
type TargetDescriptor struct {
	ID          string            `json:"id" yaml:"-"`
	Kind        string            `json:"kind" yaml:"kind"`
	DisplayName string            `json:"display_name,omitempty" yaml:"display_name"`
	Host        string            `json:"host,omitempty" yaml:"host"`
	Port        int               `json:"port,omitempty" yaml:"port"`
	Database    string            `json:"database,omitempty" yaml:"database"`
	Path        string            `json:"path,omitempty" yaml:"path"`
	User        string            `json:"-" yaml:"user"`
	PasswordEnv string            `json:"-" yaml:"password_env"`
	SSLMode     string            `json:"-" yaml:"ssl_mode"`
	Options     map[string]string `json:"-" yaml:"options"`
}

// String renders the descriptor for logs without credentials.
func (d TargetDescriptor) String() string {
	if d.Path != "" {
		return fmt.Sprintf("%s(%s)", d.Kind, d.ID)
	}
	return fmt.Sprintf("%s(%s@%s/%s)", d.Kind, d.ID, d.Host, d.Database)
}

// Password resolves the credential referenced by PasswordEnv.
func (d TargetDescriptor) Password() string {
	if d.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(d.PasswordEnv)
}

// IsFileBased reports whether the target is addressed by a file path.
func (d TargetDescriptor) IsFileBased() bool {
	return d.Kind == TargetKindSQLite || d.Kind == TargetKindDuckDB
}
