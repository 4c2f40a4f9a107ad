package models

import "time"

// SchemaSnapshot is the schema metadata of one target at a point in time.
// Tables are sorted by schema then name; columns keep ordinal order.
type SchemaSnapshot struct {
	TargetDB  string        `json:"target_db"`
	Dialect   string        `json:"dialect"`
	Tables    []SchemaTable `json:"tables"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// SchemaTable represents a table in a snapshot.
type SchemaTable struct {
	SchemaName string         `json:"schema_name,omitempty"`
	TableName  string         `json:"table_name"`
	Columns    []SchemaColumn `json:"columns"`
}

// QualifiedName returns schema.table, or just table when no schema applies.
func (t SchemaTable) QualifiedName() string {
	if t.SchemaName == "" {
		return t.TableName
	}
	return t.SchemaName + "." + t.TableName
}

// SchemaColumn represents a table column.
type SchemaColumn struct {
	ColumnName   string `json:"column_name"`
	DataType     string `json:"data_type"`
	IsNullable   bool   `json:"is_nullable"`
	IsPrimaryKey bool   `json:"is_primary_key,omitempty"`
}
