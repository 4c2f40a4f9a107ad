package models

import "github.com/google/uuid"

// UserQuery is a question submitted to the pipeline. Immutable once submitted.
type UserQuery struct {
	ID        uuid.UUID `json:"id"`
	Question  string    `json:"question"`
	Role      Role      `json:"role"`
	TargetDB  string    `json:"target_db"`
	UserID    string    `json:"user_id,omitempty"`    // opaque, supplied by the auth collaborator
	SessionID string    `json:"session_id,omitempty"` // scopes supersede-cancellation
}

// Prompt is the exact text sent to the text-completion provider.
type Prompt struct {
	Text     string `json:"text"`
	TargetDB string `json:"target_db"`
	RoleName string `json:"role_name"`
}

// StatementKind is the classified root operation of a SQL statement.
type StatementKind string

const (
	KindSelect  StatementKind = "SELECT"
	KindInsert  StatementKind = "INSERT"
	KindUpdate  StatementKind = "UPDATE"
	KindDelete  StatementKind = "DELETE"
	KindMerge   StatementKind = "MERGE"
	KindDDL     StatementKind = "DDL"
	KindUnknown StatementKind = "UNKNOWN"
)

// IsWrite reports whether statements of this kind modify data or schema.
func (k StatementKind) IsWrite() bool {
	switch k {
	case KindInsert, KindUpdate, KindDelete, KindMerge, KindDDL:
		return true
	default:
		return false
	}
}

// GeneratedSQL is a candidate statement extracted from provider output.
// Rejected candidates are discarded, never patched.
type GeneratedSQL struct {
	SQL       string        `json:"sql"`
	Kind      StatementKind `json:"kind"`
	Operation string        `json:"operation"` // root keyword, e.g. "DROP"
	Attempts  int           `json:"attempts"`
}
