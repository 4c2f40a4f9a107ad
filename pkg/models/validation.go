package models

// RejectReason is a machine-checkable code explaining a validation rejection.
type RejectReason string

const (
	ReasonUnparseable        RejectReason = "unparseable"
	ReasonMultipleStatements RejectReason = "multiple_statements"
	ReasonDMLNotPermitted    RejectReason = "dml_not_permitted"
	ReasonObjectNotPermitted RejectReason = "object_not_permitted"
	ReasonInjectionSuspected RejectReason = "injection_suspected"
)

// ValidationResult is the tagged outcome of validating a statement against a role.
type ValidationResult struct {
	Valid  bool          `json:"valid"`
	Kind   StatementKind `json:"kind"`
	Reason RejectReason  `json:"reason,omitempty"`
	Detail string        `json:"detail,omitempty"`
}

// Accept returns a Valid result for a statement of the given kind.
func Accept(kind StatementKind) ValidationResult {
	return ValidationResult{Valid: true, Kind: kind}
}

// Reject returns a Rejected result.
func Reject(kind StatementKind, reason RejectReason, detail string) ValidationResult {
	return ValidationResult{Kind: kind, Reason: reason, Detail: detail}
}
