package models

// ExecutionOutcome tags an ExecutionResult.
type ExecutionOutcome string

const (
	OutcomeRows   ExecutionOutcome = "rows"
	OutcomeEmpty  ExecutionOutcome = "empty"
	OutcomeFailed ExecutionOutcome = "failed"
)

// ExecutionResult is exactly one of Rows, Empty or Failed.
// Rows preserve the backend's column order.
type ExecutionResult struct {
	Outcome      ExecutionOutcome `json:"outcome"`
	Columns      []string         `json:"columns,omitempty"`
	Rows         [][]any          `json:"rows,omitempty"`
	RowsAffected int64            `json:"rows_affected,omitempty"`
	Truncated    bool             `json:"truncated,omitempty"`
	Write        bool             `json:"write,omitempty"`   // set by the write path, never for SELECT
	Message      string           `json:"message,omitempty"` // sanitized, Failed only
	TargetDB     string           `json:"target_db"`
	RoleName     string           `json:"role_name"`
}

// RowsResult builds a Rows result.
func RowsResult(columns []string, rows [][]any) ExecutionResult {
	return ExecutionResult{Outcome: OutcomeRows, Columns: columns, Rows: rows}
}

// WriteResult builds the Rows result of a write that returned no rows of its
// own: a single rows_affected column holding the count.
func WriteResult(column string, rowsAffected int64) ExecutionResult {
	return ExecutionResult{
		Outcome:      OutcomeRows,
		Columns:      []string{column},
		Rows:         [][]any{{rowsAffected}},
		RowsAffected: rowsAffected,
		Write:        true,
	}
}

// EmptyResult builds an Empty result.
func EmptyResult(columns []string) ExecutionResult {
	return ExecutionResult{Outcome: OutcomeEmpty, Columns: columns}
}

// FailedResult builds a Failed result. The message must already be sanitized.
func FailedResult(message string) ExecutionResult {
	return ExecutionResult{Outcome: OutcomeFailed, Message: message}
}

func (r ExecutionResult) IsRows() bool   { return r.Outcome == OutcomeRows }
func (r ExecutionResult) IsEmpty() bool  { return r.Outcome == OutcomeEmpty }
func (r ExecutionResult) IsFailed() bool { return r.Outcome == OutcomeFailed }
