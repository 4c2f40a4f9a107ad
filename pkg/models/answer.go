package models

// Answer is the natural-language rendering of an execution result.
type Answer struct {
	Text     string `json:"text"`
	NoData   bool   `json:"no_data,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
	Table    string `json:"table,omitempty"` // rendered rows, set when Degraded
}
