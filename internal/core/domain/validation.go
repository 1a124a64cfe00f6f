package domain

import "time"

// ErrorDetail describes one violated schema constraint.
type ErrorDetail struct {
	Keyword    string         `json:"keyword"`
	DataPath   string         `json:"dataPath"`
	SchemaPath string         `json:"schemaPath"`
	Params     map[string]any `json:"params,omitempty"`
	Message    string         `json:"message"`
}

// ValidationResult is the outcome of checking one document. A document that
// fails its schema is a normal result with Valid set to false, not an error.
type ValidationResult struct {
	Valid      bool          `json:"isValid"`
	Errors     []ErrorDetail `json:"errors,omitempty"`
	ErrorsText string        `json:"errorsText,omitempty"`
}

// ValidationRun is a persisted validation outcome.
type ValidationRun struct {
	ID         string        `json:"id"`
	Collection string        `json:"collection"`
	Actor      string        `json:"actor"`
	Valid      bool          `json:"isValid"`
	Errors     []ErrorDetail `json:"errors,omitempty"`
	ErrorsText string        `json:"errorsText,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

type ValidationRunFilter struct {
	Collection string
	Limit      int
}
