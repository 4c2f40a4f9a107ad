package apperrors

import "errors"

var (
	ErrUnknownRole       = errors.New("unknown role")
	ErrUnknownTarget     = errors.New("unknown target database")
	ErrSchemaUnavailable = errors.New("schema unavailable")
	ErrGenerationFailed  = errors.New("sql generation failed")
	ErrNotValidated      = errors.New("statement has not been validated")
	ErrExecutionFailed   = errors.New("execution failed")
	ErrSuperseded        = errors.New("request superseded by a newer request in the same session")
)
