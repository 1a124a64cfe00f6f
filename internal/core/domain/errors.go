package domain

import "errors"

// DocumentFailedValidationCode is the server error code for a write rejected
// by a collection validator.
const DocumentFailedValidationCode = 121

var (
	ErrNotInitialized     = errors.New("attempt to use document validator without initialization")
	ErrAlreadyInitialized = errors.New("document validator already initialized")
	ErrUnknownSchema      = errors.New("no schema registered")
	ErrSchemaExists       = errors.New("schema already registered")
	ErrInvalidCollection  = errors.New("invalid collection name")
	ErrNotFound           = errors.New("not found")
)

type errorCoder interface {
	HasErrorCode(code int) bool
}

// IsDocumentFailedValidationError reports whether err, or any error it wraps,
// carries server error code 121. Driver errors such as mongo.WriteException
// and mongo.CommandError satisfy the check.
func IsDocumentFailedValidationError(err error) bool {
	if err == nil {
		return false
	}
	var coded errorCoder
	if !errors.As(err, &coded) {
		return false
	}
	return coded.HasErrorCode(DocumentFailedValidationCode)
}
