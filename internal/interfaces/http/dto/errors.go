package dto

import "net/http"

// Error codes returned in the response envelope.
// Format: ERR_<CATEGORY>
const (
	ErrCodeInternal              = "ERR_INTERNAL"
	ErrCodeValidation            = "ERR_VALIDATION"
	ErrCodeBadRequest            = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput          = "ERR_INVALID_INPUT"
	ErrCodeNotFound              = "ERR_NOT_FOUND"
	ErrCodeConcurrencyConflict   = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInvalidState          = "ERR_INVALID_STATE"
	ErrCodeInconsistentState     = "ERR_INCONSISTENT_STATE"
	ErrCodeDependencyUnavailable = "ERR_DEPENDENCY_UNAVAILABLE"
	ErrCodeTimeout               = "ERR_TIMEOUT"
	ErrCodeRequestTooLarge       = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:              http.StatusInternalServerError,
	ErrCodeValidation:            http.StatusBadRequest,
	ErrCodeBadRequest:            http.StatusBadRequest,
	ErrCodeInvalidInput:          http.StatusBadRequest,
	ErrCodeNotFound:              http.StatusNotFound,
	ErrCodeConcurrencyConflict:   http.StatusConflict,
	ErrCodeInvalidState:          http.StatusUnprocessableEntity,
	ErrCodeInconsistentState:     http.StatusConflict,
	ErrCodeDependencyUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:               http.StatusGatewayTimeout,
	ErrCodeRequestTooLarge:       http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainCodeMapping maps domain error codes to response codes
var domainCodeMapping = map[string]string{
	"NOT_FOUND":              ErrCodeNotFound,
	"INVALID_INPUT":          ErrCodeInvalidInput,
	"VALIDATION_ERROR":       ErrCodeValidation,
	"INVALID_STATE":          ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT":   ErrCodeConcurrencyConflict,
	"DEPENDENCY_UNAVAILABLE": ErrCodeDependencyUnavailable,
	"INCONSISTENT_STATE":     ErrCodeInconsistentState,
	"INTERNAL_ERROR":         ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the response format.
// Codes already in the response format, or unknown, are returned as-is.
func NormalizeErrorCode(code string) string {
	if mapped, ok := domainCodeMapping[code]; ok {
		return mapped
	}
	return code
}
