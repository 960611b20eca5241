package errors

const (
	HttpInternalError    = "internal_error"
	HttpInvalidJsonError = "invalid_json"
	HttpRuleViolation    = "rule_violation"
	HttpNotFoundError    = "not_found"
	HttpConflictError    = "conflict"
	HttpUnavailableError = "store_unavailable"
)

// ErrorResponse is the error response body for command and query errors.
// For rule violations ErrorType carries the violated rule name so clients
// can correct the input without parsing the message.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
