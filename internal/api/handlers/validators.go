package handlers

import (
	"net/http"
	"strings"

	"github.com/trackline/server/internal/api/problem"
	"github.com/trackline/server/internal/domain/ids"
)

// FilterError represents a validation error for a specific field.
type FilterError struct {
	Field   string
	Message string
}

func (e FilterError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidateAndExtractULID extracts and validates a ULID from a request path
// parameter. On failure it writes the problem response and returns false.
func ValidateAndExtractULID(w http.ResponseWriter, r *http.Request, paramName, env string) (string, bool) {
	ulidValue := strings.TrimSpace(pathParam(r, paramName))
	if ulidValue == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", FilterError{Field: paramName, Message: "missing"}, env)
		return "", false
	}
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", FilterError{Field: paramName, Message: "invalid ULID"}, env)
		return "", false
	}
	return ulidValue, true
}
