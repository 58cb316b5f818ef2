package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/evodash/internal/apperr"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response failed", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
			"code":    codeForStatus(code),
		},
	})
}

// writeError maps a coded error onto the error envelope.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusOK {
		status = http.StatusBadGateway
	}
	code := apperr.CodeOf(err)
	if status >= 500 {
		slog.Error("request failed", "code", code, "error", err)
	}

	body := map[string]any{
		"message": err.Error(),
		"type":    typeForCode(code),
		"code":    code,
	}
	var e *apperr.Error
	if errors.As(err, &e) && len(e.Details) > 0 {
		body["details"] = e.Details
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func typeForCode(code string) string {
	switch code {
	case apperr.CodeValidation:
		return "invalid_request_error"
	case apperr.CodeNotFound:
		return "not_found"
	default:
		return "api_error"
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return apperr.CodeValidation
	case http.StatusNotFound:
		return apperr.CodeNotFound
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return apperr.CodeInternal
	}
}
