package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"wallet-service/internal/domain"
	"wallet-service/internal/errors"
)

// maxBodyBytes caps request bodies; every payload here is a handful of fields.
const maxBodyBytes = 1 << 16

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data}
	json.NewEncoder(w).Encode(response)
}

// writeError renders domain errors as-is. Internal errors are logged in full
// and replaced by a generic message so no internals reach the caller.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	appErr := errors.AsAppError(err)

	errResponse := Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}

	if appErr.Internal() {
		logger.Error("Unexpected failure",
			"method", r.Method,
			"path", r.URL.Path,
			"code", appErr.Code,
			"error", appErr.Error(),
		)
		errResponse = Error{
			Code:    string(errors.InternalError),
			Message: errors.GenericMessage,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus())
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

// bearerCredential extracts the token from "Authorization: Bearer <token>".
func bearerCredential(r *http.Request) (domain.Credential, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return domain.Credential(token), true
}
