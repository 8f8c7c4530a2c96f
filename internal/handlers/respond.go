package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/clipstream/backend/internal/apperrors"
	"github.com/clipstream/backend/internal/logging"
)

// successEnvelope is the shape of every successful response body.
type successEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
}

// failureEnvelope is the shape of every error response body.
type failureEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	ErrorKind  string `json:"errorKind"`
}

func respondData(ctx context.Context, w http.ResponseWriter, status int, data any, message string) {
	writeJSON(ctx, w, status, successEnvelope{StatusCode: status, Data: data, Message: message})
}

// respondError maps the error through the taxonomy and logs it. The message
// shown to clients is the caller's wording, never the internal error text.
func respondError(ctx context.Context, w http.ResponseWriter, err error, message string) {
	status := apperrors.HTTPStatus(err)
	kind := apperrors.Kind(err)

	logger := logging.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "kind", kind, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "kind", kind, "error", err)
	}

	writeJSON(ctx, w, status, failureEnvelope{StatusCode: status, Message: message, ErrorKind: kind})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
	}
}
