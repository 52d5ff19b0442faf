package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/relaybase/relaybase/internal/history"
	"github.com/relaybase/relaybase/internal/llm"
	"github.com/relaybase/relaybase/internal/log"
)

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
// Uses buffer-first strategy so headers are only sent after successful
// encoding, which allows returning a proper 500 if encoding fails.
func writeJSON(w http.ResponseWriter, logger log.Logger, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

// writeError writes a JSON error response with {error, message} body.
func writeError(w http.ResponseWriter, logger log.Logger, status int, code, message string) {
	writeJSON(w, logger, status, errorResponse{Error: code, Message: message})
}

// writeRelayError maps relay and store errors onto HTTP statuses:
// validation 400, missing record 404, no provider 503, upstream 502.
func writeRelayError(w http.ResponseWriter, logger log.Logger, err error) {
	switch {
	case errors.Is(err, llm.ErrValidation):
		writeError(w, logger, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, history.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "not_found", "chat not found")
	case errors.Is(err, llm.ErrNoProvider):
		writeError(w, logger, http.StatusServiceUnavailable, "no_provider", "no completion provider configured")
	case errors.Is(err, llm.ErrUpstream):
		writeError(w, logger, http.StatusBadGateway, "upstream_error", err.Error())
	default:
		logger.Error("request failed", "error", err)
		writeError(w, logger, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// maxBodyBytes bounds request bodies. Chat transcripts fit comfortably;
// anything larger is rejected before JSON decoding.
const maxBodyBytes = 1 << 20

// decodeJSON decodes a size-limited request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}
