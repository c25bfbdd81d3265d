package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/oneagent/coordination/types"
)

// Response is the uniform envelope for every tool-call answer.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo is the wire form of a coordination error.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful envelope around data.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// WriteError maps a coordination error to its HTTP status and writes the
// error envelope.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	coordErr, ok := err.(*types.Error)
	if !ok {
		coordErr = types.NewError(types.ErrInternal, "internal error").WithCause(err)
	}

	status := coordErr.HTTPStatus
	if status == 0 {
		status = statusForCode(coordErr.Code)
	}

	if logger != nil {
		logger.Warn("tool call failed",
			zap.String("code", string(coordErr.Code)),
			zap.String("message", coordErr.Message),
			zap.Int("status", status),
			zap.Error(coordErr.Cause),
		)
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(coordErr.Code),
			Message:   coordErr.Message,
			Retryable: coordErr.Retryable,
		},
		Timestamp: time.Now().UTC(),
	})
}

func statusForCode(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidArgument:
		return http.StatusBadRequest
	case types.ErrNotFound, types.ErrUnknownAgent:
		return http.StatusNotFound
	case types.ErrNotParticipant:
		return http.StatusForbidden
	case types.ErrSessionClosed:
		return http.StatusConflict
	case types.ErrEvaluatorUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSONBody decodes the request body into dst, rejecting unknown
// fields. On failure the error response has already been written.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		err := types.NewError(types.ErrInvalidArgument, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrInvalidArgument, "invalid JSON body").WithCause(err)
		WriteError(w, apiErr, logger)
		return apiErr
	}

	return nil
}
