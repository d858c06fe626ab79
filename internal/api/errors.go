package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]interface{}
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause records the underlying error message
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final EngineError
func (eb *ErrorBuilder) Build() EngineError {
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	log *logrus.Entry
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(log *logrus.Entry) *ErrorHandler {
	return &ErrorHandler{log: log}
}

// HandleError writes err as an internal error unless it already is an EngineError.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error, status int) {
	engineErr, ok := err.(EngineError)
	if !ok {
		engineErr = NewError(ErrTypeInternal, err.Error()).
			WithRequestID(middleware.GetReqID(r.Context())).
			WithContext("path", r.URL.Path).
			WithContext("method", r.Method).
			Build()
	}
	eh.logError(r, engineErr, status)
	eh.writeErrorResponse(w, status, engineErr)
}

// HandleValidationError handles validation-specific errors
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		Build()

	eh.logError(r, engineErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

// HandleInvalidParams reports a query parameter that could not be parsed.
func (eh *ErrorHandler) HandleInvalidParams(w http.ResponseWriter, r *http.Request, param, raw string) {
	engineErr := NewError(ErrTypeInvalidParams, fmt.Sprintf("%s must be a non-negative integer", param)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("param", param).
		WithContext("value", raw).
		Build()

	eh.logError(r, engineErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

// HandleNotFound reports a missing ledger entry.
func (eh *ErrorHandler) HandleNotFound(w http.ResponseWriter, r *http.Request, what, id string) {
	engineErr := NewError(ErrTypeNotFound, fmt.Sprintf("%s not found", what)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("id", id).
		Build()

	eh.logError(r, engineErr, http.StatusNotFound)
	eh.writeErrorResponse(w, http.StatusNotFound, engineErr)
}

func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int) {
	category := GetErrorCategory(engineErr.Type)
	entry := eh.log.WithFields(logrus.Fields{
		"type":       engineErr.Type,
		"category":   category,
		"status":     status,
		"request_id": engineErr.RequestID,
		"method":     r.Method,
		"path":       r.URL.Path,
		"remote_ip":  r.RemoteAddr,
	})
	for key, value := range engineErr.Context {
		// Never log raw seeds - only hashes
		if key == "server_seed" {
			continue
		}
		entry = entry.WithField(key, value)
	}

	if category == CategoryValidation || category == CategoryLookup {
		entry.Warn(engineErr.Message)
		return
	}
	entry.Error(engineErr.Message)
}

func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				requestID := middleware.GetReqID(r.Context())
				eh.log.WithFields(logrus.Fields{
					"request_id": requestID,
					"path":       r.URL.Path,
					"method":     r.Method,
					"panic":      fmt.Sprintf("%v", rvr),
				}).Error("panic recovered")

				engineErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("path", r.URL.Path).
					Build()
				eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
