package api

import (
	"github.com/MJE43/minesweep-relay/internal/game"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

const (
	// Input validation errors
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeValidation    = "validation_error"

	ErrTypeNotFound = "not_found"

	// System errors
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryLookup     ErrorCategory = "lookup"
	CategorySystem     ErrorCategory = "system"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidParams, ErrTypeValidation:
		return CategoryValidation
	case ErrTypeNotFound:
		return CategoryLookup
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// PresetInfo describes one named board size.
type PresetInfo struct {
	Name string `json:"name"`
	game.Config
}

// PresetsResponse lists the board presets a client may request.
type PresetsResponse struct {
	Presets       []PresetInfo `json:"presets"`
	EngineVersion string       `json:"engine_version"`
}
