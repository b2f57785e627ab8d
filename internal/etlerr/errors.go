// Package etlerr holds the typed errors raised by each pipeline stage.
package etlerr

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageConfig    Stage = "config"
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageLoad      Stage = "load"
)

// Reason explains why every tier was exhausted.
type Reason string

const (
	// ReasonUnreachable: no tier answered with a usable HTTP response.
	ReasonUnreachable Reason = "unreachable"
	// ReasonInvalidData: at least one tier answered but all answers were invalid.
	ReasonInvalidData Reason = "invalid_data"
)

// TierAttempt records the outcome of one tier during a fetch.
type TierAttempt struct {
	Tier    string
	Reached bool
	Err     error
}

// SourceUnavailableError is returned when all enabled tiers are exhausted.
type SourceUnavailableError struct {
	Reason   Reason
	Attempts []TierAttempt
}

func (e *SourceUnavailableError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Tier, a.Err))
	}
	return fmt.Sprintf("weather source unavailable (%s): %s", e.Reason, strings.Join(parts, "; "))
}

// Unwrap exposes the last tier's error.
func (e *SourceUnavailableError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

type ExtractionError struct {
	Op  string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed during %s: %v", e.Op, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationError names the fields that made a payload unusable.
type ValidationError struct {
	Missing   []string
	Malformed []string
	Err       error
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Malformed) > 0 {
		parts = append(parts, "malformed fields: "+strings.Join(e.Malformed, ", "))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

// LoadError carries the table whose statement failed.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load failed on table %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type ConfigurationError struct {
	Setting string
	Msg     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Msg)
}

// StageOf maps an error to the stage that raised it.
func StageOf(err error) Stage {
	var (
		cfgErr  *ConfigurationError
		extErr  *ExtractionError
		srcErr  *SourceUnavailableError
		valErr  *ValidationError
		loadErr *LoadError
	)
	switch {
	case errors.As(err, &loadErr):
		return StageLoad
	case errors.As(err, &valErr):
		return StageTransform
	case errors.As(err, &extErr), errors.As(err, &srcErr):
		return StageExtract
	case errors.As(err, &cfgErr):
		return StageConfig
	}
	return ""
}
