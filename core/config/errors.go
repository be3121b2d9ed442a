package config

import (
	"errors"
	"fmt"
)

// Reasons carried by SchemaValidationError besides validator tags.
const (
	ReasonUnknown = "unknown"
	ReasonMissing = "missing"
	ReasonType    = "type"
)

// ErrNoTestNetwork is returned when the in-process network is selected but the
// resolve context carries none.
var ErrNoTestNetwork = errors.New("no in-process test network attached to the resolve context")

// SchemaValidationError reports a merged configuration that does not match the
// schema. Reason is ReasonUnknown, ReasonMissing, ReasonType or the failing
// validation tag such as "eth_addr".
type SchemaValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *SchemaValidationError) Error() string {
	msg := fmt.Sprintf("invalid configuration: field %q", e.Field)
	switch e.Reason {
	case ReasonUnknown:
		msg += " is not a recognized option"
	case ReasonMissing:
		msg += " is required"
	case ReasonType:
		msg += " has the wrong type"
	default:
		msg += fmt.Sprintf(" failed %q validation", e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaValidationError) Unwrap() error {
	return e.Err
}

// ConfigSourceError reports a config file that exists but could not be read or parsed.
type ConfigSourceError struct {
	Path string
	Err  error
}

func (e *ConfigSourceError) Error() string {
	return fmt.Sprintf("unable to load config file %s: %v", e.Path, e.Err)
}

func (e *ConfigSourceError) Unwrap() error {
	return e.Err
}
