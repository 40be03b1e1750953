// Package errors provides the error taxonomy shared by the correlation engine.
//
// Only configuration failures travel as errors: a dataset that cannot be
// opened or decoded aborts engine construction. Row-level data anomalies are
// recovered where they occur, and a reference with no known relationships is
// an empty result rather than an error.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a rejected parameter or setting.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDataset marks a dataset that could not be loaded.
	ErrDataset = errors.New("dataset unavailable")
)

// ValidationError reports a bad query parameter or configuration value.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	field := e.Field
	if field == "" {
		field = "input"
	}
	return fmt.Sprintf("invalid %s: %s", field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// IOError reports a dataset file that could not be opened, read or
// decompressed.
type IOError struct {
	Operation string
	Path      string
	Err       error
}

func (e *IOError) Error() string {
	target := e.Operation
	if e.Path != "" {
		target += " " + e.Path
	}
	return fmt.Sprintf("failed to %s: %v", target, e.Err)
}

// Unwrap exposes the cause alongside ErrDataset.
func (e *IOError) Unwrap() []error {
	return []error{e.Err, ErrDataset}
}

// ParseError reports a dataset document that could not be decoded as a whole.
// Format is one of "JSON", "TSV", "OSIS" or "YAML".
type ParseError struct {
	Format  string
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	where := e.Format
	if e.Path != "" {
		where += " at " + e.Path
	}
	return fmt.Sprintf("failed to parse %s: %s", where, e.Message)
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDataset}
	}
	return []error{e.Err, ErrDataset}
}

// NewValidation reports value as unacceptable for field.
func NewValidation(field, value, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// NewIO reports a failed operation on the dataset at path.
func NewIO(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

// NewParse wraps err; a nil err reads as "malformed document".
func NewParse(format, path string, err error) *ParseError {
	e := &ParseError{Format: format, Path: path, Message: "malformed document", Err: err}
	if err != nil {
		e.Message = err.Error()
	}
	return e
}

// Loading prefixes err with the dataset path being loaded. Nil stays nil.
func Loading(path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// IsDataset reports whether err is a dataset configuration failure.
func IsDataset(err error) bool {
	return errors.Is(err, ErrDataset)
}

// IsInvalid reports whether err rejects caller input.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
