package importer

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound   = errors.New("import session not found or expired")
	ErrInvalidTransition = errors.New("invalid import session transition")
	ErrInvalidDelimiter  = errors.New("delimiter must be one of , ~ ; :")
)

// ParseError aborts an import before preview.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError names a mapped destination field the project record does
// not have. The field is skipped.
type ValidationError struct {
	Column string
	Field  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("column %q maps to unknown field %q", e.Column, e.Field)
}

// DateParseError leaves the performance period unset for the row.
type DateParseError struct {
	Value string
	Err   error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("unparseable date %q: %v", e.Value, e.Err)
}

func (e *DateParseError) Unwrap() error { return e.Err }

// PersistenceError is a per-row storage failure; other rows continue.
type PersistenceError struct {
	AwardNumber string
	Op          string
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("award %s: %s: %v", e.AwardNumber, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UserCreationError leaves one identity unlinked.
type UserCreationError struct {
	AwardNumber string
	Name        string
	Err         error
}

func (e *UserCreationError) Error() string {
	return fmt.Sprintf("award %s: create user %q: %v", e.AwardNumber, e.Name, e.Err)
}

func (e *UserCreationError) Unwrap() error { return e.Err }
