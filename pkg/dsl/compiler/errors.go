package compiler

import (
	"errors"
	"fmt"

	"github.com/quidditch/esdsl/pkg/dsl/expr"
)

var (
	// ErrUnknownKind is returned when no handler is registered for a node kind
	ErrUnknownKind = errors.New("no handler registered")
	// ErrAmbiguousType is returned when a relational query matches several document classes
	ErrAmbiguousType = errors.New("too many candidates")
	// ErrUndetectedType is returned when a relational query matches no document class
	ErrUndetectedType = errors.New("cannot detect")
)

// Error is a compilation failure for one node kind.
type Error struct {
	Kind expr.Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("compile %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func compileError(kind expr.Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
