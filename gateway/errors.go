package gateway

import (
	"fmt"
	"github.com/pkg/errors"
)

// ErrDisposed rejects acquisitions against a disposed connector.
var ErrDisposed = errors.New("connector disposed")

// ResolutionError reports a per-request expression that evaluated to null
// or to a value outside its contract. Field names the gateway setting,
// Expr echoes the configured expression.
type ResolutionError struct {
	Field  string
	Expr   string
	Value  interface{}
	Reason string
}

func (self *ResolutionError) Error() string {
	if self.Reason == "" {
		return fmt.Sprintf("the '%s' [%s] must not evaluate to null", self.Field, self.Expr)
	}
	return fmt.Sprintf("the '%s' [%s] %s, not to: %v", self.Field, self.Expr, self.Reason, self.Value)
}

func nullResolution(field, expr string) *ResolutionError {
	return &ResolutionError{Field: field, Expr: expr}
}

func badResolution(field, expr string, value interface{}, reason string) *ResolutionError {
	return &ResolutionError{Field: field, Expr: expr, Value: value, Reason: reason}
}

// TypeLookupError reports a type name that no registry entry matches.
type TypeLookupError struct {
	Name string
	Err  error
}

func (self *TypeLookupError) Error() string {
	return fmt.Sprintf("cannot load type %q: %s", self.Name, self.Err)
}

func (self *TypeLookupError) Unwrap() error {
	return self.Err
}

// UnsupportedCommandError reports a command value outside the closed
// enumeration reaching the dispatcher, a programming defect.
type UnsupportedCommandError struct {
	Command Command
}

func (self *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("unsupported command: %s", self.Command)
}

// TransportError wraps a connection or interaction failure with the
// operation that produced it.
type TransportError struct {
	Op  string
	Err error
}

func (self *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %s", self.Op, self.Err)
}

func (self *TransportError) Unwrap() error {
	return self.Err
}

func transportErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}
