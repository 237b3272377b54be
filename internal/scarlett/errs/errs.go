// Package errs defines the error kinds surfaced across the control-plane
// engine (spec.md §7): IoTransport, ProtocolMismatch, BadArgument,
// ResourceExhausted and NotSupported. Callers use errors.Is against the
// sentinel Kind values; wrapped causes are preserved via %w.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way spec.md §7 does. Kind implements error
// so it can be used directly as a sentinel with errors.Is.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	// IoTransport covers short reads/writes on an endpoint and rejected
	// URB/control-transfer submissions.
	IoTransport Kind = "io transport error"
	// ProtocolMismatch covers envelope validation failures: cmd, seq,
	// size or error/pad mismatches between request and response.
	ProtocolMismatch Kind = "protocol envelope mismatch"
	// BadArgument covers unknown config items, out-of-range indices and
	// commit ranges outside the software-config blob.
	BadArgument Kind = "bad argument"
	// ResourceExhausted covers buffer allocation failures inside bulk
	// chunkers.
	ResourceExhausted Kind = "resource exhausted"
	// NotSupported covers a feature the attached model does not declare.
	NotSupported Kind = "not supported"
)

// E builds an error of the given kind with a formatted message; errors.Is
// matches kind and, transitively, any further %w operand in format.
func E(kind Kind, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{kind}, args...)...)
}

// Wrap attaches kind to an existing error without reformatting its message.
func Wrap(kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

// Is reports whether err is of the given kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}
