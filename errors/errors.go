// Package errors provides error handling for dkg.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for CLI output
//
// Usage:
//
//	if err := runner.Wait(ctx, task); err != nil {
//	    return errors.Wrap(err, "index task failed")
//	}
//
//	if errors.Is(err, errors.ErrEmptyDump) {
//	    // try the next distribution
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	"strings"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Join         = crdb.Join
	Mark         = crdb.Mark
)

// Invariant violations
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// User-facing messages and details
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Sentinel errors for dataset import and task execution.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrTaskConsumed is returned when a task handle is waited on or stopped twice
	ErrTaskConsumed = New("task already consumed")

	// ErrProcessFailed indicates a task exited with a nonzero status
	ErrProcessFailed = New("process failed")

	// ErrEmptyDump indicates a downloaded data dump holds no usable content
	ErrEmptyDump = New("data dump is empty")

	// ErrEndpointUnavailable indicates a SPARQL endpoint did not answer
	ErrEndpointUnavailable = New("SPARQL endpoint not available")

	// ErrNoData indicates a SPARQL endpoint answered but returned no triples
	ErrNoData = New("no data loaded")

	// ErrUnsupportedMediaType indicates a dump format the importer cannot index
	ErrUnsupportedMediaType = New("unsupported media type")

	// ErrUnknownRunnerMode indicates an unrecognised task runner mode
	ErrUnknownRunnerMode = New("unknown runner mode")
)

// Flatten renders an error for reporting in a result. Aggregates created
// with Join (or any error exposing Unwrap() []error) are rendered as their
// leaf messages joined with " / ", also when wrapped. The wrapping context
// is kept as a prefix.
func Flatten(err error) string {
	if err == nil {
		return ""
	}
	var msgs []string
	collect(err, &msgs)
	return strings.Join(msgs, " / ")
}

func collect(err error, msgs *[]string) {
	multi, wrapped := aggregate(err)
	if multi == nil {
		*msgs = append(*msgs, err.Error())
		return
	}

	first := len(*msgs)
	for _, e := range multi.Unwrap() {
		if e != nil {
			collect(e, msgs)
		}
	}
	if wrapped && len(*msgs) > first {
		outer, inner := err.Error(), multi.Error()
		if prefix := strings.TrimSuffix(outer, inner); prefix != outer {
			(*msgs)[first] = prefix + (*msgs)[first]
		}
	}
}

type multiError interface {
	error
	Unwrap() []error
}

// aggregate returns the first error in err's wrap chain that holds several
// causes, and whether it sits below at least one wrapper.
func aggregate(err error) (multiError, bool) {
	depth := 0
	for e := err; e != nil; e = crdb.UnwrapOnce(e) {
		if multi, ok := e.(multiError); ok {
			return multi, depth > 0
		}
		depth++
	}
	return nil, false
}
