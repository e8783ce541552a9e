package domain

import (
	"errors"
	"fmt"
	"strings"

	"go.trai.ch/zerr"
)

// Configuration errors. They are detected before any side effect and pass through
// every target and task boundary unchanged.
var (
	// ErrConfiguration is the generic configuration error.
	ErrConfiguration = zerr.New("configuration error")

	// ErrUnknownReference is returned when a name does not resolve to a registered kind.
	ErrUnknownReference = zerr.New("unknown reference")

	// ErrWrongCategory is returned when a reference resolves to a kind of another category.
	ErrWrongCategory = zerr.New("reference has wrong category")

	// ErrDuplicateKind is returned when a kind name is registered twice.
	ErrDuplicateKind = zerr.New("kind already registered")

	// ErrDuplicateTarget is returned when a buildfile declares a target twice.
	ErrDuplicateTarget = zerr.New("target already declared")

	// ErrParallelUptodates is returned when a target declares its uptodate checks as a parallel group.
	ErrParallelUptodates = zerr.New("uptodates must not be a parallel group")

	// ErrCycleDetected is returned when a target depends on itself, directly or transitively.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrInvalidArguments is returned when task arguments do not match the declared schema.
	ErrInvalidArguments = zerr.New("invalid arguments")

	// ErrNoSuchVariable is returned when reading a variable that was never set.
	ErrNoSuchVariable = zerr.New("no such variable")

	// ErrNoTargetsSpecified is returned when a build is requested without targets.
	ErrNoTargetsSpecified = zerr.New("no targets specified")

	// ErrInvalidPattern is returned for malformed glob or exclusion patterns.
	ErrInvalidPattern = zerr.New("invalid pattern")

	// ErrBuildfileNotFound is returned when no buildfile exists at or above the base directory.
	ErrBuildfileNotFound = zerr.New("buildfile not found")
)

// Domain errors. They are logged with the diagnostic trace and converted into an abort.
var (
	// ErrBuild is the generic domain error raised by tasks and uptodate checks.
	ErrBuild = zerr.New("build error")

	// ErrTaskFailed is returned when a task reports a non-zero status.
	ErrTaskFailed = zerr.New("task failed")

	// ErrFileNotFound is returned when a task operand does not exist.
	ErrFileNotFound = zerr.New("file not found")

	// ErrEmptySources is returned when an uptodate check has destinations but no sources.
	ErrEmptySources = zerr.New("uptodate check has no source files")

	// ErrEmptyDestinations is returned when an uptodate check declares no destination patterns.
	ErrEmptyDestinations = zerr.New("uptodate check has no destination patterns")
)

var (
	// ErrAborted is the single control-flow signal that unwinds a build.
	ErrAborted = zerr.New("build aborted")

	// ErrInterrupted is returned when the build is interrupted by a signal.
	ErrInterrupted = zerr.New("build interrupted")
)

var configurationErrors = []error{
	ErrConfiguration,
	ErrUnknownReference,
	ErrWrongCategory,
	ErrDuplicateKind,
	ErrDuplicateTarget,
	ErrParallelUptodates,
	ErrCycleDetected,
	ErrInvalidArguments,
	ErrNoSuchVariable,
	ErrNoTargetsSpecified,
	ErrInvalidPattern,
	ErrBuildfileNotFound,
}

var buildErrors = []error{
	ErrBuild,
	ErrTaskFailed,
	ErrFileNotFound,
	ErrEmptySources,
	ErrEmptyDestinations,
}

// Detail wraps a sentinel so that errors.Is keeps matching it, and attaches the
// given key/value pairs as zerr metadata.
func Detail(err error, keyvals ...any) error {
	out := zerr.Wrap(err, "")
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		out = zerr.With(out, key, keyvals[i+1])
	}
	return out
}

// IsConfigurationError reports whether err belongs to the configuration family.
func IsConfigurationError(err error) bool {
	for _, target := range configurationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsBuildError reports whether err belongs to the domain error family.
func IsBuildError(err error) bool {
	for _, target := range buildErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAbort reports whether err carries the abort signal.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAborted)
}

// IsPassThrough reports whether err must cross target and task boundaries unchanged.
func IsPassThrough(err error) bool {
	if IsAbort(err) || IsConfigurationError(err) {
		return true
	}
	var structural *StructuralError
	return errors.As(err, &structural)
}

// Abort converts err into the abort signal. An error that already carries the
// signal is returned as is.
func Abort(err error) error {
	if err == nil {
		return ErrAborted
	}
	if IsAbort(err) {
		return err
	}
	return errors.Join(ErrAborted, err)
}

// StructuralError is a programming error (a recovered panic) raised inside a target
// or task. It is never converted into an abort.
type StructuralError struct {
	Value any
	Trace []Frame
	Stack string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error in %s: %v", FormatTrace(e.Trace), e.Value)
}

// Unwrap exposes the panic value when it was an error.
func (e *StructuralError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Traceback renders the engine-level traceback, outermost frame first.
func (e *StructuralError) Traceback() string {
	var b strings.Builder
	b.WriteString("Traceback (engine frames, most recent call last):\n")
	for _, f := range e.Trace {
		b.WriteString("  ")
		b.WriteString(f.String())
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%v\n", e.Value)
	return b.String()
}
