package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode    Phase = "decode"    // class bytes to events
	PhaseEncode    Phase = "encode"    // events to class bytes
	PhaseResolve   Phase = "resolve"   // label and offset resolution
	PhaseFrames    Phase = "frames"    // stack map frame computation
	PhaseSymbols   Phase = "symbols"   // constant pool interning
	PhaseLoad      Phase = "load"      // file and archive loading
	PhaseConfig    Phase = "config"    // configuration parsing
	PhaseArchive   Phase = "archive"   // jar processing
	PhaseTransform Phase = "transform" // instrumentation passes
)

// Kind categorizes the error
type Kind string

const (
	KindMalformedInput     Kind = "malformed_input"
	KindUnsupportedVersion Kind = "unsupported_version"
	KindCapacityExceeded   Kind = "capacity_exceeded"
	KindMethodTooLarge     Kind = "method_too_large"
	KindClassTooLarge      Kind = "class_too_large"
	KindUnsupported        Kind = "unsupported"
	KindInvalidInput       Kind = "invalid_input"
	KindUnresolvedLabel    Kind = "unresolved_label"
	KindNotFound           Kind = "not_found"
)

// Sentinels for errors.Is checks that only care about the kind.
var (
	ErrMalformedInput     = &Error{Kind: KindMalformedInput, Offset: -1}
	ErrUnsupportedVersion = &Error{Kind: KindUnsupportedVersion, Offset: -1}
	ErrCapacityExceeded   = &Error{Kind: KindCapacityExceeded, Offset: -1}
	ErrMethodTooLarge     = &Error{Kind: KindMethodTooLarge, Offset: -1}
	ErrClassTooLarge      = &Error{Kind: KindClassTooLarge, Offset: -1}
	ErrUnsupported        = &Error{Kind: KindUnsupported, Offset: -1}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput, Offset: -1}
	ErrUnresolvedLabel    = &Error{Kind: KindUnresolvedLabel, Offset: -1}
	ErrNotFound           = &Error{Kind: KindNotFound, Offset: -1}
)

// Error is the structured error type used throughout classkit
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	// Path identifies the offending member, e.g. ["com/acme/Foo", "run(I)V"].
	Path []string
	// Offset is the byte or bytecode offset the error refers to, -1 if unknown.
	Offset int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Offset >= 0 {
		b.WriteString(fmt.Sprintf(" (offset %d)", e.Offset))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches any phase. An unsupported version is
// also a malformed input.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind && !(t.Kind == KindMalformedInput && e.Kind == KindUnsupportedVersion) {
		return false
	}
	return t.Phase == "" || t.Phase == e.Phase
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:  phase,
			Kind:   kind,
			Offset: -1,
		},
	}
}

// Path sets the member path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Offset sets the byte offset
func (b *Builder) Offset(off int) *Builder {
	b.err.Offset = off
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Malformed creates a malformed input error at a byte offset
func Malformed(phase Phase, offset int, detail string, args ...any) *Error {
	return New(phase, KindMalformedInput).Offset(offset).Detail(detail, args...).Build()
}

// UnsupportedVersion creates an unsupported class version error
func UnsupportedVersion(major, minor uint16) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindUnsupportedVersion,
		Detail: fmt.Sprintf("class file version %d.%d is not supported", major, minor),
		Value:  major,
		Offset: 4,
	}
}

// CapacityExceeded creates a capacity error for a bounded table
func CapacityExceeded(phase Phase, path []string, what string, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCapacityExceeded,
		Path:   path,
		Detail: fmt.Sprintf("too many %s (limit %d)", what, limit),
		Value:  limit,
		Offset: -1,
	}
}

// MethodTooLarge creates an error for a method whose code exceeds the format limit
func MethodTooLarge(owner, name, descriptor string, size int) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindMethodTooLarge,
		Path:   []string{owner, name + descriptor},
		Detail: fmt.Sprintf("code length %d exceeds 65535 bytes", size),
		Value:  size,
		Offset: -1,
	}
}

// ClassTooLarge creates an error for a class whose tables exceed the format limits
func ClassTooLarge(owner, what string, count int) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindClassTooLarge,
		Path:   []string{owner},
		Detail: fmt.Sprintf("%d %s exceed the limit of 65535", count, what),
		Value:  count,
		Offset: -1,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, path []string, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Path:   path,
		Detail: what,
		Offset: -1,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Path:   path,
		Detail: detail,
		Offset: -1,
	}
}

// UnresolvedLabel creates an error for a label referenced but never placed
func UnresolvedLabel(path []string, detail string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindUnresolvedLabel,
		Path:   path,
		Detail: detail,
		Offset: -1,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
		Offset: -1,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
		Offset: -1,
	}
}

// Load creates a file loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
		Offset: -1,
	}
}

// WithPath returns err with path set if err is an *Error without one.
func WithPath(err error, path ...string) error {
	if e, ok := err.(*Error); ok && len(e.Path) == 0 {
		cp := *e
		cp.Path = path
		return &cp
	}
	return err
}
