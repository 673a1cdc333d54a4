package classfile

import "go.uber.org/zap"

// ReadOptions controls which parts of a class the reader reports.
type ReadOptions struct {
	// SkipCode omits Code attributes entirely. Methods still get
	// VisitMethod and VisitEnd.
	SkipCode bool
	// SkipDebug omits SourceFile, SourceDebugExtension, LineNumberTable,
	// LocalVariableTable, LocalVariableTypeTable and MethodParameters.
	SkipDebug bool
	// SkipFrames omits StackMapTable frames.
	SkipFrames bool
	// ExpandFrames reports every frame as FNew with all locals and stack.
	ExpandFrames bool
}

// DeadCodePolicy selects how unreachable code is handled when frames are computed.
type DeadCodePolicy int

const (
	// DeadCodeMarker replaces unreachable code with nop...athrow and gives
	// it a frame with no locals and a Throwable on the stack.
	DeadCodeMarker DeadCodePolicy = iota
	// DeadCodeOmit leaves unreachable code untouched and emits no frame for it.
	DeadCodeOmit
)

func (p DeadCodePolicy) String() string {
	switch p {
	case DeadCodeMarker:
		return "marker"
	case DeadCodeOmit:
		return "omit"
	}
	return "unknown"
}

// ParseDeadCodePolicy parses "marker" or "omit".
func ParseDeadCodePolicy(s string) (DeadCodePolicy, bool) {
	switch s {
	case "", "marker":
		return DeadCodeMarker, true
	case "omit":
		return DeadCodeOmit, true
	}
	return DeadCodeMarker, false
}

// WriterOptions controls what the writer computes at Finish.
type WriterOptions struct {
	// ComputeMaxs recomputes max_stack and max_locals, ignoring VisitMaxs.
	ComputeMaxs bool
	// ComputeFrames recomputes the StackMapTable, ignoring VisitFrame.
	// It implies ComputeMaxs.
	ComputeFrames bool
	// Hierarchy answers superclass queries when frames are merged.
	// Nil treats every class as unknown.
	Hierarchy Hierarchy
	// DeadCode selects the unreachable code policy for computed frames.
	DeadCode DeadCodePolicy
	// Logger overrides the package logger for this writer.
	Logger *zap.Logger
}
