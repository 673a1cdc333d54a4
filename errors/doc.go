// Package errors provides structured error types for the classkit library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: member path, byte offset, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindMalformedInput).
//		Path("com/acme/Foo", "run(I)V").
//		Offset(112).
//		Detail("invalid opcode 0x%02x", op).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Malformed(errors.PhaseDecode, pos, "truncated constant pool")
//	err := errors.MethodTooLarge(owner, name, desc, size)
//
// All errors implement the standard error interface and support errors.Is/As.
// The package-level sentinels match any error of the same Kind:
//
//	if errors.Is(err, classkiterrors.ErrMalformedInput) { ... }
package errors
