// Package errors provides structured error types for the picklebridge module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: traversal path, expected/actual type names,
// and cause chain.
//
// The codec reports four kinds a caller normally has to tell apart:
//
//	allocation          sink, value stack or engine could not obtain memory
//	type_mismatch       a value's runtime tag disagrees with the command
//	protocol_violation  command or data stream malformed or not fully consumed
//	evaluation          the value engine raised an error (Cause holds it)
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhasePickle, errors.KindTypeMismatch).
//		Path("user", "age").
//		Expected("int").
//		Actual("string").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhasePickle, path, "int", "string")
//	err := errors.Protocol(errors.PhaseUnpickle, nil, "data not fully consumed")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
