package relate

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure taxonomy.
var (
	// ErrUnknownField is returned when a query references a column that is
	// not present in the entity's field mapping.
	ErrUnknownField = errors.New("relate: unknown field")

	// ErrUnknownAssociation is returned when an association name was never
	// registered for the source entity type.
	ErrUnknownAssociation = errors.New("relate: unknown association")

	// ErrCyclicAssociation is returned at registration time when a through
	// chain reaches itself, directly or transitively.
	ErrCyclicAssociation = errors.New("relate: cyclic association")

	// ErrUnknownDiscriminator is returned when a discriminator value read
	// from storage resolves to no registered entity type.
	ErrUnknownDiscriminator = errors.New("relate: unknown discriminator")

	// ErrUnregisteredType is returned when asking for the discriminator of a
	// type that was never declared a variant of a shared table.
	ErrUnregisteredType = errors.New("relate: unregistered type")

	// ErrUnmappedType is returned when no field mapping exists for an entity type.
	ErrUnmappedType = errors.New("relate: unmapped type")

	// ErrResolverSealed is returned when a subtype is registered after the
	// type resolver has been sealed. Redefining types after first query would
	// silently reinterpret stored rows, so it is treated as a fatal
	// configuration error.
	ErrResolverSealed = errors.New("relate: type resolver is sealed")
)

// BackendError wraps a failure reported by the execution backend together
// with the statement that produced it. The engine never interprets or
// retries the underlying error; retry policy belongs to the caller.
type BackendError struct {
	Query string // The statement that failed
	Args  []any  // The bound values
	Err   error  // The backend's error, verbatim
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("relate: backend error: %v\nQuery: %s\nArgs: %s",
		e.Err, e.Query, formatArgs(e.Args))
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// wrapBackendError attaches statement context to a backend failure. A
// failure that already carries a *BackendError passes through unchanged, so
// the engine can wrap at the execution seam without double-wrapping what the
// shipped adapter wrapped itself.
func wrapBackendError(query string, args []any, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Query: query, Args: args, Err: err}
}

// IsBackendError reports whether err originated in the execution backend.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// IsUnknownField reports whether err is an ErrUnknownField compile failure.
func IsUnknownField(err error) bool {
	return errors.Is(err, ErrUnknownField)
}

// IsUnknownDiscriminator reports whether err is a type-resolution failure.
func IsUnknownDiscriminator(err error) bool {
	return errors.Is(err, ErrUnknownDiscriminator)
}

// formatArgs formats bound values for error messages.
func formatArgs(args []any) string {
	if len(args) == 0 {
		return "[]"
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprintf("%v", arg)
	}

	// Limit output length
	result := "[" + strings.Join(parts, ", ") + "]"
	if len(result) > 200 {
		return result[:197] + "...]"
	}
	return result
}
