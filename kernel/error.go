package kernel

// ErrorKind classifies a kernel error by the recovery policy that applies to
// it. The boot sequence halts on BootstrapUnsatisfiable and OutOfMemory; code
// running after the bootstrap phase may choose to recover instead.
type ErrorKind uint8

const (
	// KindUnknown is used by errors that do not fall into any category.
	KindUnknown ErrorKind = iota

	// KindBootstrapUnsatisfiable is reported when a boot-time precondition
	// cannot be met (e.g. no room for the frame bytemap or missing boot
	// loader data).
	KindBootstrapUnsatisfiable

	// KindOutOfMemory is reported when the physical frame allocator is
	// exhausted.
	KindOutOfMemory

	// KindInvariantViolation is reported when a caller asks for something
	// that would corrupt allocator or page table state.
	KindInvariantViolation
)

// String implements fmt.Stringer for ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindBootstrapUnsatisfiable:
		return "bootstrap unsatisfiable"
	case KindOutOfMemory:
		return "out of memory"
	case KindInvariantViolation:
		return "invariant violation"
	default:
		return "unknown"
	}
}

var (
	// ErrKindBootstrapUnsatisfiable, ErrKindOutOfMemory and
	// ErrKindInvariantViolation are kind markers that can be passed to
	// errors.Is to test an error's category.
	ErrKindBootstrapUnsatisfiable = &Error{Kind: KindBootstrapUnsatisfiable}
	ErrKindOutOfMemory            = &Error{Kind: KindOutOfMemory}
	ErrKindInvariantViolation     = &Error{Kind: KindInvariantViolation}
)

// Error describes a kernel error. All kernel errors must be defined as global
// variables that are pointers to the Error structure. This requirement stems
// from the fact that the Go allocator is not available to us so we cannot use
// errors.New.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error category.
	Kind ErrorKind

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is the same error or a kind marker (an Error
// with no module and message) matching this error's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}

	if t == e {
		return true
	}

	return t.Module == "" && t.Message == "" && t.Kind == e.Kind
}
