package ecs

import (
	"errors"
	"fmt"
)

// KernelError carries the taxonomy from spec.md §7 plus enough context
// (entity, component, module) to log or report without string parsing.
type KernelError struct {
	Code      string
	Message   string
	Entity    EntityID
	Component ComponentTypeID
	Module    string
	Cause     error
}

func (e *KernelError) Error() string {
	switch {
	case e.Entity.IsValid() && e.Module != "":
		return fmt.Sprintf("[%s] %s (entity=%+v module=%s)", e.Code, e.Message, e.Entity, e.Module)
	case e.Entity.IsValid():
		return fmt.Sprintf("[%s] %s (entity=%+v)", e.Code, e.Message, e.Entity)
	case e.Module != "":
		return fmt.Sprintf("[%s] %s (module=%s)", e.Code, e.Message, e.Module)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

func (e *KernelError) Unwrap() error { return e.Cause }

func newErr(code, msg string) *KernelError { return &KernelError{Code: code, Message: msg} }

// Registration errors — fatal at startup, per spec.md §7.
const (
	CodeDuplicateTypeId         = "DUPLICATE_TYPE_ID"
	CodeMissingEventId          = "MISSING_EVENT_ID"
	CodeMutableNotDeclared      = "MUTABLE_NOT_DECLARED"
	CodeIllegalPolicyCombination = "ILLEGAL_POLICY_COMBINATION"
	CodeCircularDependency      = "CIRCULAR_DEPENDENCY"
)

// Capacity errors.
const (
	CodeOutOfEntities          = "OUT_OF_ENTITIES"
	CodeComponentSlotExhausted = "COMPONENT_SLOT_EXHAUSTED"
)

// State errors.
const (
	CodeBadLifecycle  = "BAD_LIFECYCLE"
	CodeAlreadyPresent = "ALREADY_PRESENT"
	CodeNotPresent    = "NOT_PRESENT"
	CodeStaleHandle   = "STALE_HANDLE"
)

// Scheduling errors — captured by the circuit breaker, not surfaced to
// callers; exported so the scheduler package can log/classify them.
const (
	CodeModuleTimeout   = "MODULE_TIMEOUT"
	CodeModuleException = "MODULE_EXCEPTION"
	CodeCircuitOpen     = "CIRCUIT_OPEN"
)

// Harvest errors.
const (
	CodeUnknownComponent = "UNKNOWN_COMPONENT"
)

var (
	ErrDuplicateTypeId          = newErr(CodeDuplicateTypeId, "component or event type id already registered")
	ErrMissingEventId           = newErr(CodeMissingEventId, "event type has no stable id")
	ErrMutableNotDeclared       = newErr(CodeMutableNotDeclared, "opaque component type must declare immutability or be marked transient")
	ErrIllegalPolicyCombination = newErr(CodeIllegalPolicyCombination, "execution mode and data strategy combination is not legal")
	ErrCircularDependency       = newErr(CodeCircularDependency, "system dependency graph has a cycle within a phase")

	ErrOutOfEntities          = newErr(CodeOutOfEntities, "entity slot budget exhausted")
	ErrComponentSlotExhausted = newErr(CodeComponentSlotExhausted, "component table has no free slots")

	ErrBadLifecycle   = newErr(CodeBadLifecycle, "illegal lifecycle transition")
	ErrAlreadyPresent = newErr(CodeAlreadyPresent, "component already present on entity")
	ErrNotPresent     = newErr(CodeNotPresent, "component not present on entity")
	ErrStaleHandle    = newErr(CodeStaleHandle, "entity handle refers to a reclaimed slot")

	ErrUnknownComponent = newErr(CodeUnknownComponent, "command buffer record references an unregistered component type")

	ErrModuleTimeout   = newErr(CodeModuleTimeout, "module exceeded its max_runtime_ms budget")
	ErrModuleException = newErr(CodeModuleException, "module tick returned an error")
	ErrCircuitOpen     = newErr(CodeCircuitOpen, "module circuit breaker is open")
)

// WithEntity returns a copy of a sentinel KernelError annotated with an
// entity, so call sites can do `return ecs.ErrNotPresent.WithEntity(e)`
// without mutating the shared sentinel.
func (e *KernelError) WithEntity(entity EntityID) *KernelError {
	cp := *e
	cp.Entity = entity
	return &cp
}

// WithComponent annotates a copy with a component type id.
func (e *KernelError) WithComponent(c ComponentTypeID) *KernelError {
	cp := *e
	cp.Component = c
	return &cp
}

// WithModule annotates a copy with a module name.
func (e *KernelError) WithModule(name string) *KernelError {
	cp := *e
	cp.Module = name
	return &cp
}

// WithCause wraps an underlying error for %w-style unwrapping.
func (e *KernelError) WithCause(cause error) *KernelError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// Code extracts the taxonomy code from err, if it is (or wraps) a
// *KernelError.
func Code(err error) (string, bool) {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Code, true
	}
	return "", false
}
