package recall

import "fmt"

type (
	// ConfigurationError is returned when a graph or template configuration
	// is rejected. The operation that returned it left the graph unchanged.
	ConfigurationError struct {
		Op  string
		Msg string
	}

	// DanglingReferenceError is returned when resolving a run cannot find a
	// sibling instance it depends on. Only the affected run is torn down.
	DanglingReferenceError struct {
		Template string
		Missing  string
		RecallID uint64
	}

	// LockOrderViolation is the panic value of a lock acquired against the
	// global lock order. It is a programming error and never recovered.
	LockOrderViolation struct {
		Held, Acquired uint64
	}
)

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("recall id %d: template %q cannot find %q", e.RecallID, e.Template, e.Missing)
}

func (e LockOrderViolation) Error() string {
	return fmt.Sprintf("lock order violation: acquiring %d while holding %d", e.Acquired, e.Held)
}
