package sim

import "fmt"

// InvariantViolation is raised (as a panic value) when a caller or a
// collaborator breaks a contract of the engine, e.g. asking a processing-order
// policy to process more units than its queue holds. It signals a programming
// error, never a recoverable runtime condition. The public entry points
// convert it into a returned error.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant %q violated: %s", v.Invariant, v.Detail)
}

// mustHold panics with an *InvariantViolation when cond is false.
func mustHold(cond bool, invariant string, format string, args ...any) {
	if !cond {
		panic(&InvariantViolation{Invariant: invariant, Detail: fmt.Sprintf(format, args...)})
	}
}

// recoverViolation turns a panicking *InvariantViolation into *err.
// Any other panic value is re-raised.
func recoverViolation(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if v, ok := r.(*InvariantViolation); ok {
		*err = v
		return
	}
	panic(r)
}
