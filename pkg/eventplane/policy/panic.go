package policy

import "fmt"

// panicError converts a recovered value to an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

// PanicError converts a recovered panic value into a *PolicyError.
func PanicError(policyName string, r any) *PolicyError {
	return &PolicyError{Policy: policyName, Err: panicError(r)}
}
