// Package registry provides a pre-declared capability registry.
//
// Components that must be looked up by name, such as policy constructors
// named in a chain document, are registered up front instead of being
// discovered by reflection:
//
//	policies := registry.New[string, PolicyConstructor]()
//	policies.MustRegister("logging", newLogging)
//	policies.MustRegister("retry", newRetry)
//
//	ctor, err := policies.Lookup("retry")
//	if err != nil {
//	    return err // wraps registry.ErrNotFound and names the known keys
//	}
//
// Registry is safe for concurrent use and optimized for read-heavy access.
package registry
