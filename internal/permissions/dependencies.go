package permissions

import "fmt"

var (
	// ErrUnknownPermission indicates a permission lookup failed because it has not been registered.
	ErrUnknownPermission = fmt.Errorf("permission: unknown permission")
	// ErrCircularDependency signals that a dependency graph contains a cycle.
	ErrCircularDependency = fmt.Errorf("permission: circular dependency detected")
)

// ResolveDependencies returns every permission the given one transitively requires,
// in dependency-first order.
func ResolveDependencies(permissionID string) ([]string, error) {
	perms := GetAll()
	if _, ok := perms[permissionID]; !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPermission, permissionID)
	}

	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(perms))
	var resolved []string

	var walk func(id string) error
	walk = func(id string) error {
		perm, ok := perms[id]
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownPermission, id)
		}
		switch state[id] {
		case inProgress:
			return fmt.Errorf("%w at %s", ErrCircularDependency, id)
		case done:
			return nil
		}

		state[id] = inProgress
		for _, dep := range perm.DependsOn {
			if err := walk(dep); err != nil {
				return err
			}
		}
		state[id] = done
		if id != permissionID {
			resolved = append(resolved, id)
		}
		return nil
	}

	if err := walk(permissionID); err != nil {
		return nil, err
	}
	return resolved, nil
}
