package plugin

import "fmt"

// ValidatePlugin reports whether m can be registered: it needs a descriptor
// with non-empty id, name, version and author, and at least one hook.
// It never panics.
func ValidatePlugin(m *Module) bool {
	return validatePlugin(m) == nil
}

func validatePlugin(m *Module) error {
	if m == nil || m.Descriptor == nil {
		return invalid("", "descriptor")
	}
	d := m.Descriptor
	switch {
	case d.ID() == "":
		return invalid("", "id")
	case d.Name() == "":
		return invalid(d.ID(), "name")
	case d.Version() == "":
		return invalid(d.ID(), "version")
	case d.Author() == "":
		return invalid(d.ID(), "author")
	}
	if !m.HasHooks() {
		return invalid(d.ID(), "hooks")
	}
	return nil
}

func invalid(id, missing string) error {
	return &PluginError{ID: id, Op: "validate", Err: fmt.Errorf("%w: missing %s", ErrInvalidPlugin, missing)}
}
