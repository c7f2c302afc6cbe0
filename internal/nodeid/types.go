package nodeid

// Address is a component path. The empty Address refers to the component it
// is resolved against.
type Address struct {
	names []string
}

// FromNames builds an address from component names. Names are not
// validated; use Parse for untrusted input.
func FromNames(names ...string) *Address {
	return &Address{names: append([]string(nil), names...)}
}

// Len returns the number of path segments.
func (a *Address) Len() int {
	if a == nil {
		return 0
	}
	return len(a.names)
}

// Names returns a copy of the path segments.
func (a *Address) Names() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.names...)
}
