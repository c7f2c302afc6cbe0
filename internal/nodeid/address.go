package nodeid

import (
	"fmt"
	"slices"
	"strings"
)

// String returns the dotted form. A nil address prints as "".
func (a *Address) String() string {
	if a == nil {
		return ""
	}
	return strings.Join(a.names, ".")
}

// Equal reports whether both addresses name the same path.
func (a *Address) Equal(other *Address) bool {
	if a == nil || other == nil {
		return a == other
	}
	return slices.Equal(a.names, other.names)
}

// Last returns the final segment, or "" for an empty address.
func (a *Address) Last() string {
	if a.Len() == 0 {
		return ""
	}
	return a.names[len(a.names)-1]
}

// Parent returns the address without its final segment. The parent of an
// empty address is empty.
func (a *Address) Parent() *Address {
	if a.Len() == 0 {
		return &Address{}
	}
	return FromNames(a.names[:len(a.names)-1]...)
}

// Child returns a new address with name appended.
func (a *Address) Child(name string) *Address {
	return FromNames(append(a.Names(), name)...)
}

// HasPrefix reports whether prefix is a leading sub-path of a.
func (a *Address) HasPrefix(prefix *Address) bool {
	if a == nil || prefix == nil || prefix.Len() > a.Len() {
		return false
	}
	return slices.Equal(a.names[:prefix.Len()], prefix.names)
}

// Relative strips ancestor from the front of a.
func (a *Address) Relative(ancestor *Address) (*Address, error) {
	if !a.HasPrefix(ancestor) {
		return nil, fmt.Errorf("%q is not below %q", a.String(), ancestor.String())
	}
	return FromNames(a.names[ancestor.Len():]...), nil
}
