package nodeid

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// NamePattern is the rule every component name must satisfy.
var NamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z_0-9]*$`)

// ErrInvalidPath is returned by Parse.
var ErrInvalidPath = errors.New("invalid component path")

// ValidName reports whether name can be used for a graph component.
func ValidName(name string) bool {
	return NamePattern.MatchString(name)
}

// Parse reads a dotted path. The empty string parses to the empty address.
func Parse(path string) (*Address, error) {
	if path == "" {
		return &Address{}, nil
	}
	names := strings.Split(path, ".")
	for _, name := range names {
		if !ValidName(name) {
			return nil, fmt.Errorf("%w %q: bad segment %q", ErrInvalidPath, path, name)
		}
	}
	return &Address{names: names}, nil
}
