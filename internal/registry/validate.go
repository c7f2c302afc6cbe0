package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/graph"
)

// ValidateRegistry builds one node of every registered type in a scratch
// graph and checks that each factory produces a node of the type it was
// registered under.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)
	scratch := graph.New("validate")

	for _, name := range r.TypeNames() {
		n, err := r.types[name].New(ctx, scratch, "sample")
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("node type '%s': factory failed: %v", name, err))
		case n == nil:
			errs = append(errs, fmt.Sprintf("node type '%s': factory returned no node", name))
		case n.TypeName() != name:
			errs = append(errs, fmt.Sprintf("node type '%s': factory built a '%s' node", name, n.TypeName()))
		default:
			logger.Debug("Validated node type.", "name", name, "plugs", len(n.Plugs()))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	logger.Debug("Registry validation successful.", "types", len(r.types))
	return nil
}
