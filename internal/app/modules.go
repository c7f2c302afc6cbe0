package app

import (
	"io"

	"github.com/vk/nodeflow/internal/registry"
	"github.com/vk/nodeflow/modules/arith"
	"github.com/vk/nodeflow/modules/command"
	"github.com/vk/nodeflow/modules/env_vars"
	"github.com/vk/nodeflow/modules/print"
	"github.com/vk/nodeflow/modules/s3"
	"github.com/vk/nodeflow/modules/tasklist"
	"github.com/vk/nodeflow/modules/textwriter"
)

// coreModules is the list of node type modules compiled into the binary.
// Print nodes write to out.
func coreModules(out io.Writer) []registry.Module {
	return []registry.Module{
		&arith.Module{},
		&env_vars.Module{},
		&tasklist.Module{},
		&textwriter.Module{},
		&command.Module{},
		&print.Module{Out: out},
		&s3.Module{},
	}
}
