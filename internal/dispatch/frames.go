package dispatch

import (
	"fmt"
	"strings"

	"github.com/vk/nodeflow/internal/framelist"
)

// FramesMode selects the frames a dispatch covers.
type FramesMode int

const (
	// CurrentFrame dispatches the frame of the session context.
	CurrentFrame FramesMode = iota
	// ScriptRange dispatches every frame of the script frame range.
	ScriptRange
	// CustomRange dispatches the frames of Config.FrameRange.
	CustomRange
)

func (m FramesMode) String() string {
	switch m {
	case CurrentFrame:
		return "current"
	case ScriptRange:
		return "script"
	case CustomRange:
		return "custom"
	default:
		return fmt.Sprintf("FramesMode(%d)", int(m))
	}
}

// ParseFramesMode converts "current", "script" or "custom" to a FramesMode.
func ParseFramesMode(s string) (FramesMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "current":
		return CurrentFrame, nil
	case "script", "full":
		return ScriptRange, nil
	case "custom":
		return CustomRange, nil
	default:
		return 0, fmt.Errorf("%w: unknown frames mode %q (want current, script or custom)", framelist.ErrConfiguration, s)
	}
}
