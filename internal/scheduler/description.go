package scheduler

import (
	"slices"

	"github.com/vk/nodeflow/internal/hashing"
	"github.com/vk/nodeflow/internal/task"
)

// Description binds one canonical Task to every frame it stands for and to
// the descriptions it requires.
type Description struct {
	// Task is the canonical task. Its context carries the first frame.
	Task *task.Task
	// Hash is the execution hash of Task.
	Hash hashing.Hash
	// Frames lists the frames to execute. It is empty for tasks that do no
	// work of their own.
	Frames []float64
	// Requirements lists the descriptions that must execute first.
	Requirements []*Description

	batchKey   hashing.Hash
	batchSize  int
	sequential bool
}

// Sequential reports whether the frames must execute one at a time.
func (d *Description) Sequential() bool { return d.sequential }

// BatchSize returns the batch size declared by the node.
func (d *Description) BatchSize() int { return d.batchSize }

// NoOp reports whether the task does no work of its own.
func (d *Description) NoOp() bool { return d.Hash.IsZero() }

// Requires reports whether other is a direct or transitive requirement.
func (d *Description) Requires(other *Description) bool {
	seen := make(map[*Description]bool)
	var walk func(*Description) bool
	walk = func(cur *Description) bool {
		for _, r := range cur.Requirements {
			if r == other {
				return true
			}
			if !seen[r] {
				seen[r] = true
				if walk(r) {
					return true
				}
			}
		}
		return false
	}
	return walk(d)
}

func (d *Description) addRequirements(reqs []*Description) {
	for _, r := range reqs {
		if r != d && !slices.Contains(d.Requirements, r) {
			d.Requirements = append(d.Requirements, r)
		}
	}
}

func (d *Description) hasFrame(f float64) bool {
	return slices.Contains(d.Frames, f)
}

func sameRequirements(a, b []*Description) bool {
	if len(a) != len(b) {
		return false
	}
	for _, r := range a {
		if !slices.Contains(b, r) {
			return false
		}
	}
	return true
}
