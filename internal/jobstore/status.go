package jobstore

// Status is the execution state of a batch.
type Status int32

const (
	// Waiting batches have not started.
	Waiting Status = iota
	// Running batches are executing.
	Running
	// Complete batches finished successfully.
	Complete
	// Failed batches returned an error.
	Failed
	// Killed batches were stopped, or never started because the job was
	// killed or an earlier batch failed.
	Killed
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	case Killed:
		return "killed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == Complete || s == Failed || s == Killed
}
