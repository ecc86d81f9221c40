package controller

// Status is the lifecycle state of one control-bearing workflow step.
type Status string

const (
	// StatusReady means the step has not been attempted in this session.
	StatusReady Status = "ready"

	// StatusInProgress means the step's command is currently running.
	StatusInProgress Status = "in-progress"

	// StatusCompleted means the command exited zero and, for extraction
	// steps, the expected artifact was located on disk.
	StatusCompleted Status = "completed"

	// StatusFailed means the command exited non-zero, timed out, or
	// exhausted its automatic stall-recovery budget.
	StatusFailed Status = "failed"

	// StatusCanceled means the operator declined the confirmation prompt
	// or canceled the step while it was running. Distinguished from
	// [StatusFailed] so resume guidance is only shown when it applies.
	StatusCanceled Status = "canceled"

	// StatusPartial means the command succeeded but its expected artifact
	// could not be located; the operator must supply the file manually
	// before the dependent step may start.
	StatusPartial Status = "partial"
)

// Terminal reports whether the status survives a device-class/mode switch
// when progress preservation is enabled.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
