package status

// Status is the lifecycle status of a plan execution or node execution.
type Status string

const (
	// Queued means the execution is accepted but not yet picked up.
	Queued Status = "QUEUED"
	// Running means at least one node is actively executing.
	Running Status = "RUNNING"
	// Paused means the execution is held and can resume.
	Paused Status = "PAUSED"
	// ApprovalWaiting means the execution is held on an approval gate.
	ApprovalWaiting Status = "APPROVAL_WAITING"
	// InterventionWaiting means the execution is held on a manual
	// intervention after a node failure.
	InterventionWaiting Status = "INTERVENTION_WAITING"

	// Succeeded is terminal: all nodes finished successfully or were skipped.
	Succeeded Status = "SUCCEEDED"
	// Failed is terminal: a node reported failure.
	Failed Status = "FAILED"
	// Errored is terminal: the engine hit an unrecoverable error.
	Errored Status = "ERRORED"
	// Aborted is terminal: the run was cancelled by a caller.
	Aborted Status = "ABORTED"
	// Expired is terminal: the run exceeded its allowed time.
	Expired Status = "EXPIRED"
	// Skipped is terminal: the run was skipped entirely.
	Skipped Status = "SKIPPED"
)

var terminal = map[Status]bool{
	Succeeded: true,
	Failed:    true,
	Errored:   true,
	Aborted:   true,
	Expired:   true,
	Skipped:   true,
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool { return terminal[s] }

// IsActive reports whether s is a known non-terminal status.
func (s Status) IsActive() bool {
	switch s {
	case Queued, Running, Paused, ApprovalWaiting, InterventionWaiting:
		return true
	}
	return false
}

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool { return s.IsActive() || s.IsTerminal() }

func (s Status) String() string { return string(s) }

// ActiveStatuses returns all non-terminal statuses, highest priority first.
func ActiveStatuses() []Status {
	return []Status{Running, InterventionWaiting, ApprovalWaiting, Paused, Queued}
}

// TerminalStatuses returns all terminal statuses.
func TerminalStatuses() []Status {
	return []Status{Succeeded, Failed, Errored, Aborted, Expired, Skipped}
}

// FailureStatuses returns the terminal failure statuses, highest
// priority first. The order is the tie-break applied when multiple
// nodes end in different failure kinds.
func FailureStatuses() []Status {
	return []Status{Aborted, Errored, Failed, Expired}
}
