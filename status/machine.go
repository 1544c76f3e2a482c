package status

// allowedPredecessors maps each transition target to the set of
// statuses a record may currently hold for the transition to apply.
// The conditional update in the execution store uses this set as its
// "update where current status in (...)" predicate.
var allowedPredecessors = map[Status][]Status{
	// Queued is the creation status; it is never re-entered.
	Queued: {},

	Running:             {Queued, Paused, ApprovalWaiting, InterventionWaiting},
	Paused:              {Queued, Running},
	ApprovalWaiting:     {Running},
	InterventionWaiting: {Running},

	// Terminal statuses are reachable from any non-terminal status.
	Succeeded: {Queued, Running, Paused, ApprovalWaiting, InterventionWaiting},
	Failed:    {Queued, Running, Paused, ApprovalWaiting, InterventionWaiting},
	Errored:   {Queued, Running, Paused, ApprovalWaiting, InterventionWaiting},
	Aborted:   {Queued, Running, Paused, ApprovalWaiting, InterventionWaiting},
	Expired:   {Queued, Running, Paused, ApprovalWaiting, InterventionWaiting},
	Skipped:   {Queued, Running, Paused, ApprovalWaiting, InterventionWaiting},
}

// AllowedPredecessors returns the statuses from which target may be
// entered. The returned slice must not be mutated.
func AllowedPredecessors(target Status) []Status {
	return allowedPredecessors[target]
}

// CanTransition reports whether a record currently in from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range allowedPredecessors[to] {
		if s == from {
			return true
		}
	}
	return false
}
