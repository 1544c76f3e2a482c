package status

// Calculate derives a plan-level status from the statuses of the plan's
// node executions. The rule is deterministic over the multiset of
// inputs:
//
//  1. any active node wins, highest active priority first
//     (RUNNING > INTERVENTION_WAITING > APPROVAL_WAITING > PAUSED > QUEUED);
//  2. otherwise any failure wins, highest failure priority first
//     (ABORTED > ERRORED > FAILED > EXPIRED);
//  3. otherwise every node succeeded or was skipped: SUCCEEDED.
//
// The second return value is false when statuses is empty; the caller
// keeps the execution's current status in that case.
func Calculate(statuses []Status) (Status, bool) {
	if len(statuses) == 0 {
		return "", false
	}

	present := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		present[s] = true
	}

	for _, s := range ActiveStatuses() {
		if present[s] {
			return s, true
		}
	}
	for _, s := range FailureStatuses() {
		if present[s] {
			return s, true
		}
	}
	return Succeeded, true
}

// DowngradeTerminal applies the in-flight downgrade rule: when a plan
// status is recomputed while one node's own transition has not landed
// yet, a terminal aggregate cannot be trusted and is downgraded to
// RUNNING. Non-terminal statuses pass through unchanged.
func DowngradeTerminal(s Status) Status {
	if s.IsTerminal() {
		return Running
	}
	return s
}
