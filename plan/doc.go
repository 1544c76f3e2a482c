// Package plan defines the static execution graph: the Plan record,
// its Node vertices with their typed payloads, and the Store that
// persists them. Plans are created once per pipeline definition
// instance and never mutated afterwards except by idempotent
// save-if-absent and by matrix fan-out appending freshly discovered
// nodes. Node rows are stored separately from the Plan record so they
// can be fetched independently.
package plan
