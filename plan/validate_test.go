package plan

import (
	"testing"
)

func validPlan() *Plan {
	return &Plan{
		ID:             "p1",
		StartingNodeID: "stage",
		Nodes: []Node{
			{ID: "stage", Payload: Payload{Spec: &StageSpec{ChildNodeID: "fork"}}},
			{ID: "fork", Payload: Payload{Spec: &ForkSpec{ParallelNodeIDs: []string{"a", "b"}}}},
			{ID: "a", Payload: Payload{Spec: &StepSpec{StepKind: "shell"}}},
			{ID: "b", Payload: Payload{Spec: &StepSpec{StepKind: "http"}}},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validPlan()); err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}
}

func TestValidate_MissingStartingNode(t *testing.T) {
	p := validPlan()
	p.StartingNodeID = "ghost"
	if err := Validate(p); err == nil {
		t.Fatal("expected error for unknown starting node")
	}

	p = validPlan()
	p.StartingNodeID = ""
	if err := Validate(p); err == nil {
		t.Fatal("expected error for empty starting node")
	}
}

func TestValidate_UnknownReference(t *testing.T) {
	p := validPlan()
	p.Nodes[1].Payload.Spec = &ForkSpec{ParallelNodeIDs: []string{"a", "ghost"}}
	if err := Validate(p); err == nil {
		t.Fatal("expected error for dangling fork branch")
	}
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	p := validPlan()
	p.Nodes = append(p.Nodes, Node{ID: "a", Payload: Payload{Spec: &StepSpec{}}})
	if err := Validate(p); err == nil {
		t.Fatal("expected error for duplicate node id")
	}
}

func TestValidate_CycleDetected(t *testing.T) {
	p := &Plan{
		ID:             "p1",
		StartingNodeID: "s1",
		Nodes: []Node{
			{ID: "s1", Payload: Payload{Spec: &StageSpec{ChildNodeID: "s2"}}},
			{ID: "s2", Payload: Payload{Spec: &StageSpec{ChildNodeID: "s1"}}},
		},
	}
	if err := Validate(p); err == nil {
		t.Fatal("expected error for containment cycle")
	}
}

func TestValidate_EmptyPlan(t *testing.T) {
	if err := Validate(&Plan{ID: "p1"}); err == nil {
		t.Fatal("expected error for plan without nodes")
	}
}
