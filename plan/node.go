package plan

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// NodeType discriminates the payload variants a Node can carry.
type NodeType string

const (
	// NodeTypeStep is a leaf unit of work executed by a worker.
	NodeTypeStep NodeType = "STEP"
	// NodeTypeStage groups a subtree under a single child node.
	NodeTypeStage NodeType = "STAGE"
	// NodeTypeFork runs several child nodes in parallel.
	NodeTypeFork NodeType = "FORK"
	// NodeTypeMatrix fans a template node out over axis combinations;
	// the concrete instances are discovered at runtime and appended to
	// the plan.
	NodeTypeMatrix NodeType = "MATRIX"
	// NodeTypeBarrier synchronizes parallel branches on a shared ref.
	NodeTypeBarrier NodeType = "BARRIER"
)

// PayloadSpec is one variant of a node payload.
type PayloadSpec interface {
	Type() NodeType
}

// StepSpec describes a leaf unit of work. The engine stores it
// verbatim; what a step does is the worker's business.
type StepSpec struct {
	StepKind       string            `json:"stepKind"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	TimeoutSeconds int64             `json:"timeoutSeconds,omitempty"`
}

func (StepSpec) Type() NodeType { return NodeTypeStep }

// StageSpec groups a subtree under one child node.
type StageSpec struct {
	ChildNodeID     string `json:"childNodeId"`
	FailureStrategy string `json:"failureStrategy,omitempty"`
}

func (StageSpec) Type() NodeType { return NodeTypeStage }

// ForkSpec runs the referenced nodes in parallel.
type ForkSpec struct {
	ParallelNodeIDs []string `json:"parallelNodeIds"`
}

func (ForkSpec) Type() NodeType { return NodeTypeFork }

// MatrixSpec fans a template node out over axis value combinations.
type MatrixSpec struct {
	Axes           map[string][]string `json:"axes"`
	TemplateNodeID string              `json:"templateNodeId"`
	MaxConcurrency int                 `json:"maxConcurrency,omitempty"`
}

func (MatrixSpec) Type() NodeType { return NodeTypeMatrix }

// BarrierSpec synchronizes parallel branches on a shared ref.
type BarrierSpec struct {
	BarrierRef string `json:"barrierRef"`
}

func (BarrierSpec) Type() NodeType { return NodeTypeBarrier }

// Payload wraps a PayloadSpec for JSON and database round trips. The
// wire form is an envelope {"type": ..., "spec": {...}} decoded by the
// type tag.
type Payload struct {
	Spec PayloadSpec
}

type payloadEnvelope struct {
	Type NodeType        `json:"type"`
	Spec json.RawMessage `json:"spec"`
}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Spec == nil {
		return []byte("null"), nil
	}
	spec, err := json.Marshal(p.Spec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payloadEnvelope{Type: p.Spec.Type(), Spec: spec})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		p.Spec = nil
		return nil
	}

	var env payloadEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	var spec PayloadSpec
	switch env.Type {
	case NodeTypeStep:
		spec = &StepSpec{}
	case NodeTypeStage:
		spec = &StageSpec{}
	case NodeTypeFork:
		spec = &ForkSpec{}
	case NodeTypeMatrix:
		spec = &MatrixSpec{}
	case NodeTypeBarrier:
		spec = &BarrierSpec{}
	default:
		return fmt.Errorf("unknown node payload type %q", env.Type)
	}

	if len(env.Spec) > 0 {
		if err := json.Unmarshal(env.Spec, spec); err != nil {
			return err
		}
	}
	p.Spec = spec
	return nil
}

// Value implements driver.Valuer.
func (p Payload) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *Payload) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("cannot scan %T into Payload", src)
	}
}

// Node is one vertex of the execution graph. Immutable once its Plan
// is saved; deleted only when the Plan is deleted.
type Node struct {
	ID        string    `gorm:"primaryKey;size:64"`
	PlanID    string    `gorm:"index;size:64;not null"`
	Name      string    `gorm:"size:255"`
	Payload   Payload   `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName sets the node table name.
func (Node) TableName() string { return "plan_nodes" }
