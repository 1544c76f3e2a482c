package plan

import (
	apperrors "github.com/kbukum/planengine/errors"
)

// Validate checks a plan graph before it is saved: the starting node
// must exist, every node reference (stage children, fork branches,
// matrix templates) must resolve within the plan, and the containment
// edges must not form a cycle.
func Validate(p *Plan) error {
	if p.ID == "" {
		return apperrors.MissingField("plan.id")
	}
	if len(p.Nodes) == 0 {
		return apperrors.InvalidInput("plan.nodes", "a plan needs at least one node")
	}

	nodes := make(map[string]*Node, len(p.Nodes))
	for i := range p.Nodes {
		n := &p.Nodes[i]
		if n.ID == "" {
			return apperrors.MissingField("node.id")
		}
		if _, dup := nodes[n.ID]; dup {
			return apperrors.InvalidInput("node.id", "duplicate node id "+n.ID)
		}
		if n.Payload.Spec == nil {
			return apperrors.MissingField("node.payload")
		}
		nodes[n.ID] = n
	}

	if p.StartingNodeID == "" {
		return apperrors.MissingField("plan.startingNodeId")
	}
	if _, ok := nodes[p.StartingNodeID]; !ok {
		return apperrors.InvalidInput("plan.startingNodeId",
			"starting node "+p.StartingNodeID+" is not part of the plan")
	}

	edges, err := containmentEdges(nodes)
	if err != nil {
		return err
	}
	return checkAcyclic(nodes, edges)
}

// containmentEdges collects parent -> child references from node
// payloads, rejecting references to nodes outside the plan.
func containmentEdges(nodes map[string]*Node) (map[string][]string, error) {
	edges := make(map[string][]string)

	addEdge := func(from, to string) error {
		if _, ok := nodes[to]; !ok {
			return apperrors.InvalidInput("node.payload",
				"node "+from+" references unknown node "+to)
		}
		edges[from] = append(edges[from], to)
		return nil
	}

	for id, n := range nodes {
		switch spec := n.Payload.Spec.(type) {
		case *StageSpec:
			if spec.ChildNodeID != "" {
				if err := addEdge(id, spec.ChildNodeID); err != nil {
					return nil, err
				}
			}
		case *ForkSpec:
			for _, child := range spec.ParallelNodeIDs {
				if err := addEdge(id, child); err != nil {
					return nil, err
				}
			}
		case *MatrixSpec:
			if spec.TemplateNodeID != "" {
				if err := addEdge(id, spec.TemplateNodeID); err != nil {
					return nil, err
				}
			}
		}
	}
	return edges, nil
}

// checkAcyclic runs Kahn's algorithm over the containment edges; if
// some nodes can never be dequeued the references form a cycle.
func checkAcyclic(nodes map[string]*Node, edges map[string][]string) error {
	inDegree := make(map[string]int, len(nodes))
	for id := range nodes {
		inDegree[id] = 0
	}
	for _, children := range edges {
		for _, child := range children {
			inDegree[child]++
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		visited++

		for _, child := range edges[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if visited != len(nodes) {
		return apperrors.InvalidInput("plan.nodes", "node references form a cycle")
	}
	return nil
}
