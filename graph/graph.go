// Package graph provides a conditional-edge execution graph for sequential
// pipelines with bounded cycles.
//
// A graph is a set of named nodes connected by static edges and by condition
// nodes that pick the next node at runtime. Execution is strictly
// sequential: one node runs at a time and the state record it returns feeds
// the next node. Cycles are allowed; the per-node visit ceiling turns a
// runaway loop into an error instead of a hang.
package graph

import (
	"context"
	"fmt"
)

// NodeType classifies a node.
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEnd       NodeType = "end"
	NodeTypeLLM       NodeType = "llm"
	NodeTypeTool      NodeType = "tool"
	NodeTypeCondition NodeType = "condition"
	NodeTypeCustom    NodeType = "custom"
)

// State is the mutable record threaded through one execution.
type State map[string]any

// NodeFunc executes a node and returns the (possibly replaced) state.
type NodeFunc func(context.Context, State) (State, error)

// ConditionFunc inspects the state and names the branch to take.
type ConditionFunc func(context.Context, State) (string, error)

// VisitFunc observes each node just before it runs.
type VisitFunc func(name string, nodeType NodeType)

// Node is one vertex of the graph.
type Node struct {
	Name      string
	Type      NodeType
	Execute   NodeFunc
	Condition ConditionFunc     // condition nodes only
	NextNodes []string          // static edges; the first is the successor
	NextMap   map[string]string // condition nodes: branch label -> node name
}

// Graph is an executable flow of nodes.
type Graph struct {
	nodes     map[string]*Node
	startNode string
	endNode   string
	maxVisits int
	onVisit   VisitFunc
}

// NewGraph creates an empty graph with a default visit ceiling of 10.
func NewGraph() *Graph {
	return &Graph{
		nodes:     make(map[string]*Node),
		maxVisits: 10,
	}
}

func (g *Graph) validateNode(node *Node) {
	if node.Name == "" {
		panic("node name cannot be empty")
	}
	switch node.Type {
	case NodeTypeCondition:
		if node.Condition == nil {
			panic(fmt.Sprintf("condition node %s must have non-nil Condition function", node.Name))
		}
	default:
		if node.Execute == nil {
			panic(fmt.Sprintf("node %s of type %s must have non-nil Execute function", node.Name, node.Type))
		}
	}
}

// AddNode adds a node, panicking on duplicates or invalid definitions.
// Start and end nodes register themselves.
func (g *Graph) AddNode(node *Node) {
	if _, exists := g.nodes[node.Name]; exists {
		panic(fmt.Sprintf("node %s already exists", node.Name))
	}
	g.validateNode(node)
	g.nodes[node.Name] = node

	if node.Type == NodeTypeStart {
		g.startNode = node.Name
	}
	if node.Type == NodeTypeEnd {
		g.endNode = node.Name
	}
}

func (n *Node) addNext(name string) {
	n.NextNodes = append(n.NextNodes, name)
}

// SetStartNode sets the start node.
func (g *Graph) SetStartNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.startNode = name
}

// SetEndNode sets the end node.
func (g *Graph) SetEndNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.endNode = name
}

// SetMaxVisits sets the per-node visit ceiling.
func (g *Graph) SetMaxVisits(maxVisits int) {
	if maxVisits > 0 {
		g.maxVisits = maxVisits
	}
}

// SetVisitFunc installs an observer called before each node runs.
func (g *Graph) SetVisitFunc(fn VisitFunc) {
	g.onVisit = fn
}

// GetNode returns a node by name.
func (g *Graph) GetNode(name string) (*Node, error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("node %s not found", name)
	}
	return node, nil
}

// Execute walks the graph from the start node until an end node runs or an
// error occurs. Condition nodes never mutate state; every other node may
// return a replacement state record.
func (g *Graph) Execute(ctx context.Context, initialState State) (State, error) {
	if g.startNode == "" {
		return nil, fmt.Errorf("start node not set")
	}

	state := initialState
	if state == nil {
		state = make(State)
	}

	visited := make(map[string]int)
	current := g.startNode

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		node, exists := g.nodes[current]
		if !exists {
			return nil, fmt.Errorf("node %s not found", current)
		}

		visited[current]++
		if visited[current] > g.maxVisits {
			return nil, fmt.Errorf("visit ceiling exceeded at node %s (%d visits)", current, visited[current])
		}

		if g.onVisit != nil {
			g.onVisit(node.Name, node.Type)
		}

		if node.Type == NodeTypeEnd {
			return node.Execute(ctx, state)
		}

		next, newState, err := g.step(ctx, node, state)
		if err != nil {
			return nil, err
		}
		state = newState
		current = next
	}
}

func (g *Graph) step(ctx context.Context, node *Node, state State) (string, State, error) {
	if node.Type == NodeTypeCondition {
		branch, err := node.Condition(ctx, state)
		if err != nil {
			return "", nil, fmt.Errorf("error evaluating condition at node %s: %w", node.Name, err)
		}
		next := node.NextMap[branch]
		if next == "" {
			return "", nil, fmt.Errorf("node %s has no branch %q", node.Name, branch)
		}
		return next, state, nil
	}

	newState, err := node.Execute(ctx, state)
	if err != nil {
		return "", nil, fmt.Errorf("error executing node %s: %w", node.Name, err)
	}
	if newState == nil {
		newState = state
	}
	if len(node.NextNodes) == 0 {
		return "", nil, fmt.Errorf("no next node specified for node %s", node.Name)
	}
	return node.NextNodes[0], newState, nil
}

// Builder helps build graphs fluently.
type Builder struct {
	graph *Graph
}

// NewBuilder creates a new graph builder.
func NewBuilder() *Builder {
	return &Builder{graph: NewGraph()}
}

// AddNode adds a node to the graph.
func (b *Builder) AddNode(name string, nodeType NodeType, execute NodeFunc) *Builder {
	b.graph.AddNode(&Node{
		Name:    name,
		Type:    nodeType,
		Execute: execute,
	})
	return b
}

// AddConditionNode adds a condition node with its branch table.
func (b *Builder) AddConditionNode(name string, condition ConditionFunc, nextMap map[string]string) *Builder {
	b.graph.AddNode(&Node{
		Name:      name,
		Type:      NodeTypeCondition,
		Condition: condition,
		NextMap:   nextMap,
	})
	return b
}

// AddEdge connects two nodes.
func (b *Builder) AddEdge(from, to string) *Builder {
	if node, exists := b.graph.nodes[from]; exists {
		node.addNext(to)
	}
	return b
}

// SetStart sets the start node.
func (b *Builder) SetStart(name string) *Builder {
	b.graph.SetStartNode(name)
	return b
}

// SetEnd sets the end node.
func (b *Builder) SetEnd(name string) *Builder {
	b.graph.SetEndNode(name)
	return b
}

// SetMaxVisits sets the per-node visit ceiling.
func (b *Builder) SetMaxVisits(maxVisits int) *Builder {
	b.graph.SetMaxVisits(maxVisits)
	return b
}

// SetVisitFunc installs the node observer.
func (b *Builder) SetVisitFunc(fn VisitFunc) *Builder {
	b.graph.SetVisitFunc(fn)
	return b
}

// Build returns the constructed graph.
func (b *Builder) Build() *Graph {
	return b.graph
}
