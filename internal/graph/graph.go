// Package graph implements the Graph Runtime (C6): a directed graph of
// named nodes with sequential, conditional (Send-style fan-out), and
// terminal edges, and declarative per-field state merging.
package graph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// End is the sentinel next-node name for a terminal edge.
const End = "__end__"

// ErrCancelled is returned when a suspension-point check observes the
// session has been cancelled.
var ErrCancelled = errors.New("graph: run cancelled")

// Reducer is a per-field state-merge policy.
type Reducer int

const (
	// ReducerReplace keeps the latest write (last-write-wins).
	ReducerReplace Reducer = iota
	// ReducerAppend concatenates slice values.
	ReducerAppend
)

// ReducerTable maps a state field name to its merge policy. Fields absent
// from the table default to ReducerReplace.
type ReducerTable map[string]Reducer

// State is a partial or full graph state: a set of named fields.
type State map[string]any

// Clone returns a shallow copy of s.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Config carries per-run context forwarded to every node: the session-id
// (forwarded to C3) and a cancellation check consulted at every suspension
// point.
type Config struct {
	SessionID string
	Cancelled func() bool
}

func (c *Config) isCancelled() bool {
	if c == nil || c.Cancelled == nil {
		return false
	}
	return c.Cancelled()
}

// NodeFunc is a node body: it receives the merged state slice and the run
// config, and returns a partial state to merge in.
type NodeFunc func(ctx context.Context, state State, cfg *Config) (State, error)

// Dispatch is one parallel invocation requested by a router: run the named
// node against base state overlaid with State.
type Dispatch struct {
	Node  string
	State State
}

// RouterFunc inspects post-node state and returns the next node(s) to run.
// A single Dispatch with Node==End (or an empty slice) ends the run.
type RouterFunc func(ctx context.Context, state State, cfg *Config) ([]Dispatch, error)

type edgeKind int

const (
	edgeSequential edgeKind = iota
	edgeConditional
	edgeTerminal
)

type edge struct {
	kind   edgeKind
	next   string
	router RouterFunc
}

// Graph is a compiled, immutable directed graph of named nodes.
type Graph struct {
	start    string
	nodes    map[string]NodeFunc
	edges    map[string]edge
	reducers ReducerTable
}

// Builder assembles a Graph. The zero value is ready to use.
type Builder struct {
	start    string
	nodes    map[string]NodeFunc
	edges    map[string]edge
	reducers ReducerTable
}

// NewBuilder returns a Builder with the given field reducer table.
func NewBuilder(reducers ReducerTable) *Builder {
	return &Builder{
		nodes:    make(map[string]NodeFunc),
		edges:    make(map[string]edge),
		reducers: reducers,
	}
}

// AddNode registers a node function under name.
func (b *Builder) AddNode(name string, fn NodeFunc) *Builder {
	b.nodes[name] = fn
	return b
}

// SetStart marks name as the entry node.
func (b *Builder) SetStart(name string) *Builder {
	b.start = name
	return b
}

// AddSequentialEdge wires from -> to unconditionally.
func (b *Builder) AddSequentialEdge(from, to string) *Builder {
	b.edges[from] = edge{kind: edgeSequential, next: to}
	return b
}

// AddConditionalEdge wires from's outgoing transition to a router, which
// decides the next node(s) (including parallel fan-out) per invocation.
func (b *Builder) AddConditionalEdge(from string, router RouterFunc) *Builder {
	b.edges[from] = edge{kind: edgeConditional, router: router}
	return b
}

// AddTerminalEdge marks from as an end node.
func (b *Builder) AddTerminalEdge(from string) *Builder {
	b.edges[from] = edge{kind: edgeTerminal}
	return b
}

// Compile validates wiring and returns an immutable Graph.
func (b *Builder) Compile() (*Graph, error) {
	if b.start == "" {
		return nil, errors.New("graph: no start node set")
	}
	if _, ok := b.nodes[b.start]; !ok {
		return nil, fmt.Errorf("graph: start node %q not registered", b.start)
	}
	for name := range b.nodes {
		if _, ok := b.edges[name]; !ok {
			return nil, fmt.Errorf("graph: node %q has no outgoing edge", name)
		}
	}
	nodes := make(map[string]NodeFunc, len(b.nodes))
	for k, v := range b.nodes {
		nodes[k] = v
	}
	edges := make(map[string]edge, len(b.edges))
	for k, v := range b.edges {
		edges[k] = v
	}
	reducers := make(ReducerTable, len(b.reducers))
	for k, v := range b.reducers {
		reducers[k] = v
	}
	return &Graph{start: b.start, nodes: nodes, edges: edges, reducers: reducers}, nil
}

// Merge combines delta into base per g's reducer table, returning a new
// State. Fields merge in the delta's key order is unspecified (Go maps),
// but the policy per field is deterministic.
func (g *Graph) Merge(base, delta State) State {
	return mergeState(base, delta, g.reducers)
}

func mergeState(base, delta State, reducers ReducerTable) State {
	out := base.Clone()
	for k, v := range delta {
		policy := reducers[k]
		switch policy {
		case ReducerAppend:
			out[k] = appendValue(out[k], v)
		default:
			out[k] = v
		}
	}
	return out
}

// appendValue concatenates two slice values via reflection; if existing is
// nil, v is returned as-is (first write behaves like a seed).
func appendValue(existing, v any) any {
	if existing == nil {
		return v
	}
	ev := reflect.ValueOf(existing)
	nv := reflect.ValueOf(v)
	if ev.Kind() != reflect.Slice || nv.Kind() != reflect.Slice {
		return v
	}
	out := reflect.AppendSlice(cloneSlice(ev), nv)
	return out.Interface()
}

func cloneSlice(v reflect.Value) reflect.Value {
	out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(out, v)
	return out
}

// Event is one node-output delta in the order the runtime produced it,
// emitted by Stream.
type Event struct {
	Node  string
	Delta State
}

// Invoke runs the graph to completion and returns the final merged state.
func (g *Graph) Invoke(ctx context.Context, initial State, cfg *Config) (State, error) {
	_, final, err := g.run(ctx, initial, cfg, func(Event) error { return nil })
	return final, err
}

// Stream runs the graph, invoking onEvent for each node's output delta as
// it completes, in the runtime's topological dispatch order (parallel
// fan-out deltas may interleave among themselves but all arrive before the
// node they fan into). Returns the final merged state.
func (g *Graph) Stream(ctx context.Context, initial State, cfg *Config, onEvent func(Event) error) (State, error) {
	if onEvent == nil {
		onEvent = func(Event) error { return nil }
	}
	_, final, err := g.run(ctx, initial, cfg, onEvent)
	return final, err
}

// frontier is one pending node invocation: a node name plus the state it
// should run against.
type frontier struct {
	node  string
	state State
}

// run drives the graph from g.start, calling emit for every node's output
// delta. It returns the last node name reached and the final accumulated
// state.
func (g *Graph) run(ctx context.Context, initial State, cfg *Config, emit func(Event) error) (string, State, error) {
	current := []frontier{{node: g.start, state: initial}}
	accState := initial.Clone()
	last := g.start

	for len(current) > 0 {
		if cfg.isCancelled() {
			return last, accState, ErrCancelled
		}

		type result struct {
			node  string
			delta State
			err   error
		}
		results := make([]result, len(current))

		if len(current) == 1 {
			delta, err := g.runNode(ctx, current[0].node, current[0].state, cfg)
			results[0] = result{node: current[0].node, delta: delta, err: err}
		} else {
			done := make(chan struct{}, len(current))
			for i, f := range current {
				i, f := i, f
				go func() {
					delta, err := g.runNode(ctx, f.node, f.state, cfg)
					results[i] = result{node: f.node, delta: delta, err: err}
					done <- struct{}{}
				}()
			}
			for range current {
				<-done
			}
		}

		if cfg.isCancelled() {
			return last, accState, ErrCancelled
		}

		waveFailed := error(nil)
		for _, r := range results {
			if r.err != nil {
				waveFailed = r.err
				continue
			}
			if err := emit(Event{Node: r.node, Delta: r.delta}); err != nil {
				return r.node, accState, err
			}
			accState = mergeState(accState, r.delta, g.reducers)
			last = r.node
		}
		if waveFailed != nil {
			return last, accState, waveFailed
		}

		next, err := g.nextFrontier(ctx, current, accState, cfg)
		if err != nil {
			return last, accState, err
		}
		current = next
	}
	return last, accState, nil
}

func (g *Graph) runNode(ctx context.Context, name string, state State, cfg *Config) (State, error) {
	fn, ok := g.nodes[name]
	if !ok {
		return nil, fmt.Errorf("graph: unknown node %q", name)
	}
	if cfg.isCancelled() {
		return nil, ErrCancelled
	}
	delta, err := fn(ctx, state, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.isCancelled() {
		return nil, ErrCancelled
	}
	return delta, nil
}

func (g *Graph) nextFrontier(ctx context.Context, prev []frontier, merged State, cfg *Config) ([]frontier, error) {
	// All nodes in a wave may fan into different edges; gather the union of
	// next frontiers by walking each distinct node's own outgoing edge.
	seenNodes := map[string]bool{}
	var nextNames []string
	for _, p := range prev {
		if seenNodes[p.node] {
			continue
		}
		seenNodes[p.node] = true
		nextNames = append(nextNames, p.node)
	}
	sort.Strings(nextNames)

	var out []frontier
	for _, name := range nextNames {
		e, ok := g.edges[name]
		if !ok {
			return nil, fmt.Errorf("graph: node %q has no outgoing edge", name)
		}
		switch e.kind {
		case edgeTerminal:
			continue
		case edgeSequential:
			out = append(out, frontier{node: e.next, state: merged})
		case edgeConditional:
			dispatches, err := e.router(ctx, merged, cfg)
			if err != nil {
				return nil, err
			}
			for _, d := range dispatches {
				if d.Node == End || d.Node == "" {
					continue
				}
				st := merged
				if d.State != nil {
					st = mergeState(merged, d.State, g.reducers)
				}
				out = append(out, frontier{node: d.Node, state: st})
			}
		}
	}
	return out, nil
}
