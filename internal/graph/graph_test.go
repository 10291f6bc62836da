package graph

import (
	"context"
	"errors"
	"sort"
	"testing"
)

func TestInvoke_SequentialEdgesRunInOrder(t *testing.T) {
	b := NewBuilder(ReducerTable{"trail": ReducerAppend})
	b.AddNode("a", func(_ context.Context, s State, _ *Config) (State, error) {
		return State{"trail": []string{"a"}}, nil
	})
	b.AddNode("b", func(_ context.Context, s State, _ *Config) (State, error) {
		return State{"trail": []string{"b"}}, nil
	})
	b.SetStart("a")
	b.AddSequentialEdge("a", "b")
	b.AddTerminalEdge("b")

	g, err := b.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	final, err := g.Invoke(context.Background(), State{}, &Config{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	trail := final["trail"].([]string)
	if len(trail) != 2 || trail[0] != "a" || trail[1] != "b" {
		t.Fatalf("unexpected trail: %+v", trail)
	}
}

func TestInvoke_ConditionalFanOutMergesAllBranches(t *testing.T) {
	b := NewBuilder(ReducerTable{"results": ReducerAppend})
	b.AddNode("plan", func(_ context.Context, s State, _ *Config) (State, error) {
		return State{}, nil
	})
	b.AddNode("worker", func(_ context.Context, s State, _ *Config) (State, error) {
		return State{"results": []string{s["query"].(string)}}, nil
	})
	b.AddNode("done", func(_ context.Context, s State, _ *Config) (State, error) {
		return State{}, nil
	})
	b.SetStart("plan")
	b.AddConditionalEdge("plan", func(_ context.Context, s State, _ *Config) ([]Dispatch, error) {
		return []Dispatch{
			{Node: "worker", State: State{"query": "q1"}},
			{Node: "worker", State: State{"query": "q2"}},
			{Node: "worker", State: State{"query": "q3"}},
		}, nil
	})
	b.AddSequentialEdge("worker", "done")
	b.AddTerminalEdge("done")

	g, err := b.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	final, err := g.Invoke(context.Background(), State{}, &Config{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	results := final["results"].([]string)
	sort.Strings(results)
	if len(results) != 3 || results[0] != "q1" || results[1] != "q2" || results[2] != "q3" {
		t.Fatalf("unexpected fan-out results: %+v", results)
	}
}

func TestInvoke_RouterCanLoopBack(t *testing.T) {
	b := NewBuilder(ReducerTable{"loop_count": ReducerReplace})
	b.AddNode("step", func(_ context.Context, s State, _ *Config) (State, error) {
		n, _ := s["loop_count"].(int)
		return State{"loop_count": n + 1}, nil
	})
	b.SetStart("step")
	b.AddConditionalEdge("step", func(_ context.Context, s State, _ *Config) ([]Dispatch, error) {
		if s["loop_count"].(int) >= 3 {
			return nil, nil
		}
		return []Dispatch{{Node: "step"}}, nil
	})

	g, err := b.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	final, err := g.Invoke(context.Background(), State{"loop_count": 0}, &Config{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if final["loop_count"].(int) != 3 {
		t.Fatalf("expected loop_count 3, got %v", final["loop_count"])
	}
}

func TestInvoke_CancellationStopsRunEarly(t *testing.T) {
	b := NewBuilder(nil)
	ran := 0
	b.AddNode("a", func(_ context.Context, s State, _ *Config) (State, error) {
		ran++
		return State{}, nil
	})
	b.AddNode("b", func(_ context.Context, s State, _ *Config) (State, error) {
		ran++
		return State{}, nil
	})
	b.SetStart("a")
	b.AddSequentialEdge("a", "b")
	b.AddTerminalEdge("b")

	g, err := b.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	cfg := &Config{Cancelled: func() bool { return ran >= 1 }}
	_, err = g.Invoke(context.Background(), State{}, cfg)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if ran != 1 {
		t.Fatalf("expected exactly one node to run before cancellation, got %d", ran)
	}
}

func TestStream_EmitsEventPerNode(t *testing.T) {
	b := NewBuilder(nil)
	b.AddNode("a", func(_ context.Context, s State, _ *Config) (State, error) { return State{"x": 1}, nil })
	b.AddNode("b", func(_ context.Context, s State, _ *Config) (State, error) { return State{"y": 2}, nil })
	b.SetStart("a")
	b.AddSequentialEdge("a", "b")
	b.AddTerminalEdge("b")

	g, err := b.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var order []string
	final, err := g.Stream(context.Background(), State{}, &Config{}, func(ev Event) error {
		order = append(order, ev.Node)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected event order: %+v", order)
	}
	if final["x"] != 1 || final["y"] != 2 {
		t.Fatalf("unexpected final state: %+v", final)
	}
}

func TestCompile_RejectsMissingOutgoingEdge(t *testing.T) {
	b := NewBuilder(nil)
	b.AddNode("a", func(_ context.Context, s State, _ *Config) (State, error) { return State{}, nil })
	b.SetStart("a")
	if _, err := b.Compile(); err == nil {
		t.Fatalf("expected compile error for node with no outgoing edge")
	}
}
