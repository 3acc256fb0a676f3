// Package stagegraph runs the steps of one deploy stage as a dependency graph.
//
// Steps declare what they depend on instead of relying on construction order.
// The graph rejects cycles and unknown dependencies up front, runs independent
// steps in parallel and never starts a step whose dependency failed.
package stagegraph

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	tfdag "github.com/sourcegraph/tf-dag/dag"
)

// Step is one named unit of work in a stage.
type Step struct {
	ID        string
	DependsOn []string
	Run       func(ctx context.Context) error
}

type node struct {
	step *Step
}

func (n *node) Name() string { return n.step.ID }

// Graph is a validated, acyclic set of steps.
type Graph struct {
	graph tfdag.AcyclicGraph
	nodes map[string]*node
}

// Build validates steps and connects each one to its dependencies.
func Build(steps []Step) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*node, len(steps))}

	for i := range steps {
		st := &steps[i]
		if st.ID == "" {
			return nil, errors.Newf("step %d has no id", i)
		}
		if st.Run == nil {
			return nil, errors.Newf("step %q has no run function", st.ID)
		}
		if _, dup := g.nodes[st.ID]; dup {
			return nil, errors.Newf("duplicate step %q", st.ID)
		}
		n := &node{step: st}
		g.nodes[st.ID] = n
		g.graph.Add(n)
	}

	for _, n := range g.nodes {
		for _, dep := range n.step.DependsOn {
			target, ok := g.nodes[dep]
			if !ok {
				return nil, errors.Newf("step %q depends on unknown step %q", n.step.ID, dep)
			}
			if target == n {
				return nil, errors.Newf("step %q depends on itself", n.step.ID)
			}
			g.graph.Connect(tfdag.BasicEdge(n, target))
		}
	}

	if cycles := g.graph.Cycles(); len(cycles) > 0 {
		names := make([]string, 0, len(cycles[0]))
		for _, v := range cycles[0] {
			names = append(names, tfdag.VertexName(v))
		}
		sort.Strings(names)
		return nil, errors.Newf("dependency cycle between steps %v", names)
	}
	g.graph.TransitiveReduction()

	return g, nil
}

// Result lists which steps completed, in completion order, and the step that
// failed if any.
type Result struct {
	mu        sync.Mutex
	Completed []string
	Failed    string
	err       error
}

func (r *Result) complete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Completed = append(r.Completed, id)
}

func (r *Result) fail(id string, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stepErr := &StepError{Step: id, Err: err}
	if r.err == nil {
		r.Failed = id
		r.err = stepErr
	}
	return stepErr
}

// Execute walks the graph. The result is populated even on failure, and the
// returned error is the first step failure.
func (g *Graph) Execute(ctx context.Context) (*Result, error) {
	res := &Result{}
	walkErr := g.graph.Walk(func(v tfdag.Vertex) error {
		n, ok := v.(*node)
		if !ok {
			return errors.Newf("unexpected vertex type: %T", v)
		}
		if err := ctx.Err(); err != nil {
			return res.fail(n.step.ID, err)
		}
		if err := n.step.Run(ctx); err != nil {
			return res.fail(n.step.ID, err)
		}
		res.complete(n.step.ID)
		return nil
	})
	if res.err != nil {
		return res, res.err
	}
	if walkErr != nil {
		return res, errors.Wrap(walkErr, "walking stage graph")
	}
	return res, nil
}

// StepError names the step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Err.Error() }
func (e *StepError) Unwrap() error { return e.Err }

// FailedStep returns the first failing step named in err.
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

// Steps returns the step ids in a dependency-respecting order, breaking ties
// by id.
func (g *Graph) Steps() []string {
	remaining := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for id, n := range g.nodes {
		remaining[id] = len(n.step.DependsOn)
		for _, dep := range n.step.DependsOn {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready, out []string
	for id, count := range remaining {
		if count == 0 {
			ready = append(ready, id)
		}
	}
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		out = append(out, id)
		for _, next := range dependents[id] {
			remaining[next]--
			if remaining[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return out
}

// DependsOn reports whether step a has a direct edge to step b after
// transitive reduction.
func (g *Graph) DependsOn(a, b string) bool {
	from, to := g.nodes[a], g.nodes[b]
	if from == nil || to == nil {
		return false
	}
	for _, e := range g.graph.Edges() {
		if e.Source() == from && e.Target() == to {
			return true
		}
	}
	return false
}
