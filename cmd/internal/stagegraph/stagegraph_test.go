package stagegraph_test

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/basewarphq/bwpromote/cmd/internal/stagegraph"
	"github.com/cockroachdb/errors"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) step(id string, deps ...string) stagegraph.Step {
	return stagegraph.Step{
		ID:        id,
		DependsOn: deps,
		Run: func(context.Context) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.order = append(r.order, id)
			return nil
		},
	}
}

func (r *recorder) index(id string) int {
	return slices.Index(r.order, id)
}

func TestExecuteRespectsDependencies(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	graph, err := stagegraph.Build([]stagegraph.Step{
		rec.step("deploy-stack", "resolve-certificate"),
		rec.step("issue-certificate", "delegate-zone"),
		rec.step("delegate-zone"),
		rec.step("resolve-certificate", "issue-certificate"),
		rec.step("read-outputs", "deploy-stack"),
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := graph.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"delegate-zone", "issue-certificate", "resolve-certificate", "deploy-stack", "read-outputs"}
	if !slices.Equal(rec.order, want) {
		t.Errorf("order = %v, want %v", rec.order, want)
	}
	if !slices.Equal(res.Completed, want) {
		t.Errorf("completed = %v, want %v", res.Completed, want)
	}
	if !slices.Equal(graph.Steps(), want) {
		t.Errorf("Steps() = %v, want %v", graph.Steps(), want)
	}
}

func TestTransitiveEdgesAreReduced(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	graph, err := stagegraph.Build([]stagegraph.Step{
		rec.step("a"),
		rec.step("b", "a"),
		rec.step("c", "a", "b"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !graph.DependsOn("c", "b") || !graph.DependsOn("b", "a") {
		t.Error("expected direct edges c -> b -> a")
	}
	if graph.DependsOn("c", "a") {
		t.Error("expected c -> a to be reduced away")
	}
}

func TestFailureStopsDependents(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	boom := errors.New("validation timed out")
	graph, err := stagegraph.Build([]stagegraph.Step{
		rec.step("delegate-zone"),
		{ID: "issue-certificate", DependsOn: []string{"delegate-zone"}, Run: func(context.Context) error { return boom }},
		rec.step("resolve-certificate", "issue-certificate"),
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := graph.Execute(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want the step error", err)
	}
	if stagegraph.FailedStep(err) != "issue-certificate" || res.Failed != "issue-certificate" {
		t.Errorf("failed step = %q / %q", stagegraph.FailedStep(err), res.Failed)
	}
	if rec.index("resolve-certificate") >= 0 {
		t.Error("dependent step ran after its dependency failed")
	}
	if !slices.Equal(res.Completed, []string{"delegate-zone"}) {
		t.Errorf("completed = %v, want [delegate-zone]", res.Completed)
	}
}

func TestBuildRejects(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	tests := []struct {
		name  string
		steps []stagegraph.Step
	}{
		{"cycle", []stagegraph.Step{rec.step("a", "b"), rec.step("b", "a")}},
		{"unknown dependency", []stagegraph.Step{rec.step("a", "missing")}},
		{"self dependency", []stagegraph.Step{rec.step("a", "a")}},
		{"duplicate id", []stagegraph.Step{rec.step("a"), rec.step("a")}},
		{"missing run", []stagegraph.Step{{ID: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := stagegraph.Build(tt.steps); err == nil {
				t.Error("expected error")
			}
		})
	}
}
