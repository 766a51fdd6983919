package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/constraints"
	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
	"github.com/efebarandurmaz/causaldiscover/internal/snapshot"
	"github.com/efebarandurmaz/causaldiscover/internal/state"
)

func ref(col string) causal.VariableReference { return causal.VariableReference{ColumnName: col} }

func variables(cols ...string) []causal.CausalVariable {
	out := make([]causal.CausalVariable, len(cols))
	for i, c := range cols {
		out[i] = causal.CausalVariable{ColumnName: c, Name: c, Nature: causal.NatureContinuous}
	}
	return out
}

func dataset(t *testing.T) discovery.Dataset {
	t.Helper()
	table, err := discovery.NewRecordTable([]string{"Age", "Income", "Spend"}, map[string][]any{
		"Age":    {30.0, 40.0},
		"Income": {10.0, 20.0},
		"Spend":  {1.0, 2.0},
	})
	require.NoError(t, err)
	return discovery.Dataset{Name: "sales", Table: table}
}

func inputs(t *testing.T, c causal.Constraints) state.Inputs {
	return state.Inputs{
		Dataset:     dataset(t),
		InModel:     variables("Age", "Income", "Spend"),
		Constraints: c,
		Algorithm:   causal.AlgorithmNOTEARS,
	}
}

func edge(src, tgt string, w float64) causal.Relationship {
	r := causal.NewRelationship(ref(src), ref(tgt))
	r.Weight = causal.Float(w)
	return r
}

func graphOf(rels ...causal.Relationship) *causal.CausalGraph {
	return &causal.CausalGraph{
		Variables:     variables("Age", "Income", "Spend"),
		Relationships: rels,
		Algorithm:     causal.AlgorithmNOTEARS,
	}
}

// scripted answers each Discover call with the next response, optionally
// blocking until the response is released.
type scripted struct {
	mu        sync.Mutex
	responses []*response
	calls     []causal.Constraints
}

type response struct {
	graph   *causal.CausalGraph
	err     error
	release chan struct{}
	started chan struct{}
}

func reply(g *causal.CausalGraph) *response { return &response{graph: g} }

func blocked(g *causal.CausalGraph) *response {
	return &response{graph: g, release: make(chan struct{}), started: make(chan struct{})}
}

func (s *scripted) Discover(ctx context.Context, _ discovery.Dataset, _ []causal.CausalVariable, c causal.Constraints, _ causal.Algorithm) (*discovery.Result, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, c)
	resp := s.responses[n]
	s.mu.Unlock()

	if resp.started != nil {
		close(resp.started)
	}
	if resp.release != nil {
		<-resp.release
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &discovery.Result{Graph: resp.graph}, nil
}

func (s *scripted) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestStaleResultIsDiscarded(t *testing.T) {
	slow := blocked(graphOf(edge("Age", "Spend", 0.1)))
	fast := reply(graphOf(edge("Income", "Spend", 0.7)))
	d := &scripted{responses: []*response{slow, fast}}
	o := New(d, Options{})
	defer o.Close()

	first := o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	<-slow.started
	second := o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	assert.Greater(t, second, first)

	require.Eventually(t, func() bool { return o.Current() != nil }, time.Second, time.Millisecond)
	close(slow.release)
	o.Wait()

	require.NotNil(t, o.Current())
	assert.Equal(t, "Income->Spend", o.Current().Relationships[0].Key)
	assert.Nil(t, o.Previous())

	st := o.Status()
	assert.Equal(t, PhaseCompleted, st.Phase)
	assert.False(t, st.Busy)
	assert.Equal(t, second, st.Published)
}

func TestShortCircuitPublishesEmptyGraph(t *testing.T) {
	d := &scripted{}
	o := New(d, Options{})
	defer o.Close()

	c := causal.Constraints{Causes: []causal.VariableReference{ref("Age")}}

	tests := []struct {
		name string
		in   state.Inputs
	}{
		{"one variable", state.Inputs{Dataset: dataset(t), InModel: variables("Age"), Constraints: c, Algorithm: causal.AlgorithmPC}},
		{"placeholder dataset", state.Inputs{Dataset: discovery.Dataset{Name: discovery.DefaultDatasetName}, InModel: variables("Age", "Spend"), Constraints: c, Algorithm: causal.AlgorithmPC}},
		{"no algorithm", state.Inputs{Dataset: dataset(t), InModel: variables("Age", "Spend"), Constraints: c, Algorithm: causal.AlgorithmNone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := o.Trigger(context.Background(), tt.in)
			g := o.Current()
			require.NotNil(t, g)
			assert.Empty(t, g.Relationships)
			assert.Equal(t, tt.in.InModel, g.Variables)
			assert.Equal(t, c.Causes, g.Constraints.Causes)

			st := o.Status()
			assert.Equal(t, gen, st.Published)
			assert.False(t, st.Busy)
		})
	}
	assert.Zero(t, d.callCount())
}

func TestShortCircuitSupersedesRunningRun(t *testing.T) {
	slow := blocked(graphOf(edge("Age", "Spend", 0.1)))
	o := New(&scripted{responses: []*response{slow}}, Options{})
	defer o.Close()

	o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	<-slow.started
	assert.True(t, o.Status().Busy)

	in := inputs(t, causal.Constraints{})
	in.InModel = variables("Age")
	o.Trigger(context.Background(), in)
	assert.False(t, o.Status().Busy)

	close(slow.release)
	o.Wait()
	assert.Empty(t, o.Current().Relationships)
}

func TestFailureKeepsGraphAndRetry(t *testing.T) {
	first := graphOf(edge("Age", "Spend", 0.4))
	second := graphOf(edge("Age", "Income", 0.6))
	d := &scripted{responses: []*response{
		reply(first),
		{err: errors.New("error running discovery: singular matrix")},
		reply(second),
	}}
	o := New(d, Options{})
	defer o.Close()

	o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	o.Wait()
	require.Same(t, first, o.Current())

	o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	o.Wait()
	st := o.Status()
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.False(t, st.Busy)
	assert.Contains(t, st.Error, "singular matrix")
	assert.Same(t, first, o.Current())

	_, err := o.Retry(context.Background())
	require.NoError(t, err)
	o.Wait()
	assert.Same(t, second, o.Current())
	assert.Equal(t, PhaseCompleted, o.Status().Phase)
	assert.Empty(t, o.Status().Error)
}

func TestRetryBeforeTrigger(t *testing.T) {
	o := New(&scripted{}, Options{})
	_, err := o.Retry(context.Background())
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

func TestDifferencesAndHistory(t *testing.T) {
	d := &scripted{responses: []*response{
		reply(graphOf(edge("Age", "Spend", 0.4), edge("Income", "Spend", 0.5))),
		reply(graphOf(edge("Spend", "Age", 0.4), edge("Age", "Income", 0.5))),
		reply(graphOf()),
	}}
	o := New(d, Options{HistoryLimit: 1})
	defer o.Close()

	assert.Nil(t, o.Differences(0, 0))

	o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	o.Wait()
	assert.Nil(t, o.Differences(0, 0), "no previous graph yet")

	o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	o.Wait()
	diff := o.Differences(0, 0)
	require.NotNil(t, diff)
	require.Len(t, diff.Reversed, 1)
	assert.Equal(t, "Spend->Age", diff.Reversed[0].Key)
	require.Len(t, diff.Added, 1)
	assert.Equal(t, "Age->Income", diff.Added[0].Key)
	require.Len(t, diff.Removed, 1)
	assert.Equal(t, "Income->Spend", diff.Removed[0].Key)

	o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	o.Wait()
	history := o.History()
	require.Len(t, history, 1)
	assert.Equal(t, "Spend->Age", history[0].Relationships[0].Key)
}

func TestFlipSendsInvertedConstraint(t *testing.T) {
	d := &scripted{responses: []*response{
		reply(graphOf(edge("Age", "Spend", 0.4))),
		reply(graphOf(edge("Spend", "Age", 0.4))),
	}}
	o := New(d, Options{})
	defer o.Close()

	o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	o.Wait()

	c := constraints.FlipEdge(causal.Constraints{}, edge("Age", "Spend", 0.4))
	o.Trigger(context.Background(), inputs(t, c))
	o.Wait()

	d.mu.Lock()
	sent := d.calls[1]
	d.mu.Unlock()
	require.Len(t, sent.ManualRelationships, 1)
	assert.Equal(t, "Spend", sent.ManualRelationships[0].Source.ColumnName)
	assert.Equal(t, "Age", sent.ManualRelationships[0].Target.ColumnName)

	diff := o.Differences(0, 0)
	require.NotNil(t, diff)
	assert.Len(t, diff.Reversed, 1)
}

func TestAttachTriggersOnStoreChanges(t *testing.T) {
	d := &scripted{responses: []*response{
		reply(graphOf(edge("Age", "Spend", 0.4))),
	}}
	o := New(d, Options{})
	defer o.Close()

	store := state.New(causal.AlgorithmNOTEARS)
	detach := o.Attach(context.Background(), store)
	defer detach()

	require.NotNil(t, o.Current(), "initial empty inputs publish an empty graph")
	assert.Empty(t, o.Current().Relationships)

	store.Batch(func(dr *state.Draft) {
		dr.Dataset = dataset(t)
		dr.Variables = variables("Age", "Income", "Spend")
		dr.InModel = []string{"Age", "Spend"}
	})
	o.Wait()
	assert.Equal(t, 1, d.callCount())
	assert.Len(t, o.Current().Relationships, 1)
}

func TestSubscribersAndSnapshotSink(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir(), 5)
	require.NoError(t, err)

	d := &scripted{responses: []*response{
		reply(graphOf(edge("Age", "Spend", 0.4))),
		reply(graphOf(edge("Income", "Spend", 0.4))),
	}}
	o := New(d, Options{Snapshots: store})
	defer o.Close()

	var gens []uint64
	unsubscribe := o.Subscribe(func(p Publication) { gens = append(gens, p.Generation) })

	o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	o.Wait()
	o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	o.Wait()
	unsubscribe()

	assert.Equal(t, []uint64{1, 2}, gens)

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, uint64(2), list[0].Generation)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, list[1].ID, latest.ParentID)
}

func TestCloseCancelsActiveRun(t *testing.T) {
	slow := blocked(graphOf(edge("Age", "Spend", 0.1)))
	d := discovery.DiscovererFunc(func(ctx context.Context, _ discovery.Dataset, _ []causal.CausalVariable, _ causal.Constraints, _ causal.Algorithm) (*discovery.Result, error) {
		close(slow.started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o := New(d, Options{})

	o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	<-slow.started
	o.Close()

	assert.Equal(t, PhaseCanceled, o.Status().Phase)
	assert.Nil(t, o.Current())
	assert.Zero(t, o.Trigger(context.Background(), inputs(t, causal.Constraints{})))
}

// gatedRepo blocks its first StoreGraph call until release is closed.
type gatedRepo struct {
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	stored []*causal.CausalGraph
}

func newGatedRepo() *gatedRepo {
	return &gatedRepo{entered: make(chan struct{}), release: make(chan struct{})}
}

func (r *gatedRepo) StoreGraph(_ context.Context, _ string, g *causal.CausalGraph) error {
	r.mu.Lock()
	first := len(r.stored) == 0
	r.stored = append(r.stored, g)
	r.mu.Unlock()
	if first {
		close(r.entered)
		<-r.release
	}
	return nil
}

func (r *gatedRepo) LoadGraph(context.Context, string) (*causal.CausalGraph, error) { return nil, nil }

func (r *gatedRepo) QueryChildren(context.Context, string, string) ([]string, error) { return nil, nil }

func (r *gatedRepo) Close(context.Context) error { return nil }

func waitOrFail(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not return", what)
	}
}

func TestTriggerDuringSlowPersistence(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir(), 5)
	require.NoError(t, err)
	repo := newGatedRepo()

	found := graphOf(edge("Age", "Spend", 0.4))
	d := &scripted{responses: []*response{reply(found)}}
	o := New(d, Options{Snapshots: store, Repository: repo})
	defer o.Close()

	o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	<-repo.entered

	narrow := inputs(t, causal.Constraints{})
	narrow.InModel = variables("Age")
	triggered := make(chan uint64, 1)
	go func() { triggered <- o.Trigger(context.Background(), narrow) }()

	require.Eventually(t, func() bool {
		g := o.Current()
		return g != nil && len(g.Variables) == 1
	}, time.Second, 5*time.Millisecond, "short-circuit graph is installed while the first publication is persisting")
	assert.Equal(t, PhaseCompleted, o.Status().Phase)

	close(repo.release)
	waitOrFail(t, "Wait", o.Wait)
	select {
	case gen := <-triggered:
		assert.Equal(t, uint64(2), gen)
	case <-time.After(2 * time.Second):
		t.Fatal("short-circuit trigger did not return")
	}

	repo.mu.Lock()
	require.Len(t, repo.stored, 2)
	assert.Same(t, found, repo.stored[0])
	assert.Empty(t, repo.stored[1].Relationships)
	repo.mu.Unlock()

	list := store.List()
	require.Len(t, list, 2)
	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), latest.Generation)
	assert.Equal(t, list[1].ID, latest.ParentID)
}

func TestSubscriberReadsStateWhileTriggerPending(t *testing.T) {
	d := &scripted{responses: []*response{reply(graphOf(edge("Age", "Spend", 0.4)))}}
	o := New(d, Options{})
	defer o.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var seen []Phase
	first := true
	o.Subscribe(func(p Publication) {
		mu.Lock()
		wasFirst := first
		first = false
		mu.Unlock()
		if wasFirst {
			close(entered)
			<-release
		}
		_ = o.Current()
		mu.Lock()
		seen = append(seen, o.Status().Phase)
		mu.Unlock()
	})

	o.Trigger(context.Background(), inputs(t, causal.Constraints{}))
	<-entered

	paused := inputs(t, causal.Constraints{})
	paused.Algorithm = causal.AlgorithmNone
	triggered := make(chan struct{})
	go func() {
		o.Trigger(context.Background(), paused)
		close(triggered)
	}()
	require.Eventually(t, func() bool { return o.Status().Generation == 2 }, time.Second, 5*time.Millisecond)

	close(release)
	waitOrFail(t, "Wait", o.Wait)
	waitOrFail(t, "Trigger", func() { <-triggered })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{PhaseCompleted, PhaseCompleted}, seen)
}
