// Package orchestrator runs causal discovery whenever its inputs change and
// publishes only the result of the most recent trigger.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/constraints"
	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
	"github.com/efebarandurmaz/causaldiscover/internal/graph"
	"github.com/efebarandurmaz/causaldiscover/internal/logging"
	"github.com/efebarandurmaz/causaldiscover/internal/observability"
	"github.com/efebarandurmaz/causaldiscover/internal/snapshot"
	"github.com/efebarandurmaz/causaldiscover/internal/state"
	"github.com/efebarandurmaz/causaldiscover/internal/task"
)

// DefaultHistoryLimit bounds the number of superseded graphs kept.
const DefaultHistoryLimit = 10

// ErrNothingToRetry is returned by Retry before the first trigger.
var ErrNothingToRetry = errors.New("orchestrator: no inputs to retry")

// Phase is the lifecycle phase of the latest trigger.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRequested  Phase = "requested"
	PhaseRunning    Phase = "running"
	PhaseCompleted  Phase = "completed"
	PhaseSuperseded Phase = "superseded"
	PhaseCanceled   Phase = "canceled"
	PhaseFailed     Phase = "failed"
)

// Status describes the latest trigger.
type Status struct {
	Phase      Phase            `json:"phase"`
	Busy       bool             `json:"busy"`
	Generation uint64           `json:"generation"`
	Published  uint64           `json:"published"`
	TaskID     string           `json:"taskId,omitempty"`
	Algorithm  causal.Algorithm `json:"algorithm,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Publication is delivered to subscribers for every published graph.
type Publication struct {
	Generation   uint64
	Graph        *causal.CausalGraph
	Model        *discovery.InferenceModel
	ShortCircuit bool
}

// Options configures optional collaborators. Zero values are usable.
type Options struct {
	HistoryLimit int
	// Snapshots and Repository receive every published graph. Their errors
	// are logged and never fail a run.
	Snapshots  *snapshot.Store
	Repository graph.Repository
	ProjectID  string
	Metrics    *observability.Metrics
	Audit      *observability.AuditLogger
	Logger     *slog.Logger
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	discoverer discovery.Discoverer
	opts       Options
	logger     *slog.Logger

	mu         sync.Mutex
	generation uint64
	status     Status
	current    *causal.CausalGraph
	previous   *causal.CausalGraph
	model      *discovery.InferenceModel
	history    []*causal.CausalGraph
	active     *task.Task
	lastInputs *state.Inputs
	subs       []subscriber
	nextSubID  int
	closed     bool
	pubNext    uint64

	// Publications are delivered to sinks and subscribers one at a time in
	// ticket order. Delivery never holds mu.
	pubMu      sync.Mutex
	pubCond    *sync.Cond
	pubTurn    uint64
	lastSnapID string

	wg sync.WaitGroup
}

type subscriber struct {
	id int
	fn func(Publication)
}

// New creates an orchestrator around d.
func New(d discovery.Discoverer, opts Options) *Orchestrator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		discoverer: d,
		opts:       opts,
		logger:     logger.With("component", "orchestrator"),
		status:     Status{Phase: PhaseIdle},
	}
	o.pubCond = sync.NewCond(&o.pubMu)
	return o
}

// Trigger starts a discovery run for in and returns its generation. Inputs
// that cannot produce edges publish an empty graph immediately instead.
// A run superseded by a later trigger is asked to cancel and its result is
// discarded whenever it arrives.
func (o *Orchestrator) Trigger(ctx context.Context, in state.Inputs) uint64 {
	effective := constraints.Effective(in.Constraints, in.InModel)
	algorithm := in.Algorithm
	if algorithm == "" {
		algorithm = causal.AlgorithmNone
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0
	}
	o.generation++
	gen := o.generation
	inputs := in
	o.lastInputs = &inputs
	if o.active != nil {
		o.active.MarkCanceling()
		o.active = nil
	}

	if shortCircuit(in) {
		g := causal.EmptyGraph(in.InModel, effective, algorithm)
		o.status = Status{Phase: PhaseCompleted, Generation: gen, Published: gen, Algorithm: algorithm}
		o.opts.Metrics.RunShortCircuited(string(algorithm))
		o.publishLocked(ctx, Publication{Generation: gen, Graph: g, ShortCircuit: true})
		return gen
	}

	t := task.New(map[string]string{
		"generation": strconv.FormatUint(gen, 10),
		"algorithm":  string(algorithm),
	})
	o.active = t
	o.status = Status{
		Phase:      PhaseRequested,
		Busy:       true,
		Generation: gen,
		Published:  o.status.Published,
		TaskID:     t.ID(),
		Algorithm:  algorithm,
	}
	o.wg.Add(1)
	o.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	go o.run(runCtx, gen, t, in, effective, algorithm)
	return gen
}

func shortCircuit(in state.Inputs) bool {
	return len(in.InModel) < 2 || in.Dataset.IsPlaceholder() || in.Algorithm == causal.AlgorithmNone || in.Algorithm == ""
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, t *task.Task, in state.Inputs, effective causal.Constraints, algorithm causal.Algorithm) {
	defer o.wg.Done()

	logger := o.logger.With("generation", gen, "task_id", t.ID(), "algorithm", algorithm)
	ctx = logging.WithLogger(ctx, logger)
	ctx, span := observability.StartDiscoverySpan(ctx, gen, string(algorithm), len(in.InModel))
	defer span.End()

	start := time.Now()
	o.opts.Metrics.RunStarted()
	o.opts.Audit.LogRunStart(gen, t.ID(), string(algorithm), len(in.InModel))
	o.setRunning(gen)
	logger.Info("discovery run started", "variables", len(in.InModel))

	res, err := task.Run(ctx, t, func(ctx context.Context) (*discovery.Result, error) {
		return o.discoverer.Discover(ctx, in.Dataset, in.InModel, effective, algorithm)
	})
	if err == nil && (res == nil || res.Graph == nil) {
		err = fmt.Errorf("discoverer returned no graph")
	}

	outcome, relationships := o.complete(ctx, gen, t, res, err)
	elapsed := time.Since(start)

	o.opts.Metrics.RunFinished(string(algorithm), outcome, elapsed)
	o.opts.Audit.LogRunEnd(gen, t.ID(), string(algorithm), outcome, elapsed, err)
	observability.RecordDiscoveryResult(span, outcome, relationships)

	switch outcome {
	case observability.OutcomePublished:
		logger.Info("discovery run published", "relationships", relationships, "duration", elapsed)
	case observability.OutcomeFailed:
		observability.RecordError(span, err)
		logger.Error("discovery run failed", "error", err, "duration", elapsed)
	default:
		logger.Info("discovery run discarded", "outcome", outcome, "duration", elapsed)
	}
}

func (o *Orchestrator) setRunning(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation == gen && o.status.Phase == PhaseRequested {
		o.status.Phase = PhaseRunning
	}
}

// complete applies the result of run gen and returns the outcome.
func (o *Orchestrator) complete(ctx context.Context, gen uint64, t *task.Task, res *discovery.Result, err error) (string, int) {
	canceled := errors.Is(err, task.ErrCanceled) || errors.Is(err, context.Canceled)

	o.mu.Lock()
	if gen != o.generation || o.active != t {
		o.mu.Unlock()
		if canceled {
			return observability.OutcomeCanceled, 0
		}
		return observability.OutcomeSuperseded, 0
	}
	o.active = nil

	if err != nil {
		o.status.Busy = false
		if canceled {
			o.status.Phase = PhaseCanceled
			o.mu.Unlock()
			return observability.OutcomeCanceled, 0
		}
		o.status.Phase = PhaseFailed
		o.status.Error = err.Error()
		o.mu.Unlock()
		return observability.OutcomeFailed, 0
	}

	o.status.Phase = PhaseCompleted
	o.status.Busy = false
	o.status.Published = gen
	o.status.Error = ""
	o.publishLocked(ctx, Publication{Generation: gen, Graph: res.Graph, Model: res.Model})
	return observability.OutcomePublished, len(res.Graph.Relationships)
}

// publishLocked installs p as the current graph. It must be called with
// o.mu held and releases it, then delivers p once every earlier
// publication has been delivered.
func (o *Orchestrator) publishLocked(ctx context.Context, p Publication) {
	if o.current != nil {
		o.previous = o.current
		o.history = append(o.history, o.current)
		if over := len(o.history) - o.opts.HistoryLimit; over > 0 {
			o.history = slices.Delete(o.history, 0, over)
		}
	}
	o.current = p.Graph
	o.model = p.Model
	subs := slices.Clone(o.subs)
	ticket := o.pubNext
	o.pubNext++
	o.mu.Unlock()

	o.pubMu.Lock()
	for o.pubTurn != ticket {
		o.pubCond.Wait()
	}
	parentID := o.lastSnapID
	o.pubMu.Unlock()

	var snapID string
	defer func() {
		o.pubMu.Lock()
		if snapID != "" {
			o.lastSnapID = snapID
		}
		o.pubTurn++
		o.pubCond.Broadcast()
		o.pubMu.Unlock()
	}()

	o.opts.Metrics.SetRelationships(len(p.Graph.Relationships))
	snapID = o.persist(context.WithoutCancel(ctx), p, parentID)
	for _, s := range subs {
		s.fn(p)
	}
}

// persist writes p to the configured sinks and returns the snapshot id.
func (o *Orchestrator) persist(ctx context.Context, p Publication, parentID string) string {
	var snapID string
	if o.opts.Snapshots != nil {
		_, span := observability.StartPublishSpan(ctx, "snapshot")
		snap, err := snapshot.NewSnapshot(p.Graph, p.Generation, parentID)
		if err == nil {
			err = o.opts.Snapshots.Save(snap)
		}
		if err != nil {
			observability.RecordError(span, err)
			o.opts.Metrics.PublishFailed("snapshot")
			o.logger.Warn("failed to save snapshot", "generation", p.Generation, "error", err)
		} else {
			snapID = snap.ID
		}
		span.End()
	}
	if o.opts.Repository != nil {
		ctx, span := observability.StartPublishSpan(ctx, "repository")
		if err := o.opts.Repository.StoreGraph(ctx, o.opts.ProjectID, p.Graph); err != nil {
			observability.RecordError(span, err)
			o.opts.Metrics.PublishFailed("repository")
			o.logger.Warn("failed to store graph", "generation", p.Generation, "error", err)
		}
		span.End()
	}
	return snapID
}

// Retry triggers again with the most recent inputs.
func (o *Orchestrator) Retry(ctx context.Context) (uint64, error) {
	o.mu.Lock()
	in := o.lastInputs
	o.mu.Unlock()
	if in == nil {
		return 0, ErrNothingToRetry
	}
	return o.Trigger(ctx, *in), nil
}

// Current returns the published graph, or nil before the first publication.
func (o *Orchestrator) Current() *causal.CausalGraph {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Previous returns the graph replaced by the current one.
func (o *Orchestrator) Previous() *causal.CausalGraph {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.previous
}

// Model returns the inference model published with the current graph.
func (o *Orchestrator) Model() *discovery.InferenceModel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.model
}

// History returns the replaced graphs, oldest first.
func (o *Orchestrator) History() []*causal.CausalGraph {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.history)
}

// Differences compares the current graph with the previous one. It is nil
// until two graphs have been published.
func (o *Orchestrator) Differences(weightThreshold, confidenceThreshold float64) *snapshot.GraphDifferences {
	o.mu.Lock()
	prev, cur := o.previous, o.current
	o.mu.Unlock()
	return snapshot.FindDifferencesBetweenGraphs(prev, cur, weightThreshold, confidenceThreshold)
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Subscribe registers fn for publications. fn runs synchronously and must
// not call Trigger.
func (o *Orchestrator) Subscribe(fn func(Publication)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextSubID++
	id := o.nextSubID
	o.subs = append(o.subs, subscriber{id: id, fn: fn})
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.subs = slices.DeleteFunc(o.subs, func(s subscriber) bool { return s.id == id })
	}
}

// Attach triggers a run for every emission of store, starting with its
// current contents.
func (o *Orchestrator) Attach(ctx context.Context, store *state.Store) (detach func()) {
	detach = store.Subscribe(func(s state.Snapshot) {
		o.Trigger(ctx, s.Inputs())
	})
	o.Trigger(ctx, store.Snapshot().Inputs())
	return detach
}

// Wait blocks until no run is in flight.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels the active run, waits for in-flight runs and rejects
// further triggers.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	if o.active != nil {
		o.active.MarkCanceling()
	}
	o.mu.Unlock()
	o.wg.Wait()
}
