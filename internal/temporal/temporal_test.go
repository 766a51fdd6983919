package temporal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/mocks"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
	"github.com/efebarandurmaz/causaldiscover/internal/task"
)

func variables(cols ...string) []causal.CausalVariable {
	out := make([]causal.CausalVariable, len(cols))
	for i, c := range cols {
		out[i] = causal.CausalVariable{ColumnName: c, Name: c, Nature: causal.NatureContinuous}
	}
	return out
}

func testDataset(t *testing.T) discovery.Dataset {
	t.Helper()
	table, err := discovery.NewRecordTable([]string{"Age", "Spend", "Unused"}, map[string][]any{
		"Age":    {30.0, 40.0},
		"Spend":  {1.0, 2.0},
		"Unused": {"x", "y"},
	})
	require.NoError(t, err)
	return discovery.Dataset{Name: "sales", Table: table}
}

func testInput(t *testing.T) DiscoveryInput {
	in, err := NewDiscoveryInput(testDataset(t), variables("Age", "Spend"), causal.Constraints{}, causal.AlgorithmNOTEARS)
	require.NoError(t, err)
	return in
}

func resultGraph() *causal.CausalGraph {
	rel := causal.NewRelationship(causal.VariableReference{ColumnName: "Age"}, causal.VariableReference{ColumnName: "Spend"})
	rel.Weight = causal.Float(0.3)
	return &causal.CausalGraph{
		Variables:     variables("Age", "Spend"),
		Relationships: []causal.Relationship{rel},
		Algorithm:     causal.AlgorithmNOTEARS,
	}
}

func TestNewDiscoveryInputKeepsInModelColumns(t *testing.T) {
	in := testInput(t)
	assert.Equal(t, []string{"Age", "Spend"}, in.Columns)
	assert.Len(t, in.Data, 2)
	assert.Equal(t, "sales", in.DatasetName)

	_, err := NewDiscoveryInput(testDataset(t), variables("Missing"), causal.Constraints{}, causal.AlgorithmPC)
	assert.ErrorContains(t, err, `no column "Missing"`)

	_, err = NewDiscoveryInput(discovery.Dataset{Name: "x"}, variables("Age"), causal.Constraints{}, causal.AlgorithmPC)
	assert.Error(t, err)
}

func TestDiscoveryWorkflow(t *testing.T) {
	var got discovery.Dataset
	SetDependencies(&Dependencies{Discoverer: discovery.DiscovererFunc(
		func(_ context.Context, d discovery.Dataset, _ []causal.CausalVariable, _ causal.Constraints, _ causal.Algorithm) (*discovery.Result, error) {
			got = d
			return &discovery.Result{Graph: resultGraph()}, nil
		})})
	defer SetDependencies(nil)

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(DiscoverActivity)

	env.ExecuteWorkflow(DiscoveryWorkflow, testInput(t))
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out DiscoveryOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.NotNil(t, out.Graph)
	require.Len(t, out.Graph.Relationships, 1)
	assert.Equal(t, "Age->Spend", out.Graph.Relationships[0].Key)
	assert.Equal(t, 0.3, *out.Graph.Relationships[0].Weight)

	assert.Equal(t, "sales", got.Name)
	assert.Equal(t, 2, got.Table.NumRows())
	assert.Equal(t, []string{"Age", "Spend"}, got.Table.ColumnNames())
}

func TestDiscoveryWorkflowFailureIsNotRetried(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(DiscoverActivity)

	calls := 0
	env.OnActivity(DiscoverActivity, mock.Anything, mock.Anything).Return(
		func(context.Context, DiscoveryInput) (*DiscoveryOutput, error) {
			calls++
			return nil, temporalsdk.NewApplicationError("error running discovery: singular matrix", errTypeDiscovery)
		})

	env.ExecuteWorkflow(DiscoveryWorkflow, testInput(t))
	require.True(t, env.IsWorkflowCompleted())

	err := env.GetWorkflowError()
	require.Error(t, err)
	var appErr *temporalsdk.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, errTypeDiscovery, appErr.Type())
	assert.Equal(t, 1, calls)
}

func TestDiscoverActivityWithoutDependencies(t *testing.T) {
	SetDependencies(nil)

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(DiscoverActivity)

	_, err := env.ExecuteActivity(DiscoverActivity, testInput(t))
	assert.ErrorContains(t, err, "no discoverer configured")
}

func TestDiscoverActivityReportsDiscoveryError(t *testing.T) {
	SetDependencies(&Dependencies{Discoverer: discovery.DiscovererFunc(
		func(context.Context, discovery.Dataset, []causal.CausalVariable, causal.Constraints, causal.Algorithm) (*discovery.Result, error) {
			return nil, errors.New("error running discovery: singular matrix")
		})})
	defer SetDependencies(nil)

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(DiscoverActivity)

	_, err := env.ExecuteActivity(DiscoverActivity, testInput(t))
	assert.ErrorContains(t, err, "singular matrix")
}

func TestDiscovererRunsWorkflow(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("discovery-1")
	run.On("GetRunID").Return("run-1")
	run.On("Get", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		out := args.Get(1).(*DiscoveryOutput)
		out.Graph = resultGraph()
	}).Return(nil)

	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(in DiscoveryInput) bool {
		return in.Algorithm == causal.AlgorithmNOTEARS && len(in.Columns) == 2
	})).Return(run, nil)

	d := NewDiscoverer(c, "")
	res, err := d.Discover(context.Background(), testDataset(t), variables("Age", "Spend"), causal.Constraints{}, causal.AlgorithmNOTEARS)
	require.NoError(t, err)
	require.Len(t, res.Graph.Relationships, 1)
	c.AssertExpectations(t)
	c.AssertNotCalled(t, "CancelWorkflow", mock.Anything, mock.Anything, mock.Anything)
}

func TestDiscovererCancelsWorkflowWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("discovery-1")
	run.On("GetRunID").Return("run-1")
	run.On("Get", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(context.Canceled)
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(run, nil)
	c.On("CancelWorkflow", mock.Anything, "discovery-1", "run-1").Return(nil)

	d := NewDiscoverer(c, "queue")
	_, err := d.Discover(ctx, testDataset(t), variables("Age", "Spend"), causal.Constraints{}, causal.AlgorithmPC)
	assert.ErrorIs(t, err, task.ErrCanceled)
	c.AssertCalled(t, "CancelWorkflow", mock.Anything, "discovery-1", "run-1")
}

func TestDiscovererAlgorithmNoneSkipsWorkflow(t *testing.T) {
	c := &mocks.Client{}
	d := NewDiscoverer(c, "queue")
	res, err := d.Discover(context.Background(), discovery.Dataset{}, variables("Age", "Spend"), causal.Constraints{}, causal.AlgorithmNone)
	require.NoError(t, err)
	assert.Empty(t, res.Graph.Relationships)
	c.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
