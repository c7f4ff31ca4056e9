package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pulse"
)

type staticSelector struct {
	datasets []*dataset.Dataset
	err      error
}

func (s staticSelector) Select(context.Context) ([]*dataset.Dataset, error) {
	return s.datasets, s.err
}

type fakeAnalyzer struct {
	name     string
	execute  func(ctx context.Context, ds *dataset.Dataset) Result
	calls    []string
	finished int
}

func (a *fakeAnalyzer) Name() string { return a.name }

func (a *fakeAnalyzer) Execute(ctx context.Context, ds *dataset.Dataset) Result {
	a.calls = append(a.calls, ds.IRI)
	return a.execute(ctx, ds)
}

func (a *fakeAnalyzer) Finish(context.Context) { a.finished++ }

type write struct {
	dataset string
	graph   *graph.Graph
}

type fakeWriter struct {
	name   string
	err    error
	writes []write
	after  func()
}

func (w *fakeWriter) Name() string { return w.name }

func (w *fakeWriter) Write(ctx context.Context, ds *dataset.Dataset, g *graph.Graph) error {
	w.writes = append(w.writes, write{dataset: ds.IRI, graph: g})
	if w.after != nil {
		w.after()
	}
	return w.err
}

var (
	subject = graph.MustIRI("https://example.com/dataset/1")
	title   = graph.MustIRI("http://purl.org/dc/terms/title")
)

func success(value string) *fakeAnalyzer {
	return &fakeAnalyzer{name: "success-" + value, execute: func(context.Context, *dataset.Dataset) Result {
		return &Success{Graph: graph.New(graph.Triple(subject, title, graph.Literal(value)))}
	}}
}

func notSupported() *fakeAnalyzer {
	return &fakeAnalyzer{name: "not-supported", execute: func(context.Context, *dataset.Dataset) Result {
		return &NotSupported{Message: "no SPARQL endpoint"}
	}}
}

func failure() *fakeAnalyzer {
	return &fakeAnalyzer{name: "failure", execute: func(context.Context, *dataset.Dataset) Result {
		return &Failure{Message: "query timed out"}
	}}
}

// clock returns a time source advancing one second per call.
func clock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func oneDataset() staticSelector {
	return staticSelector{datasets: []*dataset.Dataset{dataset.New(subject.String())}}
}

func TestRun_MixedResults(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	a, b, c := success("A"), notSupported(), failure()
	w := &fakeWriter{name: "memory"}
	p := &Pipeline{
		Selector:  oneDataset(),
		Analyzers: []Analyzer{a, b, c},
		Writers:   []Writer{w},
		Logger:    zap.New(core).Sugar(),
		now:       clock(),
	}

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, w.writes, 1)
	g := w.writes[0].graph
	// A's triple plus five provenance triples
	assert.Equal(t, 6, g.Len())
	assert.Len(t, g.Match(subject, title, graph.Literal("A")), 1)
	assert.Len(t, g.Match(subject, graph.RDFType, graph.ProvEntity), 1)
	assert.Len(t, g.Match(nil, graph.RDFType, graph.ProvActivity), 1)

	assert.Equal(t, 2, logs.FilterMessage("Analyzer not supported").Len()+logs.FilterMessage("Analyzer failed").Len())
	assert.Equal(t, 2, logs.Len())

	assert.Equal(t, 1, summary.Datasets)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.NotSupported)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Writes)
}

func TestRun_ProvenanceTimestamps(t *testing.T) {
	w := &fakeWriter{name: "memory"}
	p := &Pipeline{
		Selector:  oneDataset(),
		Analyzers: []Analyzer{success("A")},
		Writers:   []Writer{w},
		Logger:    zaptest.NewLogger(t).Sugar(),
		now:       clock(),
	}

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	g := w.writes[0].graph
	// The first clock reading is the run start
	assert.Len(t, g.Match(nil, graph.ProvStartedAtTime, graph.TypedLiteral("2024-03-01T12:00:02.000Z", graph.XSDDateTime)), 1)
	assert.Len(t, g.Match(nil, graph.ProvEndedAtTime, graph.TypedLiteral("2024-03-01T12:00:03.000Z", graph.XSDDateTime)), 1)
}

func TestRun_FailureBetweenSuccesses(t *testing.T) {
	w := &fakeWriter{name: "memory"}
	p := &Pipeline{
		Selector:  oneDataset(),
		Analyzers: []Analyzer{success("A"), failure(), success("C")},
		Writers:   []Writer{w},
		Logger:    zaptest.NewLogger(t).Sugar(),
		now:       clock(),
	}

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, w.writes, 1)
	g := w.writes[0].graph
	assert.Len(t, g.Match(subject, title, nil), 2)
	// Each success gets its own activity
	assert.Len(t, g.Match(nil, graph.RDFType, graph.ProvActivity), 2)
}

func TestRun_NoWritesWithoutResults(t *testing.T) {
	w := &fakeWriter{name: "memory"}
	p := &Pipeline{
		Selector:  oneDataset(),
		Analyzers: []Analyzer{notSupported(), failure()},
		Writers:   []Writer{w},
		Logger:    zaptest.NewLogger(t).Sugar(),
	}

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, w.writes)
	assert.Equal(t, 0, summary.Writes)
}

func TestRun_SequentialOrderAndFinishPerDataset(t *testing.T) {
	var order []string
	record := func(name string) *fakeAnalyzer {
		return &fakeAnalyzer{name: name, execute: func(_ context.Context, ds *dataset.Dataset) Result {
			order = append(order, name+" "+ds.IRI)
			return &NotSupported{}
		}}
	}
	a, b := record("a"), record("b")
	p := &Pipeline{
		Selector: staticSelector{datasets: []*dataset.Dataset{
			dataset.New("https://example.com/1"),
			dataset.New("https://example.com/2"),
		}},
		Analyzers: []Analyzer{a, b},
		Logger:    zaptest.NewLogger(t).Sugar(),
	}

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"a https://example.com/1", "b https://example.com/1",
		"a https://example.com/2", "b https://example.com/2",
	}, order)
	assert.Equal(t, 2, a.finished)
	assert.Equal(t, 2, b.finished)
	assert.Equal(t, 2, summary.Datasets)
}

func TestRun_WriterErrorDoesNotStopOthers(t *testing.T) {
	broken := &fakeWriter{name: "broken", err: errors.New("connection refused")}
	ok := &fakeWriter{name: "ok"}
	p := &Pipeline{
		Selector:  oneDataset(),
		Analyzers: []Analyzer{success("A")},
		Writers:   []Writer{broken, ok},
		Logger:    zaptest.NewLogger(t).Sugar(),
	}

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, broken.writes, 1)
	assert.Len(t, ok.writes, 1)
	assert.Equal(t, 1, summary.Writes)
	assert.Equal(t, 1, summary.WriteErrors)
}

func TestRun_AnalyzerPanicBecomesFailure(t *testing.T) {
	panicking := &fakeAnalyzer{name: "panicking", execute: func(context.Context, *dataset.Dataset) Result {
		panic("nil map")
	}}
	w := &fakeWriter{name: "memory"}
	p := &Pipeline{
		Selector:  oneDataset(),
		Analyzers: []Analyzer{panicking, success("B")},
		Writers:   []Writer{w},
		Logger:    zaptest.NewLogger(t).Sugar(),
	}

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Len(t, w.writes, 1)
	assert.Equal(t, 1, panicking.finished)
}

func TestRun_SelectorError(t *testing.T) {
	a := success("A")
	p := &Pipeline{
		Selector:  staticSelector{err: errors.New("registry unavailable")},
		Analyzers: []Analyzer{a},
		Logger:    zaptest.NewLogger(t).Sugar(),
	}

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry unavailable")
	assert.Empty(t, a.calls)
}

func TestRun_CancellationStopsAfterCurrentDataset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := success("A")
	w := &fakeWriter{name: "memory", after: cancel}
	p := &Pipeline{
		Selector: staticSelector{datasets: []*dataset.Dataset{
			dataset.New("https://example.com/1"),
			dataset.New("https://example.com/2"),
		}},
		Analyzers: []Analyzer{a},
		Writers:   []Writer{w},
		Logger:    zaptest.NewLogger(t).Sugar(),
	}

	summary, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/1"}, a.calls)
	assert.Equal(t, 1, a.finished)
	assert.Equal(t, 1, summary.Datasets)
}

func TestRun_ContextCarriesRunAndProgress(t *testing.T) {
	var gotRunID string
	var gotProgress pulse.ProgressEmitter
	slow := &fakeAnalyzer{name: "slow", execute: func(ctx context.Context, _ *dataset.Dataset) Result {
		gotRunID = RunID(ctx)
		gotProgress = pulse.FromContext(ctx)
		return &NotSupported{}
	}}
	progress := pulse.NewJSONEmitter(&discard{})
	p := &Pipeline{
		Selector:  oneDataset(),
		Analyzers: []Analyzer{slow},
		Progress:  progress,
		RunID:     "run-1",
		Logger:    zaptest.NewLogger(t).Sugar(),
	}

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, "run-1", gotRunID)
	assert.Same(t, progress, gotProgress)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
