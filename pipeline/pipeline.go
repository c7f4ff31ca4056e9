// Package pipeline drives a run: it selects datasets, runs every analyzer on
// each of them in turn and hands the stamped results to the writers.
//
// Datasets and analyzers are processed strictly one at a time. Analyzers may
// hold exclusive resources (the import server's container name and port), so
// running them concurrently would make them collide.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pulse"
)

// Selector enumerates the datasets of a run.
type Selector interface {
	Select(ctx context.Context) ([]*dataset.Dataset, error)
}

// Analyzer produces a graph describing a dataset.
type Analyzer interface {
	Name() string
	// Execute never returns an error: failures are reported as *Failure.
	Execute(ctx context.Context, ds *dataset.Dataset) Result
	// Finish releases resources held after Execute. It runs after every dataset.
	Finish(ctx context.Context)
}

// Writer stores the results for one dataset.
type Writer interface {
	Name() string
	Write(ctx context.Context, ds *dataset.Dataset, g *graph.Graph) error
}

// Summary counts what a run did.
type Summary struct {
	RunID        string
	Datasets     int
	Succeeded    int // analyzer results
	Failed       int
	NotSupported int
	Writes       int
	WriteErrors  int
	Started      time.Time
	Duration     time.Duration
}

// Fields renders the summary for progress reporting.
func (s *Summary) Fields() map[string]interface{} {
	return map[string]interface{}{
		"run_id":        s.RunID,
		"datasets":      s.Datasets,
		"succeeded":     s.Succeeded,
		"failed":        s.Failed,
		"not_supported": s.NotSupported,
		"writes":        s.Writes,
		"write_errors":  s.WriteErrors,
		"duration":      s.Duration.Round(time.Millisecond).String(),
	}
}

// Pipeline wires a selector, analyzers and writers.
type Pipeline struct {
	Selector  Selector
	Analyzers []Analyzer
	Writers   []Writer

	// Progress receives stage updates; nil discards them.
	Progress pulse.ProgressEmitter
	Logger   *zap.SugaredLogger
	// RunID identifies the run; empty generates one.
	RunID string

	now func() time.Time
}

type runIDKey struct{}

// WithRunID returns ctx tagged with run id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the id of the run ctx belongs to.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Run processes every selected dataset. Only a selection failure is returned
// as an error; analyzer and writer failures are logged and counted.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if p.Selector == nil {
		return nil, errors.New("pipeline requires a selector")
	}
	now := p.now
	if now == nil {
		now = time.Now
	}
	runID := p.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	progress := p.Progress
	if progress == nil {
		progress = pulse.NopEmitter{}
	}

	ctx = WithRunID(ctx, runID)
	ctx = logger.WithRunID(ctx, runID)
	ctx = pulse.WithEmitter(ctx, progress)

	base := p.Logger
	if base == nil {
		base = logger.ComponentLogger("pipeline")
	}
	log := logger.FromContext(ctx, base)

	summary := &Summary{RunID: runID, Started: now()}

	progress.EmitStage("select", "selecting datasets")
	datasets, err := p.Selector.Select(ctx)
	if err != nil {
		progress.EmitError("select", err)
		return nil, errors.Wrap(err, "failed to select datasets")
	}
	log.Infow("Selected datasets", logger.FieldCount, len(datasets))

	for i, ds := range datasets {
		if err := ctx.Err(); err != nil {
			log.Warnw("Run cancelled", logger.FieldError, err, "remaining", len(datasets)-i)
			break
		}
		progress.EmitStage("dataset", ds.IRI)
		p.process(logger.WithDataset(ctx, ds.IRI), base, ds, summary, now)
		summary.Datasets++
		progress.EmitProgress(i+1, len(datasets), map[string]interface{}{"type": "datasets"})
	}

	summary.Duration = now().Sub(summary.Started)
	log.Infow("Run complete", "summary", summary.Fields())
	progress.EmitComplete(summary.Fields())
	return summary, nil
}

func (p *Pipeline) process(ctx context.Context, base *zap.SugaredLogger, ds *dataset.Dataset, summary *Summary, now func() time.Time) {
	log := logger.FromContext(ctx, base)

	// Cleanup runs after each dataset, even when ctx is cancelled meanwhile
	defer p.finish(context.WithoutCancel(ctx), log)

	results := graph.New()
	for _, a := range p.Analyzers {
		start := now()
		result := execute(ctx, a, ds)
		end := now()

		alog := log.With(logger.FieldAnalyzer, a.Name(), logger.FieldDurationMS, end.Sub(start).Milliseconds())
		switch r := result.(type) {
		case *Success:
			summary.Succeeded++
			g := r.Graph
			if g == nil {
				g = graph.New()
			}
			stamped, err := graph.WithProvenance(g, ds.IRI, start, end)
			if err != nil {
				summary.Failed++
				alog.Warnw("Analyzer result dropped", logger.FieldError, err)
				continue
			}
			results.Merge(stamped)
			alog.Debugw("Analyzer succeeded", logger.FieldCount, g.Len())
		case *NotSupported:
			summary.NotSupported++
			alog.Warnw("Analyzer not supported", "message", r.Message)
		case *Failure:
			summary.Failed++
			alog.Warnw("Analyzer failed", logger.FieldURL, r.URL, "message", r.Message)
		default:
			summary.Failed++
			alog.Warnw("Analyzer returned no result")
		}
	}

	if results.Empty() {
		log.Debugw("No results to write")
		return
	}

	for _, w := range p.Writers {
		wlog := log.With(logger.FieldWriter, w.Name())
		if err := w.Write(ctx, ds, results); err != nil {
			summary.WriteErrors++
			wlog.Errorw("Writer failed", logger.FieldError, err)
			continue
		}
		summary.Writes++
		wlog.Debugw("Wrote results", logger.FieldCount, results.Len())
	}
}

// execute runs one analyzer, turning a panic into a Failure.
func execute(ctx context.Context, a Analyzer, ds *dataset.Dataset) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = &Failure{Message: fmt.Sprintf("analyzer %s panicked: %v", a.Name(), r)}
		}
	}()
	return a.Execute(ctx, ds)
}

func (p *Pipeline) finish(ctx context.Context, log *zap.SugaredLogger) {
	for _, a := range p.Analyzers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorw("Analyzer cleanup panicked", logger.FieldAnalyzer, a.Name(), "panic", r)
				}
			}()
			a.Finish(ctx)
		}()
	}
}
