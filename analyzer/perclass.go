package analyzer

import (
	"context"
	"strings"
	"time"

	"github.com/knakk/rdf"
	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pipeline"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/sparql"
)

// classPlaceholder is replaced with the IRI of the class being analyzed.
const classPlaceholder = "#CLASS#"

// ClassesQuery lists the classes a per-class query runs for.
const ClassesQuery = `SELECT DISTINCT ?class
#FROM#
WHERE {
  ?s a ?class .
  #SUBJECT_FILTER#
}`

// PerClassAnalyzer first lists the dataset's classes, then runs its CONSTRUCT
// query once for every class and merges the results. Each query only groups
// the instances of a single class.
type PerClassAnalyzer struct {
	name    string
	query   string
	client  *sparql.Client
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewPerClassAnalyzer returns an analyzer running query per class. The
// timeout applies to each request separately.
func NewPerClassAnalyzer(name, query string, client *sparql.Client, timeout time.Duration, l *zap.SugaredLogger) *PerClassAnalyzer {
	if l == nil {
		l = logger.ComponentLogger("analyzer.perclass")
	}
	return &PerClassAnalyzer{
		name:    name,
		query:   query,
		client:  client,
		timeout: timeout,
		logger:  l.With(logger.FieldAnalyzer, name),
	}
}

func (a *PerClassAnalyzer) Name() string {
	return a.name
}

// Execute fails only when the classes cannot be listed. A class whose query
// fails is logged and left out of the result.
func (a *PerClassAnalyzer) Execute(ctx context.Context, ds *dataset.Dataset) pipeline.Result {
	d := ds.SparqlDistribution()
	if d == nil {
		return &pipeline.NotSupported{Message: "no SPARQL distribution"}
	}
	log := logger.FromContext(ctx, a.logger)

	classes, err := a.classes(ctx, ds, d)
	if err != nil {
		return &pipeline.Failure{URL: d.AccessURL, Message: err.Error()}
	}

	g := graph.New()
	failed := 0
	for _, class := range classes {
		if ctx.Err() != nil {
			return &pipeline.Failure{URL: d.AccessURL, Message: ctx.Err().Error()}
		}
		partial, err := a.construct(ctx, ds, d, class)
		if err != nil {
			failed++
			log.Warnw("Query failed for class",
				logger.FieldEndpoint, d.AccessURL,
				"class", class,
				logger.FieldError, err)
			continue
		}
		g.Merge(partial)
	}

	log.Debugw("Ran query per class", logger.FieldCount, len(classes), "failed", failed)
	return &pipeline.Success{Graph: g}
}

func (a *PerClassAnalyzer) Finish(context.Context) {}

func (a *PerClassAnalyzer) classes(ctx context.Context, ds *dataset.Dataset, d *dataset.Distribution) ([]string, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()

	solutions, err := a.client.Select(ctx, d.AccessURL, Bind(ClassesQuery, ds, d))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list classes")
	}

	classes := make([]string, 0, len(solutions))
	for _, s := range solutions {
		// Blank node classes cannot be named in a follow-up query
		if iri, ok := s["class"].(rdf.IRI); ok {
			classes = append(classes, iri.String())
		}
	}
	return classes, nil
}

func (a *PerClassAnalyzer) construct(ctx context.Context, ds *dataset.Dataset, d *dataset.Distribution, class string) (*graph.Graph, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.client.Construct(ctx, d.AccessURL, BindClass(Bind(a.query, ds, d), class))
}

func (a *PerClassAnalyzer) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(ctx, a.timeout)
	}
	return context.WithCancel(ctx)
}

// BindClass substitutes the class IRI for #CLASS#.
func BindClass(query, class string) string {
	return strings.ReplaceAll(query, classPlaceholder, "<"+class+">")
}
