package analyzer

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pipeline"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/sparql"
)

// Placeholders in analysis queries
const (
	fromPlaceholder          = "#FROM#"
	subjectFilterPlaceholder = "#SUBJECT_FILTER#"
)

var datasetVariable = regexp.MustCompile(`[?$]dataset\b`)

// SparqlQueryAnalyzer runs a CONSTRUCT query against the dataset's SPARQL
// distribution.
type SparqlQueryAnalyzer struct {
	name    string
	query   string
	client  *sparql.Client
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewSparqlQueryAnalyzer returns an analyzer running query. A zero timeout
// leaves the query unbounded.
func NewSparqlQueryAnalyzer(name, query string, client *sparql.Client, timeout time.Duration, l *zap.SugaredLogger) *SparqlQueryAnalyzer {
	if l == nil {
		l = logger.ComponentLogger("analyzer.sparql")
	}
	return &SparqlQueryAnalyzer{
		name:    name,
		query:   query,
		client:  client,
		timeout: timeout,
		logger:  l.With(logger.FieldAnalyzer, name),
	}
}

func (a *SparqlQueryAnalyzer) Name() string {
	return a.name
}

func (a *SparqlQueryAnalyzer) Execute(ctx context.Context, ds *dataset.Dataset) pipeline.Result {
	d := ds.SparqlDistribution()
	if d == nil {
		return &pipeline.NotSupported{Message: "no SPARQL distribution"}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	logger.FromContext(ctx, a.logger).Debugw("Running query", logger.FieldEndpoint, d.AccessURL)
	g, err := a.client.Construct(ctx, d.AccessURL, Bind(a.query, ds, d))
	if err != nil {
		return &pipeline.Failure{URL: d.AccessURL, Message: err.Error()}
	}
	return &pipeline.Success{Graph: g}
}

func (a *SparqlQueryAnalyzer) Finish(context.Context) {}

// Bind substitutes the dataset IRI for ?dataset, a FROM clause for #FROM#
// when d is restricted to a named graph and the dataset's subject filter
// for #SUBJECT_FILTER#.
func Bind(query string, ds *dataset.Dataset, d *dataset.Distribution) string {
	query = datasetVariable.ReplaceAllLiteralString(query, "<"+ds.IRI+">")

	from := ""
	if d != nil && d.NamedGraph != "" {
		from = "FROM <" + d.NamedGraph + ">"
	}
	query = strings.ReplaceAll(query, fromPlaceholder, from)

	return strings.ReplaceAll(query, subjectFilterPlaceholder, ds.SubjectFilter)
}
