// Package analyzer holds the analyses run on every dataset: distribution
// probing (with dump import), SPARQL CONSTRUCT queries and vocabulary
// detection.
package analyzer

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/knakk/rdf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/importer"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/internal/httpclient"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pipeline"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/sparql"
)

// ProbeQuery checks that a SPARQL distribution answers.
const ProbeQuery = "select * { ?s ?p ?o } limit 1"

// HTTPStatusCodes is the namespace for HTTP status errors on probe actions.
const HTTPStatusCodes = "https://www.w3.org/2011/http-statusCodes#"

const defaultProbeTimeout = 5 * time.Second

// DistributionOptions configures a DistributionAnalyzer.
type DistributionOptions struct {
	HTTP *httpclient.Client
	// Importer is asked for a SPARQL endpoint when the dataset has none; nil disables imports.
	Importer          importer.Importer
	Concurrency       int
	RequestsPerSecond float64
	Timeout           time.Duration
	Logger            *zap.SugaredLogger
}

// DistributionAnalyzer probes every distribution of a dataset, records the
// outcome as schema:Action resources and makes sure the dataset ends up with
// a SPARQL distribution, importing a dump when needed.
type DistributionAnalyzer struct {
	http     *httpclient.Client
	sparql   *sparql.Client
	importer importer.Importer
	limiter  *probeLimiter
	timeout  time.Duration
	logger   *zap.SugaredLogger
}

// NewDistributionAnalyzer returns a DistributionAnalyzer for opts.
func NewDistributionAnalyzer(opts DistributionOptions) *DistributionAnalyzer {
	if opts.HTTP == nil {
		opts.HTTP = httpclient.New(httpclient.Options{})
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultProbeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.ComponentLogger("analyzer.distribution")
	}
	return &DistributionAnalyzer{
		http:     opts.HTTP,
		sparql:   sparql.NewClient(opts.HTTP),
		importer: opts.Importer,
		limiter:  newProbeLimiter(opts.RequestsPerSecond, opts.Concurrency),
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
}

func (a *DistributionAnalyzer) Name() string {
	return "distribution"
}

// probeResult is what a single probe learned about a distribution.
type probeResult struct {
	url          string
	sparql       bool
	err          error // transport failure, no response
	status       int
	contentType  string
	lastModified *time.Time
	contentSize  int64
}

func (r *probeResult) success() bool {
	if r.err != nil || r.status < 200 || r.status >= 400 {
		return false
	}
	if r.sparql {
		return strings.HasPrefix(r.contentType, sparql.ResultsJSON)
	}
	return true
}

// Execute probes the distributions, then imports a dump when the dataset has
// no working SPARQL endpoint.
func (a *DistributionAnalyzer) Execute(ctx context.Context, ds *dataset.Dataset) pipeline.Result {
	log := logger.FromContext(ctx, a.logger)

	results := a.probeAll(ctx, ds.Distributions)

	g := graph.New()
	dsIRI, err := rdf.NewIRI(ds.IRI)
	if err != nil {
		return &pipeline.Failure{URL: ds.IRI, Message: "invalid dataset IRI " + ds.IRI}
	}
	actions := make(map[string]rdf.Blank, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		actions[r.url] = describe(g, dsIRI, r)
	}

	var failure string
	if ds.SparqlDistribution() == nil {
		failure = a.importDump(ctx, ds, g, actions)
	}

	if ds.SparqlDistribution() == nil {
		if failure == "" {
			failure = "no SPARQL endpoint available"
		}
		log.Debugw("Dataset has no SPARQL endpoint", logger.FieldError, failure)
		return &pipeline.Failure{URL: ds.IRI, Message: failure}
	}
	return &pipeline.Success{Graph: g}
}

func (a *DistributionAnalyzer) importDump(ctx context.Context, ds *dataset.Dataset, g *graph.Graph, actions map[string]rdf.Blank) string {
	if a.importer == nil {
		return "no SPARQL endpoint and importing is disabled"
	}

	switch r := a.importer.Import(ctx, ds).(type) {
	case *importer.Successful:
		// Later analyzers query the imported data
		ds.AddDistribution(dataset.NewSparqlDistribution(r.Endpoint, r.Identifier))
		return ""
	case *importer.Failed:
		if action, ok := actions[r.DownloadURL]; ok {
			g.Add(graph.Triple(action, graph.SchemaError, graph.Literal(r.Error)))
		}
		return r.Error
	default:
		return "no data dump available"
	}
}

// Finish stops whatever the importer left running.
func (a *DistributionAnalyzer) Finish(ctx context.Context) {
	if a.importer != nil {
		a.importer.Finish(ctx)
	}
}

func (a *DistributionAnalyzer) probeAll(ctx context.Context, distributions []*dataset.Distribution) []*probeResult {
	results := make([]*probeResult, len(distributions))
	var g errgroup.Group
	for i, d := range distributions {
		if d.AccessURL == "" {
			continue
		}
		g.Go(func() error {
			results[i] = a.probe(ctx, d)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (a *DistributionAnalyzer) probe(ctx context.Context, d *dataset.Distribution) *probeResult {
	result := &probeResult{url: d.AccessURL, sparql: d.IsSparql()}

	release, err := a.limiter.acquire(ctx)
	if err != nil {
		result.err = err
		return result
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var resp *http.Response
	if result.sparql {
		resp, err = a.sparql.Probe(ctx, d.AccessURL, ProbeQuery)
	} else {
		resp, err = a.probeDump(ctx, d)
	}
	if err != nil {
		result.err = err
		d.Valid = false
		a.logger.Debugw("Probe failed", logger.FieldDistribution, d.AccessURL, logger.FieldError, err)
		return result
	}
	defer drain(resp)

	result.status = resp.StatusCode
	result.contentType = resp.Header.Get("Content-Type")
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			result.lastModified = &t
		}
	}
	if resp.ContentLength > 0 {
		result.contentSize = resp.ContentLength
	}

	d.Valid = result.success()
	if !result.sparql && d.LastModified == nil {
		d.LastModified = result.lastModified
	}
	return result
}

// probeDump issues a HEAD request, repeated as GET when the server reports
// no Content-Length for HEAD.
func (a *DistributionAnalyzer) probeDump(ctx context.Context, d *dataset.Distribution) (*http.Response, error) {
	req, err := a.http.NewRequest(ctx, http.MethodHead, d.AccessURL, nil)
	if err != nil {
		return nil, err
	}
	if d.MimeType != "" {
		req.Header.Set("Accept", d.MimeType)
	}
	req.Header.Set("Accept-Encoding", "identity")
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.ContentLength > 0 {
		return resp, nil
	}
	drain(resp)

	req, err = a.http.NewRequest(ctx, http.MethodGet, d.AccessURL, nil)
	if err != nil {
		return nil, err
	}
	if d.MimeType != "" {
		req.Header.Set("Accept", d.MimeType)
	}
	return a.http.Do(req)
}

// describe adds the schema:Action for r to g and returns its node.
func describe(g *graph.Graph, dsIRI rdf.IRI, r *probeResult) rdf.Blank {
	action := graph.NewBlank()
	target := resource(r.url)
	g.Add(
		graph.Triple(action, graph.RDFType, graph.SchemaAction),
		graph.Triple(action, graph.SchemaTarget, target),
	)

	switch {
	case r.err != nil:
		g.Add(graph.Triple(action, graph.SchemaError, graph.Literal(errors.UnwrapAll(r.err).Error())))
	case r.success():
		g.Add(graph.Triple(action, graph.SchemaResult, target))
		distribution, isIRI := target.(rdf.IRI)
		if r.lastModified != nil && isIRI {
			g.Add(graph.Triple(distribution, graph.SchemaDateModified, graph.DateTime(*r.lastModified)))
		}
		if r.sparql {
			g.Add(graph.Triple(dsIRI, graph.VoidSparqlEndpoint, target))
			break
		}
		g.Add(graph.Triple(dsIRI, graph.VoidDataDump, target))
		if r.contentSize > 0 && isIRI {
			g.Add(graph.Triple(distribution, graph.SchemaContentSize,
				graph.TypedLiteral(strconv.FormatInt(r.contentSize, 10), graph.XSDInteger)))
		}
	default:
		code := strings.ReplaceAll(http.StatusText(r.status), " ", "")
		if code == "" {
			code = strconv.Itoa(r.status)
		}
		g.Add(graph.Triple(action, graph.SchemaError, resource(HTTPStatusCodes+code)))
	}
	return action
}

// resource returns url as an IRI, or as a literal when it is not a valid IRI.
func resource(url string) rdf.Object {
	if iri, err := rdf.NewIRI(url); err == nil {
		return iri
	}
	return graph.Literal(url)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
