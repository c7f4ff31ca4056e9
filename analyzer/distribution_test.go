package analyzer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/importer"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/internal/httpclient"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pipeline"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/sparql"
)

var lastModified = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

// distributionServer answers probes: /sparql as a SPARQL endpoint, /dump.nt
// with a Content-Length on HEAD, /chunked.nt only on GET and /broken with
// an HTML error page.
func distributionServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sparql", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.FormValue("query") != ProbeQuery {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", sparql.ResultsJSON)
		_, _ = w.Write([]byte(`{"head":{"vars":[]},"results":{"bindings":[]}}`))
	})
	mux.HandleFunc("/html-sparql", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/dump.nt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(make([]byte, 100))
		}
	})
	mux.HandleFunc("/chunked.nt", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Length", "42")
		_, _ = w.Write(make([]byte, 42))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type fakeImporter struct {
	mu       sync.Mutex
	result   importer.Result
	imported []*dataset.Dataset
	finished int
}

func (f *fakeImporter) Import(_ context.Context, ds *dataset.Dataset) importer.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imported = append(f.imported, ds)
	return f.result
}

func (f *fakeImporter) Finish(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished++
}

func newDistributionAnalyzer(t *testing.T, srv *httptest.Server, imp importer.Importer) *DistributionAnalyzer {
	return NewDistributionAnalyzer(DistributionOptions{
		HTTP:        httpclient.Wrap(srv.Client()),
		Importer:    imp,
		Concurrency: 2,
		Logger:      zaptest.NewLogger(t).Sugar(),
	})
}

const datasetIRI = "https://example.com/dataset"

func dump(url string) *dataset.Distribution {
	return &dataset.Distribution{MimeType: dataset.MediaTypeNTriples, AccessURL: url}
}

func sparqlDistribution(url string) *dataset.Distribution {
	return &dataset.Distribution{MimeType: dataset.MediaTypeSparqlQuery, AccessURL: url}
}

func TestDistributionAnalyzer_ProbesEndpointAndDump(t *testing.T) {
	srv := distributionServer(t)
	imp := &fakeImporter{}
	a := newDistributionAnalyzer(t, srv, imp)

	endpoint, dumpURL := sparqlDistribution(srv.URL+"/sparql"), dump(srv.URL+"/dump.nt")
	ds := dataset.New(datasetIRI, endpoint, dumpURL)

	result := a.Execute(context.Background(), ds)
	success, ok := result.(*pipeline.Success)
	require.True(t, ok, "got %#v", result)
	g := success.Graph

	dsIRI := graph.MustIRI(datasetIRI)
	assert.Len(t, g.Match(nil, graph.RDFType, graph.SchemaAction), 2)
	assert.Len(t, g.Match(dsIRI, graph.VoidSparqlEndpoint, graph.MustIRI(endpoint.AccessURL)), 1)
	assert.Len(t, g.Match(dsIRI, graph.VoidDataDump, graph.MustIRI(dumpURL.AccessURL)), 1)
	assert.Len(t, g.Match(graph.MustIRI(dumpURL.AccessURL), graph.SchemaContentSize,
		graph.TypedLiteral("100", graph.XSDInteger)), 1)
	assert.Len(t, g.Match(graph.MustIRI(dumpURL.AccessURL), graph.SchemaDateModified,
		graph.DateTime(lastModified)), 1)
	assert.Empty(t, g.Match(nil, graph.SchemaError, nil))

	assert.True(t, endpoint.Valid)
	assert.True(t, dumpURL.Valid)
	require.NotNil(t, dumpURL.LastModified)
	assert.True(t, lastModified.Equal(*dumpURL.LastModified))
	assert.Empty(t, imp.imported, "no import when an endpoint exists")
}

func TestDistributionAnalyzer_RetriesHeadAsGet(t *testing.T) {
	srv := distributionServer(t)
	d := dump(srv.URL + "/chunked.nt")
	ds := dataset.New(datasetIRI, sparqlDistribution(srv.URL+"/sparql"), d)

	result := newDistributionAnalyzer(t, srv, nil).Execute(context.Background(), ds)
	success, ok := result.(*pipeline.Success)
	require.True(t, ok)
	assert.True(t, d.Valid)
	assert.Len(t, success.Graph.Match(graph.MustIRI(d.AccessURL), graph.SchemaContentSize,
		graph.TypedLiteral("42", graph.XSDInteger)), 1)
}

func TestDistributionAnalyzer_HTTPErrorStatus(t *testing.T) {
	srv := distributionServer(t)
	broken := dump(srv.URL + "/broken")
	ds := dataset.New(datasetIRI, sparqlDistribution(srv.URL+"/sparql"), broken)

	result := newDistributionAnalyzer(t, srv, nil).Execute(context.Background(), ds)
	success, ok := result.(*pipeline.Success)
	require.True(t, ok)

	assert.False(t, broken.Valid)
	assert.Len(t, success.Graph.Match(nil, graph.SchemaError, graph.MustIRI(HTTPStatusCodes+"NotFound")), 1)
	assert.Empty(t, success.Graph.Match(nil, graph.VoidDataDump, nil))
}

func TestDistributionAnalyzer_SparqlWrongContentType(t *testing.T) {
	srv := distributionServer(t)
	endpoint := sparqlDistribution(srv.URL + "/html-sparql")
	ds := dataset.New(datasetIRI, endpoint)

	result := newDistributionAnalyzer(t, srv, &fakeImporter{result: &importer.NotSupported{}}).
		Execute(context.Background(), ds)

	assert.False(t, endpoint.Valid)
	// The declared endpoint remains a SPARQL distribution, so no import is attempted
	_, ok := result.(*pipeline.Success)
	assert.True(t, ok)
}

func TestDistributionAnalyzer_NetworkError(t *testing.T) {
	srv := distributionServer(t)
	unreachable := dump("http://127.0.0.1:1/dump.nt")
	ds := dataset.New(datasetIRI, sparqlDistribution(srv.URL+"/sparql"), unreachable)

	result := newDistributionAnalyzer(t, srv, nil).Execute(context.Background(), ds)
	success, ok := result.(*pipeline.Success)
	require.True(t, ok)

	assert.False(t, unreachable.Valid)
	errs := success.Graph.Match(nil, graph.SchemaError, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Obj.String(), "connection refused")
}

func TestDistributionAnalyzer_ImportsDump(t *testing.T) {
	srv := distributionServer(t)
	imp := &fakeImporter{result: &importer.Successful{Endpoint: "http://localhost:7001/sparql"}}
	d := dump(srv.URL + "/dump.nt")
	ds := dataset.New(datasetIRI, d)

	result := newDistributionAnalyzer(t, srv, imp).Execute(context.Background(), ds)
	_, ok := result.(*pipeline.Success)
	require.True(t, ok, "got %#v", result)

	require.Len(t, imp.imported, 1)
	// Probing ran first so the importer sees a valid dump
	assert.True(t, d.Valid)
	require.NotNil(t, ds.SparqlDistribution())
	assert.Equal(t, "http://localhost:7001/sparql", ds.SparqlDistribution().AccessURL)
}

func TestDistributionAnalyzer_ImportFailure(t *testing.T) {
	srv := distributionServer(t)
	d := dump(srv.URL + "/dump.nt")
	imp := &fakeImporter{result: &importer.Failed{DownloadURL: d.AccessURL, Error: "Unsupported media type: text/csv"}}
	ds := dataset.New(datasetIRI, d)

	result := newDistributionAnalyzer(t, srv, imp).Execute(context.Background(), ds)
	failure, ok := result.(*pipeline.Failure)
	require.True(t, ok, "got %#v", result)
	assert.Equal(t, "Unsupported media type: text/csv", failure.Message)
	assert.Equal(t, datasetIRI, failure.URL)
	assert.Nil(t, ds.SparqlDistribution())
}

func TestDistributionAnalyzer_NothingToImport(t *testing.T) {
	srv := distributionServer(t)
	ds := dataset.New(datasetIRI, dump(srv.URL+"/broken"))

	result := newDistributionAnalyzer(t, srv, &fakeImporter{result: &importer.NotSupported{Message: "No valid data dump available"}}).
		Execute(context.Background(), ds)
	failure, ok := result.(*pipeline.Failure)
	require.True(t, ok)
	assert.Equal(t, "no data dump available", failure.Message)
}

func TestDistributionAnalyzer_ImportDisabled(t *testing.T) {
	srv := distributionServer(t)
	ds := dataset.New(datasetIRI, dump(srv.URL+"/dump.nt"))

	result := newDistributionAnalyzer(t, srv, nil).Execute(context.Background(), ds)
	_, ok := result.(*pipeline.Failure)
	assert.True(t, ok)
}

func TestDistributionAnalyzer_FinishDelegates(t *testing.T) {
	srv := distributionServer(t)
	imp := &fakeImporter{}
	newDistributionAnalyzer(t, srv, imp).Finish(context.Background())
	assert.Equal(t, 1, imp.finished)

	// Without an importer Finish does nothing
	newDistributionAnalyzer(t, srv, nil).Finish(context.Background())
}

func TestProbeLimiter(t *testing.T) {
	l := newProbeLimiter(0, 1)
	release, err := l.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release, err = l.acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestProbeLimiter_Unbounded(t *testing.T) {
	l := newProbeLimiter(0, 0)
	for i := 0; i < 10; i++ {
		_, err := l.acquire(context.Background())
		require.NoError(t, err)
	}
}
