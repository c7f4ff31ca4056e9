package analyzer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/internal/httpclient"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pipeline"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/sparql"
)

func TestBind(t *testing.T) {
	query := `CONSTRUCT { ?dataset void:triples ?n . $dataset a void:Dataset } #FROM# WHERE { ?s ?p ?o . #SUBJECT_FILTER# ?datasets ?x ?y }`
	ds := dataset.New(datasetIRI)
	ds.SubjectFilter = "FILTER(STRSTARTS(STR(?s), \"https://example.com/\"))"

	tests := []struct {
		name string
		d    *dataset.Distribution
		want string
	}{
		{
			name: "default graph",
			d:    dataset.NewSparqlDistribution("http://localhost/sparql", ""),
			want: `CONSTRUCT { <https://example.com/dataset> void:triples ?n . <https://example.com/dataset> a void:Dataset }  WHERE { ?s ?p ?o . FILTER(STRSTARTS(STR(?s), "https://example.com/")) ?datasets ?x ?y }`,
		},
		{
			name: "named graph",
			d:    dataset.NewSparqlDistribution("http://localhost/sparql", "https://example.com/graph"),
			want: `CONSTRUCT { <https://example.com/dataset> void:triples ?n . <https://example.com/dataset> a void:Dataset } FROM <https://example.com/graph> WHERE { ?s ?p ?o . FILTER(STRSTARTS(STR(?s), "https://example.com/")) ?datasets ?x ?y }`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Bind(query, ds, tt.d))
		})
	}
}

func constructServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var lastQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastQuery.Store(r.FormValue("query"))
		if status != http.StatusOK {
			http.Error(w, "query failed", status)
			return
		}
		w.Header().Set("Content-Type", sparql.NTriples)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &lastQuery
}

const tripleCount = "<https://example.com/dataset> <http://rdfs.org/ns/void#triples> \"3\"^^<http://www.w3.org/2001/XMLSchema#integer> .\n"

func TestSparqlQueryAnalyzer_Execute(t *testing.T) {
	srv, lastQuery := constructServer(t, http.StatusOK, tripleCount)
	client := sparql.NewClient(httpclient.Wrap(srv.Client()))
	a := NewSparqlQueryAnalyzer("triples", "CONSTRUCT { ?dataset <http://rdfs.org/ns/void#triples> ?n } #FROM# WHERE { }", client, time.Second, zaptest.NewLogger(t).Sugar())

	ds := dataset.New(datasetIRI, dataset.NewSparqlDistribution(srv.URL, ""))
	result := a.Execute(context.Background(), ds)

	success, ok := result.(*pipeline.Success)
	require.True(t, ok, "got %#v", result)
	assert.Equal(t, 1, success.Graph.Len())
	assert.Equal(t, "triples", a.Name())
	assert.Equal(t, "CONSTRUCT { <https://example.com/dataset> <http://rdfs.org/ns/void#triples> ?n }  WHERE { }", lastQuery.Load())
}

func TestSparqlQueryAnalyzer_NoEndpoint(t *testing.T) {
	a := NewSparqlQueryAnalyzer("triples", "CONSTRUCT {} WHERE {}", nil, 0, zaptest.NewLogger(t).Sugar())
	result := a.Execute(context.Background(), dataset.New(datasetIRI, dump("https://example.com/dump.nt")))

	notSupported, ok := result.(*pipeline.NotSupported)
	require.True(t, ok)
	assert.Equal(t, "no SPARQL distribution", notSupported.Message)
}

func TestSparqlQueryAnalyzer_QueryError(t *testing.T) {
	srv, _ := constructServer(t, http.StatusInternalServerError, "")
	client := sparql.NewClient(httpclient.Wrap(srv.Client()))
	a := NewSparqlQueryAnalyzer("triples", "CONSTRUCT {} WHERE {}", client, 0, zaptest.NewLogger(t).Sugar())

	result := a.Execute(context.Background(), dataset.New(datasetIRI, dataset.NewSparqlDistribution(srv.URL, "")))
	failure, ok := result.(*pipeline.Failure)
	require.True(t, ok)
	assert.Equal(t, srv.URL, failure.URL)
	assert.Contains(t, failure.Message, "500")
}

type staticAnalyzer struct {
	result   pipeline.Result
	finished bool
}

func (s *staticAnalyzer) Name() string { return "static" }

func (s *staticAnalyzer) Execute(context.Context, *dataset.Dataset) pipeline.Result { return s.result }

func (s *staticAnalyzer) Finish(context.Context) { s.finished = true }

func TestVocabularyAnalyzer(t *testing.T) {
	partition := graph.NewBlank()
	properties := graph.New(
		graph.Triple(partition, graph.VoidProperty, graph.MustIRI("https://schema.org/name")),
		graph.Triple(partition, graph.VoidProperty, graph.MustIRI("http://schema.org/description")),
		graph.Triple(partition, graph.VoidProperty, graph.MustIRI("http://purl.org/dc/terms/title")),
		graph.Triple(partition, graph.VoidProperty, graph.MustIRI("https://example.com/unknown#prop")),
	)
	decorated := &staticAnalyzer{result: &pipeline.Success{Graph: properties}}
	a := NewVocabularyAnalyzer(decorated)

	result := a.Execute(context.Background(), dataset.New(datasetIRI))
	success, ok := result.(*pipeline.Success)
	require.True(t, ok)

	vocabularies := success.Graph.Objects(graph.MustIRI(datasetIRI), graph.VoidVocabulary)
	require.Len(t, vocabularies, 2)
	assert.Equal(t, "http://schema.org", vocabularies[0].String())
	assert.Equal(t, "http://purl.org/dc/terms/", vocabularies[1].String())

	a.Finish(context.Background())
	assert.True(t, decorated.finished)
}

func TestVocabularyAnalyzer_PassesThroughOtherResults(t *testing.T) {
	failure := &pipeline.Failure{Message: "timeout"}
	a := NewVocabularyAnalyzer(&staticAnalyzer{result: failure})
	assert.Same(t, failure, a.Execute(context.Background(), dataset.New(datasetIRI)))
}
