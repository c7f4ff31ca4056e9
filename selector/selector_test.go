package selector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/internal/httpclient"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/sparql"
)

const catalog = `<https://example.com/ds/1> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.w3.org/ns/dcat#Dataset> .
<https://example.com/ds/1> <http://www.w3.org/ns/dcat#distribution> _:d1 .
<https://example.com/ds/1> <http://www.w3.org/ns/dcat#distribution> _:d2 .
_:d1 <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.w3.org/ns/dcat#Distribution> .
_:d1 <http://www.w3.org/ns/dcat#accessURL> <https://example.com/ds/1/sparql> .
_:d1 <http://www.w3.org/ns/dcat#mediaType> <https://www.iana.org/assignments/media-types/application/sparql-query> .
_:d2 <http://www.w3.org/ns/dcat#accessURL> <https://example.com/ds/1/dump.nt.gz> .
_:d2 <http://purl.org/dc/terms/format> "application/n-triples" .
_:d2 <http://www.w3.org/ns/dcat#byteSize> "1000"^^<http://www.w3.org/2001/XMLSchema#integer> .
_:d2 <http://purl.org/dc/terms/modified> "2024-01-15T09:30:00Z"^^<http://www.w3.org/2001/XMLSchema#dateTime> .
<https://example.com/ds/2> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.w3.org/ns/dcat#Dataset> .
<https://example.com/ds/2> <http://www.w3.org/ns/dcat#distribution> _:d3 .
_:d3 <http://purl.org/dc/terms/format> "text/turtle" .
<https://example.com/ds/3> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.w3.org/ns/dcat#Dataset> .
`

func catalogServer(t *testing.T, status int) (*httptest.Server, *string) {
	t.Helper()
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.FormValue("query")
		if status != http.StatusOK {
			http.Error(w, "unavailable", status)
			return
		}
		w.Header().Set("Content-Type", sparql.NTriples)
		_, _ = w.Write([]byte(catalog))
	}))
	t.Cleanup(srv.Close)
	return srv, &query
}

func newSelector(t *testing.T, srv *httptest.Server, query string, limit int) *CatalogSelector {
	client := sparql.NewClient(httpclient.Wrap(srv.Client()))
	return New(client, srv.URL, query, limit, zaptest.NewLogger(t).Sugar())
}

func TestSelect(t *testing.T) {
	srv, query := catalogServer(t, http.StatusOK)

	datasets, err := newSelector(t, srv, "", 0).Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultQuery, *query)

	require.Len(t, datasets, 3)
	assert.Equal(t, "https://example.com/ds/1", datasets[0].IRI)
	assert.Equal(t, "https://example.com/ds/2", datasets[1].IRI)
	assert.Equal(t, "https://example.com/ds/3", datasets[2].IRI)

	ds := datasets[0]
	require.Len(t, ds.Distributions, 2)

	endpoint := ds.Distributions[0]
	assert.Equal(t, "https://example.com/ds/1/sparql", endpoint.AccessURL)
	assert.Equal(t, "application/sparql-query", endpoint.MimeType)
	assert.Same(t, endpoint, ds.SparqlDistribution())

	dump := ds.Distributions[1]
	assert.Equal(t, "https://example.com/ds/1/dump.nt.gz", dump.AccessURL)
	assert.Equal(t, "application/n-triples", dump.MimeType)
	require.NotNil(t, dump.ByteSize)
	assert.Equal(t, int64(1000), *dump.ByteSize)
	require.NotNil(t, dump.LastModified)
	assert.True(t, time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC).Equal(*dump.LastModified))
	assert.False(t, dump.Valid, "validity is left to the distribution probe")

	// Distribution without access URL is dropped
	assert.Empty(t, datasets[1].Distributions)
	assert.Empty(t, datasets[2].Distributions)
}

func TestSelect_Limit(t *testing.T) {
	srv, _ := catalogServer(t, http.StatusOK)

	datasets, err := newSelector(t, srv, "", 2).Select(context.Background())
	require.NoError(t, err)
	assert.Len(t, datasets, 2)
}

func TestSelect_CustomQuery(t *testing.T) {
	srv, query := catalogServer(t, http.StatusOK)

	_, err := newSelector(t, srv, "CONSTRUCT WHERE { ?s ?p ?o }", 0).Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CONSTRUCT WHERE { ?s ?p ?o }", *query)
}

func TestSelect_EndpointError(t *testing.T) {
	srv, _ := catalogServer(t, http.StatusServiceUnavailable)

	_, err := newSelector(t, srv, "", 0).Select(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query catalog")
	assert.Contains(t, err.Error(), "503")
}

func TestReadQuery(t *testing.T) {
	query, err := ReadQuery("")
	require.NoError(t, err)
	assert.Equal(t, DefaultQuery, query)

	path := filepath.Join(t.TempDir(), "catalog.rq")
	require.NoError(t, os.WriteFile(path, []byte("CONSTRUCT {} WHERE {}"), 0o644))
	query, err = ReadQuery(path)
	require.NoError(t, err)
	assert.Equal(t, "CONSTRUCT {} WHERE {}", query)

	_, err = ReadQuery(filepath.Join(t.TempDir(), "missing.rq"))
	assert.Error(t, err)
}
