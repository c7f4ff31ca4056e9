package writer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/config"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/internal/httpclient"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/sparql"
)

// GraphStoreWriter replaces the named graph <dataset IRI> in a GraphDB
// repository through the SPARQL 1.1 Graph Store HTTP Protocol.
type GraphStoreWriter struct {
	http     *httpclient.Client
	service  string
	username string
	password string
	logger   *zap.SugaredLogger
}

// NewGraphStoreWriter returns a writer for the repository described by cfg.
func NewGraphStoreWriter(cfg config.GraphStoreWriterConfig, hc *httpclient.Client, l *zap.SugaredLogger) (*GraphStoreWriter, error) {
	if cfg.URL == "" || cfg.Repository == "" {
		return nil, errors.New("graph store writer needs a URL and a repository")
	}
	if l == nil {
		l = logger.ComponentLogger("writer.graphstore")
	}
	service := strings.TrimSuffix(cfg.URL, "/") + "/repositories/" + url.PathEscape(cfg.Repository) + "/rdf-graphs/service"
	return &GraphStoreWriter{
		http:     hc,
		service:  service,
		username: cfg.Username,
		password: cfg.Password,
		logger:   l,
	}, nil
}

func (w *GraphStoreWriter) Name() string {
	return "graphstore"
}

// GraphURL returns the Graph Store URL for the dataset's graph.
func (w *GraphStoreWriter) GraphURL(ds *dataset.Dataset) string {
	return w.service + "?" + url.Values{"graph": {ds.IRI}}.Encode()
}

func (w *GraphStoreWriter) Write(ctx context.Context, ds *dataset.Dataset, g *graph.Graph) error {
	var body bytes.Buffer
	if err := g.Encode(&body); err != nil {
		return err
	}

	target := w.GraphURL(ds)
	req, err := w.http.NewRequest(ctx, http.MethodPut, target, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", sparql.NTriples)
	if w.username != "" {
		req.SetBasicAuth(w.username, w.password)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to store results for %s", ds.IRI)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("graph store returned %s for %s: %s", resp.Status, ds.IRI, strings.TrimSpace(string(msg)))
	}

	logger.FromContext(ctx, w.logger).Debugw("Stored results",
		logger.FieldURL, target,
		logger.FieldCount, g.Len(),
	)
	return nil
}
