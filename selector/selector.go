// Package selector picks the datasets to analyze from a DCAT catalog.
package selector

import (
	"context"
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knakk/rdf"
	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/sparql"
)

// DefaultQuery selects every valid dataset with its distributions.
//
//go:embed datasets.rq
var DefaultQuery string

// ianaMediaTypes prefixes media types given as IRIs
const ianaMediaTypes = "https://www.iana.org/assignments/media-types/"

// CatalogSelector reads datasets from a registry's SPARQL endpoint.
type CatalogSelector struct {
	client   *sparql.Client
	endpoint string
	query    string
	limit    int
	logger   *zap.SugaredLogger
}

// New returns a selector running query against endpoint. An empty query
// selects DefaultQuery; limit 0 keeps all datasets.
func New(client *sparql.Client, endpoint, query string, limit int, l *zap.SugaredLogger) *CatalogSelector {
	if query == "" {
		query = DefaultQuery
	}
	if l == nil {
		l = logger.ComponentLogger("selector")
	}
	return &CatalogSelector{client: client, endpoint: endpoint, query: query, limit: limit, logger: l}
}

// ReadQuery returns the contents of path, or DefaultQuery when path is empty.
func ReadQuery(path string) (string, error) {
	if path == "" {
		return DefaultQuery, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read catalog query %s", path)
	}
	return string(data), nil
}

// Select runs the catalog query and groups the result into datasets.
func (s *CatalogSelector) Select(ctx context.Context) ([]*dataset.Dataset, error) {
	g, err := s.client.Construct(ctx, s.endpoint, s.query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query catalog")
	}

	datasets := Datasets(g)
	if s.limit > 0 && len(datasets) > s.limit {
		datasets = datasets[:s.limit]
	}
	s.logger.Infow("Selected datasets", logger.FieldEndpoint, s.endpoint, "count", len(datasets))
	return datasets, nil
}

// Datasets groups a DCAT graph into datasets, in order of first appearance.
// Distributions without an access URL are skipped.
func Datasets(g *graph.Graph) []*dataset.Dataset {
	var datasets []*dataset.Dataset
	for _, t := range g.Match(nil, graph.RDFType, graph.DCATDataset) {
		ds := dataset.New(term(t.Subj))
		for _, obj := range g.Objects(t.Subj, graph.DCATDistribution) {
			node, ok := obj.(rdf.Subject)
			if !ok {
				continue
			}
			if d := distribution(g, node); d != nil {
				ds.AddDistribution(d)
			}
		}
		datasets = append(datasets, ds)
	}
	return datasets
}

func distribution(g *graph.Graph, node rdf.Subject) *dataset.Distribution {
	d := &dataset.Distribution{AccessURL: first(g, node, graph.DCATAccessURL)}
	if d.AccessURL == "" {
		return nil
	}

	d.MimeType = first(g, node, graph.DCATMediaType)
	if d.MimeType == "" {
		d.MimeType = first(g, node, graph.DCTFormat)
	}
	d.MimeType = strings.TrimPrefix(d.MimeType, ianaMediaTypes)

	if size, err := strconv.ParseInt(first(g, node, graph.DCATByteSize), 10, 64); err == nil {
		d.ByteSize = &size
	}
	if modified := first(g, node, graph.DCTModified); modified != "" {
		if t, ok := parseDate(modified); ok {
			d.LastModified = &t
		}
	}
	return d
}

// first returns the lexical value of the first object of subj pred.
func first(g *graph.Graph, subj rdf.Subject, pred rdf.Predicate) string {
	objects := g.Objects(subj, pred)
	if len(objects) == 0 {
		return ""
	}
	return term(objects[0])
}

// term returns the IRI, blank node label or literal lexical form of t.
func term(t rdf.Term) string {
	return t.String()
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
