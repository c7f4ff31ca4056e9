// Package sparql is a minimal SPARQL 1.1 Protocol client.
package sparql

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/knakk/rdf"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/internal/httpclient"
)

// Accept headers
const (
	ResultsJSON = "application/sparql-results+json"
	NTriples    = "application/n-triples"
	Turtle      = "text/turtle"

	acceptGraph = NTriples + ", " + Turtle + ";q=0.9"
)

// Solution is one row of a SELECT result.
type Solution map[string]rdf.Term

// Client sends queries over HTTP POST.
type Client struct {
	http *httpclient.Client
}

// NewClient returns a client using hc for transport.
func NewClient(hc *httpclient.Client) *Client {
	return &Client{http: hc}
}

// Select runs a SELECT query and returns its solutions.
func (c *Client) Select(ctx context.Context, endpoint, query string) ([]Solution, error) {
	resp, err := c.post(ctx, endpoint, query, ResultsJSON)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var results struct {
		Results struct {
			Bindings []map[string]binding `json:"bindings"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, errors.Wrapf(err, "invalid SPARQL results from %s", endpoint)
	}

	solutions := make([]Solution, 0, len(results.Results.Bindings))
	for _, row := range results.Results.Bindings {
		solution := make(Solution, len(row))
		for name, b := range row {
			term, err := b.term()
			if err != nil {
				return nil, errors.Wrapf(err, "invalid binding for ?%s from %s", name, endpoint)
			}
			solution[name] = term
		}
		solutions = append(solutions, solution)
	}
	return solutions, nil
}

// Construct runs a CONSTRUCT query and returns the resulting graph.
func (c *Client) Construct(ctx context.Context, endpoint, query string) (*graph.Graph, error) {
	resp, err := c.post(ctx, endpoint, query, acceptGraph)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	format := rdf.NTriples
	if strings.HasPrefix(resp.Header.Get("Content-Type"), Turtle) {
		format = rdf.Turtle
	}
	g, err := graph.DecodeFormat(resp.Body, format)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid CONSTRUCT response from %s", endpoint)
	}
	return g, nil
}

// Probe runs query and reports the HTTP status; it does not parse the body.
func (c *Client) Probe(ctx context.Context, endpoint, query string) (*http.Response, error) {
	req, err := c.request(ctx, endpoint, query, ResultsJSON)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

func (c *Client) request(ctx context.Context, endpoint, query, accept string) (*http.Request, error) {
	form := url.Values{"query": {query}}
	req, err := c.http.NewRequest(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", accept)
	return req, nil
}

func (c *Client) post(ctx context.Context, endpoint, query, accept string) (*http.Response, error) {
	req, err := c.request(ctx, endpoint, query, accept)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "SPARQL request to %s failed", endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, errors.Newf("SPARQL endpoint %s returned %s: %s", endpoint, resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

type binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang"`
	Datatype string `json:"datatype"`
}

func (b binding) term() (rdf.Term, error) {
	switch b.Type {
	case "uri":
		return rdf.NewIRI(b.Value)
	case "bnode":
		return rdf.NewBlank(b.Value)
	case "literal", "typed-literal":
		if b.Lang != "" {
			return rdf.NewLangLiteral(b.Value, b.Lang)
		}
		if b.Datatype != "" {
			dt, err := rdf.NewIRI(b.Datatype)
			if err != nil {
				return nil, err
			}
			return rdf.NewTypedLiteral(b.Value, dt), nil
		}
		return rdf.NewLiteral(b.Value)
	default:
		return nil, errors.Newf("unknown term type %q", b.Type)
	}
}
