// Package dataset models catalog entries and their distributions.
package dataset

import (
	"strings"
	"time"
)

// Media types with special meaning to the pipeline
const (
	MediaTypeSparqlQuery   = "application/sparql-query"
	MediaTypeSparqlResults = "application/sparql-results+json"
	MediaTypeNTriples      = "application/n-triples"
	MediaTypeNQuads        = "application/n-quads"
	MediaTypeTurtle        = "text/turtle"
)

// Dataset is a catalog entry being analyzed.
type Dataset struct {
	IRI           string
	Distributions []*Distribution
	// SubjectFilter optionally restricts analyses to a subset of subjects,
	// as a SPARQL graph pattern over ?s.
	SubjectFilter string
}

// New returns a dataset with the given distributions.
func New(iri string, distributions ...*Distribution) *Dataset {
	return &Dataset{IRI: iri, Distributions: distributions}
}

// Distribution is one access point for a dataset.
type Distribution struct {
	MimeType     string
	AccessURL    string
	ByteSize     *int64
	LastModified *time.Time
	// Valid is set by the distribution probe when the access URL answered.
	Valid bool
	// NamedGraph restricts SPARQL distributions to one graph.
	NamedGraph string
}

// NewSparqlDistribution returns a valid SPARQL distribution for endpoint.
func NewSparqlDistribution(endpoint, namedGraph string) *Distribution {
	return &Distribution{
		MimeType:   MediaTypeSparqlQuery,
		AccessURL:  endpoint,
		Valid:      true,
		NamedGraph: namedGraph,
	}
}

// IsSparql reports whether d is a queryable SPARQL endpoint.
func (d *Distribution) IsSparql() bool {
	return (d.MimeType == MediaTypeSparqlQuery || d.MimeType == MediaTypeSparqlResults) &&
		d.AccessURL != ""
}

// IsGzip reports whether d is a gzip-compressed dump, by media type or URL.
func (d *Distribution) IsGzip() bool {
	return strings.HasSuffix(d.MimeType, "+gzip") || strings.HasSuffix(d.AccessURL, ".gz")
}

// SparqlDistribution returns the first SPARQL distribution, or nil.
func (ds *Dataset) SparqlDistribution() *Distribution {
	for _, d := range ds.Distributions {
		if d.IsSparql() {
			return d
		}
	}
	return nil
}

// download tiers, best first
var downloadTiers = []func(*Distribution) bool{
	func(d *Distribution) bool { return d.MimeType == MediaTypeNTriples },
	func(d *Distribution) bool { return strings.HasSuffix(d.AccessURL, ".nt.gz") },
	(*Distribution).IsGzip,
	func(d *Distribution) bool { return d.MimeType == MediaTypeTurtle },
	func(d *Distribution) bool { return d.MimeType == MediaTypeNQuads },
}

// DownloadDistributions returns the valid dump distributions in import
// priority order: N-Triples, .nt.gz URLs, any gzip, Turtle, then N-Quads.
// Each distribution appears once, at its best tier; order within a tier
// follows the catalog.
func (ds *Dataset) DownloadDistributions() []*Distribution {
	var ranked []*Distribution
	seen := make(map[*Distribution]bool)
	for _, matches := range downloadTiers {
		for _, d := range ds.Distributions {
			if seen[d] || !d.Valid || d.AccessURL == "" || d.IsSparql() {
				continue
			}
			if matches(d) {
				seen[d] = true
				ranked = append(ranked, d)
			}
		}
	}
	return ranked
}

// AddDistribution appends d to the dataset.
func (ds *Dataset) AddDistribution(d *Distribution) {
	ds.Distributions = append(ds.Distributions, d)
}
