package analyzer

import (
	"context"
	"strings"

	"github.com/knakk/rdf"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pipeline"
)

// vocabularies maps property namespace prefixes to the vocabulary IRI they
// belong to, checked in order.
var vocabularies = []struct {
	prefix     string
	vocabulary string
}{
	{"http://schema.org/", "http://schema.org"},
	{"https://schema.org/", "http://schema.org"},
	{"https://www.ica.org/standards/RiC/ontology#", "https://www.ica.org/standards/RiC/ontology"},
	{"http://www.cidoc-crm.org/cidoc-crm/", "http://www.cidoc-crm.org/cidoc-crm"},
	{"http://purl.org/ontology/bibo/", "http://purl.org/ontology/bibo/"},
	{"http://purl.org/dc/elements/1.1/", "http://purl.org/dc/elements/1.1/"},
	{"http://purl.org/dc/terms/", "http://purl.org/dc/terms/"},
	{"http://purl.org/dc/dcmitype/", "http://purl.org/dc/dcmitype/"},
	{"http://www.w3.org/2004/02/skos/core#", "http://www.w3.org/2004/02/skos/core#"},
	{"http://xmlns.com/foaf/0.1/", "http://xmlns.com/foaf/0.1/"},
}

// VocabularyAnalyzer adds void:vocabulary statements for the well-known
// vocabularies among the void:property values another analyzer produced.
type VocabularyAnalyzer struct {
	decorated pipeline.Analyzer
}

// NewVocabularyAnalyzer wraps decorated, typically the property partition query.
func NewVocabularyAnalyzer(decorated pipeline.Analyzer) *VocabularyAnalyzer {
	return &VocabularyAnalyzer{decorated: decorated}
}

func (a *VocabularyAnalyzer) Name() string {
	return "vocabulary"
}

func (a *VocabularyAnalyzer) Execute(ctx context.Context, ds *dataset.Dataset) pipeline.Result {
	result := a.decorated.Execute(ctx, ds)
	success, ok := result.(*pipeline.Success)
	if !ok || success.Graph == nil {
		return result
	}

	dsIRI, err := rdf.NewIRI(ds.IRI)
	if err != nil {
		return &pipeline.Failure{URL: ds.IRI, Message: "invalid dataset IRI " + ds.IRI}
	}

	g := success.Graph
	for _, t := range g.Match(nil, graph.VoidProperty, nil) {
		if vocabulary, ok := vocabularyOf(t.Obj); ok {
			g.Add(graph.Triple(dsIRI, graph.VoidVocabulary, vocabulary))
		}
	}
	return success
}

func (a *VocabularyAnalyzer) Finish(ctx context.Context) {
	a.decorated.Finish(ctx)
}

func vocabularyOf(property rdf.Object) (rdf.IRI, bool) {
	iri, ok := property.(rdf.IRI)
	if !ok {
		return rdf.IRI{}, false
	}
	for _, v := range vocabularies {
		if strings.HasPrefix(iri.String(), v.prefix) {
			return graph.MustIRI(v.vocabulary), true
		}
	}
	return rdf.IRI{}, false
}
