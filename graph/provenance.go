package graph

import (
	"time"

	"github.com/knakk/rdf"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
)

// DateTimeLayout renders xsd:dateTime values in UTC with millisecond precision.
const DateTimeLayout = "2006-01-02T15:04:05.000Z"

// DateTime returns an xsd:dateTime literal for t.
func DateTime(t time.Time) rdf.Literal {
	return TypedLiteral(t.UTC().Format(DateTimeLayout), XSDDateTime)
}

// Provenance returns the five triples stating that the entity iri was
// generated by a fresh activity running from start to end.
func Provenance(iri string, start, end time.Time) (*Graph, error) {
	entity, err := rdf.NewIRI(iri)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid dataset IRI %q", iri)
	}
	activity := NewBlank()

	return New(
		Triple(entity, RDFType, ProvEntity),
		Triple(entity, ProvWasGeneratedBy, activity),
		Triple(activity, RDFType, ProvActivity),
		Triple(activity, ProvStartedAtTime, DateTime(start)),
		Triple(activity, ProvEndedAtTime, DateTime(end)),
	), nil
}

// WithProvenance returns a new graph holding g plus its provenance.
func WithProvenance(g *Graph, iri string, start, end time.Time) (*Graph, error) {
	prov, err := Provenance(iri, start, end)
	if err != nil {
		return nil, err
	}
	stamped := New()
	stamped.Merge(g)
	stamped.Add(prov.Triples()...)
	return stamped, nil
}
