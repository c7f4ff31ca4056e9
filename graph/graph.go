// Package graph holds analysis results as de-duplicated sets of RDF triples.
package graph

import (
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/knakk/rdf"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
)

// Graph is an insertion-ordered set of triples. The zero value is not usable;
// create graphs with New.
type Graph struct {
	triples []rdf.Triple
	index   map[string]struct{}
}

// New returns a graph holding triples.
func New(triples ...rdf.Triple) *Graph {
	g := &Graph{index: make(map[string]struct{})}
	g.Add(triples...)
	return g
}

// Add inserts triples not yet present.
func (g *Graph) Add(triples ...rdf.Triple) {
	for _, t := range triples {
		key := t.Serialize(rdf.NTriples)
		if _, ok := g.index[key]; ok {
			continue
		}
		g.index[key] = struct{}{}
		g.triples = append(g.triples, t)
	}
}

// Merge adds all triples of other. Blank nodes of other are renamed to fresh
// labels so that unrelated results never share a node.
func (g *Graph) Merge(other *Graph) {
	if other == nil {
		return
	}
	renamed := make(map[string]rdf.Blank)
	fresh := func(term rdf.Term) rdf.Term {
		b, ok := term.(rdf.Blank)
		if !ok {
			return term
		}
		key := b.Serialize(rdf.NTriples)
		if nb, ok := renamed[key]; ok {
			return nb
		}
		nb := NewBlank()
		renamed[key] = nb
		return nb
	}
	for _, t := range other.triples {
		g.Add(rdf.Triple{
			Subj: fresh(t.Subj).(rdf.Subject),
			Pred: t.Pred,
			Obj:  fresh(t.Obj).(rdf.Object),
		})
	}
}

// Len returns the number of triples.
func (g *Graph) Len() int {
	return len(g.triples)
}

// Empty reports whether the graph holds no triples.
func (g *Graph) Empty() bool {
	return len(g.triples) == 0
}

// Triples returns the triples in insertion order. The slice must not be modified.
func (g *Graph) Triples() []rdf.Triple {
	return g.triples
}

// Match returns the triples matching the pattern; nil terms are wildcards.
func (g *Graph) Match(subj rdf.Subject, pred rdf.Predicate, obj rdf.Object) []rdf.Triple {
	var matches []rdf.Triple
	for _, t := range g.triples {
		if subj != nil && !sameTerm(subj, t.Subj) {
			continue
		}
		if pred != nil && !sameTerm(pred, t.Pred) {
			continue
		}
		if obj != nil && !sameTerm(obj, t.Obj) {
			continue
		}
		matches = append(matches, t)
	}
	return matches
}

// Objects returns the objects of triples matching subj and pred.
func (g *Graph) Objects(subj rdf.Subject, pred rdf.Predicate) []rdf.Object {
	var objects []rdf.Object
	for _, t := range g.Match(subj, pred, nil) {
		objects = append(objects, t.Obj)
	}
	return objects
}

// Encode writes the graph as N-Triples.
func (g *Graph) Encode(w io.Writer) error {
	enc := rdf.NewTripleEncoder(w, rdf.NTriples)
	if err := enc.EncodeAll(g.triples); err != nil {
		return errors.Wrap(err, "failed to encode triples")
	}
	return errors.Wrap(enc.Close(), "failed to flush triples")
}

// String renders the graph as N-Triples.
func (g *Graph) String() string {
	var b strings.Builder
	_ = g.Encode(&b)
	return b.String()
}

// Decode reads N-Triples from r.
func Decode(r io.Reader) (*Graph, error) {
	return DecodeFormat(r, rdf.NTriples)
}

// DecodeFormat reads triples in format (N-Triples or Turtle) from r.
func DecodeFormat(r io.Reader, format rdf.Format) (*Graph, error) {
	triples, err := rdf.NewTripleDecoder(r, format).DecodeAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode triples")
	}
	return New(triples...), nil
}

// NewBlank returns a blank node with a globally unique label.
func NewBlank() rdf.Blank {
	b, err := rdf.NewBlank("b" + strings.ReplaceAll(uuid.NewString(), "-", ""))
	if err != nil {
		panic(err)
	}
	return b
}

// Triple builds a triple from terms.
func Triple(subj rdf.Subject, pred rdf.Predicate, obj rdf.Object) rdf.Triple {
	return rdf.Triple{Subj: subj, Pred: pred, Obj: obj}
}

// Literal returns a plain string literal.
func Literal(value string) rdf.Literal {
	l, err := rdf.NewLiteral(value)
	if err != nil {
		panic(err)
	}
	return l
}

// TypedLiteral returns a literal with an explicit datatype.
func TypedLiteral(value string, datatype rdf.IRI) rdf.Literal {
	return rdf.NewTypedLiteral(value, datatype)
}

func sameTerm(a, b rdf.Term) bool {
	return a.Type() == b.Type() && a.Serialize(rdf.NTriples) == b.Serialize(rdf.NTriples)
}
