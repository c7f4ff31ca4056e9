package graph

import "github.com/knakk/rdf"

// Namespaces used by the analyses and writers
const (
	NSRDF    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSXSD    = "http://www.w3.org/2001/XMLSchema#"
	NSPROV   = "http://www.w3.org/ns/prov#"
	NSVOID   = "http://rdfs.org/ns/void#"
	NSSchema = "https://schema.org/"
	NSDCAT   = "http://www.w3.org/ns/dcat#"
	NSDCT    = "http://purl.org/dc/terms/"
)

// Frequently used terms
var (
	RDFType = MustIRI(NSRDF + "type")

	XSDDateTime = MustIRI(NSXSD + "dateTime")
	XSDInteger  = MustIRI(NSXSD + "integer")

	ProvEntity         = MustIRI(NSPROV + "Entity")
	ProvActivity       = MustIRI(NSPROV + "Activity")
	ProvWasGeneratedBy = MustIRI(NSPROV + "wasGeneratedBy")
	ProvStartedAtTime  = MustIRI(NSPROV + "startedAtTime")
	ProvEndedAtTime    = MustIRI(NSPROV + "endedAtTime")

	VoidDataset        = MustIRI(NSVOID + "Dataset")
	VoidProperty       = MustIRI(NSVOID + "property")
	VoidVocabulary     = MustIRI(NSVOID + "vocabulary")
	VoidSparqlEndpoint = MustIRI(NSVOID + "sparqlEndpoint")
	VoidDataDump       = MustIRI(NSVOID + "dataDump")

	SchemaAction         = MustIRI(NSSchema + "Action")
	SchemaTarget         = MustIRI(NSSchema + "target")
	SchemaResult         = MustIRI(NSSchema + "result")
	SchemaError          = MustIRI(NSSchema + "error")
	SchemaStatusCode     = MustIRI(NSSchema + "statusCode")
	SchemaContentSize    = MustIRI(NSSchema + "contentSize")
	SchemaDateModified   = MustIRI(NSSchema + "dateModified")
	SchemaEncodingFormat = MustIRI(NSSchema + "encodingFormat")
	SchemaEntryPoint     = MustIRI(NSSchema + "EntryPoint")
	SchemaURL            = MustIRI(NSSchema + "url")

	DCATDataset      = MustIRI(NSDCAT + "Dataset")
	DCATDistribution = MustIRI(NSDCAT + "distribution")
	DCATAccessURL    = MustIRI(NSDCAT + "accessURL")
	DCATMediaType    = MustIRI(NSDCAT + "mediaType")
	DCATByteSize     = MustIRI(NSDCAT + "byteSize")
	DCTFormat        = MustIRI(NSDCT + "format")
	DCTModified      = MustIRI(NSDCT + "modified")
	DCTConformsTo    = MustIRI(NSDCT + "conformsTo")
)

// MustIRI returns the IRI for s and panics when s is not a valid IRI.
// For package-level vocabulary only.
func MustIRI(s string) rdf.IRI {
	iri, err := rdf.NewIRI(s)
	if err != nil {
		panic(err)
	}
	return iri
}
