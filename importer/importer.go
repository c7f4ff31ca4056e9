// Package importer turns a dataset's data dump into a temporary SPARQL
// endpoint: it downloads the dump, indexes it with QLever and serves the
// index until Finish.
package importer

import (
	"context"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
)

// Importer makes a dataset queryable over SPARQL.
type Importer interface {
	// Import returns *Successful, *Failed or *NotSupported.
	Import(ctx context.Context, ds *dataset.Dataset) Result

	// Finish releases whatever the last import holds on to. Safe to call
	// when nothing was imported.
	Finish(ctx context.Context)
}

// Result is the outcome of an import.
type Result interface {
	isResult()
}

// Successful means the dataset is served at Endpoint.
type Successful struct {
	Endpoint string
	// Identifier optionally names the graph holding the imported data.
	Identifier string
}

// Failed means the dump at DownloadURL could not be imported.
type Failed struct {
	DownloadURL string
	Error       string
}

// NotSupported means the dataset has nothing this importer can load.
type NotSupported struct {
	Message string
}

func (*Successful) isResult()   {}
func (*Failed) isResult()       {}
func (*NotSupported) isResult() {}
