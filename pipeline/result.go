package pipeline

import (
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
)

// Result is the outcome of one analyzer on one dataset: *Success, *Failure
// or *NotSupported.
type Result interface {
	isResult()
}

// Success carries the graph an analyzer produced.
type Success struct {
	Graph *graph.Graph
}

// Failure means the analyzer could not complete for this dataset. URL is
// the endpoint or dataset the failure concerns.
type Failure struct {
	URL     string
	Message string
}

// NotSupported means the analyzer does not apply to this dataset.
type NotSupported struct {
	Message string
}

func (*Success) isResult()      {}
func (*Failure) isResult()      {}
func (*NotSupported) isResult() {}
