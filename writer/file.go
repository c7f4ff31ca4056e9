// Package writer sends each dataset's analysis results to their
// destinations: N-Triples files, a SPARQL Graph Store and the run ledger.
package writer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/config"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/importer"
)

// Stdout selects standard output as the FileWriter destination.
const Stdout = "-"

// FileWriter writes N-Triples to a single stream, or to one file per dataset
// when its destination is a directory.
type FileWriter struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
	dir    string
}

// NewFileWriter returns a writer for path: Stdout, an existing directory or a
// path ending in a separator (one file per dataset), or a file that is
// truncated now and appended to for every dataset.
func NewFileWriter(path string) (*FileWriter, error) {
	if path == "" || path == Stdout {
		return NewStreamWriter(os.Stdout), nil
	}

	if info, err := os.Stat(path); (err == nil && info.IsDir()) || strings.HasSuffix(path, string(os.PathSeparator)) {
		if err := os.MkdirAll(path, config.DefaultDirPermissions); err != nil {
			return nil, errors.Wrapf(err, "failed to create output directory %s", path)
		}
		return &FileWriter{dir: path}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create output file %s", path)
	}
	return &FileWriter{out: f, closer: f}, nil
}

// NewStreamWriter returns a writer appending every dataset's results to w.
func NewStreamWriter(w io.Writer) *FileWriter {
	return &FileWriter{out: w}
}

func (w *FileWriter) Name() string {
	return "file"
}

// Path returns the file a dataset's results go to in directory mode.
func (w *FileWriter) Path(ds *dataset.Dataset) string {
	return filepath.Join(w.dir, importer.Filename(ds.IRI)+".nt")
}

func (w *FileWriter) Write(_ context.Context, ds *dataset.Dataset, g *graph.Graph) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dir == "" {
		return errors.Wrapf(g.Encode(w.out), "failed to write results for %s", ds.IRI)
	}

	path := w.Path(ds)
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := g.Encode(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.Wrapf(f.Close(), "failed to close %s", path)
}

// Close closes the output file, if the writer opened one.
func (w *FileWriter) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
