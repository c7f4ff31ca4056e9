package writer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
)

var title = graph.MustIRI("http://purl.org/dc/terms/title")

func summary(iri, value string) *graph.Graph {
	return graph.New(graph.Triple(graph.MustIRI(iri), title, graph.Literal(value)))
}

func TestStreamWriter(t *testing.T) {
	var out bytes.Buffer
	w := NewStreamWriter(&out)

	require.NoError(t, w.Write(context.Background(), dataset.New("https://example.com/1"), summary("https://example.com/1", "One")))
	require.NoError(t, w.Write(context.Background(), dataset.New("https://example.com/2"), summary("https://example.com/2", "Two")))

	g, err := graph.Decode(&out)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	assert.Len(t, g.Match(graph.MustIRI("https://example.com/2"), title, graph.Literal("Two")), 1)
	assert.NoError(t, w.Close())
}

func TestFileWriter_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.nt")
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))

	w, err := NewFileWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), dataset.New("https://example.com/1"), summary("https://example.com/1", "One")))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
	assert.Contains(t, string(data), `<https://example.com/1> <http://purl.org/dc/terms/title> "One"`)
}

func TestFileWriter_Directory(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir)
	require.NoError(t, err)

	ds := dataset.New("https://example.com/datasets/1")
	require.NoError(t, w.Write(context.Background(), ds, summary(ds.IRI, "One")))

	path := w.Path(ds)
	assert.Equal(t, filepath.Join(dir, "example.com!datasets!1.nt"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"One\"")

	// A second write for the same dataset replaces the file
	require.NoError(t, w.Write(context.Background(), ds, summary(ds.IRI, "Uno")))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\"One\"")
	assert.NoError(t, w.Close())
}

func TestFileWriter_CreatesDirectoryWithTrailingSeparator(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out") + string(os.PathSeparator)
	w, err := NewFileWriter(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "file", w.Name())
}

func TestFileWriter_UnwritablePath(t *testing.T) {
	_, err := NewFileWriter(filepath.Join(t.TempDir(), "missing", "results.nt"))
	assert.Error(t, err)
}
