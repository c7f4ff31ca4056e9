package analyzer

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pipeline"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/sparql"
)

// ManifestFile lists the queries in a queries directory.
const ManifestFile = "queries.toml"

//go:embed queries
var builtinQueries embed.FS

// Query is one analysis query from the manifest.
type Query struct {
	Name string `toml:"name"`
	File string `toml:"file"`
	// Vocabulary derives void:vocabulary from the query's void:property values.
	Vocabulary bool `toml:"vocabulary"`
	// PerClass runs the query once for every class, see PerClassAnalyzer.
	PerClass bool `toml:"per_class"`

	Text string `toml:"-"`
}

type manifest struct {
	Queries []Query `toml:"query"`
}

// LoadQueries reads the manifest and query files from dir, or the built-in
// queries when dir is empty.
func LoadQueries(dir string) ([]Query, error) {
	if dir == "" {
		sub, err := fs.Sub(builtinQueries, "queries")
		if err != nil {
			return nil, errors.Wrap(err, "failed to open built-in queries")
		}
		return loadQueries(sub)
	}
	queries, err := loadQueries(os.DirFS(dir))
	return queries, errors.Wrapf(err, "failed to load queries from %s", dir)
}

func loadQueries(fsys fs.FS) ([]Query, error) {
	var m manifest
	md, err := toml.DecodeFS(fsys, ManifestFile, &m)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s", ManifestFile)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Newf("unknown keys in %s: %v", ManifestFile, undecoded)
	}

	seen := make(map[string]bool, len(m.Queries))
	for i := range m.Queries {
		q := &m.Queries[i]
		if q.Name == "" || q.File == "" {
			return nil, errors.Newf("query %d in %s needs a name and a file", i+1, ManifestFile)
		}
		if seen[q.Name] {
			return nil, errors.Newf("duplicate query name %q", q.Name)
		}
		seen[q.Name] = true

		text, err := fs.ReadFile(fsys, path.Clean(q.File))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read query %s", q.Name)
		}
		q.Text = string(text)
		if q.PerClass && !strings.Contains(q.Text, classPlaceholder) {
			return nil, errors.Newf("per-class query %s does not use %s", q.Name, classPlaceholder)
		}
	}
	return m.Queries, nil
}

// Build turns queries into analyzers, in manifest order.
func Build(queries []Query, client *sparql.Client, timeout time.Duration, l *zap.SugaredLogger) []pipeline.Analyzer {
	analyzers := make([]pipeline.Analyzer, 0, len(queries))
	for _, q := range queries {
		var a pipeline.Analyzer
		if q.PerClass {
			a = NewPerClassAnalyzer(q.Name, q.Text, client, timeout, l)
		} else {
			a = NewSparqlQueryAnalyzer(q.Name, q.Text, client, timeout, l)
		}
		if q.Vocabulary {
			a = NewVocabularyAnalyzer(a)
		}
		analyzers = append(analyzers, a)
	}
	return analyzers
}
