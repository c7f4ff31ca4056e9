package commands

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/analyzer"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/config"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/importer"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/internal/httpclient"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pipeline"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/selector"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/sparql"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/writer"
)

// RunCmd analyzes every dataset selected from the registry
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyze the datasets in the registry",
	Long: `Select datasets from the registry, probe their distributions, import a data
dump when a dataset has no SPARQL endpoint, run the analysis queries and write
the results.

Failures of single distributions, analyzers or datasets are logged and the run
continues. Interrupting stops after the dataset in progress.`,
	RunE: runRun,
}

var (
	runLimitFlag    int
	runNoImportFlag bool
	runOutputFlag   string
	runQueriesFlag  string
)

func init() {
	RunCmd.Flags().IntVar(&runLimitFlag, "limit", 0, "Analyze at most this many datasets (overrides catalog.limit)")
	RunCmd.Flags().BoolVar(&runNoImportFlag, "no-import", false, "Skip datasets without a SPARQL endpoint instead of importing their dumps")
	RunCmd.Flags().StringVarP(&runOutputFlag, "output", "o", "", "Write results here (overrides writer.file.path)")
	RunCmd.Flags().StringVar(&runQueriesFlag, "queries", "", "Directory with queries.toml (overrides analysis.queries_dir)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if runLimitFlag > 0 {
		cfg.Catalog.Limit = runLimitFlag
	}
	if runOutputFlag != "" {
		cfg.Writer.File.Enabled = true
		cfg.Writer.File.Path = runOutputFlag
	}
	if runQueriesFlag != "" {
		cfg.Analysis.QueriesDir = runQueriesFlag
	}

	log := logger.ComponentLogger("run")
	hc := newHTTPClient(cfg)
	// Analysis queries mostly go to the local import server, results to a
	// configured graph store; neither is subject to private IP blocking
	trusted := httpclient.New(httpclient.Options{UserAgent: cfg.Probe.UserAgent})

	query, err := selector.ReadQuery(cfg.Catalog.QueryFile)
	if err != nil {
		return err
	}
	sel := selector.New(sparql.NewClient(hc), cfg.Catalog.Endpoint, query, cfg.Catalog.Limit, nil)

	analyzers, err := buildAnalyzers(cfg, hc, sparql.NewClient(trusted))
	if err != nil {
		return err
	}

	writers, ledger, closers, err := buildWriters(cfg, trusted)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Warnw("Failed to close writer", logger.FieldError, err)
			}
		}
	}()

	ctx, stop := signalContext(cmd)
	defer stop()

	p := &pipeline.Pipeline{
		Selector:  sel,
		Analyzers: analyzers,
		Writers:   writers,
		Progress:  newEmitter(cmd),
		RunID:     uuid.NewString(),
	}
	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}

	if ledger != nil {
		if err := ledger.RecordRun(context.WithoutCancel(ctx), summary); err != nil {
			log.Warnw("Failed to record run", logger.FieldError, err)
		}
	}
	return nil
}

func buildAnalyzers(cfg *config.Config, hc *httpclient.Client, local *sparql.Client) ([]pipeline.Analyzer, error) {
	var imp importer.Importer
	if !runNoImportFlag {
		q, err := importer.NewFromConfig(cfg.Importer, hc)
		if err != nil {
			return nil, errors.Wrap(err, "failed to set up importer")
		}
		imp = q
	}

	queries, err := analyzer.LoadQueries(cfg.Analysis.QueriesDir)
	if err != nil {
		return nil, err
	}

	analyzers := []pipeline.Analyzer{
		analyzer.NewDistributionAnalyzer(analyzer.DistributionOptions{
			HTTP:              hc,
			Importer:          imp,
			Concurrency:       cfg.Probe.Concurrency,
			RequestsPerSecond: cfg.Probe.RequestsPerSecond,
			Timeout:           time.Duration(cfg.Probe.TimeoutSeconds) * time.Second,
		}),
	}
	timeout := time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second
	return append(analyzers, analyzer.Build(queries, local, timeout, nil)...), nil
}

func buildWriters(cfg *config.Config, hc *httpclient.Client) ([]pipeline.Writer, *writer.Ledger, []io.Closer, error) {
	var writers []pipeline.Writer
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	if cfg.Writer.File.Enabled {
		w, err := writer.NewFileWriter(cfg.Writer.File.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		writers = append(writers, w)
		closers = append(closers, w)
	}

	if cfg.Writer.GraphStore.URL != "" {
		w, err := writer.NewGraphStoreWriter(cfg.Writer.GraphStore, hc, nil)
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		writers = append(writers, w)
	}

	var ledger *writer.Ledger
	if cfg.Writer.Ledger.Path != "" {
		l, err := writer.OpenLedger(cfg.Writer.Ledger.Path, nil)
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		ledger = l
		writers = append(writers, l)
		closers = append(closers, l)
	}

	return writers, ledger, closers, nil
}
