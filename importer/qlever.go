package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/config"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/internal/httpclient"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pulse"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/sparql"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/task"
)

// SettingsFile is written next to every downloaded dump.
const SettingsFile = "index.settings.json"

// indexSettings is the qlever-index settings descriptor.
type indexSettings struct {
	ASCIIPrefixesOnly  bool `json:"ascii-prefixes-only"`
	NumTriplesPerBatch int  `json:"num-triples-per-batch"`
}

// QleverOptions configures a QleverImporter. Zero values select the defaults.
type QleverOptions struct {
	Runner     task.Runner
	Downloader *Downloader
	Sparql     *sparql.Client

	IndexName       string
	Port            int
	Host            string // endpoint host, default localhost
	MemoryMaxSize   string // size or "auto"
	TriplesPerBatch int
	Formats         map[string]string // media type -> nt|nq|ttl

	Retries          int
	RetryInterval    time.Duration
	ReadinessTimeout time.Duration // per readiness query

	Logger *zap.SugaredLogger
}

// QleverImporter downloads a dump, builds a QLever index from it and serves
// the index on a fixed port. At most one server runs at a time: each import
// stops the server of the previous one.
type QleverImporter struct {
	opts      QleverOptions
	readiness *Readiness
	logger    *zap.SugaredLogger

	mu     sync.Mutex
	server *task.Task
}

// NewQleverImporter returns an importer for opts.
func NewQleverImporter(opts QleverOptions) (*QleverImporter, error) {
	if opts.Runner == nil {
		return nil, errors.New("qlever importer requires a task runner")
	}
	if opts.Downloader == nil {
		return nil, errors.New("qlever importer requires a downloader")
	}
	if opts.Sparql == nil {
		return nil, errors.New("qlever importer requires a SPARQL client")
	}
	if opts.Logger == nil {
		opts.Logger = logger.ComponentLogger("importer.qlever")
	}
	if opts.IndexName == "" {
		opts.IndexName = config.DefaultIndexName
	}
	if opts.Port == 0 {
		opts.Port = config.DefaultPort
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.TriplesPerBatch == 0 {
		opts.TriplesPerBatch = config.DefaultTriplesBatch
	}
	if opts.Formats == nil {
		opts.Formats = config.DefaultFormats()
	}

	return &QleverImporter{
		opts: opts,
		readiness: &Readiness{
			Client:          opts.Sparql,
			Retries:         opts.Retries,
			InitialInterval: opts.RetryInterval,
			AttemptTimeout:  opts.ReadinessTimeout,
			Logger:          opts.Logger,
		},
		logger: opts.Logger,
	}, nil
}

// NewFromConfig wires a QleverImporter with the task runner, downloader and
// SPARQL client described by cfg.
func NewFromConfig(cfg config.ImporterConfig, hc *httpclient.Client) (*QleverImporter, error) {
	runner, err := task.New(cfg.Mode, task.Options{
		Image:         cfg.Image,
		ContainerName: cfg.ContainerName,
		Port:          cfg.Port,
		Dir:           cfg.Dir,
		Logger:        logger.ComponentLogger("task." + cfg.Mode),
	})
	if err != nil {
		return nil, err
	}

	return NewQleverImporter(QleverOptions{
		Runner:           runner,
		Downloader:       NewDownloader(cfg.Dir, hc, nil),
		// Readiness polls the local server, which private IP blocking would refuse
		Sparql:           sparql.NewClient(httpclient.New(httpclient.Options{})),
		IndexName:        cfg.IndexName,
		Port:             cfg.Port,
		MemoryMaxSize:    cfg.MemoryMaxSize,
		TriplesPerBatch:  cfg.TriplesBatch,
		Formats:          cfg.Formats,
		Retries:          cfg.Retries,
		RetryInterval:    time.Duration(cfg.RetryInterval) * time.Millisecond,
		ReadinessTimeout: time.Duration(cfg.ReadinessTimeout) * time.Second,
	})
}

// Endpoint is the SPARQL endpoint served after a successful import.
func (q *QleverImporter) Endpoint() string {
	return fmt.Sprintf("http://%s:%d/sparql", q.opts.Host, q.opts.Port)
}

// Import tries the dataset's dump distributions in priority order and
// returns on the first that can be served.
func (q *QleverImporter) Import(ctx context.Context, ds *dataset.Dataset) Result {
	log := logger.FromContext(ctx, q.logger).With(logger.FieldDataset, ds.IRI)

	candidates := ds.DownloadDistributions()
	if len(candidates) == 0 {
		return &NotSupported{Message: "No valid data dump available"}
	}

	var failed *Failed
	for _, dist := range candidates {
		endpoint, err := q.importDistribution(ctx, dist)
		if err == nil {
			log.Infow("Imported data dump", logger.FieldDistribution, dist.AccessURL, logger.FieldEndpoint, endpoint)
			return &Successful{Endpoint: endpoint}
		}

		failed = &Failed{DownloadURL: dist.AccessURL, Error: errors.Flatten(err)}
		log.Warnw("Import failed",
			logger.FieldDistribution, dist.AccessURL,
			logger.FieldMediaType, dist.MimeType,
			logger.FieldError, failed.Error)

		if ctx.Err() != nil {
			break
		}
	}
	return failed
}

func (q *QleverImporter) importDistribution(ctx context.Context, dist *dataset.Distribution) (string, error) {
	progress := pulse.FromContext(ctx)

	// The index and server tasks share a container name and a port
	q.stopServer(ctx)

	progress.EmitStage("download", dist.AccessURL)
	file, err := q.opts.Downloader.Download(ctx, dist)
	if err != nil {
		return "", err
	}

	format, err := q.format(dist.MimeType)
	if err != nil {
		return "", err
	}

	progress.EmitStage("index", dist.AccessURL)
	if err := q.index(ctx, file, format); err != nil {
		return "", err
	}

	if err := q.serve(ctx); err != nil {
		return "", err
	}

	endpoint := q.Endpoint()
	if err := q.readiness.Wait(ctx, endpoint); err != nil {
		return "", err
	}
	return endpoint, nil
}

// format maps a dump's media type to the qlever-index -F value.
func (q *QleverImporter) format(mediaType string) (string, error) {
	if f, ok := q.opts.Formats[strings.ToLower(mediaType)]; ok {
		return f, nil
	}
	return "", errors.Mark(
		errors.Newf("Unsupported media type: %s", mediaType),
		errors.ErrUnsupportedMediaType,
	)
}

func (q *QleverImporter) index(ctx context.Context, file, format string) error {
	settings, err := json.Marshal(indexSettings{
		ASCIIPrefixesOnly:  true,
		NumTriplesPerBatch: q.opts.TriplesPerBatch,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode index settings")
	}
	settingsPath := filepath.Join(filepath.Dir(file), SettingsFile)
	if err := os.WriteFile(settingsPath, settings, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", settingsPath)
	}

	t, err := q.opts.Runner.Run(ctx, q.indexCommand(filepath.Base(file), format))
	if err != nil {
		return errors.Wrap(err, "failed to start indexing")
	}
	if _, err := q.opts.Runner.Wait(ctx, t); err != nil {
		return err
	}
	return nil
}

func (q *QleverImporter) indexCommand(filename, format string) string {
	quoted := shellquote.Join(filename)
	return fmt.Sprintf("(zcat %s 2>/dev/null || cat %s) | qlever-index -i %s -s %s -F %s -f -",
		quoted, quoted, shellquote.Join(q.opts.IndexName), SettingsFile, format)
}

func (q *QleverImporter) serverCommand(memory string) string {
	return fmt.Sprintf("qlever-server --index-basename %s --memory-max-size %s --port %d",
		shellquote.Join(q.opts.IndexName), memory, q.opts.Port)
}

func (q *QleverImporter) serve(ctx context.Context) error {
	memory, err := memoryMaxSize(q.opts.MemoryMaxSize)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.server != nil {
		return errors.AssertionFailedf("server task %s still active", q.server.ID())
	}

	t, err := q.opts.Runner.Run(ctx, q.serverCommand(memory))
	if err != nil {
		return errors.Wrap(err, "failed to start SPARQL server")
	}
	q.server = t
	return nil
}

// Finish stops the active server, if any.
func (q *QleverImporter) Finish(ctx context.Context) {
	q.stopServer(ctx)
}

func (q *QleverImporter) stopServer(ctx context.Context) {
	q.mu.Lock()
	server := q.server
	q.server = nil
	q.mu.Unlock()

	if server == nil {
		return
	}

	log := logger.FromContext(ctx, q.logger).With(logger.FieldTaskID, server.ID())
	output, err := q.opts.Runner.Stop(context.WithoutCancel(ctx), server)
	if err != nil {
		log.Warnw("Failed to stop SPARQL server", logger.FieldError, err)
	}
	log.Debugw("SPARQL server stopped", logger.FieldOutput, output)
}
