package commands

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/importer"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pulse"
)

// ImportCmd loads one data dump into QLever and serves it
var ImportCmd = &cobra.Command{
	Use:   "import <url>",
	Short: "Import one data dump and serve it until interrupted",
	Long: `Download a data dump, index it with QLever and serve it as a SPARQL endpoint
until interrupted. Useful to inspect what the analysis queries see.

Examples:
  dkg import https://example.com/dump.nt.gz
  dkg import https://example.com/data.ttl --media-type text/turtle`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var importMediaTypeFlag string

func init() {
	ImportCmd.Flags().StringVarP(&importMediaTypeFlag, "media-type", "m", dataset.MediaTypeNTriples, "Media type of the dump")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	imp, err := importer.NewFromConfig(cfg.Importer, newHTTPClient(cfg))
	if err != nil {
		return errors.Wrap(err, "failed to set up importer")
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	ctx = pulse.WithEmitter(ctx, newEmitter(cmd))

	// The dump is not probed, so it counts as valid
	ds := dataset.New(args[0], &dataset.Distribution{
		AccessURL: args[0],
		MimeType:  importMediaTypeFlag,
		Valid:     true,
	})

	defer imp.Finish(context.WithoutCancel(ctx))

	switch r := imp.Import(ctx, ds).(type) {
	case *importer.Successful:
		pterm.Success.Printf("Serving %s at %s\n", args[0], r.Endpoint)
		pterm.Info.Println("Press Ctrl+C to stop")
		<-ctx.Done()
		return nil
	case *importer.Failed:
		return errors.Newf("import of %s failed: %s", r.DownloadURL, r.Error)
	case *importer.NotSupported:
		return errors.New(r.Message)
	default:
		return errors.AssertionFailedf("unexpected import result %T", r)
	}
}
