// Package commands implements the dkg subcommands.
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/config"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/internal/httpclient"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pulse"
)

// loadConfig reads --config when given, the standard locations otherwise,
// and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// newHTTPClient returns the outbound client for downloads and probes. It has
// no overall timeout so large dumps can finish, but stalled servers fail.
func newHTTPClient(cfg *config.Config) *httpclient.Client {
	maxRedirects := cfg.HTTP.MaxRedirects
	return httpclient.New(httpclient.Options{
		UserAgent:             cfg.Probe.UserAgent,
		MaxRedirects:          &maxRedirects,
		BlockPrivateIP:        cfg.HTTP.BlockPrivateIP,
		ResponseHeaderTimeout: time.Duration(cfg.HTTP.ResponseHeaderTimeout) * time.Second,
		ReadIdleTimeout:       time.Duration(cfg.HTTP.ReadIdleTimeout) * time.Second,
	})
}

// newEmitter reports progress as JSON lines on stdout with --json, on the
// terminal otherwise.
func newEmitter(cmd *cobra.Command) pulse.ProgressEmitter {
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return pulse.NewJSONEmitter(cmd.OutOrStdout())
	}
	verbosity, _ := cmd.Flags().GetCount("verbose")
	return pulse.NewCLIEmitter(verbosity)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
