package config

import (
	"regexp"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
)

var memorySizePattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?[KMGT]B?$`)

var validFormats = map[string]bool{"nt": true, "nq": true, "ttl": true}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Catalog.Endpoint == "" {
		return errors.New("catalog.endpoint cannot be empty")
	}
	if c.Catalog.Limit < 0 {
		return errors.Newf("catalog.limit must be >= 0, got %d", c.Catalog.Limit)
	}

	switch c.Importer.Mode {
	case ModeDocker:
		if c.Importer.Image == "" {
			return errors.New("importer.image cannot be empty in docker mode")
		}
	case ModeNative:
	default:
		return errors.WithHint(
			errors.Wrapf(errors.ErrUnknownRunnerMode, "importer.mode %q", c.Importer.Mode),
			"use docker or native",
		)
	}
	if c.Importer.Port <= 0 || c.Importer.Port > 65535 {
		return errors.Newf("importer.port must be between 1 and 65535, got %d", c.Importer.Port)
	}
	if c.Importer.Dir == "" {
		return errors.New("importer.dir cannot be empty")
	}
	if c.Importer.IndexName == "" {
		return errors.New("importer.index_name cannot be empty")
	}
	if c.Importer.Retries < 0 {
		return errors.Newf("importer.retries must be >= 0, got %d", c.Importer.Retries)
	}
	if c.Importer.RetryInterval <= 0 {
		return errors.Newf("importer.retry_interval_ms must be > 0, got %d", c.Importer.RetryInterval)
	}
	if c.Importer.ReadinessTimeout <= 0 {
		return errors.Newf("importer.readiness_timeout_seconds must be > 0, got %d", c.Importer.ReadinessTimeout)
	}
	if c.Importer.TriplesBatch <= 0 {
		return errors.Newf("importer.triples_per_batch must be > 0, got %d", c.Importer.TriplesBatch)
	}
	if c.Importer.MemoryMaxSize != MemoryAuto && !memorySizePattern.MatchString(c.Importer.MemoryMaxSize) {
		return errors.Newf("importer.memory_max_size must be %q or a size like 6G, got %q", MemoryAuto, c.Importer.MemoryMaxSize)
	}
	for mediaType, format := range c.Importer.Formats {
		if !validFormats[format] {
			return errors.Newf("importer.formats[%s] must be one of nt, nq, ttl, got %q", mediaType, format)
		}
	}

	if c.Probe.Concurrency <= 0 {
		return errors.Newf("probe.concurrency must be > 0, got %d", c.Probe.Concurrency)
	}
	if c.Probe.RequestsPerSecond < 0 {
		return errors.Newf("probe.requests_per_second must be >= 0, got %f", c.Probe.RequestsPerSecond)
	}
	if c.Probe.TimeoutSeconds <= 0 {
		return errors.Newf("probe.timeout_seconds must be > 0, got %d", c.Probe.TimeoutSeconds)
	}

	if c.Analysis.TimeoutSeconds <= 0 {
		return errors.Newf("analysis.timeout_seconds must be > 0, got %d", c.Analysis.TimeoutSeconds)
	}

	if c.Writer.File.Enabled && c.Writer.File.Path == "" {
		return errors.New("writer.file.path cannot be empty when enabled")
	}
	if c.Writer.GraphStore.URL != "" && c.Writer.GraphStore.Repository == "" {
		return errors.New("writer.graphstore.repository cannot be empty when url is set")
	}

	if c.HTTP.MaxRedirects < 0 {
		return errors.Newf("http.max_redirects must be >= 0, got %d", c.HTTP.MaxRedirects)
	}
	if c.HTTP.ResponseHeaderTimeout < 0 {
		return errors.Newf("http.response_header_timeout_seconds must be >= 0, got %d", c.HTTP.ResponseHeaderTimeout)
	}
	if c.HTTP.ReadIdleTimeout < 0 {
		return errors.Newf("http.read_idle_timeout_seconds must be >= 0, got %d", c.HTTP.ReadIdleTimeout)
	}

	return nil
}
