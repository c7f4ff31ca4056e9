package config

import (
	"github.com/spf13/viper"
)

// Default values shared with the importer and the CLI
const (
	DefaultImage         = "adfreiburg/qlever"
	DefaultContainerName = "dkg-qlever"
	DefaultPort          = 7001
	DefaultIndexName     = "data"
	DefaultRetries       = 5
	DefaultRetryInterval = 1000 // ms
	DefaultReadiness     = 30   // seconds
	DefaultMemoryMaxSize = "6G"
	DefaultTriplesBatch  = 10000
	DefaultUserAgent     = "dkg (+https://github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph)"

	DefaultDirPermissions = 0o755
)

// DefaultFormats maps dump media types to QLever input formats.
func DefaultFormats() map[string]string {
	return map[string]string{
		"application/n-triples":      "nt",
		"application/n-triples+gzip": "nt",
		"application/n-quads":        "nq",
		"application/n-quads+gzip":   "nq",
		"text/turtle":                "ttl",
		"text/turtle+gzip":           "ttl",
	}
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Catalog defaults
	v.SetDefault("catalog.endpoint", "https://datasetregister.netwerkdigitaalerfgoed.nl/sparql")
	v.SetDefault("catalog.limit", 0)

	// Importer defaults
	v.SetDefault("importer.mode", ModeDocker)
	v.SetDefault("importer.image", DefaultImage)
	v.SetDefault("importer.container_name", DefaultContainerName)
	v.SetDefault("importer.dir", "imports")
	v.SetDefault("importer.port", DefaultPort)
	v.SetDefault("importer.index_name", DefaultIndexName)
	v.SetDefault("importer.retries", DefaultRetries)
	v.SetDefault("importer.retry_interval_ms", DefaultRetryInterval)
	v.SetDefault("importer.readiness_timeout_seconds", DefaultReadiness)
	v.SetDefault("importer.memory_max_size", DefaultMemoryMaxSize)
	v.SetDefault("importer.triples_per_batch", DefaultTriplesBatch)
	v.SetDefault("importer.formats", DefaultFormats())

	// Probe defaults
	v.SetDefault("probe.concurrency", 4)
	v.SetDefault("probe.requests_per_second", 10.0)
	v.SetDefault("probe.timeout_seconds", 5)
	v.SetDefault("probe.user_agent", DefaultUserAgent)

	// Analysis defaults
	v.SetDefault("analysis.timeout_seconds", 300)

	// Writer defaults
	v.SetDefault("writer.file.enabled", true)
	v.SetDefault("writer.file.path", "-")
	v.SetDefault("writer.graphstore.repository", "dataset-knowledge-graph")

	// HTTP defaults
	v.SetDefault("http.block_private_ip", false)
	v.SetDefault("http.max_redirects", 10)
	v.SetDefault("http.response_header_timeout_seconds", 60)
	v.SetDefault("http.read_idle_timeout_seconds", 120)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("writer.graphstore.username", "DKG_GRAPHDB_USERNAME", "GRAPHDB_USERNAME")
	_ = v.BindEnv("writer.graphstore.password", "DKG_GRAPHDB_PASSWORD", "GRAPHDB_PASSWORD")
	_ = v.BindEnv("importer.mode", "DKG_IMPORTER_MODE", "QLEVER_ENV")
	_ = v.BindEnv("importer.port", "DKG_IMPORTER_PORT", "QLEVER_PORT")
}
