// Package config loads dkg configuration from TOML files and DKG_* environment
// variables using Viper.
package config

// Config represents the dkg configuration
type Config struct {
	Catalog  CatalogConfig  `mapstructure:"catalog" toml:"catalog" json:"catalog" yaml:"catalog"`
	Importer ImporterConfig `mapstructure:"importer" toml:"importer" json:"importer" yaml:"importer"`
	Probe    ProbeConfig    `mapstructure:"probe" toml:"probe" json:"probe" yaml:"probe"`
	Analysis AnalysisConfig `mapstructure:"analysis" toml:"analysis" json:"analysis" yaml:"analysis"`
	Writer   WriterConfig   `mapstructure:"writer" toml:"writer" json:"writer" yaml:"writer"`
	HTTP     HTTPConfig     `mapstructure:"http" toml:"http" json:"http" yaml:"http"`
}

// CatalogConfig configures where datasets are selected from
type CatalogConfig struct {
	Endpoint  string `mapstructure:"endpoint" toml:"endpoint" json:"endpoint" yaml:"endpoint"`       // Registry SPARQL endpoint
	QueryFile string `mapstructure:"query_file" toml:"query_file" json:"query_file" yaml:"query_file"` // Optional CONSTRUCT query overriding the built-in one
	Limit     int    `mapstructure:"limit" toml:"limit" json:"limit" yaml:"limit"`                   // 0 = all datasets
}

// Importer modes
const (
	ModeDocker = "docker"
	ModeNative = "native"
)

// MemoryAuto lets the importer size the QLever server from available memory.
const MemoryAuto = "auto"

// ImporterConfig configures how data dumps are loaded into QLever
type ImporterConfig struct {
	Mode             string            `mapstructure:"mode" toml:"mode" json:"mode" yaml:"mode"`                                         // docker or native
	Image            string            `mapstructure:"image" toml:"image" json:"image" yaml:"image"`                                     // QLever image (docker mode)
	ContainerName    string            `mapstructure:"container_name" toml:"container_name" json:"container_name" yaml:"container_name"` // Fixed name, stale containers are removed
	Dir              string            `mapstructure:"dir" toml:"dir" json:"dir" yaml:"dir"`                                             // Download and index directory
	Port             int               `mapstructure:"port" toml:"port" json:"port" yaml:"port"`                                         // QLever server port
	IndexName        string            `mapstructure:"index_name" toml:"index_name" json:"index_name" yaml:"index_name"`
	Retries          int               `mapstructure:"retries" toml:"retries" json:"retries" yaml:"retries"`                                                                         // Readiness poll retries
	RetryInterval    int               `mapstructure:"retry_interval_ms" toml:"retry_interval_ms" json:"retry_interval_ms" yaml:"retry_interval_ms"`                                 // First readiness delay, doubled per retry
	ReadinessTimeout int               `mapstructure:"readiness_timeout_seconds" toml:"readiness_timeout_seconds" json:"readiness_timeout_seconds" yaml:"readiness_timeout_seconds"` // Bound on one readiness query
	MemoryMaxSize    string            `mapstructure:"memory_max_size" toml:"memory_max_size" json:"memory_max_size" yaml:"memory_max_size"`
	TriplesBatch     int               `mapstructure:"triples_per_batch" toml:"triples_per_batch" json:"triples_per_batch" yaml:"triples_per_batch"`
	Formats          map[string]string `mapstructure:"formats" toml:"formats" json:"formats" yaml:"formats"` // Media type -> QLever -F value
}

// ProbeConfig configures distribution probing
type ProbeConfig struct {
	Concurrency       int     `mapstructure:"concurrency" toml:"concurrency" json:"concurrency" yaml:"concurrency"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" toml:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second"` // 0 = unlimited
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
	UserAgent         string  `mapstructure:"user_agent" toml:"user_agent" json:"user_agent" yaml:"user_agent"`
}

// AnalysisConfig configures the SPARQL analyses
type AnalysisConfig struct {
	QueriesDir     string `mapstructure:"queries_dir" toml:"queries_dir" json:"queries_dir" yaml:"queries_dir"` // Empty = built-in queries
	TimeoutSeconds int    `mapstructure:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
}

// WriterConfig configures where analysis results go
type WriterConfig struct {
	File       FileWriterConfig       `mapstructure:"file" toml:"file" json:"file" yaml:"file"`
	GraphStore GraphStoreWriterConfig `mapstructure:"graphstore" toml:"graphstore" json:"graphstore" yaml:"graphstore"`
	Ledger     LedgerWriterConfig     `mapstructure:"ledger" toml:"ledger" json:"ledger" yaml:"ledger"`
}

// FileWriterConfig writes N-Triples to stdout ("-"), a file, or a directory
type FileWriterConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`
}

// GraphStoreWriterConfig writes to a SPARQL Graph Store (GraphDB repository)
type GraphStoreWriterConfig struct {
	URL        string `mapstructure:"url" toml:"url" json:"url" yaml:"url"` // Empty = disabled
	Repository string `mapstructure:"repository" toml:"repository" json:"repository" yaml:"repository"`
	Username   string `mapstructure:"username" toml:"username" json:"username" yaml:"username"`
	Password   string `mapstructure:"password" toml:"password" json:"-" yaml:"-"`
}

// LedgerWriterConfig records written datasets in SQLite
type LedgerWriterConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path" yaml:"path"` // Empty = disabled
}

// HTTPConfig configures outbound HTTP used for downloads and probes
type HTTPConfig struct {
	BlockPrivateIP        bool `mapstructure:"block_private_ip" toml:"block_private_ip" json:"block_private_ip" yaml:"block_private_ip"`
	MaxRedirects          int  `mapstructure:"max_redirects" toml:"max_redirects" json:"max_redirects" yaml:"max_redirects"`
	ResponseHeaderTimeout int  `mapstructure:"response_header_timeout_seconds" toml:"response_header_timeout_seconds" json:"response_header_timeout_seconds" yaml:"response_header_timeout_seconds"` // 0 = unbounded
	ReadIdleTimeout       int  `mapstructure:"read_idle_timeout_seconds" toml:"read_idle_timeout_seconds" json:"read_idle_timeout_seconds" yaml:"read_idle_timeout_seconds"`                         // Stalled body reads, 0 = unbounded
}
