package config

import (
	"encoding/json"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
)

// Marshal renders the effective configuration in the given format (toml, json or yaml).
// The Graph Store password is never rendered.
func (c *Config) Marshal(format string) ([]byte, error) {
	redacted := *c
	redacted.Writer.GraphStore.Password = ""

	switch format {
	case "", "toml":
		data, err := toml.Marshal(redacted)
		return data, errors.Wrap(err, "failed to marshal config as TOML")
	case "json":
		data, err := json.MarshalIndent(redacted, "", "  ")
		return data, errors.Wrap(err, "failed to marshal config as JSON")
	case "yaml":
		data, err := yaml.Marshal(redacted)
		return data, errors.Wrap(err, "failed to marshal config as YAML")
	default:
		return nil, errors.Newf("unsupported format %q (use toml, json or yaml)", format)
	}
}
