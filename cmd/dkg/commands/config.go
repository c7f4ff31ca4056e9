package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/config"
)

// ConfigCmd shows and validates the configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or validate the configuration",
	Long: `Inspect the effective configuration: defaults, /etc/dkg/dkg.toml,
~/.dkg/dkg.toml, the nearest dkg.toml up from the working directory and
DKG_* environment variables, later sources winning.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigUnvalidated(cmd)
		if err != nil {
			return err
		}
		data, err := cfg.Marshal(configFormatFlag)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigUnvalidated(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		pterm.Success.Println("Configuration is valid")
		return nil
	},
}

var configFormatFlag string

func init() {
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configValidateCmd)
	configShowCmd.Flags().StringVarP(&configFormatFlag, "format", "f", "toml", "Output format: toml, json or yaml")
}

func loadConfigUnvalidated(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
