package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/snac-tools/eacsupp/internal/config"
	"github.com/snac-tools/eacsupp/internal/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initPath string

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage eacsupp configuration",
	Long: `Manage eacsupp configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (EACSUPP_*, e.g. EACSUPP_DPLA_API_KEY)
3. Config file (./api.ini or --config)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the resolved configuration after defaults, config file and environment are applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, loader, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		stderr := cmd.ErrOrStderr()
		if used := loader.Used(); used != "" {
			fmt.Fprintf(stderr, "Configuration file: %s\n\n", used)
		} else {
			fmt.Fprintf(stderr, "No configuration file found (using defaults)\n\n")
		}

		shown := *cfg
		shown.DPLA.APIKey = mask(shown.DPLA.APIKey)
		shown.Europeana.APIKey = mask(shown.Europeana.APIKey)

		yamlData, err := yaml.Marshal(&shown)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(yamlData)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Create a configuration file with every option set to its default.
The format follows the file extension: .ini (default) or .yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(initPath); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'eacsupp config show' to view it, or delete it first to recreate", initPath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		if err := config.Write(initPath, model.DefaultConfig()); err != nil {
			return fmt.Errorf("error writing config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Created default configuration: %s\n", initPath)
		fmt.Fprintf(out, "\nFill in the DPLA and Europeana API keys, or export them instead:\n")
		fmt.Fprintf(out, "  export %s_DPLA_API_KEY=...\n", config.EnvPrefix)
		fmt.Fprintf(out, "  export %s_EUROPEANA_API_KEY=...\n", config.EnvPrefix)
		return nil
	},
}

// mask hides all but the last four characters of a secret
func mask(secret string) string {
	if len(secret) <= 4 {
		if secret == "" {
			return ""
		}
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

func init() {
	configInitCmd.Flags().StringVarP(&initPath, "output", "o", config.DefaultFile, "file to create")

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
