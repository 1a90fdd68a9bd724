// Package configcmder provides the config command for managing persistent
// strata configuration stored in the .strata/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent strata configuration.

Configuration is stored as config.toml in the .strata/ directory and provides
default values for command flags. CLI flags and STRATA_* environment
variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example:
  relational.provider, relational.dsn, relational.sqlite_path,
  vector_store.provider, vector_store.target,
  embedding.provider, embedding.model, embedding.dimensions,
  strategy.small_bytes, strategy.academic_domains, strategy.model_path,
  query.vector_weight, query.text_weight,
  performance.slow_query_ms, events.provider, events.brokers

Use subcommands to get, set, or list configuration values:
  strata config set <key> <value>    Set a configuration value
  strata config get <key>            Get a configuration value
  strata config list                 List all configuration values

Examples:
  strata config set vector_store.provider qdrant
  strata config set strategy.academic_domains philosophy,science
  strata config get embedding.model
  strata config list`

const configShortDesc string = "Manage persistent strata configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
