// Package stratacmder
package stratacmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/strata/cmd/strata/config"
	ingestcmder "github.com/papercomputeco/strata/cmd/strata/ingest"
	initcmder "github.com/papercomputeco/strata/cmd/strata/init"
	mcpcmder "github.com/papercomputeco/strata/cmd/strata/mcp"
	optimizecmder "github.com/papercomputeco/strata/cmd/strata/optimize"
	recommendcmder "github.com/papercomputeco/strata/cmd/strata/recommendations"
	reportcmder "github.com/papercomputeco/strata/cmd/strata/report"
	searchcmder "github.com/papercomputeco/strata/cmd/strata/search"
	traincmder "github.com/papercomputeco/strata/cmd/strata/train"
	versioncmder "github.com/papercomputeco/strata/cmd/version"
)

const strataLongDesc string = `Strata stores documents in the backend that suits them.

Each document is analyzed and routed to the relational store, the vector
store, or both. Searches fan out to both stores and fuse the results.

Common commands:
  strata ingest <file>...      Analyze and store documents
  strata search <query>        Hybrid keyword and semantic search
  strata report                Query performance by type and domain
  strata optimize              Refresh statistics and review recommendations
  strata mcp                   Serve the engine as MCP tools`

const strataShortDesc string = "Strata - Adaptive Hybrid Storage"

func NewStrataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "strata",
		Short:        strataShortDesc,
		Long:         strataLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .strata/ directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(reportcmder.NewReportCmd())
	cmd.AddCommand(optimizecmder.NewOptimizeCmd())
	cmd.AddCommand(recommendcmder.NewRecommendationsCmd())
	cmd.AddCommand(traincmder.NewTrainCmd())
	cmd.AddCommand(mcpcmder.NewMCPCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
