// Package cmd wires the gatewaycore binary's cobra subcommands: serve (run
// the orchestration core), doctor (environment/config health check), and
// registry inspect (dump the durable subagent registry). Grounded on the
// teacher's cmd/root.go cobra setup (persistent --config/--verbose flags,
// GATEWAYCORE_CONFIG env fallback, Execute entrypoint).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/gatewaycore/pkg/protocol"
)

// Version is set at build time via -ldflags "-X .../cmd.Version=v1.0.0".
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gatewaycore",
	Short: "gatewaycore — subagent orchestration core",
	Long:  "gatewaycore runs the subagent orchestration core: backend-config resolution, the per-backend run queue, the CLI process executor, output parsing, session transcripts, the interaction manager, and the subagent admission/announce pipeline, speaking the gateway's JSON-RPC-over-websocket protocol.",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $GATEWAYCORE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(registryCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gatewaycore %s (protocol %d)\n", Version, protocol.ProtocolVersion)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("GATEWAYCORE_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
