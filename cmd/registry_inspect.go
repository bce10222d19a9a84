package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/gatewaycore/internal/config"
	"github.com/nextlevelbuilder/gatewaycore/internal/subagent"
)

func registryCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the durable subagent registry",
	}
	root.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "List every run record persisted to the subagent registry",
		Run: func(cmd *cobra.Command, args []string) {
			runRegistryInspect()
		},
	})
	return root
}

func runRegistryInspect() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %s\n", err)
		os.Exit(1)
	}

	registry := subagent.NewRegistry(config.ExpandHome(cfg.Sessions.RegistryPath))
	records, err := registry.LoadAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load registry: %s\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("(registry is empty)")
		return
	}

	fmt.Printf("%-36s %-10s %-24s %-24s %s\n", "RUN ID", "OUTCOME", "REQUESTER", "CHILD SESSION", "TASK")
	for _, r := range records {
		outcome := string(r.Outcome)
		if r.IsRunning() {
			outcome = "running"
		}
		fmt.Printf("%-36s %-10s %-24s %-24s %s\n",
			r.RunID, outcome, r.RequesterSessionKey, r.ChildSessionKey, truncate(r.Task, 60))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
