package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/gatewaycore/internal/config"
	"github.com/nextlevelbuilder/gatewaycore/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("gatewaycore doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, defaults will be used)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Backends:")
	ids := cfg.BackendIDs()
	if len(ids) == 0 {
		fmt.Println("    (none configured)")
	}
	for _, id := range ids {
		spec, _ := cfg.Backend(id)
		checkBinary(id, spec.Command)
	}

	fmt.Println()
	fmt.Println("  Sessions:")
	checkDir("Storage", config.ExpandHome(cfg.Sessions.Storage))
	checkWritableFile("Registry", config.ExpandHome(cfg.Sessions.RegistryPath))

	fmt.Println()
	fmt.Println("  Subagents:")
	fmt.Printf("    %-14s %d\n", "Max concurrent:", orDefault(cfg.Subagents.MaxConcurrent, 5))
	fmt.Printf("    %-14s %d\n", "Max retained:", orDefault(cfg.Subagents.MaxRetained, 15))

	fmt.Println()
	fmt.Println("  Sandbox:")
	if !cfg.Sandbox.Enabled {
		fmt.Println("    Mode:          disabled")
	} else {
		fmt.Printf("    %-14s %s\n", "Image:", cfg.Sandbox.Image)
		checkBinary("docker", "docker")
	}

	fmt.Println()
	fmt.Println("  Gateway:")
	if cfg.Gateway.URL == "" {
		fmt.Println("    URL:           (not configured — announce flow will run degraded)")
	} else {
		fmt.Printf("    %-14s %s\n", "URL:", cfg.Gateway.URL)
		if cfg.Gateway.Token == "" {
			fmt.Println("    Token:         (not set — connect will be unauthenticated)")
		} else {
			fmt.Println("    Token:         set")
		}
	}
}

func checkBinary(label, command string) {
	if command == "" {
		fmt.Printf("    %-14s (no command configured)\n", label+":")
		return
	}
	if path, err := exec.LookPath(command); err != nil {
		fmt.Printf("    %-14s %s NOT FOUND ON PATH\n", label+":", command)
	} else {
		fmt.Printf("    %-14s %s (%s)\n", label+":", command, path)
	}
}

func checkDir(label, path string) {
	info, err := os.Stat(path)
	switch {
	case err != nil && os.IsNotExist(err):
		fmt.Printf("    %-14s %s (will be created on first run)\n", label+":", path)
	case err != nil:
		fmt.Printf("    %-14s %s (STAT ERROR: %s)\n", label+":", path, err)
	case !info.IsDir():
		fmt.Printf("    %-14s %s (NOT A DIRECTORY)\n", label+":", path)
	default:
		fmt.Printf("    %-14s %s (OK)\n", label+":", path)
	}
}

func checkWritableFile(label, path string) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("    %-14s %s (OK)\n", label+":", path)
		return
	}
	fmt.Printf("    %-14s %s (will be created on first write)\n", label+":", path)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
