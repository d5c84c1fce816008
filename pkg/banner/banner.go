package banner

import (
	"fmt"

	"parley/pkg/config"
)

const banner = `
██████╗  █████╗ ██████╗ ██╗     ███████╗██╗   ██╗
██╔══██╗██╔══██╗██╔══██╗██║     ██╔════╝╚██╗ ██╔╝
██████╔╝███████║██████╔╝██║     █████╗   ╚████╔╝
██╔═══╝ ██╔══██║██╔══██╗██║     ██╔══╝    ╚██╔╝
██║     ██║  ██║██║  ██║███████╗███████╗   ██║
╚═╝     ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝╚══════╝   ╚═╝
`

// Print shows a startup summary of the effective configuration.
func Print(cfg *config.Config, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Backend:       %s\n", orUnset(cfg.Backend.BaseURL))
	fmt.Printf("Stream:        %s\n", orUnset(cfg.Backend.StreamURL))
	fmt.Printf("Conversation:  %s\n", cfg.Client.Conversation)
	fmt.Printf("Data dir:      %s\n", cfg.Storage.DataDir)
	fmt.Printf("Config source: %s\n", source)
	if version != "" {
		fmt.Printf("Version:       %s\n", version)
	}
	if cfg.Diagnostics.Enabled {
		fmt.Printf("Diagnostics:   http://%s/metrics\n", cfg.Diagnostics.Address)
	} else {
		fmt.Println("Diagnostics:   disabled")
	}
	if cfg.Retention.Enabled {
		fmt.Printf("Cache prune:   cron=%s period=%s\n", cfg.Retention.Cron, cfg.Retention.Period)
	}
	fmt.Println()
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}
