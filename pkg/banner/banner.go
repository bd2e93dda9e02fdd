package banner

import (
	"fmt"

	"confessd/pkg/config"
)

const banner = `
 ██████╗ ██████╗ ███╗   ██╗███████╗███████╗███████╗███████╗██████╗
██╔════╝██╔═══██╗████╗  ██║██╔════╝██╔════╝██╔════╝██╔════╝██╔══██╗
██║     ██║   ██║██╔██╗ ██║█████╗  █████╗  ███████╗███████╗██║  ██║
██║     ██║   ██║██║╚██╗██║██╔══╝  ██╔══╝  ╚════██║╚════██║██║  ██║
╚██████╗╚██████╔╝██║ ╚████║██║     ███████╗███████║███████║██████╔╝
 ╚═════╝ ╚═════╝ ╚═╝  ╚═══╝╚═╝     ╚══════╝╚══════╝╚══════╝╚═════╝
`

// Print writes the startup banner with the effective runtime settings.
func Print(cfg *config.Config, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:    %s\n", cfg.Addr())
	fmt.Printf("DB Path:   %s\n", cfg.Storage.DBPath)
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}
	fmt.Printf("Admins:    %d configured\n", len(cfg.Bot.AdminIDs))
	fmt.Printf("Budget:    %s webhook deadline\n", cfg.Bot.WebhookBudget.Std())
	if cfg.Retention.Enabled {
		fmt.Printf("Retention: %q (period %s, dedup ttl %s)\n",
			cfg.Retention.Cron, cfg.Retention.Period.Std(), cfg.Retention.DedupTTL.Std())
	} else {
		fmt.Println("Retention: disabled")
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /webhook  - Platform update delivery")
	fmt.Println("GET  /webhook  - Liveness probe (no side effects)")
	fmt.Println("GET  /healthz  - Process health")
	fmt.Println("GET  /readyz   - Store readiness")
	fmt.Println("GET  /metrics  - Prometheus metrics")
}
