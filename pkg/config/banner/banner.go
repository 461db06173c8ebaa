package banner

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"inletd/pkg/config"
)

const banner = `
██╗███╗   ██╗██╗     ███████╗████████╗██████╗
██║████╗  ██║██║     ██╔════╝╚══██╔══╝██╔══██╗
██║██╔██╗ ██║██║     █████╗     ██║   ██║  ██║
██║██║╚██╗██║██║     ██╔══╝     ██║   ██║  ██║
██║██║ ╚████║███████╗███████╗   ██║   ██████╔╝
╚═╝╚═╝  ╚═══╝╚══════╝╚══════╝   ╚═╝   ╚═════╝
`

// PrintWithEff prints the banner using an EffectiveConfigResult which
// provides richer context (config, addr, data dir, source).
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	cfg := eff.Config

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	if eff.Socket != "" {
		fmt.Printf("Listen:    unix:%s\n", eff.Socket)
	} else {
		fmt.Printf("Listen:    %s\n", eff.Addr)
	}
	fmt.Printf("Data Dir:  %s\n", eff.DataDir)
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}
	fmt.Printf("Config:    %s\n", eff.Source)
	fmt.Printf("PID:       %d\n", os.Getpid())

	if cfg == nil {
		fmt.Println()
		return
	}

	fmt.Println("\n== Ingestion ==================================================")
	fmt.Printf("- Workers:          %d\n", cfg.Server.Workers)
	fmt.Printf("- Chunk size:       %s\n", humanize.IBytes(uint64(cfg.Ingest.ChunkSize.Int64())))
	fmt.Printf("- Spool threshold:  %s (bodies at or above spool to disk)\n", humanize.IBytes(uint64(cfg.Ingest.SpoolThreshold.Int64())))
	fmt.Printf("- Max header block: %s\n", humanize.IBytes(uint64(cfg.Ingest.MaxHeaderBytes.Int64())))
	fmt.Printf("- Read timeout:     %s\n", cfg.Server.ReadTimeout.Duration())

	fmt.Println("\n== Operations =================================================")
	if cfg.OpsEnabled() {
		fmt.Printf("- Ops endpoint: %s\n", cfg.Ops.Addr)
	} else {
		fmt.Println("- Ops endpoint: disabled")
	}
	if cfg.JournalEnabled() {
		sync := "async"
		if cfg.Journal.Sync {
			sync = "sync"
		}
		fmt.Printf("- Request journal: enabled (%s)\n", sync)
	} else {
		fmt.Println("- Request journal: disabled")
	}
	if cfg.JanitorEnabled() {
		fmt.Printf("- Janitor: enabled (cron=%s max_age=%s)\n", cfg.Janitor.Schedule, cfg.Janitor.MaxAge.Duration())
	} else {
		fmt.Println("- Janitor: disabled")
	}
	if cfg.Limits.AcceptRPS > 0 {
		fmt.Printf("- Accept limit: %.0f conn/s (burst %d)\n", cfg.Limits.AcceptRPS, cfg.Limits.AcceptBurst)
	} else {
		fmt.Println("- Accept limit: unlimited")
	}
	fmt.Println()
}
