// hubwatch — telemetry ingestion & health monitoring for a personal home hub.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/velden/hubwatch/internal/config"
	"github.com/velden/hubwatch/internal/orchestrator"
	"github.com/velden/hubwatch/internal/server"
	"github.com/velden/hubwatch/internal/store"
	"github.com/velden/hubwatch/internal/usage"
)

const asciiLogo = `
 ██╗  ██╗██╗   ██╗██████╗ ██╗    ██╗ █████╗ ████████╗ ██████╗██╗  ██╗
 ██║  ██║██║   ██║██╔══██╗██║    ██║██╔══██╗╚══██╔══╝██╔════╝██║  ██║
 ███████║██║   ██║██████╔╝██║ █╗ ██║███████║   ██║   ██║     ███████║
 ██╔══██║██║   ██║██╔══██╗██║███╗██║██╔══██║   ██║   ██║     ██╔══██║
 ██║  ██║╚██████╔╝██████╔╝╚███╔███╔╝██║  ██║   ██║   ╚██████╗██║  ██║
 ╚═╝  ╚═╝ ╚═════╝ ╚═════╝  ╚══╝╚══╝ ╚═╝  ╚═╝   ╚═╝    ╚═════╝╚═╝  ╚═╝
`

const version = "v0.1.0"

func printBanner(mode string) {
	fmt.Printf("%s\n", asciiLogo)
	fmt.Printf("  ► hubwatch %s  |  Mode: %s\n\n", version, mode)
}

func main() {
	root := &cobra.Command{
		Use:   "hubwatch",
		Short: "hubwatch — telemetry ingestion & runtime health for your home hub",
		Long: `hubwatch watches a home-hub agent fleet: it polls workflow/agent
snapshots and deployment status, incrementally parses session logs into
usage metrics, evaluates alert thresholds and serves one composite
runtime health view.`,
		SilenceUsage: true,
	}

	// ── server subcommand ─────────────────────────────────────────────────────
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the hubwatch server (pollers + REST API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SERVER")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}

			orch := orchestrator.New(cfg, st)
			if err := orch.Start(); err != nil {
				return fmt.Errorf("starting orchestrator: %w", err)
			}
			defer orch.Stop()

			gin.SetMode(gin.ReleaseMode)
			engine := gin.New()
			engine.Use(gin.Recovery(), corsMiddleware)
			server.RegisterRoutes(engine, &server.API{
				Store: st,
				Orch:  orch,
				Agg:   usage.New(st),
			})

			addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
			fmt.Printf("  ✓ API → http://%s\n", addr)
			fmt.Printf("  ✓ Snapshot: %s (every %ds)\n", cfg.SnapshotPath, cfg.SnapshotPollSeconds)
			fmt.Printf("  ✓ Sessions: %s (every %ds)\n\n", cfg.SessionsDir, cfg.SessionScanSeconds)

			srv := &http.Server{Addr: addr, Handler: engine}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt) // os.Interrupt = SIGINT; works on all platforms

			select {
			case err := <-errCh:
				return err
			case <-quit:
				fmt.Println("\n  → Shutting down gracefully…")
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
				return nil
			}
		},
	}

	// ── ingest subcommand ─────────────────────────────────────────────────────
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one parse pass over the session logs and evaluate alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}

			n, err := orchestrator.New(cfg, st).ParseSessions()
			if err != nil {
				return err
			}
			fmt.Printf("ingested %d usage records from %s\n", n, cfg.SessionsDir)
			return nil
		},
	}

	// ── seed subcommand ───────────────────────────────────────────────────────
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Run the seed fallback once (backlog → defaults → synthetic agent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}

			seeded, err := orchestrator.New(cfg, st).Seed()
			if err != nil {
				return err
			}
			fmt.Printf("seeded workflows: %v\n", seeded)
			return nil
		},
	}

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print hubwatch version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hubwatch %s\n", version)
		},
	}

	root.AddCommand(serverCmd, ingestCmd, seedCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// corsMiddleware allows the dashboard frontend (served elsewhere) to
// call the API from any origin.
func corsMiddleware(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
	c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	if c.Request.Method == "OPTIONS" {
		c.AbortWithStatus(204)
		return
	}
	c.Next()
}
