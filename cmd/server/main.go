/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the gamification engine server: configuration,
  dependency wiring, explicit rehydration, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse flags and environment configuration
  2. Open the local SQLite state store
  3. Load persisted accounts + leaderboard into memory (rehydration)
  4. Recover any pending purchase marker (validated, 1h staleness gate)
  5. Start the sync scheduler (immediate first cycle, then periodic)
  6. Serve HTTP with graceful shutdown on SIGINT/SIGTERM

  Rehydration and reconciliation are explicit steps here - nothing is
  triggered implicitly by deserialization.

CONFIGURATION (environment):
  PORT                   HTTP port (default 8080)
  GAMIFY_DB              SQLite path (default gamify.db, ":memory:" ok)
  SYNC_LEDGER_INTERVAL   Ledger sync interval (default 5m)
  SYNC_BOARD_INTERVAL    Leaderboard sync interval (default 5m)

  The -db flag overrides GAMIFY_DB.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/warp/gamify-engine/api"
	"github.com/warp/gamify-engine/catalog"
	"github.com/warp/gamify-engine/clock"
	"github.com/warp/gamify-engine/feature"
	"github.com/warp/gamify-engine/leaderboard"
	"github.com/warp/gamify-engine/ledger"
	"github.com/warp/gamify-engine/purchase"
	"github.com/warp/gamify-engine/scheduler"
	"github.com/warp/gamify-engine/store/memory"
	"github.com/warp/gamify-engine/store/sqlite"
)

type config struct {
	Port           int           `env:"PORT" envDefault:"8080"`
	DBPath         string        `env:"GAMIFY_DB" envDefault:"gamify.db"`
	LedgerInterval time.Duration `env:"SYNC_LEDGER_INTERVAL" envDefault:"5m"`
	BoardInterval  time.Duration `env:"SYNC_BOARD_INTERVAL" envDefault:"5m"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse environment: %v", err)
	}

	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	local, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}
	defer local.Close()

	clk := clock.NewSystem()
	cat := catalog.Default()
	ldg := ledger.New()
	board := leaderboard.NewEngine(clk)

	// TODO: replace with the real document-store client once the
	// backend endpoint is provisioned; memory keeps dev self-contained.
	remote := memory.NewRemote()

	reconciler := purchase.NewReconciler(ldg, cat, board, remote, local, clk)
	gate := feature.NewGate(ldg, cat)

	// Rehydrate local state before any traffic.
	ctx := context.Background()
	states, err := local.LoadAccounts(ctx)
	if err != nil {
		log.Fatalf("Failed to load accounts: %v", err)
	}
	for _, state := range states {
		ldg.Restore(state)
	}
	boardState, err := local.LoadLeaderboard(ctx)
	if err != nil {
		log.Fatalf("Failed to load leaderboard: %v", err)
	}
	board.Restore(boardState)
	board.RecomputeRanks()
	log.Printf("Rehydrated %d accounts, %d snapshots", len(states), len(boardState.Snapshots))

	// An interrupted checkout may have left a pending marker behind.
	if err := reconciler.RecoverPending(ctx); err != nil {
		log.Printf("Warning: pending purchase recovery failed: %v", err)
	}

	sched := scheduler.New(ldg, board, reconciler, remote, local, clk)
	sched.LedgerInterval = cfg.LedgerInterval
	sched.LeaderboardInterval = cfg.BoardInterval
	sched.Start()
	defer sched.Stop()

	handler := &api.Handler{
		Ledger:     ldg,
		Catalog:    cat,
		Gate:       gate,
		Board:      board,
		Reconciler: reconciler,
		Scheduler:  sched,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
