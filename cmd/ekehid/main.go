// Command ekehid runs a single Ekehi network node: chain, mempool, peer
// discovery, gossip, sync and mining, served over HTTP.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/acem702/Ekehi-Network/internal/config"
	"github.com/acem702/Ekehi-Network/internal/node"
	"github.com/acem702/Ekehi-Network/internal/ulogger"
)

func main() {
	cfg := config.Default()

	rootCmd := &cobra.Command{
		Use:   "ekehid <port> [publicNodeUrl]",
		Short: "Run an Ekehi network node",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Port = args[0]
			if len(args) > 1 {
				cfg.PublicNodeURL = args[1]
			} else {
				cfg.PublicNodeURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
			}

			// Env overrides CLI args, so a hosting platform that assigns a
			// public URL at deploy time always wins.
			cfg.ApplyEnv()

			return run(cfg)
		},
	}

	rootCmd.Flags().StringVar(&cfg.StorePath, "store", cfg.StorePath, "path to the node's sqlite database")
	rootCmd.Flags().StringSliceVar(&cfg.SeedURLs, "seeds", cfg.SeedURLs, "comma-separated seed node URLs for peer discovery")
	rootCmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.Flags().BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "render logs as human-readable console output")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := ulogger.New("ekehid", cfg.LogLevel, cfg.LogPretty)

	n, err := node.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	addr := net.JoinHostPort("0.0.0.0", cfg.Port)

	serveErr := make(chan error, 1)
	go func() {
		if err := n.Start(addr); err != nil {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("node stopped unexpectedly: %w", err)
	case sig := <-sigCh:
		logger.Infof("[ekehid] received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return n.Stop(ctx)
}
