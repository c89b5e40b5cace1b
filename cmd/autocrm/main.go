package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/autocrm-inc/autocrm/internal/interfaces/cli/mcp"
	"github.com/autocrm-inc/autocrm/internal/interfaces/cli/migrate"
	"github.com/autocrm-inc/autocrm/internal/interfaces/cli/seed"
	"github.com/autocrm-inc/autocrm/internal/interfaces/cli/server"
	"github.com/autocrm-inc/autocrm/internal/interfaces/cli/token"
	"github.com/autocrm-inc/autocrm/internal/interfaces/cli/version"
	"github.com/autocrm-inc/autocrm/internal/interfaces/cli/watch"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "autocrm",
		Short: "AutoCRM - real-time customer support backend",
		Long: `AutoCRM serves tickets, notes, direct messages and the knowledge base with
live change streams, and answers customers through an AI support agent.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
		seed.NewCommand(),
		watch.NewCommand(),
		mcp.NewCommand(),
		token.NewCommand(),
		version.NewCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
