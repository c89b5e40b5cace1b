package seed

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autocrm-inc/autocrm/internal/infrastructure/persistence/seeds"
	"github.com/autocrm-inc/autocrm/internal/interfaces/cli/bootstrap"
)

var (
	env        string
	configPath string
	file       string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users, tickets and templates from a YAML file",
		Long: `Create the AI agent user if it is missing, then load the users, tickets and
templates listed in the seed file. Users that already exist are reused.`,
		RunE: run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")
	cmd.Flags().StringVarP(&file, "file", "f", "configs/seed.yaml", "Seed file")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap.LoadConfig(env, configPath, false)
	if err != nil {
		return err
	}
	e, err := bootstrap.Open(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	f, err := seeds.Load(file)
	if err != nil {
		return err
	}

	res, err := seeds.Apply(cmd.Context(), e.Tables, f)
	if err != nil {
		e.Log.Errorw("seeding failed", "file", file, "error", err)
		return fmt.Errorf("seeding failed: %w", err)
	}

	e.Log.Infow("seed applied", "file", file, "users", res.Users, "tickets", res.Tickets, "templates", res.Templates)
	fmt.Printf("✅ Created %d users, %d tickets, %d templates\n", res.Users, res.Tickets, res.Templates)
	return nil
}
