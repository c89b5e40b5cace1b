package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/autocrm-inc/autocrm/internal/infrastructure/auth"
	"github.com/autocrm-inc/autocrm/internal/interfaces/cli/bootstrap"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

var (
	env        string
	configPath string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <email-or-id>",
		Short: "Issue an access token for a user",
		Long:  `Sign an access token for an existing user, for API clients and local testing.`,
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

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

	ref := strings.TrimSpace(args[0])
	column := "id"
	if strings.Contains(ref, "@") {
		column, ref = "email", strings.ToLower(ref)
	}
	users, err := e.Tables.Users.List(cmd.Context(), query.New(query.Where(column, ref)))
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return fmt.Errorf("no user with %s %q", column, ref)
	}

	jwtSvc, err := auth.NewJWTService(cfg.Auth.JWT.Secret, cfg.Auth.JWT.Issuer, cfg.Auth.JWT.AccessExpMinutes)
	if err != nil {
		return err
	}
	token, exp, err := jwtSvc.Issue(users[0])
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "%s (%s), expires %s\n", users[0].Email, users[0].Role, humanize.RelTime(exp, time.Now(), "ago", "from now"))
	return nil
}
