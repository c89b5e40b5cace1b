// Package watch follows a live view of tickets or audit logs from the
// terminal, the way a signed in client sees them.
package watch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/domain/audit"
	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
	"github.com/autocrm-inc/autocrm/internal/interfaces/cli/bootstrap"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

var (
	env        string
	configPath string
	userID     string
	search     string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [tickets|audit-logs]",
		Short: "Follow a live list of tickets or audit logs",
		Long: `Load tickets or audit logs, optionally filtered by search terms, and reprint
the list whenever a change arrives from the running servers. Requires
realtime.redis_bridge or the postgres change source.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"tickets", "audit-logs"},
		RunE:      run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "ID of the user to watch as (required)")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Search terms")
	_ = cmd.MarkFlagRequired("user")

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

	ctx := cmd.Context()
	feed, err := e.Feed(ctx)
	if err != nil {
		return err
	}

	minBackoff, maxBackoff := cfg.Realtime.ReconnectBounds()
	session, err := clientstate.NewSession(e.Tables.Backend(), feed, clientstate.SessionConfig{
		UserID:             userID,
		TicketDeletePolicy: clientstate.ParseDeletePolicy(cfg.Sync.TicketDeletePolicy, clientstate.DeleteIgnore),
		SearchMode:         query.ParseSearchMode(cfg.Sync.SearchMode),
		ReconnectMin:       minBackoff,
		ReconnectMax:       maxBackoff,
	}, e.Log)
	if err != nil {
		return err
	}
	defer session.Close()

	out := cmd.OutOrStdout()
	switch args[0] {
	case "tickets":
		sub, err := session.WatchTickets(ctx, search)
		if err != nil {
			return err
		}
		return follow(ctx, out, sub.Store(), printTickets)
	default:
		sub, err := session.WatchAuditLogs(ctx, search)
		if err != nil {
			return err
		}
		return follow(ctx, out, sub.Store(), printAuditLogs)
	}
}

// follow prints the store once and again after every change until ctx is
// done.
func follow[T clientstate.Entity](ctx context.Context, out io.Writer, store *clientstate.Store[T], render func(io.Writer, clientstate.State[T], time.Time)) error {
	changed, stop := store.Watch()
	defer stop()

	for {
		render(out, store.State(), time.Now())
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

func printTickets(out io.Writer, st clientstate.State[ticket.Ticket], now time.Time) {
	header(out, "tickets", len(st.Items), st.Loading, st.Error)
	for _, t := range st.Items {
		fmt.Fprintf(out, "  %-8s %-6s %-40s updated %s\n",
			t.Status, t.Priority, truncate(t.Title, 40), humanize.RelTime(t.UpdatedAt, now, "ago", "from now"))
	}
}

func printAuditLogs(out io.Writer, st clientstate.State[audit.AuditLog], now time.Time) {
	header(out, "audit logs", len(st.Items), st.Loading, st.Error)
	for _, l := range st.Items {
		by := l.ChangedBy
		if by == "" {
			by = "system"
		}
		fmt.Fprintf(out, "  %-6s %-18s by %-36s %s\n",
			l.Operation, l.TableName, by, humanize.RelTime(l.ChangedAt, now, "ago", "from now"))
	}
}

func header(out io.Writer, what string, n int, loading bool, errMsg string) {
	fmt.Fprintf(out, "\n%s %s", humanize.Comma(int64(n)), what)
	if loading {
		fmt.Fprint(out, " (loading)")
	}
	if errMsg != "" {
		fmt.Fprintf(out, " (error: %s)", errMsg)
	}
	fmt.Fprintln(out)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
