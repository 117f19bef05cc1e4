// Package authctl implements the administrative command line of the
// folioguard security core.
package authctl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/common"
	"github.com/dmitrijs2005/folioguard/internal/logging"
	"github.com/dmitrijs2005/folioguard/internal/server/config"
	"github.com/spf13/cobra"
)

type app struct {
	open Opener
	in   *bufio.Reader

	configFile string
	dsn        string
}

// NewRootCommand builds the authctl command tree. open is called once per
// command after the configuration is loaded.
func NewRootCommand(open Opener, in io.Reader) *cobra.Command {
	a := &app{open: open, in: bufio.NewReader(in)}

	root := &cobra.Command{
		Use:           "authctl",
		Short:         "Administer folioguard accounts and sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "JSON config file")
	root.PersistentFlags().StringVarP(&a.dsn, "dsn", "d", "", "PostgreSQL DSN (overrides config)")

	root.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations",
			Args:  cobra.NoArgs,
			RunE:  a.with(a.migrate),
		},
		&cobra.Command{
			Use:   "maintenance",
			Short: "Run one maintenance pass now",
			Args:  cobra.NoArgs,
			RunE:  a.with(a.maintenance),
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show active session statistics and health",
			Args:  cobra.NoArgs,
			RunE:  a.with(a.stats),
		},
		&cobra.Command{
			Use:   "revoke-sessions <user-id>",
			Short: "Log a user out everywhere",
			Args:  cobra.ExactArgs(1),
			RunE:  a.with(a.revokeSessions),
		},
		&cobra.Command{
			Use:   "unlock <user-id>",
			Short: "Clear a lockout and the failed-attempt counter",
			Args:  cobra.ExactArgs(1),
			RunE:  a.with(a.unlock),
		},
		a.deactivateCommand(),
		&cobra.Command{
			Use:   "set-password <email>",
			Short: "Set a new password and revoke every session",
			Args:  cobra.ExactArgs(1),
			RunE:  a.with(a.setPassword),
		},
		a.eventsCommand(),
	)
	return root
}

type runFunc func(ctx context.Context, cmd *cobra.Command, b Backend, args []string) error

// with loads the configuration, opens the backend around f and closes it
// afterwards.
func (a *app) with(f runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var cfgArgs []string
		if a.configFile != "" {
			cfgArgs = append(cfgArgs, "-c="+a.configFile)
		}
		if a.dsn != "" {
			cfgArgs = append(cfgArgs, "-d="+a.dsn)
		}
		cfg, err := config.Load(cfgArgs)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		log, err := logging.New(cfg.LogBackend, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		b, err := a.open(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer b.Close()
		return f(ctx, cmd, b, args)
	}
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func describe(err error, what string) error {
	if errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("%s: no such user", what)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (a *app) migrate(ctx context.Context, cmd *cobra.Command, b Backend, _ []string) error {
	if err := b.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}

func (a *app) maintenance(ctx context.Context, cmd *cobra.Command, b Backend, _ []string) error {
	rep, err := b.RunMaintenance(ctx)
	if rep != nil {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "deleted expired sessions: %d\n", rep.DeletedSessions)
		fmt.Fprintf(out, "suspicious accounts:      %d\n", len(rep.Suspicious))
		for _, s := range rep.Suspicious {
			fmt.Fprintf(out, "  user %d: %d sessions, %d ips, %d agents %v\n",
				s.UserID, s.ActiveSessions, s.DistinctIPs, s.DistinctUserAgents, s.Reasons)
		}
		if rep.ArchivedKey != "" {
			fmt.Fprintf(out, "archived events:          %s\n", rep.ArchivedKey)
		}
	}
	if err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	return nil
}

func (a *app) stats(ctx context.Context, cmd *cobra.Command, b Backend, _ []string) error {
	st, err := b.SessionStats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	health := b.HealthCheck(ctx)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "active sessions\t%d\n", st.TotalActiveSessions)
	fmt.Fprintf(tw, "active users\t%d\n", st.ActiveUsers)
	fmt.Fprintf(tw, "remember-me sessions\t%d\n", st.RememberMeSessions)
	fmt.Fprintf(tw, "expiring within 24h\t%d\n", st.ExpiringWithin24h)
	fmt.Fprintf(tw, "average duration\t%.0fs\n", st.AverageDurationSeconds)
	fmt.Fprintf(tw, "healthy\t%t\n", health.Healthy)
	for _, alert := range health.Alerts {
		fmt.Fprintf(tw, "alert\t%s\n", alert)
	}
	return tw.Flush()
}

func (a *app) revokeSessions(ctx context.Context, cmd *cobra.Command, b Backend, args []string) error {
	id, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	n, err := b.RevokeSessions(ctx, id)
	if err != nil {
		return describe(err, "revoke-sessions")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %d session(s) of user %d\n", n, id)
	return nil
}

func (a *app) unlock(ctx context.Context, cmd *cobra.Command, b Backend, args []string) error {
	id, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	if err := b.Unlock(ctx, id); err != nil {
		return describe(err, "unlock")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "user %d unlocked\n", id)
	return nil
}

func (a *app) deactivateCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "deactivate <user-id>",
		Short: "Disable an account and revoke its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: a.with(func(ctx context.Context, cmd *cobra.Command, b Backend, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			if err := b.Deactivate(ctx, id, reason); err != nil {
				return describe(err, "deactivate")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d deactivated\n", id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "admin", "reason recorded with the deactivation")
	return cmd
}

func (a *app) eventsCommand() *cobra.Command {
	var (
		eventType string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the newest security events",
		Args:  cobra.NoArgs,
		RunE: a.with(func(ctx context.Context, cmd *cobra.Command, b Backend, _ []string) error {
			if limit < 1 || limit > maxEvents {
				return fmt.Errorf("--limit must be between 1 and %d", maxEvents)
			}
			events, err := b.RecentEvents(ctx, strings.ToUpper(eventType), limit)
			if err != nil {
				return fmt.Errorf("events: %w", err)
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no events")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tTYPE\tUSER\tEMAIL\tIP\tDETAILS")
			for _, e := range events {
				user := "-"
				if e.UserID != nil {
					user = strconv.FormatInt(*e.UserID, 10)
				}
				details := ""
				if len(e.Details) > 0 {
					raw, err := json.Marshal(e.Details)
					if err != nil {
						return fmt.Errorf("events: %w", err)
					}
					details = string(raw)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.UTC().Format(time.RFC3339),
					e.EventType, user, orDash(e.Email), orDash(e.IPAddress), details)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().StringVar(&eventType, "type", "", "only events of this type, e.g. ACCOUNT_LOCKED")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events to show")
	return cmd
}

const maxEvents = 1000

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (a *app) setPassword(ctx context.Context, cmd *cobra.Command, b Backend, args []string) error {
	prompt := cmd.ErrOrStderr()
	pw, err := GetPassword(a.in, prompt, "New password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)
	again, err := GetPassword(a.in, prompt, "Repeat password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(again)

	if string(pw) != string(again) {
		return errors.New("passwords do not match")
	}
	if err := b.SetPassword(ctx, args[0], string(pw)); err != nil {
		return describe(err, "set-password")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "password updated, all sessions of %s revoked\n", args[0])
	return nil
}
