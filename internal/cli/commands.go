package cli

import (
	"errors"
	"fmt"
	"time"

	"tablebook/internal/api"
	"tablebook/internal/config"
	"tablebook/internal/export"
	"tablebook/internal/models"

	"github.com/spf13/cobra"
)

func newTokenCmd(opts *options) *cobra.Command {
	var (
		user api.User
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the booking API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user.Email == "" {
				return errors.New("--email is required")
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := api.NewAuthenticator(cfg.Auth.JWTSecret).Issue(user, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user.Email, "email", "", "holder email")
	cmd.Flags().StringVar(&user.Name, "name", "", "display name")
	cmd.Flags().StringVar(&user.AccessToken, "access-token", "", "Google OAuth access token for calendar sync")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	return cmd
}

func newViewCmd(opts *options) *cobra.Command {
	var (
		viewer string
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Print the shared view, or the raw record with holders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if raw {
				record, err := e.svc.Snapshot(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), record)
			}
			return printJSON(cmd.OutOrStdout(), e.svc.SharedView(cmd.Context(), viewer))
		},
	}
	cmd.Flags().StringVar(&viewer, "viewer", "", "show slots held by this email instead of the anonymous marker")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the stored record including elapsed slots")
	return cmd
}

func newItineraryCmd(opts *options) *cobra.Command {
	var holder string
	cmd := &cobra.Command{
		Use:   "itinerary",
		Short: "Print the merged upcoming reservations of a holder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if holder == "" {
				return errors.New("--holder is required")
			}
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			return printJSON(cmd.OutOrStdout(), e.svc.Itinerary(cmd.Context(), holder))
		},
	}
	cmd.Flags().StringVar(&holder, "holder", "", "holder email")
	return cmd
}

func newExportCmd(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write upcoming reservations to an Excel workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			record, err := e.svc.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("exports/reservations_%s.xlsx", time.Now().UTC().Format("2006-01-02_150405"))
			}
			if err := export.WriteFile(record, time.Now(), out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output .xlsx path")
	return cmd
}

func newPurgeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Rewrite the store without elapsed slots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			dropped, err := e.svc.Purge(cmd.Context())
			if err != nil {
				return err
			}
			e.logger.Info().Int("dropped", dropped).Msg("Purge finished")
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %d elapsed slots\n", dropped)
			return nil
		},
	}
}

func newCalendarLogCmd(opts *options) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "calendar-log",
		Short: "List recorded calendar pushes, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if e.sqlite == nil {
				return fmt.Errorf("calendar log requires the %s storage driver, got %s", config.DriverSQLite, e.cfg.Storage.Driver)
			}
			entries, err := e.sqlite.CalendarSyncs(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []models.CalendarSync{}
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only show entries with this status (sent, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")
	return cmd
}
