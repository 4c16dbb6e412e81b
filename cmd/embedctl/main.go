package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/embedgate/embedgate/internal/config"
	"github.com/embedgate/embedgate/internal/embedurl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "embedctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embedctl",
		Short: "Sign and verify embed URLs",
		Long: `embedctl signs embed URLs with the configured client secret and checks
signed URLs offline. It reads the same EMBED_* environment as the server.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(newSignCmd(), newVerifyCmd())
	return cmd
}

func newSignCmd() *cobra.Command {
	var (
		user          string
		mode          string
		team          string
		accountType   string
		sessionLength int
		allowExport   bool
		filters       map[string]string
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print a freshly signed embed URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			embed, err := config.LoadEmbed()
			if err != nil {
				return err
			}

			ec := embedurl.Config{
				BasePath:       embed.Path,
				ClientID:       embed.ClientID,
				Secret:         embed.Secret,
				Mode:           embed.Mode,
				ExternalUserID: embed.UserEmail,
				SessionLength:  embed.SessionLength,
				AllowExport:    embed.AllowExport,
			}
			if user != "" {
				ec.ExternalUserID = user
			}
			if mode != "" {
				if ec.Mode, err = embedurl.ParseMode(mode); err != nil {
					return err
				}
			}
			if sessionLength != 0 {
				ec.SessionLength = sessionLength
			}
			if cmd.Flags().Changed("allow-export") {
				ec.AllowExport = allowExport
			}
			if ec.Mode == embedurl.ModeUserBacked {
				ec.AllowExport = false
				ec.Team = firstNonEmpty(team, embed.UserTeam)
				ec.AccountType = firstNonEmpty(accountType, embed.UserAccountType)
			} else {
				ec.Filters = filters
			}

			signed, err := embedurl.NewSigner().Sign(ec)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"url":        signed.URL,
					"nonce":      signed.Nonce,
					"issued_at":  signed.IssuedAt.UTC(),
					"expires_at": signed.ExpiresAt.UTC(),
				})
			}
			_, err = fmt.Fprintln(out, signed.URL)
			return err
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "External user id (defaults to EMBED_USER_EMAIL)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Interaction mode: view, explore or userbacked")
	cmd.Flags().StringVar(&team, "team", "", "Team for userbacked mode")
	cmd.Flags().StringVar(&accountType, "account-type", "", "Account type for userbacked mode")
	cmd.Flags().IntVar(&sessionLength, "session-length", 0, "Session length in seconds")
	cmd.Flags().BoolVar(&allowExport, "allow-export", false, "Allow data export (view and explore modes)")
	cmd.Flags().StringToStringVar(&filters, "filter", nil, "Dashboard filter as name=value, repeatable")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print URL and timestamps as JSON")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <url>",
		Short: "Check a signed embed URL against the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			embed, err := config.LoadEmbed()
			if err != nil {
				return err
			}
			claims, err := embedurl.NewVerifier(embed.ClientID, embed.Secret).Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
