package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/examslot-api/internal/models"
	"github.com/noah-isme/examslot-api/internal/service"
)

func tokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		role   string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := bootstrap()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			auth := service.NewAuthService(logr, service.AuthConfig{
				AccessTokenSecret: cfg.JWT.Secret,
				AccessTokenExpiry: cfg.JWT.Expiration,
				Issuer:            cfg.JWT.Issuer,
			})
			token, expiresAt, err := auth.IssueToken(userID, email, models.UserRole(role))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id recorded as changed_by")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "ADMIN or TA")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
