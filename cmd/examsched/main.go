package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/examslot-api/pkg/config"
	"github.com/noah-isme/examslot-api/pkg/logger"
)

// @title Exam Slot API
// @version 0.1.0
// @description Plans recurring oral exams for course sections and audits every slot change.
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "examsched"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Exam slot scheduling service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(serveCmd(), migrateCmd(), planCmd(), tokenCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	return cmd
}

// bootstrap loads configuration and the structured logger shared by every subcommand.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}
