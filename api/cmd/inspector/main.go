package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"dents-inspector/api/internal/config"
	"dents-inspector/api/internal/logging"
)

// cli carries the state shared by all subcommands of one invocation.
type cli struct {
	out     io.Writer
	v       *viper.Viper
	envFile string
	cfg     *config.Config
	log     *zap.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out, v: config.NewViper(), log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "inspector",
		Short: "Car damage inspection from photo archives",
		Long: `inspector sends the photos of an archive to a vision model together with
the damage taxonomy and translates the returned PLDS codes
(Part->Location->DamageType->Severity) into labels.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotenv(c.envFile); err != nil {
				return err
			}
			cfg, err := config.FromViper(c.v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			c.cfg, c.log = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.log.Sync()
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&c.envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-format", "", "Log format (json, console)")
	pf.String("db-driver", "", "Database driver (pgx, sqlite3)")
	pf.String("db-url", "", "Database DSN")
	pf.String("engine", "", "Default vision engine (gemini, gpt)")
	pf.Duration("timeout", 0, "Backend completion timeout")
	for flag, key := range map[string]string{
		"log-level":  "log_level",
		"log-format": "log_format",
		"db-driver":  "database_driver",
		"db-url":     "database_url",
		"engine":     "default_engine",
		"timeout":    "backend_timeout",
	} {
		if err := c.v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		c.serveCmd(),
		c.botCmd(),
		c.inspectCmd(),
		c.migrateCmd(),
		c.seedCmd(),
		c.unseedCmd(),
		c.pldsCmd(),
		c.instructionsCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
