package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dents-inspector/api/internal/damage"
	"dents-inspector/api/internal/handle"
	"dents-inspector/api/internal/store"
	"dents-inspector/api/internal/telegram"
	"dents-inspector/api/internal/vision"
)

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) handler(a *app) *handle.Handle {
	return handle.New(handle.Deps{
		Engines:        a.engines,
		Inspector:      a.inspector,
		Translator:     a.translator,
		Codec:          a.codec,
		Taxonomy:       a.taxonomy,
		Instructions:   a.builder,
		DB:             a.db,
		Metrics:        a.metrics,
		Log:            c.log.Named("http"),
		UploadDir:      c.cfg.WorkspaceDir,
		MaxUploadBytes: c.cfg.MaxArchiveBytes,
	})
}

// listen serves h until ctx is done, then shuts down gracefully.
func (c *cli) listen(ctx context.Context, h http.Handler) error {
	srv := &http.Server{
		Addr:              c.cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		c.log.Info("listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.RequireEngine(); err != nil {
				return err
			}
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return c.listen(cmd.Context(), c.handler(a).Routes())
		},
	}
}

func (c *cli) botCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot (webhook when WEBHOOK_URL is set, polling otherwise)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := errors.Join(c.cfg.RequireEngine(), c.cfg.RequireTelegram()); err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			bot, err := tgbotapi.NewBotAPI(c.cfg.TelegramBotToken)
			if err != nil {
				return fmt.Errorf("telegram: %w", err)
			}
			def, _ := a.engines.Get("")
			r := &telegram.Router{
				Bot:             bot,
				Engines:         a.engines,
				EngManager:      vision.NewManager(def),
				Inspector:       a.inspector,
				Translator:      a.translator,
				DB:              a.db,
				Log:             c.log.Named("telegram"),
				DownloadDir:     c.cfg.WorkspaceDir,
				MaxArchiveBytes: c.cfg.MaxArchiveBytes,
				Timeout:         c.cfg.BackendTimeout + time.Minute,
			}
			pool := telegram.NewPool(workers)
			defer pool.Wait()
			dispatch := func(upd tgbotapi.Update) {
				pool.Go(func() { r.HandleUpdate(ctx, upd) })
			}

			mux := http.NewServeMux()
			mux.Handle("/", c.handler(a).Routes())

			if base := strings.TrimSpace(c.cfg.WebhookURL); base != "" {
				path := telegram.WebhookPath(bot.Token)
				wh, err := tgbotapi.NewWebhook(strings.TrimRight(base, "/") + path)
				if err != nil {
					return err
				}
				wh.DropPendingUpdates = true
				if _, err := bot.Request(wh); err != nil {
					return fmt.Errorf("set webhook: %w", err)
				}
				mux.Handle("POST "+path, telegram.WebhookHandler(dispatch, c.log.Named("webhook")))
				c.log.Info("webhook mode", zap.String("path", path))
				return c.listen(ctx, mux)
			}

			go func() {
				if err := c.listen(ctx, mux); err != nil {
					c.log.Error("http server", zap.Error(err))
				}
			}()
			c.log.Info("polling mode")
			telegram.RunPolling(ctx, bot, dispatch, c.log.Named("polling"))
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "Archives inspected concurrently")
	return cmd
}

func (c *cli) inspectCmd() *cobra.Command {
	var engine, model string
	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Inspect one archive and print the damage report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.RequireEngine(); err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			backend, err := a.engines.Get(engine)
			if err != nil {
				return err
			}
			if model != "" {
				sw, ok := backend.(vision.ModelSwitcher)
				if !ok {
					return fmt.Errorf("engine %s cannot switch models", backend.Name())
				}
				backend = sw.WithModel(model)
			}

			dets, err := a.inspector.Inspect(ctx, args[0], backend)
			if err != nil {
				return err
			}
			out, err := a.translator.Translate(ctx, dets)
			if err != nil {
				return err
			}
			return c.printJSON(damage.Report{
				Event:   eventName(args[0]),
				Engine:  backend.Name(),
				Model:   backend.Model(),
				Damages: out,
			})
		},
	}
	cmd.Flags().StringVar(&engine, "llm", "", "Engine for this run (gemini, gpt); default from config")
	cmd.Flags().StringVar(&model, "model", "", "Model override for the chosen engine")
	return cmd
}

// eventName is the archive's base name without its archive extension.
func eventName(path string) string {
	name := filepath.Base(path)
	lower := strings.ToLower(name)
	for _, ext := range []string{".tar.gz", ".tgz", ".tar", ".zip"} {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the taxonomy and PLDS tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.Migrate(cmd.Context(), db, c.cfg.DatabaseDriver); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "migrated")
			return nil
		},
	}
}

func (c *cli) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the default taxonomy (existing ids are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := store.NewTaxonomyRepo(db).SeedDefaults(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "seeded %d rows\n", n)
			return nil
		},
	}
}

func (c *cli) unseedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unseed",
		Short: "Remove the default taxonomy ids and the codes that reference them",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := store.NewTaxonomyRepo(db).UnseedDefaults(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "removed %d rows\n", n)
			return nil
		},
	}
}

func (c *cli) pldsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plds",
		Short: "Decode or register PLDS codes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "decode <code>",
		Short: "Print the labels of a registered code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			dec, err := a.codec.Decode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printJSON(dec)
		},
	}, &cobra.Command{
		Use:   "create <code>",
		Short: "Register a code after checking its taxonomy ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			rec, err := a.codec.CreateFrom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printJSON(map[string]any{"id": rec.ID, "plds": rec.Code.String()})
		},
	})
	return cmd
}

func (c *cli) instructionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instructions",
		Short: "Print the instructions sent to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			text, err := a.builder.Build(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, text)
			return nil
		},
	}
}
