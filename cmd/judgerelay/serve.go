package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/judgerelay"
	"pkt.systems/judgerelay/httpapi"
	"pkt.systems/judgerelay/internal/appconfig"
	"pkt.systems/judgerelay/internal/browser/cdp"
	"pkt.systems/pslog"
)

type serveFlags struct {
	cfgPath     string
	addr        string
	browserMode string
	remoteURL   string
	headless    bool
	noSandbox   bool
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the browser-driven submission server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(flags.cfgPath)
			if err != nil {
				return err
			}
			applyServeFlags(cmd, &cfg, flags)
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&flags.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "HTTP listen address (overrides http.addr)")
	cmd.Flags().StringVar(&flags.browserMode, "browser", "", "browser mode: exec or remote (overrides browser.mode)")
	cmd.Flags().StringVar(&flags.remoteURL, "remote-url", "", "DevTools URL for remote mode (overrides browser.remote_url)")
	cmd.Flags().BoolVar(&flags.headless, "headless", false, "run the browser headless (overrides browser.headless)")
	cmd.Flags().BoolVar(&flags.noSandbox, "no-sandbox", false, "disable the browser sandbox (overrides browser.no_sandbox)")
	return cmd
}

// applyServeFlags overlays explicitly set flags on the loaded config.
func applyServeFlags(cmd *cobra.Command, cfg *appconfig.Config, flags serveFlags) {
	if cmd.Flags().Changed("addr") {
		cfg.HTTP.Addr = flags.addr
	}
	if cmd.Flags().Changed("browser") {
		cfg.Browser.Mode = flags.browserMode
	}
	if cmd.Flags().Changed("remote-url") {
		cfg.Browser.RemoteURL = flags.remoteURL
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = flags.headless
	}
	if cmd.Flags().Changed("no-sandbox") {
		cfg.Browser.NoSandbox = flags.noSandbox
	}
}

func runServe(ctx context.Context, cfg appconfig.Config) error {
	logger := pslog.Ctx(ctx)
	registry, err := buildRegistry(cfg.Adapters)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("browser start", "mode", cfg.Browser.Mode, "headless", cfg.Browser.Headless)
	b, err := cdp.New(ctx, cdp.Options{
		Mode:        cfg.Browser.Mode,
		ExecPath:    cfg.Browser.ExecPath,
		RemoteURL:   cfg.Browser.RemoteURL,
		Headless:    cfg.Browser.Headless,
		UserDataDir: cfg.Browser.UserDataDir,
		NoSandbox:   cfg.Browser.NoSandbox,
	})
	if err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	defer func() { _ = b.Close() }()

	server, err := judgerelay.New(judgerelay.ServerConfig{
		HTTP: httpapi.Config{
			Addr:                cfg.HTTP.Addr,
			BasePath:            cfg.HTTP.BasePath,
			SubmitRatePerMinute: cfg.HTTP.SubmitRatePerMinute,
		},
		Workflow: cfg.Workflow.Durations(),
	}, judgerelay.ServerDeps{
		Browser:  b,
		Adapters: registry,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Stop(stopCtx); err != nil {
			logger.Warn("server stop failed", "err", err)
		}
	}()
	if err := server.Start(ctx); err != nil {
		return err
	}
	return server.Wait()
}
