// Package serve runs the HTTP service.
package serve

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/pdf-extractor/backend/internal/cmd/base"
	"github.com/pdf-extractor/backend/internal/config"
	"github.com/pdf-extractor/backend/internal/version"
)

type Command struct {
	*base.Command

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Run the extraction intake server"
}

func (c *Command) Help() string {
	return `Usage: pdfextract serve [options]

  Run the HTTP server. Configuration is read from pdfextract.yaml next to
  the executable unless -config is given; a default file is written on
  first run.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("serve", flag.ContinueOnError))
	f.StringVar(&c.flagConfig, "config", "", "Path to the YAML configuration file")
	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	configPath, err := c.configPath()
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}
	c.Log.SetLevel(hclog.LevelFromString(cfg.Advanced.LogLevel))

	if err := cfg.EnsureDirectories(); err != nil {
		c.UI.Error(fmt.Sprintf("error creating directories: %v", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := NewServer(ctx, cfg, c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error starting server: %v", err))
		return 1
	}
	defer func() {
		if err := srv.Close(); err != nil {
			c.Log.Error("error during shutdown", "error", err)
		}
	}()

	go srv.RunCleanup(ctx)

	httpServer := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	c.printBanner(cfg, configPath, srv.Embedded)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Echo.StartServer(httpServer)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.UI.Error(fmt.Sprintf("server error: %v", err))
			return 1
		}
	case <-ctx.Done():
		c.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Echo.Shutdown(shutdownCtx); err != nil {
			c.Log.Error("error shutting down HTTP server", "error", err)
			return 1
		}
	}
	return 0
}

func (c *Command) configPath() (string, error) {
	if c.flagConfig != "" {
		return filepath.Abs(c.flagConfig)
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), config.DefaultFileName), nil
}

func (c *Command) printBanner(cfg *config.AppConfig, configPath string, embedded bool) {
	mode := "Development"
	if embedded {
		mode = "Embedded frontend"
	}

	lines := []string{
		"",
		"╔═══════════════════════════════════════════════════════════╗",
		"║           PDF Extractor Server                            ║",
		"╠═══════════════════════════════════════════════════════════╣",
		fmt.Sprintf("║  Version:    %-45s║", version.Version),
		fmt.Sprintf("║  Build Time: %-45s║", version.BuildTime),
		fmt.Sprintf("║  Mode:       %-45s║", mode),
		fmt.Sprintf("║  Extractor:  %-45s║", cfg.Extraction.Backend),
		fmt.Sprintf("║  Hand-off:   %-45s║", cfg.Handoff.Backend),
		"╠═══════════════════════════════════════════════════════════╣",
		fmt.Sprintf("║  Config:    %-46s║", configPath),
		fmt.Sprintf("║  Listen:    http://%-38s║", cfg.GetServerAddr()),
		fmt.Sprintf("║  Data Dir:  %-46s║", cfg.Storage.DataDirectory),
		"╚═══════════════════════════════════════════════════════════╝",
		"",
	}
	for _, l := range lines {
		c.UI.Output(l)
	}
	if embedded {
		c.UI.Output(fmt.Sprintf("Open http://localhost:%d in your browser\n", cfg.Server.Port))
	}
}
