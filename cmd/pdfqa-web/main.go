package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pdfqa/internal/app"
	"pdfqa/internal/config"
	"pdfqa/internal/web"
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("pdfqa-web", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cfgPath, addr string
	fs.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/pdfqa/config.yaml if not provided)")
	fs.StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger := app.NewLogger(cfg.Log, stderr)
	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to assemble application", "error", err)
		return 1
	}
	defer a.Close()

	if err := cfg.CheckCredentials(); err != nil {
		// not fatal: every question will report it until the key is set
		logger.Warn("credentials missing", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Start(ctx); err != nil {
		logger.Error("failed to start", "error", err)
		return 1
	}

	srv := web.NewServer(a.Service, logger.With("component", "web"))
	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		logger.Error("server stopped", "error", err)
		return 1
	}
	return 0
}
