package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"pdfqa/internal/app"
	"pdfqa/internal/config"
	"pdfqa/internal/dispatch"
	"pdfqa/internal/tui"
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run owns every deferred cleanup, so it reports failure through its exit
// code instead of exiting.
func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("pdfqa", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cfgPath, docPath string
	fs.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/pdfqa/config.yaml if not provided)")
	fs.StringVar(&docPath, "document", "", "Document to answer questions about (overrides document.path)")
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
	if docPath != "" {
		cfg.Document.Path = docPath
	}

	// the terminal belongs to the UI, so logs go to a file
	logFile, err := tea.LogToFile(cfg.Desktop.LogFile, "pdfqa")
	if err != nil {
		fmt.Fprintf(stderr, "failed to open log file: %v\n", err)
		return 1
	}
	defer logFile.Close()
	logger := app.NewLogger(cfg.Log, logFile)

	a, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "failed to assemble application: %v\n", err)
		return 1
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "failed to start: %v\n", err)
		return 1
	}

	summary, err := a.Service.Summary(ctx)
	if err != nil {
		logger.Warn("document summary unavailable", "error", err)
		summary = fmt.Sprintf("%s (%s)", cfg.Document.Path, err)
	}

	d := dispatch.New(a.Service, cfg.Desktop.MaxConcurrent, logger.With("component", "dispatch"))
	if _, err := tea.NewProgram(tui.New(d, summary), tea.WithAltScreen()).Run(); err != nil {
		logger.Error("chat window stopped", "error", err)
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
