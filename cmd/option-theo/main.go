package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/contactkeval/option-theo/internal/chain"
	"github.com/contactkeval/option-theo/internal/config"
	"github.com/contactkeval/option-theo/internal/data"
	"github.com/contactkeval/option-theo/internal/engine"
	"github.com/contactkeval/option-theo/internal/logger"
	"github.com/contactkeval/option-theo/internal/report"
)

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv(config.EnvConfigPath), "path to YAML config (defaults when empty)")
	verbosity := flag.Int("verbosity", -1, "0=errors 1=info 2=debug 3=trace (overrides config)")
	mode := flag.String("mode", "", "divergence mode: price or iv (overrides config)")
	dte := flag.Int("dte", -1, "lowest days to expiry shown (overrides config)")
	page := flag.Int("page", 0, "move the expiry window by this many pages")
	outDir := flag.String("out", "", "report directory (overrides config)")
	table := flag.Bool("table", true, "print the grids to stdout")
	flag.Parse()

	cfg, err := config.LoadUnchecked(*configPath)
	if err != nil {
		fatalf("reading config: %v", err)
	}
	cfg.ApplyEnv()
	if *verbosity >= 0 {
		cfg.Verbosity = *verbosity
	}
	if *mode != "" {
		cfg.Grid.Mode = *mode
	}
	if *dte >= 0 {
		cfg.Grid.LowestDTE = *dte
	}
	for ; *page > 0; *page-- {
		cfg.Grid.LowestDTE = engine.NextPage(cfg.Grid.LowestDTE, cfg.Grid.Days)
	}
	for ; *page < 0; *page++ {
		cfg.Grid.LowestDTE = engine.PrevPage(cfg.Grid.LowestDTE, cfg.Grid.Days)
	}
	if *outDir != "" {
		cfg.ReportDir = *outDir
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid config: %v", err)
	}

	logger.SetVerbosity(cfg.Verbosity)
	closer, err := logger.Configure(cfg.LoggerOptions())
	if err != nil {
		fatalf("log file: %v", err)
	}
	defer closer.Close()

	prov := data.NewProviderChain(cfg.Data.Dir, cfg.Data.Seed)
	if cfg.Data.Dir != "" {
		logger.Infof("csv provider enabled (%s), synthetic fallback seed %d", cfg.Data.Dir, cfg.Data.Seed)
	} else {
		logger.Infof("synthetic provider enabled, seed %d", cfg.Data.Seed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	res, err := engine.NewEngine(cfg, prov).Run(ctx)
	if err != nil {
		logger.Errorf("grid build failed: %v", err)
		closer.Close()
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.ReportDir, 0755); err != nil {
		logger.Errorf("could not create output dir %s: %v", cfg.ReportDir, err)
	} else {
		if err := report.WriteJSON(res, cfg.ReportDir); err != nil {
			logger.Errorf("writing %s: %v", report.JSONFile, err)
		}
		if err := report.WriteCSV(res, cfg.ReportDir); err != nil {
			logger.Errorf("writing %s: %v", report.CSVFile, err)
		}
	}

	if *table {
		if err := report.WriteTable(os.Stdout, res); err != nil {
			logger.Errorf("printing grid: %v", err)
		}
	}

	logger.Infof("[done] %s %s grid in %v: %d call / %d put live quotes, written to %s",
		res.Pair, modeName(res.Calls.Mode), time.Since(start), res.Calls.LiveQuotes, res.Puts.LiveQuotes, cfg.ReportDir)
}

func modeName(m chain.DivergenceMode) string {
	if m == chain.ModeIV {
		return "implied volatility"
	}
	return "fair value"
}

func fatalf(format string, args ...any) {
	logger.Errorf(format, args...)
	os.Exit(1)
}
