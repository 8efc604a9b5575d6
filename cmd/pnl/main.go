package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alejandrodnm/polypnl/config"
	"github.com/alejandrodnm/polypnl/internal/adapters/notify"
	"github.com/alejandrodnm/polypnl/internal/adapters/polymarket"
	"github.com/alejandrodnm/polypnl/internal/adapters/storage"
	"github.com/alejandrodnm/polypnl/internal/application/analyzer"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ledger"
	"github.com/alejandrodnm/polypnl/internal/metrics"
	"github.com/alejandrodnm/polypnl/internal/ports"
	"github.com/alejandrodnm/polypnl/internal/report"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	wallets := flag.String("wallet", "", "comma-separated wallet addresses (overrides config)")
	period := flag.String("period", "", "reporting period: ALL|1D|1W|1M (overrides config)")
	from := flag.String("from", "", "custom window start: YYYY-MM-DD or RFC3339")
	to := flag.String("to", "", "custom window end: YYYY-MM-DD (inclusive) or RFC3339")
	offline := flag.Bool("offline", false, "replay from the SQLite cache, no API calls")
	table := flag.Bool("table", false, "print full tables (default: compact 1-line)")
	top := flag.Int("top", -1, "markets shown in the breakdown (0 = all, overrides config)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	output := flag.String("output", "", "report output: text|json (overrides config)")
	interval := flag.Duration("interval", 0, "re-run the analysis every interval until interrupted")
	runs := flag.Int("runs", 0, "print the last N stored runs per wallet and exit")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *output != "" {
		cfg.Report.Format = *output
	}
	if *table {
		cfg.Report.Table = true
	}
	if *top >= 0 {
		cfg.Report.TopMarkets = *top
	}
	if *period != "" {
		cfg.Report.Period = *period
	}
	if *wallets != "" {
		cfg.Analyzer.Wallets = config.SplitWallets(*wallets)
	}

	// Con salida JSON los logs van a stderr para no mezclarse con el reporte.
	var logOut io.Writer = os.Stdout
	if cfg.Report.Format == "json" {
		logOut = os.Stderr
	}
	setupLogger(cfg.Log, logOut)

	if len(cfg.Analyzer.Wallets) == 0 {
		slog.Error("no wallets given: use -wallet, analyzer.wallets or POLYPNL_WALLETS")
		os.Exit(2)
	}

	window, err := reportWindow(cfg, *from, *to, time.Now().UTC())
	if err != nil {
		slog.Error("invalid period", "err", err)
		os.Exit(2)
	}

	slog.Info("polypnl starting",
		"config", *configPath,
		"wallets", len(cfg.Analyzer.Wallets),
		"period", window.Label,
		"offline", *offline,
		"interval", *interval,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	console := notify.NewConsole(cfg.Report.Table)
	if *runs > 0 {
		printRuns(ctx, store, console, cfg.Analyzer.Wallets, *runs)
		return
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	if *metricsAddr != "" {
		srv := serveMetrics(*metricsAddr, registry)
		defer shutdown(srv)
	}

	var notifier ports.Notifier = console
	if cfg.Report.Format == "json" {
		notifier = notify.NewJSON()
	}

	client := polymarket.NewClient(polymarket.Options{
		DataBase:  cfg.API.DataBase,
		CLOBBase:  cfg.API.CLOBBase,
		GammaBase: cfg.API.GammaBase,
		Timeout:   cfg.Timeout(),
	})

	svc := analyzer.New(analyzer.Config{
		Ledger: ledger.Options{
			Dust:                  cfg.Dust(),
			ConversionMinUnitCost: cfg.ConversionMinUnitCost(),
		},
		Report: report.Options{
			Window:     window,
			TopMarkets: cfg.Report.TopMarkets,
			Location:   cfg.Location(),
		},
		Workers: cfg.Analyzer.Workers,
		Offline: *offline,
		Window: func(now time.Time) domain.Window {
			// validada al arrancar
			w, _ := reportWindow(cfg, *from, *to, now.UTC())
			return w
		},
	}, client, client, client, store, notifier, m)

	if err := svc.Run(ctx, cfg.Analyzer.Wallets, *interval); err != nil {
		slog.Error("analysis finished with errors", "err", err)
		os.Exit(1)
	}

	slog.Info("polypnl stopped cleanly")
}

// reportWindow resuelve la ventana: -from/-to tienen prioridad sobre el periodo.
func reportWindow(cfg *config.Config, from, to string, now time.Time) (domain.Window, error) {
	if from != "" || to != "" {
		return report.CustomWindow(from, to, cfg.Location(), now)
	}
	return report.ParsePeriod(cfg.Report.Period, now)
}

func printRuns(ctx context.Context, store ports.Storage, console *notify.Console, wallets []string, limit int) {
	for _, w := range wallets {
		runs, err := store.GetRuns(ctx, w, limit)
		if err != nil {
			slog.Error("failed to load runs", "wallet", w, "err", err)
			os.Exit(1)
		}
		console.PrintRuns(w, runs)
	}
}

func serveMetrics(addr string, registry *prometheus.Registry) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", metrics.Handler(registry))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err)
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("metrics server shutdown", "err", err)
	}
}

func setupLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}
