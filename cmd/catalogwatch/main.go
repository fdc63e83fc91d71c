package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Appile1/FCCU-Advisior/catalog"
	"github.com/Appile1/FCCU-Advisior/config"
	"github.com/Appile1/FCCU-Advisior/feed"
	"github.com/Appile1/FCCU-Advisior/fetch"
	"github.com/Appile1/FCCU-Advisior/models"
	"github.com/Appile1/FCCU-Advisior/store"
)

func main() {
	_ = godotenv.Load()

	defaultCfg := config.DefaultConfig()
	baseURLDefault := defaultCfg.BaseURL
	if value, ok := config.EnvString("CATALOG_BASE_URL"); ok {
		baseURLDefault = value
	}
	dataDirDefault := defaultCfg.DataDir
	if value, ok := config.EnvString("CATALOG_DATA_DIR"); ok {
		dataDirDefault = value
	}
	termDefault := defaultCfg.TermCode
	if value, ok := config.EnvString("CATALOG_TERM"); ok {
		termDefault = value
	}
	feedMaxDefault := defaultCfg.MaxFeedItems
	if value, ok, err := config.EnvInt("CATALOG_MAX_FEED"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid CATALOG_MAX_FEED: %v\n", err)
		os.Exit(1)
	} else if ok {
		feedMaxDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("CATALOG_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	baseURL := flag.String("base-url", baseURLDefault, "Catalog host base URL")
	term := flag.String("term", termDefault, "Term code to fetch (empty = latest)")
	dataDir := flag.String("data-dir", dataDirDefault, "State directory")
	maxFeed := flag.Int("max-feed", feedMaxDefault, "Maximum events retained in the feed")
	timeoutSec := flag.Int("timeout", 30, "HTTP timeout (seconds)")
	maxRetries := flag.Int("max-retries", 2, "Maximum retry attempts per request")
	retryBackoffMs := flag.Int("retry-backoff", 200, "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", 2000, "Maximum retry backoff (milliseconds)")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.BaseURL = *baseURL
	cfg.TermCode = *term
	cfg.DataDir = *dataDir
	cfg.MaxFeedItems = *maxFeed
	cfg.Timeout = time.Duration(*timeoutSec) * time.Second
	cfg.MaxRetries = *maxRetries
	cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(*retryBackoffMaxMs) * time.Millisecond
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := fetch.NewClient(cfg)
	if err != nil {
		slog.Error("initialising fetch client", slog.Any("error", err))
		os.Exit(1)
	}

	st, err := store.New(cfg.DataDir)
	if err != nil {
		slog.Error("initialising store", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(client.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	result, err := run(ctx, cfg, client, st)
	if err != nil {
		slog.Error("run failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result)
}

// run performs one watch cycle: fetch, extract, diff, persist.
func run(ctx context.Context, cfg *config.Config, client *fetch.Client, st *store.Store) (*models.RunResult, error) {
	start := time.Now()

	sess, err := client.Bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap session: %w", err)
	}

	term, err := chooseTerm(cfg, sess)
	if err != nil {
		return nil, err
	}
	slog.Info("fetching catalog grid",
		slog.String("term_code", term.TermCode),
		slog.String("term_name", term.TermName),
	)

	markup, err := client.FetchGrid(ctx, sess, term)
	if err != nil {
		return nil, fmt.Errorf("fetch grid for %s: %w", term.TermCode, err)
	}

	extracted, err := catalog.Extract(markup)
	if err != nil {
		return nil, fmt.Errorf("extract sections: %w", err)
	}
	snapshot := &models.Snapshot{
		TermCode: term.TermCode,
		TermName: term.TermName,
		Courses:  extracted.Records,
	}

	previousRecords, err := st.LoadPreviousState()
	if err != nil {
		return nil, fmt.Errorf("load previous state: %w", err)
	}
	previous := &models.Snapshot{Courses: previousRecords}

	events := feed.Diff(previous, snapshot, time.Now())

	existing, err := st.LoadFeed()
	if err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	if err := st.SaveFeed(feed.Merge(existing, events, cfg.MaxFeedItems)); err != nil {
		return nil, fmt.Errorf("save feed: %w", err)
	}

	if err := st.SaveSnapshot(snapshot); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	if err := st.SavePreviousState(snapshot.Courses); err != nil {
		return nil, fmt.Errorf("save previous state: %w", err)
	}
	if err := st.SaveLatestTerm(term); err != nil {
		return nil, fmt.Errorf("save latest term: %w", err)
	}
	if err := st.SaveInstructors(extracted.Instructors); err != nil {
		return nil, fmt.Errorf("save instructors: %w", err)
	}

	return &models.RunResult{
		TermCode:     term.TermCode,
		TermName:     term.TermName,
		StartTime:    start,
		EndTime:      time.Now(),
		SectionCount: len(extracted.Records),
		SkippedRows:  extracted.SkippedRows,
		EventCount:   len(events),
		EventsByType: feed.CountByType(events),
		Instructors:  len(extracted.Instructors),
		FirstRun:     previous.Len() == 0,
	}, nil
}

// chooseTerm resolves the term to fetch: an explicit override when given,
// otherwise the newest term the catalog page offers.
func chooseTerm(cfg *config.Config, sess *fetch.Session) (models.TermRef, error) {
	if cfg.TermCode != "" {
		if term, ok := sess.FindTerm(cfg.TermCode); ok {
			return term, nil
		}
		// The page no longer lists the requested term; fetch it anyway.
		return models.TermRef{TermCode: cfg.TermCode}, nil
	}

	term, ok := sess.LatestTerm()
	if !ok {
		return models.TermRef{}, fmt.Errorf("no selectable term found")
	}
	return term, nil
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler), level
}

func printSummary(result *models.RunResult) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Catalog watch complete")
	fmt.Printf("Term:         %s (%s)\n", result.TermName, result.TermCode)
	fmt.Printf("Sections:     %d (skipped rows: %d)\n", result.SectionCount, result.SkippedRows)
	fmt.Printf("Instructors:  %d\n", result.Instructors)
	if result.FirstRun {
		fmt.Println("First run for this state; no events emitted")
	} else {
		fmt.Printf("Events:       %d\n", result.EventCount)
		for kind, count := range result.EventsByType {
			fmt.Printf("  %-20s %d\n", kind, count)
		}
	}
	fmt.Printf("Duration:     %s\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Println(separator)
}
