package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"outcode-retriever/config"
	"outcode-retriever/models"
	"outcode-retriever/outcodes"
	"outcode-retriever/requester"
	"outcode-retriever/scraper/rightmove"
	"outcode-retriever/services"
	"outcode-retriever/storage"
	"outcode-retriever/utils"
	"outcode-retriever/worker"
)

func main() {
	// Ctrl-C cancels in-flight requests; RetrieveAll still reports every unit.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

type runFlags struct {
	kind       string
	resetLog   bool
	maxRetries int
	tags       map[string]string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "outcode-retriever",
		Short:        "Retrieve property listings per postal outcode",
		SilenceUsage: true,
		Version:      config.Version,
	}
	root.AddCommand(newAllCmd(), newUnitCmd(), newOutcodesCmd())
	return root
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().StringVar(&f.kind, "kind", "forsale", "listing kind: forsale or torent")
	cmd.Flags().BoolVar(&f.resetLog, "reset-log", false, "drop and recreate the access log table first")
	cmd.Flags().StringToStringVar(&f.tags, "tag", nil, "extra retrieval metadata tag key=value")
}

func newAllCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Retrieve every known outcode, retrying failures",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := models.ParseListingKind(f.kind)
			if err != nil {
				return err
			}
			a, err := setup(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer a.close()

			maxRetries := a.cfg.Worker.MaxRetries
			if f.maxRetries > 0 {
				maxRetries = f.maxRetries
			}
			report := a.worker.RetrieveAll(cmd.Context(), kind, f.tags, maxRetries, a.cfg.RetryPause())
			a.summary.Print(os.Stdout, report)
			return nil
		},
	}
	addRunFlags(cmd, f)
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", 0, "attempts per outcode (default from config)")
	return cmd
}

func newUnitCmd() *cobra.Command {
	f := &runFlags{}
	var outcodeID int
	cmd := &cobra.Command{
		Use:   "unit",
		Short: "Retrieve a single outcode once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := models.ParseListingKind(f.kind)
			if err != nil {
				return err
			}
			a, err := setup(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer a.close()

			unit, ok := a.outcodes.Lookup(outcodeID)
			if !ok {
				a.logger.Warn("Outcode %d is not in the configured set; retrieving it without a postcode tag", outcodeID)
				unit = models.Outcode{ID: outcodeID}
			}

			ids, err := a.worker.RetrieveUnit(cmd.Context(), unit, kind, f.tags)
			entry := models.AccessEntry{Outcode: unit.ID, PropertyType: kind}
			if err != nil {
				entry.Result = err.Error()
			} else {
				entry.Success = true
				entry.Result = fmt.Sprintf("Retrieved %d entries of type %s", len(ids), kind.Collection())
			}
			if logErr := a.accessLog.Log(context.WithoutCancel(cmd.Context()), entry); logErr != nil {
				a.logger.Error("Could not write access log row: %v", logErr)
			}
			if err != nil {
				return err
			}
			a.logger.Info("Stored %d %s records for outcode %d", len(ids), kind.Collection(), unit.ID)
			return nil
		},
	}
	addRunFlags(cmd, f)
	cmd.Flags().IntVar(&outcodeID, "outcode", 0, "outcode id to retrieve")
	_ = cmd.MarkFlagRequired("outcode")
	return cmd
}

func newOutcodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outcodes",
		Short: "List the configured outcodes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			set, err := loadOutcodes(cfg.OutcodesFile)
			if err != nil {
				return err
			}
			for _, o := range set.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%6d  %s\n", o.ID, o.Code)
			}
			return nil
		},
	}
}

func loadOutcodes(path string) (*outcodes.Set, error) {
	if path == "" {
		return outcodes.Default()
	}
	return outcodes.Load(path)
}

// app holds everything a retrieval command needs.
type app struct {
	cfg       *config.Config
	logger    *utils.Logger
	outcodes  *outcodes.Set
	worker    *worker.Worker
	summary   *services.SummaryService
	accessLog *storage.TableLog
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setup(ctx context.Context, f *runFlags) (_ *app, err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := utils.NewLoggerWithOptions(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	logger.Info("=== Outcode retriever %s starting ===", config.Version)
	logger.Info("Config: fetch mode %s | per page %d | store %s | access log %s (%s)",
		cfg.Fetch.Mode, cfg.Fetch.PerPage, cfg.Store.Backend, cfg.AccessLog.Driver, cfg.AccessLog.Table)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if a.outcodes, err = loadOutcodes(cfg.OutcodesFile); err != nil {
		return nil, err
	}

	// One limiter shared by every outbound call of the process.
	limiter := requester.NewLimiter(requester.Limits{
		PerSecond: cfg.Limits.PerSecond,
		PerMinute: cfg.Limits.PerMinute,
		PerHour:   cfg.Limits.PerHour,
		PerDay:    cfg.Limits.PerDay,
		PerMonth:  cfg.Limits.PerMonth,
		PerYear:   cfg.Limits.PerYear,
	}, logger)

	var transport requester.Transport = &http.Client{Timeout: cfg.HTTPTimeout()}
	if cfg.Fetch.Mode == "browser" {
		bt, err := requester.NewBrowserTransport(cfg.Fetch.ChromeBin, cfg.Requester.UserAgent, cfg.HTTPTimeout(), logger)
		if err != nil {
			logger.Error("Failed to start browser: %v", err)
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = bt.Close() })
		transport = bt
	}

	req := requester.New(requester.Options{
		UserAgent:   cfg.Requester.UserAgent,
		RequestFrom: cfg.Requester.RequestFrom,
		Limiter:     limiter,
		Transport:   transport,
		Logger:      logger,
	})

	sources := make(map[models.ListingKind]worker.PageSource)
	for _, kind := range []models.ListingKind{models.ForSale, models.ToRent} {
		g, err := rightmove.NewGetter(req, kind, rightmove.GetterOptions{
			Retries:     cfg.Fetch.PageRetries,
			Pause:       cfg.PageRetryPause(),
			IncludeSSTC: cfg.Fetch.IncludeSSTC,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		sources[kind] = worker.FromGetter(g)
	}

	var store storage.PropertyStore
	switch cfg.Store.Backend {
	case "memory":
		logger.Warn("Using the in-memory store; records are discarded on exit")
		store = storage.NewMemoryStore()
	default:
		connectCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		ms, err := storage.NewMongoStore(connectCtx, cfg.Store.MongoURI, cfg.Store.MongoDB, logger)
		if err != nil {
			logger.Error("Failed to connect to MongoDB: %v", err)
			return nil, err
		}
		store = ms
	}
	a.closers = append(a.closers, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = store.Close(closeCtx)
	})

	accessLog, err := storage.OpenAccessLog(cfg.AccessLog.Driver, cfg.AccessLog.DSN, logger)
	if err != nil {
		logger.Error("Failed to open access log: %v", err)
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = accessLog.Close() })
	if f.resetLog {
		if err := accessLog.Recreate(ctx, cfg.AccessLog.Table); err != nil {
			return nil, err
		}
	}
	a.accessLog = accessLog.Table(cfg.AccessLog.Table)

	vocab, err := services.LoadVocabulary(cfg.VocabularyFile)
	if err != nil {
		return nil, err
	}
	classifier, err := services.NewClassifier(vocab, rightmove.BaseURL, logger)
	if err != nil {
		return nil, err
	}

	var issues storage.IssueWriter
	if cfg.IssuesCSV != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.IssuesCSV)
		if err != nil {
			logger.Error("Failed to create CSV writer: %v", err)
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = csvWriter.Close() })
		issues = csvWriter
		logger.Info("Classification issues → %s", cfg.IssuesCSV)
	}

	a.summary = services.NewSummaryService(logger)
	a.worker, err = worker.New(worker.Options{
		Sources:     sources,
		Store:       store,
		AccessLog:   a.accessLog,
		Outcodes:    a.outcodes,
		Classifier:  classifier,
		Issues:      issues,
		Summary:     a.summary,
		PerPage:     cfg.Fetch.PerPage,
		Concurrency: cfg.Worker.MaxConcurrency,
		UserAgent:   cfg.Requester.UserAgent,
		RequestFrom: cfg.Requester.RequestFrom,
		Version:     config.Version,
		Location:    loc,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
