// Fieldgovd is the field governance daemon: it validates admin schema
// change requests against the tracker's custom-field catalog, provisions
// approved fields through an orchestrated write sequence, and sweeps
// existing tickets for hygiene violations.
//
// Configuration comes from an optional YAML file overlaid with environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon
//	fieldgovd serve --config /etc/fieldgov/config.yaml
//
//	# Run one governance sweep and exit
//	fieldgovd sweep --config /etc/fieldgov/config.yaml
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
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fieldgov/internal/catalog"
	"github.com/fyrsmithlabs/fieldgov/internal/config"
	"github.com/fyrsmithlabs/fieldgov/internal/dedup"
	"github.com/fyrsmithlabs/fieldgov/internal/httpapi"
	"github.com/fyrsmithlabs/fieldgov/internal/logging"
	"github.com/fyrsmithlabs/fieldgov/internal/orchestrator"
	"github.com/fyrsmithlabs/fieldgov/internal/policy"
	"github.com/fyrsmithlabs/fieldgov/internal/sweep"
	"github.com/fyrsmithlabs/fieldgov/internal/worker"
	"github.com/fyrsmithlabs/fieldgov/pkg/jira"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fieldgovd",
	Short: "Field governance and orchestration daemon",
	Long: `fieldgovd validates admin change requests against the tracker's
custom-field catalog, provisions approved fields with idempotent retries
and rollback, and runs periodic governance sweeps over existing tickets.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return runServe(ctx)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one governance sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweepOnce(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fieldgovd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(versionCmd)
}

// services holds everything runServe and runSweepOnce wire together.
type services struct {
	cfg     *config.Config
	logger  *zap.Logger
	client  *jira.Client
	engine  *orchestrator.Engine
	sweeper *sweep.Driver
}

// initServices loads config and builds the full dependency graph:
// tracker client, catalog reader, duplicate detector, policy engines,
// orchestration engine, and sweep driver.
func initServices() (*services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	client, err := jira.NewClient(jira.Config{
		BaseURL:           cfg.Jira.BaseURL,
		Email:             cfg.Jira.Email,
		APIToken:          cfg.Jira.APIToken,
		BearerToken:       cfg.Jira.BearerToken,
		Timeout:           cfg.Jira.Timeout,
		RequestsPerSecond: cfg.Jira.RequestsPerSecond,
	}, logger.Named("jira"))
	if err != nil {
		return nil, fmt.Errorf("creating tracker client: %w", err)
	}

	reader := catalog.NewReader(catalog.NewJiraSource(client), cfg.Catalog.TTL, logger.Named("catalog"))
	reader.SetMetrics(catalog.NewMetrics())

	detector := dedup.NewDetector(cfg.Governance.SimilarityThreshold)

	requestPolicy, err := policy.NewEngine(policy.RequestRules(policy.RequestRuleConfig{
		ReservedNames: cfg.Governance.ReservedNames,
		MaxOptions:    cfg.Governance.MaxOptions,
	}), logger.Named("policy"))
	if err != nil {
		return nil, fmt.Errorf("building request rules: %w", err)
	}

	hygienePolicy, err := policy.NewEngine(policy.HygieneRules(policy.HygieneRuleConfig{
		StaleAfter: cfg.Sweep.StaleAfter,
	}), logger.Named("policy"))
	if err != nil {
		return nil, fmt.Errorf("building hygiene rules: %w", err)
	}

	engine := orchestrator.NewEngine(reader, detector, requestPolicy, client, orchestrator.Config{
		Screens:      cfg.Governance.Screens,
		DefaultOwner: cfg.Sweep.DefaultOwner,
		DefaultLabel: cfg.Sweep.DefaultLabel,
		Retry: orchestrator.RetryConfig{
			MaxRetries:        cfg.Upstream.MaxRetries,
			InitialBackoff:    cfg.Upstream.InitialBackoff,
			MaxBackoff:        cfg.Upstream.MaxBackoff,
			BackoffMultiplier: cfg.Upstream.BackoffMultiplier,
		},
	}, logger.Named("orchestrator"))
	engine.SetMetrics(orchestrator.NewMetrics())

	sweeper := sweep.NewDriver(hygienePolicy, engine, client, sweep.Config{
		JQL:        cfg.Sweep.JQL,
		BatchLimit: cfg.Sweep.BatchLimit,
	}, logger.Named("sweep"))
	sweeper.SetMetrics(sweep.NewMetrics())

	return &services{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		engine:  engine,
		sweeper: sweeper,
	}, nil
}

// runServe starts the worker pool, HTTP ingress, and sweep scheduler, then
// blocks until the context is cancelled and everything has drained.
func runServe(ctx context.Context) error {
	svc, err := initServices()
	if err != nil {
		return err
	}
	logger := svc.logger
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting fieldgovd",
		zap.String("version", version),
		zap.Int("port", svc.cfg.Server.Port),
		zap.Int("workers", svc.cfg.Worker.Count),
		zap.Bool("sweep_enabled", svc.cfg.Sweep.Enabled),
	)

	pool := worker.NewPool(svc.engine, svc.client, worker.Config{
		Count:     svc.cfg.Worker.Count,
		QueueSize: svc.cfg.Worker.QueueSize,
	}, logger.Named("worker"))

	// The pool gets its own context so queued requests can still finish
	// during shutdown after the serve context is cancelled. The drain is
	// bounded by the shutdown timeout below.
	poolCtx, poolCancel := context.WithCancel(context.Background())
	defer poolCancel()
	pool.Start(poolCtx)

	srv, err := httpapi.NewServer(pool, svc.sweeper, logger.Named("http"), &httpapi.Config{
		Host:   svc.cfg.Server.Host,
		Port:   svc.cfg.Server.Port,
		Secret: svc.cfg.Webhook.Secret,
	})
	if err != nil {
		pool.Stop()
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if svc.cfg.Sweep.Enabled {
		go runSweepLoop(ctx, svc, logger)
	}

	select {
	case err := <-errCh:
		pool.Stop()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), svc.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}

	go func() {
		<-shutdownCtx.Done()
		poolCancel()
	}()
	pool.Stop()
	logger.Info("shutdown complete")
	return nil
}

// runSweepLoop invokes the sweep driver on the configured interval until
// the context is cancelled.
func runSweepLoop(ctx context.Context, svc *services, logger *zap.Logger) {
	ticker := time.NewTicker(svc.cfg.Sweep.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcomes, err := svc.sweeper.Sweep(ctx)
			if err != nil {
				logger.Warn("scheduled sweep failed", zap.Error(err))
				continue
			}
			logger.Info("scheduled sweep complete", zap.Int("records", len(outcomes)))
		}
	}
}

// runSweepOnce runs a single sweep batch and prints the per-record
// outcomes.
func runSweepOnce(ctx context.Context) error {
	svc, err := initServices()
	if err != nil {
		return err
	}
	defer func() {
		_ = svc.logger.Sync()
	}()

	outcomes, err := svc.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	for _, o := range outcomes {
		if len(o.Findings) == 0 {
			continue
		}
		fmt.Printf("%s: %d finding(s), %d remediated\n", o.IssueKey, len(o.Findings), len(o.Remediated))
		for _, f := range o.Findings {
			fmt.Printf("  [%s] %s\n", f.Severity, f.Message)
		}
		if o.Err != nil {
			fmt.Printf("  remediation error: %v\n", o.Err)
		}
	}
	fmt.Printf("swept %d record(s)\n", len(outcomes))
	return nil
}
