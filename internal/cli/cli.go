// Package cli wires the tracing, audit and response components into the
// muletrace command surface.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/qtdlabs/muletrace/internal/aggregate"
	"github.com/qtdlabs/muletrace/internal/audit"
	"github.com/qtdlabs/muletrace/internal/config"
	"github.com/qtdlabs/muletrace/internal/emergency"
	"github.com/qtdlabs/muletrace/internal/engine"
	"github.com/qtdlabs/muletrace/internal/filecrypt"
	"github.com/qtdlabs/muletrace/internal/ledger"
	"github.com/qtdlabs/muletrace/internal/notify"
	"github.com/qtdlabs/muletrace/internal/promreg"
	"github.com/qtdlabs/muletrace/internal/score"
	"github.com/qtdlabs/muletrace/internal/tracer"
)

const emergencyLogCapacity = 64

type app struct {
	logger     *logrus.Logger
	cfg        *config.Config
	ledger     *ledger.Store
	tracer     *tracer.Tracer
	audit      *audit.Store
	engine     *engine.Engine
	aggregator *aggregate.Aggregator
	notifier   *notify.Notifier
	codec      *filecrypt.Codec
	metricsSrv *http.Server

	verbose     bool
	dbPath      string
	metricsAddr string
}

// Execute runs the muletrace CLI.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the muletrace command tree.
func NewRootCommand() *cobra.Command {
	a := &app{logger: logrus.New()}

	root := &cobra.Command{
		Use:          "muletrace",
		Short:        "Trace mule flows across transfer graphs and keep a durable audit trail",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.shutdown()
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose output")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "Audit database path (overrides MULETRACE_DB)")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address while the command runs (overrides MULETRACE_METRICS_ADDR)")

	root.AddCommand(
		a.registerCmd(),
		a.detectCmd(),
		a.traceCmd(),
		a.autoTraceCmd(),
		a.freezeCmd(),
		a.recoverCmd(),
		a.revertCmd(),
		a.alertCmd(),
		a.reportCmd(),
		a.historyCmd(),
		a.recentCmd(),
		a.failuresCmd(),
		a.encryptCmd(),
		a.decryptCmd(),
		a.demoCmd(),
	)

	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.verbose {
		cfg.Verbose = true
	}
	if a.metricsAddr != "" {
		cfg.MetricsAddr = a.metricsAddr
	}
	a.cfg = cfg

	if cfg.Verbose {
		a.logger.SetLevel(logrus.DebugLevel)
	}

	auditStore, err := audit.Open(a.logger, cfg.DBPath)
	if err != nil {
		return err
	}
	a.audit = auditStore

	a.ledger = ledger.New()
	a.tracer = tracer.New(a.logger, a.ledger)
	a.aggregator = aggregate.New(a.logger, auditStore)
	a.notifier = notify.New(a.logger, auditStore)
	a.codec = filecrypt.New(cfg.KeyPath)

	var scorer score.Scorer = score.Heuristic{}
	if cfg.ScorerURL != "" {
		scorer = score.NewRemote(a.logger, &http.Client{Timeout: 10 * time.Second}, cfg.ScorerURL)
	}
	a.engine = engine.New(a.logger, a.ledger, a.tracer, auditStore, scorer, emergency.NewLog(emergencyLogCapacity))

	if cfg.MetricsAddr != "" {
		a.serveMetrics(cfg.MetricsAddr)
	}

	return nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promreg.Registry(), promhttp.HandlerOpts{}))
	a.metricsSrv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		a.logger.WithField("addr", addr).Info("Serving metrics...")
		err := a.metricsSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("Metrics server failed")
		}
	}()
}

func (a *app) shutdown() error {
	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(shutdownCtx)
	}
	if a.audit != nil {
		return a.audit.Close()
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
