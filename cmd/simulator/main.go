// Command simulator runs a post-disaster resilience assessment for one
// scenario file and prints the resilience metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/recovery-simulator/internal/config"
	"github.com/signalsfoundry/recovery-simulator/internal/logging"
	"github.com/signalsfoundry/recovery-simulator/internal/observability"
	"github.com/signalsfoundry/recovery-simulator/internal/persistence"
	"github.com/signalsfoundry/recovery-simulator/internal/scenario"
	"github.com/signalsfoundry/recovery-simulator/internal/sim"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	settings, err := config.Load(args, stderr)
	if errors.Is(err, config.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "simulator: %v\n", err)
		return 2
	}
	log := logging.New(settings.Logging(stderr))

	shutdown, err := observability.InitTracing(ctx, settings.TracingConfig(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		return 1
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	if err := assess(ctx, settings, log, stdout); err != nil {
		log.Error(ctx, "assessment failed", logging.String("scenario", settings.Scenario), logging.Err(err))
		return 1
	}
	return 0
}

func assess(ctx context.Context, settings config.Settings, log logging.Logger, stdout io.Writer) error {
	sc, err := scenario.LoadFile(settings.Scenario)
	if err != nil {
		return err
	}

	buildOpts := scenario.BuildOptions{Logger: log, Seed: settings.Seed}
	sysOpts := []sim.Option{
		sim.WithLogger(log),
		sim.WithRelaxation(settings.Relaxation()),
		sim.WithPacing(settings.Pacing),
	}

	var recovery *observability.RecoveryCollector
	if settings.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		dist, err := observability.NewDistributionCollector(reg)
		if err != nil {
			return err
		}
		if recovery, err = observability.NewRecoveryCollector(reg); err != nil {
			return err
		}
		buildOpts.Recorder = dist
		sysOpts = append(sysOpts,
			sim.WithStepObserver(dist.ObserveSystem),
			sim.WithStepObserver(recovery.ObserveSystem),
		)
		srv := serveMetrics(ctx, settings.MetricsAddr, recovery.Handler(), log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var store *persistence.Store
	var runID string
	if settings.DBPath != "" {
		if store, err = persistence.Open(settings.DBPath); err != nil {
			return err
		}
		defer store.Close()
		if runID, err = store.BeginRun(ctx, "", sc.Name, sc.Mode); err != nil {
			return err
		}
		ctx = logging.ContextWithRunID(ctx, runID)
		sysOpts = append(sysOpts, sim.WithStepObserver(store.StepObserver(runID)))
	}

	a, err := sc.Build(buildOpts)
	if err != nil {
		return err
	}
	sys, err := a.System(sysOpts...)
	if err != nil {
		return err
	}
	res, err := sys.Run(ctx)
	if err != nil {
		return err
	}

	recovery.ObserveResult(res)
	if store != nil {
		if err := store.FinishRun(ctx, runID, res); err != nil {
			return err
		}
	}
	return report(stdout, sc, res, a.Calculators)
}

func serveMetrics(ctx context.Context, addr string, h http.Handler, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func report(w io.Writer, sc *scenario.Scenario, res sim.Result, calculators []sim.Calculator) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "scenario\t%s\n", sc.Name)
	fmt.Fprintf(tw, "run\t%s\n", res.RunID)
	fmt.Fprintf(tw, "last time step\t%d\n", res.LastStep)
	fmt.Fprintf(tw, "recovered\t%t\n", res.Finished)
	for _, c := range calculators {
		switch c := c.(type) {
		case *sim.ReCoDeS:
			lack := c.LackOfResilience()
			for _, name := range slices.Sorted(maps.Keys(lack)) {
				fmt.Fprintf(tw, "lack of resilience [%s]\t%g\n", name, lack[name])
			}
		case *sim.FullRecoveryTime:
			if step, ok := c.RecoveryTime(); ok {
				fmt.Fprintf(tw, "full recovery time step\t%d\n", step)
			} else {
				fmt.Fprintf(tw, "full recovery time step\tnot reached\n")
			}
		}
	}
	return tw.Flush()
}
