package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/facebookgo/httpdown"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	cfg := defaultConfig()
	cfg.registerFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(2)
	}

	log := newLogger(cfg, os.Stderr)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("relayhub stopped")
	}
}

func run(cfg *config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.New()
	m := newMetrics(gometrics.NewRegistry())
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		m.collector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var s sink = logSink{log: log}
	if cfg.statsDir != "" {
		fs, err := newFileSink(cfg.statsDir)
		if err != nil {
			return err
		}
		s = fs
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.statsRate), cfg.statsBurst)
	st := newStats(s, clk, limiter, log.WithField("component", "stats"))

	r := newRelay(cfg, clk, m, log)
	server := &http.Server{
		Addr:    cfg.addr,
		Handler: newHandler(r, st, promReg),
	}
	hd := &httpdown.HTTP{
		StopTimeout: cfg.stopTimeout,
		KillTimeout: cfg.killTimeout,
	}
	srv, err := hd.ListenAndServe(server)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.addr, err)
	}
	log.WithField("addr", cfg.addr).Info("listening")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Wait)
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return srv.Stop()
	})
	g.Go(func() error {
		return st.run(ctx, cfg.statsInterval)
	})
	g.Go(func() error {
		w := log.WriterLevel(logrus.InfoLevel)
		defer w.Close()
		return m.report(ctx, clk, cfg.metricsTick, w)
	})
	return g.Wait()
}
