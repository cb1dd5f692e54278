package main

import (
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/joshuapare/heapkit/heap/metrics"
	"github.com/joshuapare/heapkit/internal/config"
	"github.com/joshuapare/heapkit/internal/logger"
)

var (
	serveAddr       string
	serveIterations int
)

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the workload continuously and serve Prometheus metrics",
		Long: `The serve command repeats the stress workload round after round and exposes
the allocator, pool and provider metrics at /metrics. It stops on SIGINT or
SIGTERM, or after --iterations rounds when that flag is set.

Example:
  heapctl serve --addr :9464
  heapctl serve --mode pool --iterations 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyStressFlags(cmd, &cfg.Stress)
			if cmd.Flags().Changed("addr") {
				cfg.Metrics.Addr = serveAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd.OutOrStdout(), cfg, serveIterations)
		},
	}
	addStressFlags(cmd)
	cmd.Flags().StringVar(&serveAddr, "addr", "", "Metrics listen address (default from config)")
	cmd.Flags().IntVar(&serveIterations, "iterations", 0, "Stop after this many rounds (0 runs until interrupted)")
	return cmd
}

// metricsHandler routes /metrics to the Prometheus handler of reg.
func metricsHandler(reg *prometheus.Registry) fasthttp.RequestHandler {
	prom := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/metrics":
			prom(ctx)
		case "/healthz":
			ctx.SetContentType("text/plain; charset=utf-8")
			ctx.SetBodyString("ok\n")
		default:
			ctx.Error("not found", fasthttp.StatusNotFound)
		}
	}
}

// newMetricsRegistry wraps c's provider and registers every heapkit
// collector. The returned workload allocates through the wrapped provider.
func newMetricsRegistry(c *config.Config) (*prometheus.Registry, *workload, func() error, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	ns := c.Metrics.Namespace
	p, err := metrics.WrapProvider(c.Provider(), reg, ns)
	if err != nil {
		return nil, nil, nil, err
	}
	w, closeFn := newWorkload(c, p, nil)
	if w.heap != nil {
		err = metrics.RegisterAllocator(reg, ns, w.heap)
	} else {
		err = metrics.RegisterRegistry(reg, ns, w.reg)
	}
	if err != nil {
		_ = closeFn()
		return nil, nil, nil, err
	}
	return reg, w, closeFn, nil
}

func runServe(ctx context.Context, out io.Writer, c *config.Config, iterations int) (err error) {
	log := logger.Named("serve")
	reg, w, closeFn, err := newMetricsRegistry(c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); err == nil {
			err = cerr
		}
	}()

	ln, err := net.Listen("tcp", c.Metrics.Addr)
	if err != nil {
		return errors.Wrapf(err, "serve: listen %s", c.Metrics.Addr)
	}
	srv := &fasthttp.Server{
		Handler: metricsHandler(reg),
		Name:    "heapctl",
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	defer func() {
		if serr := srv.Shutdown(); err == nil && serr != nil {
			err = errors.Wrap(serr, "serve: shutdown")
		}
	}()

	log.Info("serving metrics", zap.String("addr", ln.Addr().String()), zap.String("mode", c.Stress.Mode))
	printInfo(out, "Serving metrics on http://%s/metrics\n", ln.Addr())

	for round := 1; iterations == 0 || round <= iterations; round++ {
		select {
		case <-ctx.Done():
			log.Info("stopping", zap.Int("rounds", round-1))
			return nil
		case err := <-serveErr:
			return errors.Wrap(err, "serve")
		default:
		}

		r, err := w.run()
		if err != nil {
			return err
		}
		log.Debug("round finished",
			zap.Int("round", round),
			zap.Int64("ops", r.Ops),
			zap.Int64("failures", r.Failures),
			zap.Duration("elapsed", r.Elapsed))
		printVerbose(out, "Round %d: %d operations in %v\n", round, r.Ops, r.Elapsed)
	}
	return nil
}
