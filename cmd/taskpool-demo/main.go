// Command taskpool-demo runs a pool against a stream of synthetic,
// randomly failing tasks and exposes its counters over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	tp "github.com/Andrej220/go-utils/taskpool"
	"github.com/Andrej220/go-utils/taskpool/config"
	"github.com/Andrej220/go-utils/taskpool/cronfeed"
	"github.com/Andrej220/go-utils/taskpool/prommetrics"
)

var errSynthetic = errors.New("synthetic failure")

func main() {
	var (
		cfgPath  = flag.String("config", "", "path to a YAML config file")
		tasks    = flag.Int("tasks", 100, "number of synthetic tasks to submit")
		failRate = flag.Float64("fail-rate", 0.2, "probability that a single attempt fails")
		listen   = flag.String("listen", "", "HTTP listen address for /metrics and /stats; overrides http.addr")
	)
	flag.Parse()

	if err := run(*cfgPath, *tasks, *failRate, *listen); err != nil {
		fmt.Fprintln(os.Stderr, "taskpool-demo:", err)
		os.Exit(1)
	}
}

func run(cfgPath string, tasks int, failRate float64, listen string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.HTTP.Addr = listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := lg.FromContext(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	var metrics tp.MetricsPolicy
	if cfg.Metrics.Enabled {
		metrics = prommetrics.New(reg, cfg.Metrics.Namespace, cfg.Name)
	}
	pool := newPool(cfg, metrics)

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		srv = &http.Server{Addr: cfg.HTTP.Addr, Handler: router(pool, reg)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed", lg.Any("error", err))
			}
		}()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	err = pool.Run(shutdownCtx, func(p *tp.Pool) error {
		feed := cronfeed.New(p)
		feed.Context = ctx
		for _, e := range cfg.Cron {
			e := e
			if _, err := feed.Add(e.Spec, func() tp.Job {
				return tp.NewTask(e.Priority, heartbeat(e.Name), tp.WithName(e.Name))
			}); err != nil {
				return fmt.Errorf("cron entry %s: %w", e.Name, err)
			}
		}
		feed.Start()
		defer func() { _ = feed.Stop(shutdownCtx) }()

		return submitSynthetic(ctx, p, cfg, tasks, failRate)
	})

	if srv != nil {
		httpCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(err, srv.Shutdown(httpCtx))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("Graceful shutdown timed out; stopping without draining")
		pool.StopNow()
	}
	return err
}

// newPool builds the demo pool. A signal only stops submitting and
// waiting; tasks already queued or running drain within the shutdown
// timeout, so the pool context is not tied to the signal.
func newPool(cfg config.Config, metrics tp.MetricsPolicy) *tp.Pool {
	opts := cfg.Options()
	opts.Context = context.Background()
	if metrics != nil {
		opts.Metrics = metrics
	}
	return tp.NewPool(cfg.Workers, opts)
}

// submitSynthetic queues the synthetic workload and waits for it, or for
// a signal, whichever comes first.
func submitSynthetic(ctx context.Context, p *tp.Pool, cfg config.Config, n int, failRate float64) error {
	logger := lg.FromContext(ctx)
	rp := cfg.RetryPolicy()

	pending := make([]*tp.Task[int], 0, n)
	for i := 0; i < n; i++ {
		t, err := tp.Submit(p, tp.NewTask(rand.Intn(10), flaky(i, failRate),
			tp.WithRetry(rp),
			tp.WithArgs(i),
			tp.WithName(fmt.Sprintf("synthetic-%d", i)),
		))
		if err != nil {
			return err
		}
		pending = append(pending, t)
	}

	var ok, failed int
	for _, t := range pending {
		if _, err := t.Await(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info("Interrupted; draining queued tasks", lg.Int("completed", ok), lg.Int("failed", failed))
				return nil
			}
			failed++
			continue
		}
		ok++
	}
	logger.Info("Synthetic workload done", lg.Int("completed", ok), lg.Int("failed", failed))
	return nil
}

func flaky(id int, failRate float64) tp.ActionFactory[int] {
	return func() tp.Action[int] {
		return func(ctx context.Context, args tp.Args) (int, error) {
			select {
			case <-time.After(time.Duration(5+rand.Intn(20)) * time.Millisecond):
			case <-ctx.Done():
				return 0, context.Cause(ctx)
			}
			if rand.Float64() < failRate {
				return 0, fmt.Errorf("task %d: %w", id, errSynthetic)
			}
			return args.Positional[0].(int) * 2, nil
		}
	}
}

func heartbeat(name string) tp.ActionFactory[string] {
	return func() tp.Action[string] {
		return func(ctx context.Context, _ tp.Args) (string, error) {
			lg.FromContext(ctx).Info("Heartbeat", lg.String("entry", name))
			return name, nil
		}
	}
}

func router(p *tp.Pool, reg *prometheus.Registry) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, p.Stats())
	})
	r.GET("/healthz", func(c *gin.Context) {
		if p.Stats().Closed {
			c.String(http.StatusServiceUnavailable, "closing")
			return
		}
		c.String(http.StatusOK, "ok")
	})
	return r
}
