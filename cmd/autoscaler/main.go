// Command autoscaler runs one ScalerLoop per configured cluster, exposing
// Prometheus metrics and a liveness endpoint over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vpsie/resource-cluster-autoscaler/internal/clock"
	"github.com/vpsie/resource-cluster-autoscaler/internal/collaborator"
	"github.com/vpsie/resource-cluster-autoscaler/internal/logging"
	"github.com/vpsie/resource-cluster-autoscaler/internal/tracing"
	"github.com/vpsie/resource-cluster-autoscaler/pkg/loop"
	"github.com/vpsie/resource-cluster-autoscaler/pkg/metrics"
	"github.com/vpsie/resource-cluster-autoscaler/pkg/scaler"
)

// Version information, set via ldflags during build.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "autoscaler",
		Short:   "Resource cluster autoscaler: per-SKU scale decisions for one or more clusters",
		Version: fmt.Sprintf("%s (commit %s)", Version, Commit),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.StringSlice("clusters", nil, "cluster IDs to run a ScalerLoop for (comma-separated)")
	flags.String("cluster-state-addr", "http://cluster-state.internal", "base URL of the cluster-state authority")
	flags.String("provisioner-addr", "http://provisioner.internal", "base URL of the provisioner")
	flags.String("rule-storage-addr", "http://rule-storage.internal", "base URL of the rule storage provider")
	flags.Duration("usage-period", 30*time.Second, "interval between usage pulls")
	flags.Duration("rule-refresh-period", 5*time.Minute, "interval between rule set refreshes")
	flags.String("region", "", "region stamped onto outbound scale requests")
	flags.String("env-type", "", "environment type stamped onto outbound scale requests")
	flags.Int("http-port", 8080, "port serving /metrics and /healthz")
	flags.Bool("development", false, "use the colorized development logger instead of JSON production logging")
	flags.String("sentry-dsn", "", "Sentry DSN for error reporting; disabled when empty")
	flags.String("environment", "production", "deployment environment tag attached to reported errors")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("AUTOSCALER")
	v.AutomaticEnv()

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	logger, err := logging.New(v.GetBool("development"))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	tracerCfg := tracing.DefaultConfig()
	tracerCfg.DSN = v.GetString("sentry-dsn")
	tracerCfg.Environment = v.GetString("environment")
	tracerCfg.Release = Version
	tracer, err := tracing.NewTracer(tracerCfg, logger)
	if err != nil {
		return fmt.Errorf("build tracer: %w", err)
	}
	defer tracer.Close()

	clusterIDs := v.GetStringSlice("clusters")
	if len(clusterIDs) == 0 {
		return fmt.Errorf("at least one --clusters entry is required")
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)

	clusterState := collaborator.NewHTTPClusterStateClient(v.GetString("cluster-state-addr"), logger)
	provisioner := collaborator.NewHTTPProvisionerClient(v.GetString("provisioner-addr"), logger)
	ruleStorage := collaborator.NewHTTPRuleStorageClient(v.GetString("rule-storage-addr"), logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loops := make([]*loop.ScalerLoop, 0, len(clusterIDs))
	for _, id := range clusterIDs {
		cfg := loop.Config{
			ClusterID:         scaler.ClusterID(id),
			Region:            v.GetString("region"),
			EnvType:           v.GetString("env-type"),
			UsagePeriod:       v.GetDuration("usage-period"),
			RuleRefreshPeriod: v.GetDuration("rule-refresh-period"),
		}
		l := loop.New(cfg, clock.Real(), clusterState, provisioner, ruleStorage, recorder, logger.With(zap.String("clusterId", id)))
		l.SetTracer(tracer)
		loops = append(loops, l)
	}

	for _, l := range loops {
		l.Start(ctx)
		l.TriggerRuleRefresh()
	}

	srv := newHTTPServer(v.GetInt("http-port"), registry, loops)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited unexpectedly", zap.Error(err))
		}
	}()

	logger.Info("autoscaler started",
		zap.Strings("clusters", clusterIDs),
		zap.Int("httpPort", v.GetInt("http-port")))

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	for _, l := range loops {
		l.Stop()
	}

	logger.Info("autoscaler stopped gracefully")
	return nil
}

func newHTTPServer(port int, registry *prometheus.Registry, loops []*loop.ScalerLoop) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		for _, l := range loops {
			if !l.Healthy() {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unhealthy\n"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
}
