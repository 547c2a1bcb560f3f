package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riskibarqy/baduk-client/internal/platform/logging"
)

// DiagnosticsHandler serves prometheus metrics from gatherer on /metrics and the runtime
// profiler under /debug/pprof/.
func DiagnosticsHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// StartDiagnosticsServer listens on addr in the background. An empty addr disables it
// and returns a nil server.
func StartDiagnosticsServer(addr string, gatherer prometheus.Gatherer, logger *logging.Logger) *http.Server {
	if logger == nil {
		logger = logging.Default()
	}
	if addr == "" {
		logger.Debug("diagnostics server disabled", "reason", "METRICS_ADDR empty")
		return nil
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           DiagnosticsHandler(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("diagnostics server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("diagnostics server failed", "error", err)
		}
	}()

	return srv
}

func StopDiagnosticsServer(srv *http.Server, logger *logging.Logger, timeout time.Duration) error {
	if srv == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("diagnostics server stopped")

	return nil
}
