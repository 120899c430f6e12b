package metricsserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/fedspending/data-broker/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const gracefulShutdownTimeout = 5 * time.Second

type MetricServer struct {
	bindAddress string
	httpServer  *http.Server
	listener    net.Listener
}

// New serves /metrics and /healthz on listener.
func New(bindAddress string, listener net.Listener) (*MetricServer, error) {
	mw := metrics.NewMiddleware("metrics_server")
	if err := mw.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(mw.Handler)
	router.Handle("/metrics", metrics.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &MetricServer{
		bindAddress: bindAddress,
		listener:    listener,
		httpServer: &http.Server{
			Addr:              bindAddress,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves until ctx is done.
func (m *MetricServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		m.httpServer.SetKeepAlivesEnabled(false)
		_ = m.httpServer.Shutdown(ctxTimeout)
		zap.S().Named("metrics_server").Info("metrics server terminated")
	}()

	zap.S().Named("metrics_server").Infof("serving metrics: %s", m.bindAddress)
	if err := m.httpServer.Serve(m.listener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
