package gobroker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/BranchIntl/gobroker/config"
	"github.com/BranchIntl/gobroker/core"
	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/frontend"
	"github.com/BranchIntl/gobroker/reporter"
	"github.com/BranchIntl/gobroker/statistics"
	"github.com/BranchIntl/gobroker/tracing"
	"github.com/BranchIntl/gobroker/transports"
	"github.com/BranchIntl/gobroker/transports/memory"
	"github.com/BranchIntl/gobroker/worker"
)

// Service is a broker wired up from configuration: transport, statistics,
// the HTTP front-end, the reporter and any in-process workers.
type Service struct {
	cfg       *config.Config
	root      *slog.Logger
	logger    *slog.Logger
	transport core.Transport
	stats     core.Statistics
	broker    *core.Broker
	handler   *frontend.Handler
	reporter  *reporter.Reporter

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// New builds a service. Nothing connects until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", errors.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport, err := transports.New(cfg.Transport, logger)
	if err != nil {
		return nil, err
	}

	stats, err := statistics.New(cfg.Statistics)
	if err != nil {
		return nil, err
	}

	broker := core.NewBroker(transport, stats,
		core.WithQueueCapacity(cfg.Broker.QueueCapacity),
		core.WithRegistryCapacity(cfg.Broker.RegistryCapacity),
		core.WithShutdownTimeout(cfg.Broker.ShutdownTimeout),
		core.WithSendTimeout(cfg.Broker.SendTimeout),
		core.WithLogger(logger),
	)

	s := &Service{
		cfg:       cfg,
		root:      logger,
		logger:    logger.With("component", "service"),
		transport: transport,
		stats:     stats,
		broker:    broker,
		ready:     make(chan struct{}),
	}

	opts := frontend.Options{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Logger:         logger,
	}
	if p, ok := statistics.PrometheusBackend(stats); ok {
		opts.Metrics = p.Handler()
		opts.Registerer = p.Registry()
	}
	s.handler = frontend.NewHandler(broker, opts)

	if cfg.Reporter.Enabled {
		s.reporter = reporter.New(broker, stats, cfg.Reporter.Schedule, logger)
	}

	return s, nil
}

// Broker returns the underlying broker
func (s *Service) Broker() *core.Broker {
	return s.broker
}

// Handler returns the HTTP front-end
func (s *Service) Handler() http.Handler {
	return s.handler
}

// Ready is closed once the service accepts requests
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the HTTP listen address once Ready is closed, or nil when the
// front-end is disabled
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run starts everything and blocks until ctx is cancelled, a quit signal
// arrives or the HTTP server fails. Shutdown stops the reporter, then the
// local workers, then the broker and finally the HTTP server.
func (s *Service) Run(ctx context.Context) error {
	ctx, stop := withSignals(ctx)
	defer stop()

	if s.cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(tracing.Options{ServiceName: s.cfg.Tracing.ServiceName, Logger: s.root})
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				s.logger.Error("Error shutting down tracer provider", "error", err)
			}
		}()
	}

	// the loop outlives ctx so departing local workers are still heard
	if err := s.broker.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	if err := s.startLocalWorkers(workersCtx, &workers); err != nil {
		stopWorkers()
		_ = s.broker.Stop()
		return err
	}

	if s.reporter != nil {
		if err := s.reporter.Start(); err != nil {
			stopWorkers()
			workers.Wait()
			_ = s.broker.Stop()
			return err
		}
	}

	serverErr := make(chan error, 1)
	var server *http.Server
	if s.cfg.HTTP.Enabled {
		listener, err := net.Listen("tcp", s.cfg.HTTP.ListenAddr)
		if err != nil {
			s.shutdown(nil, stopWorkers, &workers)
			return errors.NewConnectionError(s.cfg.HTTP.ListenAddr, err)
		}
		s.mu.Lock()
		s.listener = listener
		s.mu.Unlock()

		server = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			s.logger.Info("HTTP front-end listening", "addr", listener.Addr().String())
			if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()
	}

	close(s.ready)

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down...")
	case err := <-serverErr:
		s.logger.Error("HTTP server failed", "error", err)
		runErr = err
	}

	s.shutdown(server, stopWorkers, &workers)
	return runErr
}

func (s *Service) shutdown(server *http.Server, stopWorkers context.CancelFunc, workers *sync.WaitGroup) {
	if s.reporter != nil {
		s.reporter.Stop()
	}

	stopWorkers()
	workers.Wait()

	// fails whatever is still queued or pending, which releases waiting
	// HTTP handlers
	if err := s.broker.Stop(); err != nil {
		s.logger.Error("Error stopping broker", "error", err)
	}

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Broker.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			s.logger.Error("Error shutting down HTTP server", "error", err)
		}
	}
	s.logger.Info("Service stopped")
}

// startLocalWorkers attaches placeholder workers to the memory transport
func (s *Service) startLocalWorkers(ctx context.Context, wg *sync.WaitGroup) error {
	if s.cfg.Worker.Local == 0 {
		return nil
	}
	mt, ok := s.transport.(*memory.Transport)
	if !ok {
		return fmt.Errorf("%w: local workers need the memory transport", errors.ErrInvalidConfig)
	}

	hostname := s.cfg.Worker.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	for i := 0; i < s.cfg.Worker.Local; i++ {
		peer, err := mt.Dial()
		if err != nil {
			return err
		}
		w := worker.New(peer, worker.PlaceholderProcessor{},
			worker.WithHostname(fmt.Sprintf("%s-local-%d", hostname, i)),
			worker.WithLogger(s.root))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				s.logger.Error("Local worker stopped", "hostname", w.Hostname(), "error", err)
			}
		}()
	}
	s.logger.Info("Started local workers", "count", s.cfg.Worker.Local)
	return nil
}
