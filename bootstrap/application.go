package bootstrap

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/najoast/uboss/admin"
	"github.com/najoast/uboss/config"
	"github.com/najoast/uboss/core"
	"github.com/najoast/uboss/logging"
	"github.com/najoast/uboss/service/echo"
	"github.com/najoast/uboss/service/logger"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultApplication implements the Application interface
type DefaultApplication struct {
	cfg        *config.Config
	configFile string

	logger *zap.Logger
	level  *zap.AtomicLevel

	lifecycle *DefaultLifecycleManager
	node      *core.Node
	nodeSvc   *NodeService

	// modules registered on the node by Configure, on top of the built-ins
	modules map[string]core.Module

	mutex        sync.RWMutex
	running      bool
	shutdownChan chan os.Signal
}

// NewApplication creates an unconfigured application.
func NewApplication(log *zap.Logger) *DefaultApplication {
	if log == nil {
		log = zap.NewNop()
	}
	return &DefaultApplication{
		logger:       log,
		lifecycle:    NewLifecycleManager(log),
		modules:      make(map[string]core.Module),
		shutdownChan: make(chan os.Signal, 1),
	}
}

// Configure builds the node from cfg: node options, built-in and extra
// modules, the env store, and the managed services.
func (app *DefaultApplication) Configure(cfg *config.Config) error {
	app.mutex.Lock()
	defer app.mutex.Unlock()

	if app.running {
		return fmt.Errorf("cannot configure application while running")
	}
	if app.node != nil {
		return fmt.Errorf("application already configured")
	}
	if err := cfg.Validate(); err != nil {
		return &ApplicationError{Operation: "configure", Err: err}
	}

	opts := core.NodeOptions{
		Harbor:          uint8(cfg.Node.Harbor),
		Profile:         cfg.Node.Profile,
		Logger:          app.logger.Named("node"),
		MonitorInterval: time.Duration(cfg.Node.MonitorInterval),
		TimerInterval:   time.Duration(cfg.Node.TimerInterval),
	}
	if cfg.Node.ModulePath != "" {
		opts.ModuleLoader = core.PluginLoader(cfg.Node.ModulePath)
	}
	node := core.NewNode(opts)

	modules := map[string]core.Module{
		logger.Name: logger.Module,
		echo.Name:   echo.Module,
	}
	for name, m := range app.modules {
		modules[name] = m
	}
	for name, m := range modules {
		if err := node.Modules().Register(name, m); err != nil {
			return &ApplicationError{Operation: "configure", Err: err}
		}
	}

	for k, v := range cfg.EnvValues() {
		if v == "" {
			continue
		}
		if err := node.Env().Set(k, v); err != nil {
			return &ApplicationError{Operation: "configure", Err: err}
		}
	}

	app.nodeSvc = NewNodeService(node, cfg.Node)
	if err := app.lifecycle.Register(app.nodeSvc.Name(), app.nodeSvc); err != nil {
		return err
	}

	if cfg.Monitor.HTTP.Enabled {
		srv, err := admin.New(node, cfg.Monitor.HTTP, app.logger)
		if err != nil {
			return &ApplicationError{Operation: "configure", Service: "admin", Err: err}
		}
		if err := app.lifecycle.Register("admin", NewAdminService(srv, app.logger), app.nodeSvc.Name()); err != nil {
			return err
		}
	}

	if app.configFile != "" {
		watcher, err := config.NewWatcher(app.configFile, config.NewLoader(), app.logger)
		if err != nil {
			return &ApplicationError{Operation: "configure", Service: "config-watcher", Err: err}
		}
		if app.level != nil {
			logging.Watch(watcher, *app.level, app.logger)
		}
		if err := app.lifecycle.Register("config-watcher", &WatcherService{watcher: watcher}); err != nil {
			return err
		}
	}

	app.cfg = cfg
	app.node = node
	return nil
}

// Run starts every service and blocks until the node has no service left,
// ctx is cancelled, or SIGINT/SIGTERM arrives. SIGHUP is forwarded to the
// log service as signal 1.
func (app *DefaultApplication) Run(ctx context.Context) error {
	app.mutex.Lock()
	if app.node == nil {
		app.mutex.Unlock()
		return fmt.Errorf("application is not configured")
	}
	if app.running {
		app.mutex.Unlock()
		return fmt.Errorf("application is already running")
	}
	app.running = true
	app.mutex.Unlock()

	signal.Notify(app.shutdownChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(app.shutdownChan)

	if err := app.lifecycle.Start(ctx); err != nil {
		app.mutex.Lock()
		app.running = false
		app.mutex.Unlock()
		return fmt.Errorf("failed to start services: %w", err)
	}
	app.logger.Info("application started",
		zap.String("app", app.cfg.App.Name),
		zap.Int("threads", app.cfg.Node.Thread),
		zap.Int("services", app.node.Total()))

	for {
		select {
		case sig := <-app.shutdownChan:
			if sig == syscall.SIGHUP {
				app.reopenLog()
				continue
			}
			app.logger.Info("received shutdown signal", zap.Stringer("signal", sig))
		case <-ctx.Done():
			app.logger.Info("context cancelled, shutting down")
		case <-app.nodeSvc.Done():
			app.logger.Info("no service left, shutting down")
		}
		return app.Shutdown(context.Background())
	}
}

func (app *DefaultApplication) reopenLog() {
	h := app.node.Handles().FindName(logger.Name)
	if h == 0 || !app.node.Signal(h, 1) {
		app.logger.Warn("SIGHUP ignored, no log service")
	}
}

// Shutdown stops every service in reverse start order.
func (app *DefaultApplication) Shutdown(ctx context.Context) error {
	app.mutex.Lock()
	if !app.running {
		app.mutex.Unlock()
		return nil
	}
	app.running = false
	app.mutex.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := app.lifecycle.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop services: %w", err)
	}
	return app.nodeSvc.Err()
}

// Node returns the runtime node, nil before Configure.
func (app *DefaultApplication) Node() *core.Node {
	app.mutex.RLock()
	defer app.mutex.RUnlock()

	return app.node
}

// LifecycleManager returns the lifecycle manager
func (app *DefaultApplication) LifecycleManager() LifecycleManager {
	return app.lifecycle
}

// NodeService runs the node: Start launches the log and bootstrap
// services and starts the scheduler, Stop retires every service and waits
// for the scheduler to exit.
type NodeService struct {
	node *core.Node
	cfg  config.NodeConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
	err     error
}

// NewNodeService creates the service for node.
func NewNodeService(node *core.Node, cfg config.NodeConfig) *NodeService {
	return &NodeService{
		node: node,
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

func (s *NodeService) Name() string {
	return "node"
}

func (s *NodeService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("node already started")
	}
	if err := s.node.Bootstrap(s.cfg.LogService, s.cfg.Logger, s.cfg.Bootstrap); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true
	go func() {
		err := s.node.Run(runCtx, s.cfg.Thread)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	}()
	return nil
}

func (s *NodeService) Stop(ctx context.Context) error {
	s.mu.Lock()
	started, cancel := s.started, s.cancel
	s.mu.Unlock()
	if !started {
		return nil
	}

	cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for node to stop: %w", ctx.Err())
	}
}

// Done is closed when the scheduler has exited.
func (s *NodeService) Done() <-chan struct{} {
	return s.done
}

// Err returns the scheduler's exit error.
func (s *NodeService) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *NodeService) Health(ctx context.Context) (HealthStatus, error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	status := HealthStatus{
		LastCheck: time.Now(),
		Data: map[string]any{
			"services":     s.node.Total(),
			"global_queue": s.node.GlobalQueue().Len(),
		},
	}
	select {
	case <-s.done:
		status.State = HealthStopped
		status.Message = "node stopped"
	default:
		if !started {
			status.State = HealthStarting
			status.Message = "node not started"
		} else {
			status.State = HealthHealthy
			status.Message = "node running"
		}
	}
	return status, nil
}

// AdminService runs the admin HTTP server.
type AdminService struct {
	server *admin.Server
	logger *zap.Logger

	mu      sync.Mutex
	serving bool
	errc    chan error
}

// NewAdminService wraps server.
func NewAdminService(server *admin.Server, log *zap.Logger) *AdminService {
	return &AdminService{server: server, logger: log}
}

func (s *AdminService) Name() string {
	return "admin"
}

func (s *AdminService) Start(ctx context.Context) error {
	if err := s.server.Attach(); err != nil {
		return err
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.server.Addr())
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", s.server.Addr(), err)
	}

	s.mu.Lock()
	s.serving = true
	s.errc = make(chan error, 1)
	errc := s.errc
	s.mu.Unlock()

	go func() {
		err := s.server.Serve(l)
		if err != nil {
			s.logger.Error("admin server stopped", zap.Error(err))
		}
		errc <- err
	}()
	s.logger.Info("admin server listening", zap.String("addr", l.Addr().String()))
	return nil
}

func (s *AdminService) Stop(ctx context.Context) error {
	s.mu.Lock()
	serving, errc := s.serving, s.errc
	s.serving = false
	s.mu.Unlock()
	if !serving {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AdminService) Health(ctx context.Context) (HealthStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.serving {
		return HealthStatus{State: HealthStopped, Message: "admin server not serving", LastCheck: time.Now()}, nil
	}
	return HealthStatus{
		State:     HealthHealthy,
		Message:   "admin server serving",
		LastCheck: time.Now(),
		Data:      map[string]any{"addr": s.server.Addr()},
	}, nil
}

// WatcherService runs the configuration file watcher.
type WatcherService struct {
	watcher *config.Watcher
}

func (s *WatcherService) Name() string {
	return "config-watcher"
}

func (s *WatcherService) Start(ctx context.Context) error {
	return s.watcher.Start()
}

func (s *WatcherService) Stop(ctx context.Context) error {
	return s.watcher.Stop()
}

func (s *WatcherService) Health(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{State: HealthHealthy, Message: "watching config", LastCheck: time.Now()}, nil
}

// ApplicationBuilder helps build and configure applications
type ApplicationBuilder struct {
	app        *DefaultApplication
	cfg        *config.Config
	configFile string
	errs       []error
}

// NewApplicationBuilder creates a new application builder
func NewApplicationBuilder() *ApplicationBuilder {
	return &ApplicationBuilder{app: NewApplication(nil)}
}

// WithLogger sets the process logger and the level that config reloads
// adjust. level may be nil.
func (b *ApplicationBuilder) WithLogger(log *zap.Logger, level *zap.AtomicLevel) *ApplicationBuilder {
	b.app.logger = log
	b.app.level = level
	b.app.lifecycle.logger = log.Named("lifecycle")
	return b
}

// WithConfig sets the configuration
func (b *ApplicationBuilder) WithConfig(cfg *config.Config) *ApplicationBuilder {
	b.cfg = cfg
	return b
}

// WithConfigFile watches filename for changes. Without WithConfig the
// configuration is also loaded from it, or from the search paths when
// filename is empty.
func (b *ApplicationBuilder) WithConfigFile(filename string) *ApplicationBuilder {
	b.configFile = filename
	return b
}

// WithModule registers an extra module on the node.
func (b *ApplicationBuilder) WithModule(name string, m core.Module) *ApplicationBuilder {
	b.app.modules[name] = m
	return b
}

// WithService registers a service
func (b *ApplicationBuilder) WithService(name string, service Service, deps ...string) *ApplicationBuilder {
	if err := b.app.lifecycle.Register(name, service, deps...); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Build builds the configured application
func (b *ApplicationBuilder) Build() (*DefaultApplication, error) {
	if len(b.errs) > 0 {
		return nil, multierr.Combine(b.errs...)
	}

	cfg := b.cfg
	if cfg == nil {
		var err error
		cfg, err = config.NewLoader().Load(b.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}
	b.app.configFile = b.configFile

	if err := b.app.Configure(cfg); err != nil {
		return nil, fmt.Errorf("failed to configure application: %w", err)
	}
	return b.app, nil
}
