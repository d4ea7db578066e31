package judgerelay

import (
	"context"
	"errors"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"pkt.systems/judgerelay/adapter"
	"pkt.systems/judgerelay/core"
	"pkt.systems/judgerelay/httpapi"
	"pkt.systems/judgerelay/internal/agent"
	"pkt.systems/judgerelay/internal/browser"
	"pkt.systems/judgerelay/internal/transport"
	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

// Server composes the agent host, the coordinator and the HTTP API.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	// Addr is the bound HTTP address once started.
	Addr() net.Addr
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	HTTP     httpapi.Config
	Workflow schema.WorkflowConfig
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	Browser  browser.Browser
	Adapters *adapter.Registry
	// Sink optionally observes session phase transitions.
	Sink   core.EventSink
	Logger pslog.Logger
}

// New constructs a judgerelay server.
func New(cfg ServerConfig, deps ServerDeps) (Server, error) {
	if deps.Browser == nil {
		return nil, errors.New("browser dependency is required")
	}
	if deps.Adapters == nil || len(deps.Adapters.Sources()) == 0 {
		return nil, errors.New("at least one source adapter is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	sinks := []core.EventSink{sessionLog{log: logger}}
	if deps.Sink != nil {
		sinks = append(sinks, deps.Sink)
	}
	hub := transport.NewHub(logger)
	coordinator, err := core.NewCoordinator(cfg.Workflow, core.CoordinatorDeps{
		Browser:  deps.Browser,
		Channel:  hub,
		Adapters: deps.Adapters,
		Sink:     eventFanout{sinks: sinks},
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return &compositeServer{
		cfg:         cfg,
		host:        agent.NewHost(deps.Browser, hub, deps.Adapters),
		coordinator: coordinator,
		httpSrv:     httpapi.NewServer(cfg.HTTP, coordinator),
		logger:      deps.Logger,
	}, nil
}

type compositeServer struct {
	cfg         ServerConfig
	host        *agent.Host
	coordinator core.Coordinator
	httpSrv     *httpapi.Server
	// logger replaces the context logger when set.
	logger pslog.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	listener net.Listener
	done     chan struct{}
	err      error
	started  bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	if s.logger != nil {
		ctx = pslog.ContextWithLogger(ctx, s.logger)
	}
	listener, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(s.ctx)
	s.group = group
	s.done = make(chan struct{})
	s.started = true

	log := pslog.Ctx(s.ctx)
	log.Info("server start", "http_addr", listener.Addr().String(), "http_base_path", s.cfg.HTTP.BasePath)

	group.Go(func() error {
		return s.host.Run(groupCtx)
	})
	group.Go(func() error {
		if err := httpapi.Serve(groupCtx, listener, s.httpSrv.Handler()); err != nil {
			log.Error("http server failed", "err", err)
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return s.coordinator.Close()
	})
	go func() {
		err := group.Wait()
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	}()
	return nil
}

func (s *compositeServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	done := s.done
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}
	<-done
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		pslog.Ctx(s.ctx).Error("server stopped", "err", err)
	}
	return err
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}
	log := pslog.Ctx(s.ctx)
	log.Info("server stop requested")
	cancel()
	if ctx == nil {
		<-done
		log.Info("server stopped")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}
