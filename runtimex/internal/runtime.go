// Package internal contains the runtime implementation.
package internal

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	coreerrors "go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/core/log"
)

// Service is the interface for services that can be started and stopped.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Server is one HTTP endpoint owned by the runtime.
type Server struct {
	Name    string
	Addr    string
	Handler http.Handler

	srv *http.Server
	ln  net.Listener
}

// Runtime manages the lifecycle of services and servers.
type Runtime struct {
	logger          log.Logger
	services        []Service
	servers         []*Server
	shutdownTimeout time.Duration

	mu      sync.Mutex
	started bool
	serveWG sync.WaitGroup
}

// NewRuntime creates a new runtime instance.
func NewRuntime(logger log.Logger, services []Service, servers []*Server, shutdownTimeout time.Duration) *Runtime {
	return &Runtime{
		logger:          logger,
		services:        services,
		servers:         servers,
		shutdownTimeout: shutdownTimeout,
	}
}

// Start starts all services concurrently, then binds and serves every
// endpoint. A service start failure stops the services that did start.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return coreerrors.New(coreerrors.CodeInternal, "runtime already started")
	}

	r.logger.Info("starting runtime", log.Int("services", len(r.services)), log.Int("servers", len(r.servers)))

	// Services keep ctx after Start returns, so the group's derived
	// context is not handed to them.
	var g errgroup.Group
	for i, svc := range r.services {
		g.Go(func() error {
			if err := svc.Start(ctx); err != nil {
				r.logger.Error(err, "service start failed", log.Int("index", i))
				return err
			}
			r.logger.Info("runtime service started", log.Int("index", i))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = r.stopServices(context.Background())
		return coreerrors.Wrap(coreerrors.CodeInternal, "runtimex.start", err)
	}

	for _, s := range r.servers {
		ln, err := net.Listen("tcp", s.Addr)
		if err != nil {
			r.closeListeners()
			_ = r.stopServices(context.Background())
			return coreerrors.Wrapf(coreerrors.CodeUnavailable, "runtimex.listen", err, "%s server on %s", s.Name, s.Addr)
		}
		s.ln = ln
		s.srv = &http.Server{Handler: s.Handler, ReadHeaderTimeout: 5 * time.Second}
	}

	for _, s := range r.servers {
		r.serveWG.Add(1)
		go func(s *Server) {
			defer r.serveWG.Done()
			r.logger.Info("starting "+s.Name+" server", log.Str("addr", s.ln.Addr().String()))
			if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.logger.Error(err, s.Name+" server failed")
			}
		}(s)
	}

	r.started = true
	r.logger.Info("runtime started successfully")
	return nil
}

// Stop stops services and servers within the shutdown timeout and returns
// every failure joined.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	r.started = false

	r.logger.Info("stopping runtime")
	shutdownCtx, cancel := context.WithTimeout(ctx, r.shutdownTimeout)
	defer cancel()

	err := r.stopServices(shutdownCtx)
	for _, s := range r.servers {
		if serr := s.srv.Shutdown(shutdownCtx); serr != nil {
			r.logger.Error(serr, s.Name+" server shutdown failed")
			err = multierr.Append(err, serr)
		}
	}
	r.serveWG.Wait()

	r.logger.Info("runtime stopped")
	return err
}

// Addr returns the bound address of the named server, or "" before Start.
func (r *Runtime) Addr(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.servers {
		if s.Name == name && s.ln != nil {
			return s.ln.Addr().String()
		}
	}
	return ""
}

func (r *Runtime) stopServices(ctx context.Context) error {
	var (
		mu  sync.Mutex
		err error
		wg  sync.WaitGroup
	)
	for i, svc := range r.services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if serr := svc.Stop(ctx); serr != nil {
				r.logger.Error(serr, "service stop failed", log.Int("index", i))
				mu.Lock()
				err = multierr.Append(err, serr)
				mu.Unlock()
				return
			}
			r.logger.Info("service stopped", log.Int("index", i))
		}()
	}
	wg.Wait()
	return err
}

func (r *Runtime) closeListeners() {
	for _, s := range r.servers {
		if s.ln != nil {
			_ = s.ln.Close()
			s.ln = nil
		}
	}
}
