// Package server runs the raw TCP front door of the lobby.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// HandlerFunc serves one accepted connection until it closes. The server
// closes nc if the handler has not by the time it stops.
type HandlerFunc func(ctx context.Context, nc net.Conn)

const maxAcceptDelay = time.Second

// TCPServer accepts connections on Addr and hands each to Handler on its own
// goroutine. Live connections are tracked so Stop can close them all.
type TCPServer struct {
	Name    string
	Addr    string
	Handler HandlerFunc

	logger *logrus.Logger

	mu      sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewTCPServer returns a server that is not yet listening.
func NewTCPServer(name, addr string, handler HandlerFunc, logger *logrus.Logger) *TCPServer {
	return &TCPServer{
		Name:    name,
		Addr:    addr,
		Handler: handler,
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Listen binds Addr. Calling it on a running server is an error.
func (s *TCPServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return fmt.Errorf("server %s already running", s.Name)
	}
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}
	s.ln = ln
	s.running.Store(true)
	s.logger.WithField("addr", ln.Addr().String()).Infof("%s server listening", s.Name)
	return nil
}

// ListenAddr returns the bound address, or nil before Listen.
func (s *TCPServer) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe binds Addr and serves until ctx is cancelled or Stop is
// called.
func (s *TCPServer) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop on a listening server. It returns nil once the
// server has stopped and every handler has returned.
func (s *TCPServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("server %s is not listening", s.Name)
	}

	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()

	var delay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			s.logger.WithError(err).Errorf("%s server accept error, retrying in %v", s.Name, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		if !s.track(nc) {
			_ = nc.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(nc)
			s.Handler(ctx, nc)
		}()
	}
}

// Stop closes the listener and every live connection. Safe to call more
// than once.
func (s *TCPServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Swap(false) {
		return
	}
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for nc := range s.conns {
		_ = nc.Close()
	}
	s.logger.WithField("open_connections", len(s.conns)).Infof("%s server stopped", s.Name)
}

// Connections returns the number of live connections.
func (s *TCPServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *TCPServer) track(nc net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.conns[nc] = struct{}{}
	return true
}

func (s *TCPServer) untrack(nc net.Conn) {
	s.mu.Lock()
	delete(s.conns, nc)
	s.mu.Unlock()
	_ = nc.Close()
}
