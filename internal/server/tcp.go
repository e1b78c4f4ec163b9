package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tcc-gateway/internal/message"
)

// DefaultIdleTimeout closes client connections that send nothing for this long
const DefaultIdleTimeout = 5 * time.Minute

// TCPServer serves the client protocol over TCP, one goroutine per connection
type TCPServer struct {
	addr        string
	dispatcher  *Dispatcher
	logger      zerolog.Logger
	idleTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
	wg       sync.WaitGroup
}

func NewTCPServer(addr string, dispatcher *Dispatcher, logger zerolog.Logger) *TCPServer {
	return &TCPServer{
		addr:        addr,
		dispatcher:  dispatcher,
		logger:      logger.With().Str("component", "tcp").Logger(),
		idleTimeout: DefaultIdleTimeout,
		conns:       make(map[net.Conn]struct{}),
	}
}

// SetIdleTimeout changes the idle timeout for connections accepted afterwards
func (s *TCPServer) SetIdleTimeout(d time.Duration) { s.idleTimeout = d }

// Listen binds the listening socket. Serve calls it when needed. After
// Shutdown it returns net.ErrClosed.
func (s *TCPServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return net.ErrClosed
	}
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown. It returns nil after a shutdown.
func (s *TCPServer) Serve() error {
	if err := s.Listen(); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("TCP server listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go s.handle(conn)
	}
}

func (s *TCPServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *TCPServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *TCPServer) handle(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.logger.Debug().Str("remote", remote).Msg("client connected")

	buf := make([]byte, message.Size)
	for {
		if s.idleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		if _, err := io.ReadFull(conn, buf); err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				s.logger.Debug().Str("remote", remote).Msg("client disconnected")
			case errors.Is(err, io.ErrUnexpectedEOF):
				s.logger.Debug().Str("remote", remote).Msg("client disconnected mid-message")
			default:
				s.logger.Debug().Err(err).Str("remote", remote).Msg("closing client connection")
			}
			return
		}

		if _, err := conn.Write(s.dispatcher.HandleBytes(buf)); err != nil {
			s.logger.Debug().Err(err).Str("remote", remote).Msg("write failed")
			return
		}
	}
}

// Shutdown stops accepting, closes every client connection and waits for
// their goroutines or ctx.
func (s *TCPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
