// Package transport implements the broker's raw HTTP/1.1 socket listener
// (spec §4.9 wire protocol). Grounded on
// original_source/backend/gateway/tcp_server.go's timeout-polled accept
// loop (the original parks accept() behind a short timeout so the "kill"
// flag is checked between connections) and client_connection.go's
// one-socket-per-request dispatch, replacing the original's
// one-process-per-connection model with a goroutine per connection.
package transport

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/R3E-Network/resource-broker/internal/gateway"
	"github.com/R3E-Network/resource-broker/internal/logging"
)

// Server accepts raw HTTP/1.1 connections and hands each one's raw
// request bytes to a gateway.Dispatcher.
type Server struct {
	Addr          string
	AcceptTimeout time.Duration
	Dispatcher    *gateway.Dispatcher
	Logger        *logging.Logger

	listener net.Listener
}

// New builds a Server bound to addr (not yet listening).
func New(addr string, acceptTimeout time.Duration, dispatcher *gateway.Dispatcher, logger *logging.Logger) *Server {
	return &Server{Addr: addr, AcceptTimeout: acceptTimeout, Dispatcher: dispatcher, Logger: logger}
}

// Serve opens the listening socket and accepts connections until ctx is
// canceled. Each connection is handled in its own goroutine and the
// socket is closed after a single request, matching the original
// protocol's "Connection: close" contract.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.Logger.WithContext(ctx).WithField("addr", s.Addr).Info("transport listening")

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		tcpListener, ok := listener.(*net.TCPListener)
		if ok {
			tcpListener.SetDeadline(time.Now().Add(s.AcceptTimeout))
		}
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.Logger.WithError(err).Warn("accept failed")
			continue
		}
		go s.handle(ctx, conn)
	}
}

// handle reads one full request off conn, dispatches it, and writes the
// gateway's response before closing the connection.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	raw, err := readRequest(conn)
	if err != nil {
		s.Logger.WithError(err).Warn("failed to read request")
		return
	}

	traceID := logging.NewTraceID()
	reqCtx := logging.WithTraceID(ctx, traceID)

	start := time.Now()
	resp := s.Dispatcher.Handle(reqCtx, raw)
	s.Logger.LogRequest(reqCtx, firstLine(raw), "", resp.StatusCode, time.Since(start))

	conn.Write(encodeResponse(resp))
}

// readRequest reads the raw request bytes (request line, headers and
// body) without consulting Content-Length; reqio.Parse splits on the
// blank line and decodes whatever follows. Reading stops at EOF, at a
// read error, or after a read that returns fewer bytes than the
// 4096-byte chunk buffer.
func readRequest(conn net.Conn) ([]byte, error) {
	reader := bufio.NewReader(conn)
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
		if n < len(chunk) {
			break
		}
	}
	return buf, nil
}

func firstLine(raw []byte) string {
	for i, b := range raw {
		if b == '\r' || b == '\n' {
			return string(raw[:i])
		}
	}
	return string(raw)
}
