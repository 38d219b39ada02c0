package transport

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/R3E-Network/resource-broker/internal/distlock"
	"github.com/R3E-Network/resource-broker/internal/gateway"
	"github.com/R3E-Network/resource-broker/internal/ledger"
	"github.com/R3E-Network/resource-broker/internal/logging"
)

func TestServeRoundTrip(t *testing.T) {
	dataRoot := t.TempDir()
	store := ledger.NewStore(dataRoot, distlock.NewLocal())
	dispatcher := gateway.New(dataRoot, store)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	srv := New(addr, 200*time.Millisecond, dispatcher, logging.New("test", "error", "text"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("net.Dial: %v", err)
	}
	body := `{"OrganizationName": "uofc", "Entities": []}`
	request := "PUT / HTTP/1.1\r\nHost: x\r\n\r\n" + body
	if _, err := conn.Write([]byte(request)); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
	conn.(*net.TCPConn).CloseWrite()

	out, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("io.ReadAll: %v", err)
	}
	conn.Close()

	if !strings.HasPrefix(string(out), "HTTP/1.1 200") {
		t.Fatalf("unexpected response: %s", out)
	}

	cancel()
	select {
	case <-serveErrCh:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
