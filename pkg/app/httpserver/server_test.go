package httpserver

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/crowdfund-indexer/pkg/config"
)

func TestNew(t *testing.T) {
	srv := New(config.ServerConfig{Host: "127.0.0.1", Port: 8080}, http.NotFoundHandler())
	if srv.Addr != "127.0.0.1:8080" {
		t.Errorf("Addr = %q", srv.Addr)
	}
	if srv.ReadHeaderTimeout == 0 {
		t.Error("ReadHeaderTimeout must be set")
	}
}

func TestServeAndWait_ShutsDownOnCancel(t *testing.T) {
	srv := New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, http.NotFoundHandler())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeAndWait(ctx, zap.NewNop(), srv, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ServeAndWait() = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("ServeAndWait did not return after cancel")
	}
}

func TestServeAndWait_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	srv := &http.Server{Addr: ln.Addr().String(), Handler: http.NotFoundHandler()}
	if err := ServeAndWait(context.Background(), zap.NewNop(), srv, time.Second); err == nil {
		t.Error("expected an error when the port is taken")
	}
}

func TestServeAndWait_NilServer(t *testing.T) {
	if err := ServeAndWait(context.Background(), zap.NewNop(), nil, time.Second); err == nil {
		t.Error("expected an error for a nil server")
	}
}
