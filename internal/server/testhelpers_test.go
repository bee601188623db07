package server

import (
	"net"
	"testing"

	"github.com/gaoyinhao/MiniDB/internal/transport"
)

func listenOnFreePort() (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}

func dialTest(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func mustRun(t *testing.T, pkg *transport.Packager, stat string) string {
	t.Helper()
	if err := pkg.Send([]byte(stat), nil); err != nil {
		t.Fatalf("send %q: %v", stat, err)
	}
	payload, isErr, err := pkg.Receive()
	if err != nil {
		t.Fatalf("receive for %q: %v", stat, err)
	}
	if isErr {
		t.Fatalf("statement %q returned error: %s", stat, payload)
	}
	return string(payload)
}
