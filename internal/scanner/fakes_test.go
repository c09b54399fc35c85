package scanner

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"crypto-scanner/internal/depth"
	"crypto-scanner/internal/stream"
)

type fakeConn struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.closed:
		return nil, stream.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out one connection per endpoint, creating it on first dial.
type fakeDialer struct {
	mu        sync.Mutex
	conns     map[string]*fakeConn
	endpoints []string
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: map[string]*fakeConn{}}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (stream.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints = append(d.endpoints, endpoint)
	c, ok := d.conns[endpoint]
	if !ok || c.isClosed() {
		c = newFakeConn()
		d.conns[endpoint] = c
	}
	return c, nil
}

func (d *fakeDialer) conn(endpoint string) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[endpoint]
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.endpoints...)
}

type snapshotReply struct {
	snap depth.Snapshot
	err  error
}

// fakeSource blocks each Depth call until the test sends a reply.
type fakeSource struct {
	replies chan snapshotReply
	calls   chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{replies: make(chan snapshotReply, 4), calls: make(chan string, 16)}
}

func (s *fakeSource) Depth(ctx context.Context, symbol string, limit int) (depth.Snapshot, error) {
	s.calls <- symbol
	select {
	case r := <-s.replies:
		return r.snap, r.err
	case <-ctx.Done():
		return depth.Snapshot{}, ctx.Err()
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
