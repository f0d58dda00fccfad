package server

import (
	"io"
	"log/slog"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cleanbaja/kvcache/internal/ioengine"
	"github.com/cleanbaja/kvcache/internal/kvconn"
	"github.com/cleanbaja/kvcache/internal/resp"
	"github.com/cleanbaja/kvcache/internal/store"
)

// newTestServer builds a Server with a live engine but skips binding the
// RESP listener — tests drive commands directly through process() against
// a Connection wired to a socketpair, so no accept is needed.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	engine, err := ioengine.New()
	if err != nil {
		t.Skipf("io_uring unavailable in this environment: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	s := &Server{
		engine:      engine,
		connections: make(map[int]*kvconn.Connection),
		store:       store.New(),
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	s.metrics = newMetricsRegistry(s.store.Len)
	return s
}

// readReply drains one reply off the peer end of the socketpair, using the
// same engine under test to submit the recv.
func readReply(t *testing.T, s *Server, peer int) []byte {
	t.Helper()
	done := make(chan []byte, 1)
	ctx := &ioengine.IoContext{Callback: func(kind ioengine.IoKind, userData any, result ioengine.IoResult) error {
		if result.Res < 0 {
			done <- nil
			return nil
		}
		done <- append([]byte(nil), result.Buffer...)
		return nil
	}}
	s.engine.Recv(peer, ctx)
	require.NoError(t, s.engine.flush(true))
	require.NoError(t, s.engine.drain())

	select {
	case b := <-done:
		return b
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
		return nil
	}
}

func newConnPair(t *testing.T, s *Server) (*kvconn.Connection, int) {
	t.Helper()
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
	})
	c := kvconn.New(fds[0], s, s.dispatch)
	s.connections[fds[0]] = c
	return c, fds[1]
}

func TestProcessPingInline(t *testing.T) {
	s := newTestServer(t)
	c, peer := newConnPair(t, s)

	require.NoError(t, s.process(c, []byte("+PING\r\n")))
	require.NoError(t, s.engine.flush(true))
	require.NoError(t, s.engine.drain())

	require.Equal(t, []byte("+PONG\r\n"), readReply(t, s, peer))
}

func TestProcessPingArray(t *testing.T) {
	s := newTestServer(t)
	c, peer := newConnPair(t, s)

	require.NoError(t, s.process(c, []byte("*1\r\n$4\r\nPING\r\n")))
	require.NoError(t, s.engine.flush(true))
	require.NoError(t, s.engine.drain())

	require.Equal(t, []byte("+PONG\r\n"), readReply(t, s, peer))
}

func TestProcessSetThenGet(t *testing.T) {
	s := newTestServer(t)
	c, peer := newConnPair(t, s)

	require.NoError(t, s.process(c, []byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")))
	require.NoError(t, s.engine.flush(true))
	require.NoError(t, s.engine.drain())
	require.Equal(t, []byte("+OK\r\n"), readReply(t, s, peer))

	require.NoError(t, s.process(c, []byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")))
	require.NoError(t, s.engine.flush(true))
	require.NoError(t, s.engine.drain())
	require.Equal(t, []byte("$3\r\nbar\r\n"), readReply(t, s, peer))
}

func TestProcessGetMissingKeyRepliesNilBulk(t *testing.T) {
	s := newTestServer(t)
	c, peer := newConnPair(t, s)

	require.NoError(t, s.process(c, []byte("*2\r\n$3\r\nGET\r\n$7\r\nmissing\r\n")))
	require.NoError(t, s.engine.flush(true))
	require.NoError(t, s.engine.drain())
	require.Equal(t, replyNilBulk, readReply(t, s, peer))
}

func TestProcessCaseInsensitiveCommand(t *testing.T) {
	s := newTestServer(t)
	c, peer := newConnPair(t, s)

	require.NoError(t, s.process(c, []byte("*1\r\n$4\r\npInG\r\n")))
	require.NoError(t, s.engine.flush(true))
	require.NoError(t, s.engine.drain())

	require.Equal(t, []byte("+PONG\r\n"), readReply(t, s, peer))
}

func TestProcessClientStub(t *testing.T) {
	s := newTestServer(t)
	c, peer := newConnPair(t, s)

	require.NoError(t, s.process(c, []byte("*2\r\n$6\r\nCLIENT\r\n$7\r\nSETINFO\r\n")))
	require.NoError(t, s.engine.flush(true))
	require.NoError(t, s.engine.drain())

	require.Equal(t, []byte("+OK\r\n"), readReply(t, s, peer))
}

func TestProcessUnknownCommandRepliesOK(t *testing.T) {
	s := newTestServer(t)
	c, peer := newConnPair(t, s)

	require.NoError(t, s.process(c, []byte("*1\r\n$7\r\nNOTACMD\r\n")))
	require.NoError(t, s.engine.flush(true))
	require.NoError(t, s.engine.drain())

	require.Equal(t, []byte("+OK\r\n"), readReply(t, s, peer))
}

func TestProcessInvalidInputReturnsError(t *testing.T) {
	s := newTestServer(t)
	c, _ := newConnPair(t, s)

	err := s.process(c, []byte("@bogus\r\n"))
	require.Error(t, err)
}

func TestCloseOnProtocolErrorIsolatesConnection(t *testing.T) {
	s := newTestServer(t)
	c, peer := newConnPair(t, s)

	// A protocol error must produce a RESP error reply and close only this
	// connection, never propagate out to the caller.
	s.closeOnProtocolError(c, resp.ErrInvalidInput)
	require.NoError(t, s.engine.flush(true))
	require.NoError(t, s.engine.drain())

	reply := readReply(t, s, peer)
	require.Contains(t, string(reply), "-ERR")
}
