package base

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/udsrpc/lib/buffer"
	"github.com/ValentinKolb/udsrpc/lib/frame"
	"github.com/ValentinKolb/udsrpc/rpc/common"
	"github.com/ValentinKolb/udsrpc/rpc/transport/sockio"
	"golang.org/x/sys/unix"
)

// --------------------------------------------------------------------------
// Test helpers
// --------------------------------------------------------------------------

// socketPair returns two connected stream sockets closed at the end of the test
func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair failed: %v", err)
	}
	t.Cleanup(func() {
		sockio.Close(fds[0])
		sockio.Close(fds[1])
	})
	return fds[0], fds[1]
}

// clientPair returns a socket pair whose first end is handed to a client transport,
// which closes it on Stop, only the server end is closed at the end of the test
func clientPair(t *testing.T) (*pairConnector, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair failed: %v", err)
	}
	t.Cleanup(func() { sockio.Close(fds[1]) })

	connector := &pairConnector{fds: make(chan int, 1)}
	connector.fds <- fds[0]
	return connector, fds[1]
}

// refusingConnector fails every connect attempt
type refusingConnector struct {
	attempts atomic.Int64
}

func (c *refusingConnector) GetName() string { return "refusing" }

func (c *refusingConnector) Connect(string, common.ClientConfig) (int, error) {
	c.attempts.Add(1)
	return -1, errors.New("connection refused")
}

// pairConnector hands out the client end of a prepared socket pair once
type pairConnector struct {
	fds chan int
}

func (c *pairConnector) GetName() string { return "pair" }

func (c *pairConnector) Connect(string, common.ClientConfig) (int, error) {
	select {
	case fd := <-c.fds:
		return fd, nil
	default:
		return -1, errors.New("no socket left")
	}
}

// testClientConfig returns a client config with short timings
func testClientConfig() common.ClientConfig {
	cfg := common.DefaultClientConfig("test")
	cfg.RetryIntervalMillis = 10
	cfg.PollIntervalMillis = 5
	return cfg
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

// TestStateString tests the names of the connection states
func TestStateString(t *testing.T) {
	if Disconnected.String() != "disconnected" || Connecting.String() != "connecting" || Connected.String() != "connected" {
		t.Error("Unexpected state names")
	}
	if State(42).String() != "unknown" {
		t.Error("Unknown states should be reported as unknown")
	}
}

// TestReadFramesChunked tests that frames written byte by byte are extracted in order
func TestReadFramesChunked(t *testing.T) {
	a, b := socketPair(t)
	if err := unix.SetNonblock(b, true); err != nil {
		t.Fatalf("SetNonblock failed: %v", err)
	}

	var stream []byte
	want := [][]byte{[]byte("first"), {}, bytes.Repeat([]byte("x"), 300), []byte("last")}
	for i, p := range want {
		encoded, err := frame.Encode(uint64(i+1), p)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		stream = append(stream, encoded...)
	}

	buf := buffer.New(buffer.MinCapacity, 0)
	m := common.NewTransportMetrics("readframes-test")

	var got []frame.Frame
	collect := func(f frame.Frame) error {
		got = append(got, frame.Frame{ID: f.ID, Payload: bytes.Clone(f.Payload)})
		return nil
	}

	for _, c := range stream {
		if _, err := unix.Write(a, []byte{c}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if _, err := readFrames(b, buf, m, collect); err != nil {
			t.Fatalf("readFrames failed: %v", err)
		}
	}

	// nothing left to read
	if n, err := readFrames(b, buf, m, collect); n != 0 || err != nil {
		t.Errorf("Expected empty read, got %d bytes (err %v)", n, err)
	}

	if len(got) != len(want) {
		t.Fatalf("Expected %d frames, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != uint64(i+1) || !bytes.Equal(got[i].Payload, want[i]) {
			t.Errorf("Frame %d: expected (%d, %q), got (%d, %q)", i, i+1, want[i], got[i].ID, got[i].Payload)
		}
	}
	if buf.Grows() == 0 {
		t.Error("The 300 byte frame should have grown the minimal buffer")
	}
}

// TestReadFramesErrors tests oversized frames, callback errors and peer shutdown
func TestReadFramesErrors(t *testing.T) {
	m := common.NewTransportMetrics("readframes-test")
	noop := func(frame.Frame) error { return nil }

	t.Run("frame too large", func(t *testing.T) {
		a, b := socketPair(t)
		encoded, _ := frame.Encode(1, make([]byte, 100))
		unix.Write(a, encoded)

		_, err := readFrames(b, buffer.New(64, 64), m, noop)
		if !errors.Is(err, buffer.ErrFrameTooLarge) {
			t.Errorf("Expected ErrFrameTooLarge, got %v", err)
		}
	})

	t.Run("callback error", func(t *testing.T) {
		a, b := socketPair(t)
		encoded, _ := frame.Encode(1, []byte("x"))
		unix.Write(a, encoded)

		boom := errors.New("boom")
		_, err := readFrames(b, buffer.New(0, 0), m, func(frame.Frame) error { return boom })
		if !errors.Is(err, boom) {
			t.Errorf("Expected callback error, got %v", err)
		}
	})

	t.Run("peer closed", func(t *testing.T) {
		a, b := socketPair(t)
		sockio.Shutdown(a)

		_, err := readFrames(b, buffer.New(0, 0), m, noop)
		if !errors.Is(err, sockio.ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	})
}

// TestClientBurstExhausted tests that failed bursts notify the caller and are retried until Stop
func TestClientBurstExhausted(t *testing.T) {
	connector := &refusingConnector{}
	client := NewBaseClientTransport(connector)

	var notified atomic.Int64
	client.OnDisconnect(func() { notified.Add(1) })

	if err := client.Connect(testClientConfig()); err != nil {
		t.Fatalf("Connect should only fail for invalid configs: %v", err)
	}

	if client.IsConnected() {
		t.Error("Client should not be connected")
	}
	if _, err := client.SendRequest([]byte("x"), nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if client.Stats().Pending != 0 {
		t.Error("A failed send must not leave a pending request")
	}

	deadline := time.Now().Add(5 * time.Second)
	for notified.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if notified.Load() < 2 {
		t.Fatalf("Expected at least two disconnect notifications, got %d", notified.Load())
	}
	// initial attempt plus two bursts of two attempts
	if connector.attempts.Load() < 5 {
		t.Errorf("Expected at least 5 connect attempts, got %d", connector.attempts.Load())
	}

	stopped := make(chan struct{})
	go func() {
		client.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	if _, err := client.SendRequest([]byte("x"), nil); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped after Stop, got %v", err)
	}
	if err := client.Connect(testClientConfig()); !errors.Is(err, ErrStopped) {
		t.Errorf("A stopped client cannot be reused, got %v", err)
	}
	client.Stop()
}

// TestClientInvalidConfig tests that Connect rejects configs without endpoint
func TestClientInvalidConfig(t *testing.T) {
	client := NewBaseClientTransport(&refusingConnector{})
	if err := client.Connect(common.ClientConfig{}); err == nil {
		t.Error("Connect without endpoint should fail")
	}
	client.Stop()
}

// TestClientOutOfOrderResponses tests that responses are matched by id regardless of their order
func TestClientOutOfOrderResponses(t *testing.T) {
	connector, serverFd := clientPair(t)

	client := NewBaseClientTransport(connector)
	if err := client.Connect(testClientConfig()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Stop()

	if !client.IsConnected() {
		t.Fatal("Client should be connected after the initial attempt")
	}

	const requests = 50
	var mu sync.Mutex
	results := make(map[uint64]string)
	var wg sync.WaitGroup
	wg.Add(requests)

	ids := make([]uint64, 0, requests)
	for i := 0; i < requests; i++ {
		id, err := client.SendRequest([]byte(fmt.Sprintf("req-%d", i)), func(resp []byte) {
			mu.Lock()
			results[uint64(len(results))] = string(resp)
			mu.Unlock()
			wg.Done()
		})
		if err != nil {
			t.Fatalf("SendRequest failed: %v", err)
		}
		ids = append(ids, id)
	}

	// server side: read all requests, answer them in reverse order
	buf := buffer.New(0, 0)
	var frames []frame.Frame
	for len(frames) < requests {
		if _, err := readFrames(serverFd, buf, common.NewTransportMetrics("pair-test"), func(f frame.Frame) error {
			frames = append(frames, frame.Frame{ID: f.ID, Payload: bytes.Clone(f.Payload)})
			return nil
		}); err != nil {
			t.Fatalf("Server read failed: %v", err)
		}
	}
	for i := len(frames) - 1; i >= 0; i-- {
		resp := append([]byte("resp-"), frames[i].Payload...)
		if err := sockio.WriteFrame(serverFd, frames[i].ID, resp, time.Second); err != nil {
			t.Fatalf("Server write failed: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Only %d of %d callbacks fired", len(results), requests)
	}

	// every request id was sent exactly once and increasing
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("Ids not increasing: %d after %d", ids[i], ids[i-1])
		}
	}
	// responses arrived in reverse order
	mu.Lock()
	defer mu.Unlock()
	if results[0] != fmt.Sprintf("resp-req-%d", requests-1) || results[requests-1] != "resp-req-0" {
		t.Errorf("Unexpected callback order: first %q, last %q", results[0], results[requests-1])
	}
	if client.Stats().Pending != 0 {
		t.Errorf("Expected no pending requests, got %d", client.Stats().Pending)
	}
}

// TestClientDropsPendingOnDisconnect tests that a lost connection flushes pending requests
func TestClientDropsPendingOnDisconnect(t *testing.T) {
	connector, serverFd := clientPair(t)

	client := NewBaseClientTransport(connector)
	disconnected := make(chan struct{}, 1)
	client.OnDisconnect(func() {
		select {
		case disconnected <- struct{}{}:
		default:
		}
	})
	if err := client.Connect(testClientConfig()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Stop()

	for i := 0; i < 3; i++ {
		if _, err := client.SendRequest([]byte("never answered"), func([]byte) {
			t.Error("Callback of a dropped request was invoked")
		}); err != nil {
			t.Fatalf("SendRequest failed: %v", err)
		}
	}
	if client.Stats().Pending != 3 {
		t.Fatalf("Expected 3 pending requests, got %d", client.Stats().Pending)
	}

	// server goes away, the pair connector has no socket left so the burst fails
	sockio.Shutdown(serverFd)

	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("Disconnect notification was not called")
	}

	stats := client.Stats()
	if stats.Connected || stats.Pending != 0 || stats.Evicted < 3 {
		t.Errorf("Unexpected stats after disconnect: %+v", stats)
	}
}
