package unix

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/udsrpc/rpc/common"
	"github.com/ValentinKolb/udsrpc/rpc/transport"
	"github.com/ValentinKolb/udsrpc/rpc/transport/base"
)

// --------------------------------------------------------------------------
// Test helpers
// --------------------------------------------------------------------------

// socketPath returns a fresh socket path in a temporary directory
func socketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "t.sock")
}

// upper answers with the upper case request
func upper(req []byte) []byte {
	return bytes.ToUpper(req)
}

// multiply answers a decimal number with ten times its value
func multiply(req []byte) []byte {
	n, err := strconv.ParseUint(string(req), 10, 64)
	if err != nil {
		return []byte("NaN")
	}
	return []byte(strconv.FormatUint(n*10, 10))
}

// startServer starts a server on path and waits until it accepts connections
func startServer(t *testing.T, path string, handler transport.ServerHandleFunc, configure ...func(*common.ServerConfig)) transport.IRPCServerTransport {
	t.Helper()

	cfg := common.DefaultServerConfig(path)
	cfg.PollIntervalMillis = 5
	for _, c := range configure {
		c(&cfg)
	}

	srv := NewUnixServerTransport()
	srv.RegisterHandler(handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(cfg)
	}()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		t.Fatalf("Listen failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not become ready")
	}

	t.Cleanup(func() { srv.Stop() })
	return srv
}

// startClient connects a client with short retry timings
func startClient(t *testing.T, path string, configure ...func(*common.ClientConfig)) transport.IRPCClientTransport {
	t.Helper()

	cfg := common.DefaultClientConfig(path)
	cfg.RetryIntervalMillis = 20
	cfg.PollIntervalMillis = 5
	for _, c := range configure {
		c(&cfg)
	}

	client := NewUnixClientTransport()
	if err := client.Connect(cfg); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(client.Stop)
	return client
}

// call sends one request and waits for its response
func call(t *testing.T, client transport.IRPCClientTransport, req []byte) []byte {
	t.Helper()

	respCh := make(chan []byte, 1)
	if _, err := client.SendRequest(req, func(resp []byte) { respCh <- resp }); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	select {
	case resp := <-respCh:
		return resp
	case <-time.After(5 * time.Second):
		t.Fatalf("No response for %q", req)
		return nil
	}
}

// waitFor polls cond until it holds or the timeout passes
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

// TestUpperCase tests a single request/response exchange
func TestUpperCase(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, upper)
	client := startClient(t, path)

	if !client.IsConnected() {
		t.Fatal("Client should be connected")
	}
	if resp := call(t, client, []byte("abc")); string(resp) != "ABC" {
		t.Errorf("Expected %q, got %q", "ABC", resp)
	}
}

// TestZeroLengthPayload tests that empty requests and responses are delivered
func TestZeroLengthPayload(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, func(req []byte) []byte {
		if len(req) == 0 {
			return nil
		}
		return []byte("unexpected")
	})
	client := startClient(t, path)

	if resp := call(t, client, nil); len(resp) != 0 {
		t.Errorf("Expected an empty response, got %q", resp)
	}
}

// TestLargePayload tests payloads far above the initial buffer size on both sides
func TestLargePayload(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, func(req []byte) []byte { return req })
	client := startClient(t, path)

	payload := bytes.Repeat([]byte("0123456789abcdef"), 64*1024) // 1 MiB
	resp := call(t, client, payload)
	if !bytes.Equal(resp, payload) {
		t.Errorf("Echoed payload differs (%d bytes sent, %d received)", len(payload), len(resp))
	}

	// the connection keeps working with small frames after growing
	if resp := call(t, client, []byte("small")); string(resp) != "small" {
		t.Errorf("Expected %q, got %q", "small", resp)
	}
}

// TestConcurrentRequests tests three goroutines with 10,000 requests each against one client
func TestConcurrentRequests(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, multiply)
	client := startClient(t, path)

	const workers = 3
	const perWorker = 10000
	const total = workers * perWorker

	calls := make([]atomic.Int32, total)
	var wrong atomic.Int64
	var done sync.WaitGroup
	done.Add(total)

	var idsMu sync.Mutex
	ids := make(map[uint64]bool, total)

	var senders sync.WaitGroup
	for w := 0; w < workers; w++ {
		senders.Add(1)
		go func(w int) {
			defer senders.Done()
			for i := 0; i < perWorker; i++ {
				value := uint64(w*perWorker + i)
				id, err := client.SendRequest([]byte(strconv.FormatUint(value, 10)), func(resp []byte) {
					if string(resp) != strconv.FormatUint(value*10, 10) {
						wrong.Add(1)
					}
					calls[value].Add(1)
					done.Done()
				})
				if err != nil {
					t.Errorf("SendRequest %d failed: %v", value, err)
					done.Done()
					continue
				}
				idsMu.Lock()
				if ids[id] {
					t.Errorf("Id %d returned twice", id)
				}
				ids[id] = true
				idsMu.Unlock()
			}
		}(w)
	}
	senders.Wait()

	finished := make(chan struct{})
	go func() {
		done.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(30 * time.Second):
		t.Fatalf("Not all callbacks fired, %d requests pending", client.Stats().Pending)
	}

	if wrong.Load() != 0 {
		t.Errorf("%d responses did not match ten times their request", wrong.Load())
	}
	for v := range calls {
		if n := calls[v].Load(); n != 1 {
			t.Fatalf("Callback for value %d fired %d times", v, n)
		}
	}
	if len(ids) != total {
		t.Errorf("Expected %d unique ids, got %d", total, len(ids))
	}
}

// TestReconnectAfterServerRestart tests disconnect detection, the burst notification and recovery
func TestReconnectAfterServerRestart(t *testing.T) {
	path := socketPath(t)
	srv := startServer(t, path, upper)

	client := NewUnixClientTransport()
	var notified atomic.Int64
	client.OnDisconnect(func() { notified.Add(1) })

	cfg := common.DefaultClientConfig(path)
	cfg.RetryIntervalMillis = 20
	cfg.PollIntervalMillis = 5
	if err := client.Connect(cfg); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Stop()

	if resp := call(t, client, []byte("before")); string(resp) != "BEFORE" {
		t.Fatalf("Expected %q, got %q", "BEFORE", resp)
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Socket file should be removed on stop, stat returned %v", err)
	}

	waitFor(t, 5*time.Second, "disconnect", func() bool { return !client.IsConnected() })
	if _, err := client.SendRequest([]byte("lost"), nil); !errors.Is(err, base.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected while the server is down, got %v", err)
	}
	waitFor(t, 5*time.Second, "disconnect notification", func() bool { return notified.Load() > 0 })

	startServer(t, path, upper)
	waitFor(t, 5*time.Second, "reconnect", client.IsConnected)

	if resp := call(t, client, []byte("after")); string(resp) != "AFTER" {
		t.Errorf("Expected %q, got %q", "AFTER", resp)
	}
	if client.Stats().Reconnects < 1 {
		t.Errorf("Expected at least one reconnect, got %d", client.Stats().Reconnects)
	}
}

// TestClientStartsBeforeServer tests that a client started without server connects once it appears
func TestClientStartsBeforeServer(t *testing.T) {
	path := socketPath(t)
	client := startClient(t, path)

	if client.IsConnected() {
		t.Fatal("Client cannot be connected without server")
	}

	startServer(t, path, upper)
	waitFor(t, 5*time.Second, "connect", client.IsConnected)

	if resp := call(t, client, []byte("late")); string(resp) != "LATE" {
		t.Errorf("Expected %q, got %q", "LATE", resp)
	}
}

// TestHandlerPanicIsolated tests that a panicking handler only closes the connection of its caller
func TestHandlerPanicIsolated(t *testing.T) {
	path := socketPath(t)
	srv := startServer(t, path, func(req []byte) []byte {
		if string(req) == "panic" {
			panic("handler failure")
		}
		return upper(req)
	})

	victim := startClient(t, path)
	bystander := startClient(t, path)
	waitFor(t, 5*time.Second, "two peers", func() bool { return srv.Stats().Peers == 2 })

	if _, err := victim.SendRequest([]byte("panic"), func([]byte) {
		t.Error("A request whose handler panicked must not be answered")
	}); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	// the victim loses its connection and reconnects right away
	waitFor(t, 5*time.Second, "victim reconnect", func() bool { return victim.Stats().Reconnects >= 1 })
	if victim.Stats().Pending != 0 {
		t.Errorf("Expected the pending request to be dropped, got %d pending", victim.Stats().Pending)
	}

	if resp := call(t, bystander, []byte("still here")); string(resp) != "STILL HERE" {
		t.Errorf("Expected %q, got %q", "STILL HERE", resp)
	}
}

// TestMaxConnections tests that connections above the limit are closed by the server
func TestMaxConnections(t *testing.T) {
	path := socketPath(t)
	srv := startServer(t, path, upper, func(c *common.ServerConfig) { c.MaxConnections = 1 })

	first := startClient(t, path)
	waitFor(t, 5*time.Second, "first peer", func() bool { return srv.Stats().Peers == 1 })

	// the second client keeps reconnecting and is closed every time
	startClient(t, path)
	time.Sleep(100 * time.Millisecond)

	if peers := srv.Stats().Peers; peers != 1 {
		t.Errorf("Expected 1 peer, got %d", peers)
	}
	if resp := call(t, first, []byte("first")); string(resp) != "FIRST" {
		t.Errorf("Expected %q, got %q", "FIRST", resp)
	}
}

// TestRequestTimeoutEviction tests that unanswered requests are evicted without callback
func TestRequestTimeoutEviction(t *testing.T) {
	path := socketPath(t)
	release := make(chan struct{})
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }

	startServer(t, path, func(req []byte) []byte {
		if string(req) == "slow" {
			<-release
		}
		return req
	})
	t.Cleanup(unblock)
	client := startClient(t, path, func(c *common.ClientConfig) { c.RequestTimeoutMillis = 50 })

	if _, err := client.SendRequest([]byte("slow"), func([]byte) {
		t.Error("Callback of an evicted request was invoked")
	}); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	waitFor(t, 5*time.Second, "eviction", func() bool { return client.Stats().Evicted >= 1 })
	if client.Stats().Pending != 0 {
		t.Errorf("Expected no pending requests, got %d", client.Stats().Pending)
	}

	// the late response is discarded and the connection stays usable
	unblock()
	if resp := call(t, client, []byte("fast")); string(resp) != "fast" {
		t.Errorf("Expected %q, got %q", "fast", resp)
	}
}

// TestServerLifecycle tests Stop before Listen, double Stop and Stats
func TestServerLifecycle(t *testing.T) {
	srv := NewUnixServerTransport()
	if err := srv.Listen(common.DefaultServerConfig(socketPath(t))); err == nil {
		t.Error("Listen without handler should fail")
	}

	srv = NewUnixServerTransport()
	srv.RegisterHandler(upper)
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop before Listen failed: %v", err)
	}
	if err := srv.Listen(common.DefaultServerConfig(socketPath(t))); !errors.Is(err, base.ErrStopped) {
		t.Errorf("Listen after Stop should return ErrStopped, got %v", err)
	}

	path := socketPath(t)
	srv = startServer(t, path, upper)
	if !srv.Stats().Listening {
		t.Error("Server should report listening")
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("Second Stop failed: %v", err)
	}
	if srv.Stats().Listening {
		t.Error("Stopped server should not report listening")
	}
}

// TestCallbackSendsRequest tests that a response callback can send the next request on the same client
func TestCallbackSendsRequest(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, upper)
	client := startClient(t, path)

	nested := make(chan []byte, 1)
	sent := make(chan error, 1)
	if _, err := client.SendRequest([]byte("one"), func(resp []byte) {
		if string(resp) != "ONE" {
			t.Errorf("Expected %q, got %q", "ONE", resp)
		}
		_, err := client.SendRequest([]byte("two"), func(resp []byte) { nested <- resp })
		sent <- err
	}); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	select {
	case err := <-sent:
		if err != nil {
			t.Fatalf("SendRequest from a callback failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Sending from a callback did not return")
	}

	select {
	case resp := <-nested:
		if string(resp) != "TWO" {
			t.Errorf("Expected %q, got %q", "TWO", resp)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("No response for the request sent from a callback")
	}
}

// TestPollNotifier tests concurrent requests and a large frame with the poll backend on both sides
func TestPollNotifier(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, func(req []byte) []byte {
		if len(req) > 64 {
			return req
		}
		return multiply(req)
	}, func(c *common.ServerConfig) { c.Notifier = "poll" })
	client := startClient(t, path, func(c *common.ClientConfig) { c.Notifier = "poll" })

	const workers = 3
	const perWorker = 2000

	var wrong atomic.Int64
	var done sync.WaitGroup
	done.Add(workers * perWorker)
	for w := 0; w < workers; w++ {
		go func(w int) {
			for i := 0; i < perWorker; i++ {
				value := uint64(w*perWorker + i)
				if _, err := client.SendRequest([]byte(strconv.FormatUint(value, 10)), func(resp []byte) {
					if string(resp) != strconv.FormatUint(value*10, 10) {
						wrong.Add(1)
					}
					done.Done()
				}); err != nil {
					t.Errorf("SendRequest %d failed: %v", value, err)
					done.Done()
				}
			}
		}(w)
	}

	finished := make(chan struct{})
	go func() {
		done.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(30 * time.Second):
		t.Fatalf("Not all callbacks fired, %d requests pending", client.Stats().Pending)
	}
	if wrong.Load() != 0 {
		t.Errorf("%d responses did not match ten times their request", wrong.Load())
	}

	payload := bytes.Repeat([]byte("p"), 200*1024)
	if resp := call(t, client, payload); !bytes.Equal(resp, payload) {
		t.Errorf("Echoed payload differs (%d bytes sent, %d received)", len(payload), len(resp))
	}
}

// TestReadyAfterListenFailure tests that Ready is closed when Listen cannot create the socket
func TestReadyAfterListenFailure(t *testing.T) {
	srv := NewUnixServerTransport()
	srv.RegisterHandler(upper)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(common.DefaultServerConfig(filepath.Join(t.TempDir(), "missing", "t.sock")))
	}()

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("Ready was not closed after a failed Listen")
	}
	if srv.Stats().Listening {
		t.Error("Server should not report listening after a failed Listen")
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("Listen in a missing directory should fail")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return")
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop after a failed Listen returned %v", err)
	}
}

// TestSendWhileConnecting tests that SendRequest and IsConnected can run concurrently with Connect
func TestSendWhileConnecting(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, upper)

	client := NewUnixClientTransport()
	defer client.Stop()

	stop := make(chan struct{})
	var sender sync.WaitGroup
	sender.Add(1)
	go func() {
		defer sender.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			client.IsConnected()
			if _, err := client.SendRequest([]byte("early"), nil); err != nil && !errors.Is(err, base.ErrNotConnected) && !errors.Is(err, base.ErrStopped) {
				t.Errorf("Unexpected SendRequest error: %v", err)
				return
			}
		}
	}()

	cfg := common.DefaultClientConfig(path)
	cfg.RetryIntervalMillis = 20
	cfg.PollIntervalMillis = 5
	if err := client.Connect(cfg); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, 5*time.Second, "connect", client.IsConnected)
	close(stop)
	sender.Wait()

	if resp := call(t, client, []byte("late")); string(resp) != "LATE" {
		t.Errorf("Expected %q, got %q", "LATE", resp)
	}
}
